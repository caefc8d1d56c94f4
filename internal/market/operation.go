package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Operation é o conjunto fechado de operações da máquina de estados.
// dispatch é não exportado: cada variante chama exatamente um método do
// Handler, então uma variante nova não compila sem o handler correspondente.
type Operation interface {
	Name() string
	dispatch(ctx context.Context, h Handler) (uint64, error)
}

// Handler tem um método por variante de Operation
type Handler interface {
	CreateMarket(ctx context.Context, op CreateMarket) (uint64, error)
	Stake(ctx context.Context, op Stake) (uint64, error)
	UpdateOdds(ctx context.Context, op UpdateOdds) (uint64, error)
	Resolve(ctx context.Context, op Resolve) (uint64, error)
	Subscribe(ctx context.Context, op Subscribe) (uint64, error)
	AddOracle(ctx context.Context, op AddOracle) (uint64, error)
}

type CreateMarket struct {
	Question       string    `json:"question"`
	Outcomes       []string  `json:"outcomes"`
	ResolutionTime time.Time `json:"resolution_time"`
}

type Stake struct {
	MarketID uint64 `json:"market_id"`
	Outcome  uint32 `json:"outcome_index"`
	Amount   uint64 `json:"amount"`
}

type UpdateOdds struct {
	MarketID       uint64    `json:"market_id"`
	Odds           []float64 `json:"new_odds"`
	SentimentScore int32     `json:"sentiment_score"`
}

type Resolve struct {
	MarketID       uint64 `json:"market_id"`
	WinningOutcome uint32 `json:"winning_outcome"`
}

type Subscribe struct{}

type AddOracle struct {
	Node NodeID `json:"oracle_node"`
}

const (
	OpCreateMarket = "create_market"
	OpStake        = "stake"
	OpUpdateOdds   = "update_odds"
	OpResolve      = "resolve"
	OpSubscribe    = "subscribe"
	OpAddOracle    = "add_oracle"
)

func (CreateMarket) Name() string { return OpCreateMarket }
func (Stake) Name() string        { return OpStake }
func (UpdateOdds) Name() string   { return OpUpdateOdds }
func (Resolve) Name() string      { return OpResolve }
func (Subscribe) Name() string    { return OpSubscribe }
func (AddOracle) Name() string    { return OpAddOracle }

func (op CreateMarket) dispatch(ctx context.Context, h Handler) (uint64, error) {
	return h.CreateMarket(ctx, op)
}
func (op Stake) dispatch(ctx context.Context, h Handler) (uint64, error) { return h.Stake(ctx, op) }
func (op UpdateOdds) dispatch(ctx context.Context, h Handler) (uint64, error) {
	return h.UpdateOdds(ctx, op)
}
func (op Resolve) dispatch(ctx context.Context, h Handler) (uint64, error) {
	return h.Resolve(ctx, op)
}
func (op Subscribe) dispatch(ctx context.Context, h Handler) (uint64, error) {
	return h.Subscribe(ctx, op)
}
func (op AddOracle) dispatch(ctx context.Context, h Handler) (uint64, error) {
	return h.AddOracle(ctx, op)
}

// DecodeOperation monta a variante a partir do nome e do payload JSON
func DecodeOperation(name string, payload []byte) (Operation, error) {
	var (
		op  Operation
		err error
	)
	switch name {
	case OpCreateMarket:
		var v CreateMarket
		err = decodePayload(payload, &v)
		op = v
	case OpStake:
		var v Stake
		err = decodePayload(payload, &v)
		op = v
	case OpUpdateOdds:
		var v UpdateOdds
		err = decodePayload(payload, &v)
		op = v
	case OpResolve:
		var v Resolve
		err = decodePayload(payload, &v)
		op = v
	case OpSubscribe:
		op = Subscribe{}
	case OpAddOracle:
		var v AddOracle
		err = decodePayload(payload, &v)
		op = v
	default:
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return op, nil
}

func decodePayload(payload []byte, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, dst)
}
