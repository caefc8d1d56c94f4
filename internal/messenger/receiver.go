package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/oddscache"
	"github.com/radieske/prediction-market-node/internal/payout"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

// PermanentError marca envelopes que nunca serão aceitos (vão para a DLQ)
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent indica se reprocessar o envelope é inútil
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Receiver aplica envelopes recebidos por este nó. A autorização do
// remetente (ex.: oráculo) já foi verificada no nó de origem; o Sender
// vem autenticado pelo transporte.
type Receiver struct {
	Node    string
	Cache   oddscache.Cache
	Payouts payout.Inbox
	Log     *zap.Logger
	Now     func() time.Time

	OnReceived  func(kind events.Kind) // métricas
	OnDuplicate func()                 // métricas
	OnPayout    func(amount uint64)    // métricas
}

func NewReceiver(node string, cache oddscache.Cache, payouts payout.Inbox, log *zap.Logger) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Receiver{
		Node:    node,
		Cache:   cache,
		Payouts: payouts,
		Log:     log.Named("receiver"),
		Now:     time.Now,
	}
}

func (r *Receiver) Handle(ctx context.Context, env events.Envelope) error {
	if env.Target != r.Node {
		return permanent("envelope %s addressed to %q, this node is %q", env.ID, env.Target, r.Node)
	}
	msg, err := env.Decode()
	if err != nil {
		return &PermanentError{Err: err}
	}
	if r.OnReceived != nil {
		r.OnReceived(env.Kind)
	}

	switch m := msg.(type) {
	case *events.OddsUpdate:
		return r.applyOdds(ctx, env, m)
	case *events.PayoutNotice:
		return r.recordPayout(ctx, env, m)
	default:
		return permanent("unhandled message %T", msg)
	}
}

// applyOdds atualiza só as odds da cópia local (remetente, mercado)
func (r *Receiver) applyOdds(ctx context.Context, env events.Envelope, m *events.OddsUpdate) error {
	applied, err := r.Cache.Set(ctx, oddscache.Entry{
		Node:      env.Sender,
		MarketID:  m.MarketID,
		Odds:      m.Odds,
		UpdatedAt: env.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("cache odds: %w", err)
	}
	if !applied {
		r.Log.Debug("stale odds update ignored",
			zap.String("sender", env.Sender),
			zap.Uint64("market_id", m.MarketID),
			zap.Time("created_at", env.CreatedAt),
		)
		return nil
	}
	r.Log.Info("odds update applied",
		zap.String("sender", env.Sender),
		zap.Uint64("market_id", m.MarketID),
		zap.Float64s("odds", m.Odds),
		zap.Int32("sentiment_score", m.SentimentScore),
	)
	return nil
}

func (r *Receiver) recordPayout(ctx context.Context, env events.Envelope, m *events.PayoutNotice) error {
	if m.Beneficiary != r.Node {
		return permanent("payout notice %s for %q delivered to %q", env.ID, m.Beneficiary, r.Node)
	}
	recorded, err := r.Payouts.Record(ctx, payout.Notice{
		MessageID:   env.ID,
		Sender:      env.Sender,
		MarketID:    m.MarketID,
		Beneficiary: m.Beneficiary,
		Amount:      m.Amount,
		ReceivedAt:  r.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record payout: %w", err)
	}
	if !recorded {
		r.Log.Info("duplicate payout notice dropped", zap.String("id", env.ID))
		if r.OnDuplicate != nil {
			r.OnDuplicate()
		}
		return nil
	}
	if r.OnPayout != nil {
		r.OnPayout(m.Amount)
	}
	r.Log.Info("payout received",
		zap.String("sender", env.Sender),
		zap.Uint64("market_id", m.MarketID),
		zap.Uint64("amount", m.Amount),
	)
	return nil
}
