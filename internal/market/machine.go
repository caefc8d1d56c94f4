// Package market implementa a máquina de estados de mercados de previsão de um nó:
// ciclo de vida do mercado, livro de apostas, registros de oráculos e assinantes,
// e emissão das mensagens entre nós via outbox transacional.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/settlement"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

type Config struct {
	Node   NodeID
	Payout settlement.Policy
}

// Machine executa as operações de um nó de forma sequencial e atômica.
// Callbacks são opcionais e servem para métricas e para acordar o relay.
type Machine struct {
	mu     sync.Mutex
	store  Store
	node   NodeID
	payout settlement.Policy
	log    *zap.Logger

	Now func() time.Time

	OnApplied  func(op string)
	OnRejected func(op string, kind string)
	OnEnqueued func(kind events.Kind, n int)
}

func NewMachine(store Store, cfg Config, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		store:  store,
		node:   cfg.Node,
		payout: cfg.Payout,
		log:    log.Named("market"),
		Now:    time.Now,
	}
}

func (m *Machine) Node() NodeID { return m.node }

// Instantiate semeia o contrato: o nó local vira instanciador e único oráculo.
// Chamadas repetidas (restart) não alteram o estado.
func (m *Machine) Instantiate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.Update(ctx, func(tx Tx) error {
		if _, ok, err := tx.Instantiator(ctx); err != nil {
			return fmt.Errorf("load instantiator: %w", err)
		} else if ok {
			return nil
		}
		if err := tx.SetInstantiator(ctx, m.node); err != nil {
			return fmt.Errorf("set instantiator: %w", err)
		}
		if err := tx.AddOracle(ctx, m.node); err != nil {
			return fmt.Errorf("seed oracle: %w", err)
		}
		if err := tx.SetNextMarketID(ctx, 0); err != nil {
			return fmt.Errorf("seed market id: %w", err)
		}
		m.log.Info("contract instantiated")
		return nil
	})
}

// Execute valida e aplica uma operação. Todas as escritas (livros, registros
// e outbox) entram num único commit; em caso de erro nada é persistido.
func (m *Machine) Execute(ctx context.Context, caller Caller, op Operation) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		resp uint64
		h    *handler
	)
	err := m.store.Update(ctx, func(tx Tx) error {
		h = &handler{
			tx:       tx,
			node:     m.node,
			caller:   caller,
			payout:   m.payout,
			now:      m.Now(),
			log:      m.log,
			enqueued: make(map[events.Kind]int),
		}
		var err error
		resp, err = op.dispatch(ctx, h)
		return err
	})
	if err != nil {
		var opErr *Error
		if errors.As(err, &opErr) {
			m.log.Warn("operation rejected",
				zap.String("op", op.Name()),
				zap.String("caller", string(caller.Node)),
				zap.String("kind", string(opErr.Kind)),
				zap.Error(err),
			)
			if m.OnRejected != nil {
				m.OnRejected(op.Name(), string(opErr.Kind))
			}
			return 0, err
		}
		m.log.Error("operation failed", zap.String("op", op.Name()), zap.Error(err))
		if m.OnRejected != nil {
			m.OnRejected(op.Name(), "internal")
		}
		return 0, fmt.Errorf("%s: %w", op.Name(), err)
	}

	m.log.Info("operation applied",
		zap.String("op", op.Name()),
		zap.String("caller", string(caller.Node)),
		zap.Uint64("response", resp),
	)
	if m.OnApplied != nil {
		m.OnApplied(op.Name())
	}
	if m.OnEnqueued != nil {
		for kind, n := range h.enqueued {
			m.OnEnqueued(kind, n)
		}
	}
	return resp, nil
}

type handler struct {
	tx       Tx
	node     NodeID
	caller   Caller
	payout   settlement.Policy
	now      time.Time
	log      *zap.Logger
	enqueued map[events.Kind]int
}

var _ Handler = (*handler)(nil)

func (h *handler) CreateMarket(ctx context.Context, op CreateMarket) (uint64, error) {
	if h.caller.Signer == "" {
		return 0, newError(KindUnauthenticated, "create_market requires a signed caller")
	}
	if len(op.Outcomes) < 2 {
		return 0, newError(KindInvalidOutcomeSet, "got %d outcomes, need at least 2", len(op.Outcomes))
	}

	id, err := h.tx.NextMarketID(ctx)
	if err != nil {
		return 0, fmt.Errorf("load next market id: %w", err)
	}
	n := len(op.Outcomes)
	mk := Market{
		ID:             id,
		Creator:        h.caller.Signer,
		Question:       op.Question,
		Outcomes:       append([]string(nil), op.Outcomes...),
		Odds:           uniformOdds(n),
		ResolutionTime: op.ResolutionTime,
		Status:         StatusActive,
		TotalStaked:    make([]uint64, n),
	}
	if err := h.tx.PutMarket(ctx, mk); err != nil {
		return 0, fmt.Errorf("put market: %w", err)
	}
	if err := h.tx.SetNextMarketID(ctx, id+1); err != nil {
		return 0, fmt.Errorf("advance market id: %w", err)
	}
	return id, nil
}

func (h *handler) Stake(ctx context.Context, op Stake) (uint64, error) {
	if err := requireNode(h.caller); err != nil {
		return 0, err
	}
	mk, err := loadMarket(ctx, h.tx, op.MarketID)
	if err != nil {
		return 0, err
	}
	if err := checkOutcome(mk, op.Outcome); err != nil {
		return 0, err
	}
	if err := checkActive(mk); err != nil {
		return 0, err
	}

	key := StakeKey{MarketID: op.MarketID, Outcome: op.Outcome, Node: h.caller.Node}
	total, err := accumulateStake(ctx, h.tx, &mk, key, op.Amount)
	if err != nil {
		return 0, err
	}
	if err := h.tx.PutMarket(ctx, mk); err != nil {
		return 0, fmt.Errorf("put market: %w", err)
	}
	h.log.Debug("stake recorded",
		zap.Uint64("market_id", op.MarketID),
		zap.Uint32("outcome", op.Outcome),
		zap.Uint64("node_stake", total),
		zap.Uint64("outcome_total", mk.TotalStaked[op.Outcome]),
	)
	return op.MarketID, nil
}

func (h *handler) UpdateOdds(ctx context.Context, op UpdateOdds) (uint64, error) {
	if err := requireNode(h.caller); err != nil {
		return 0, err
	}
	if err := requireOracle(ctx, h.tx, h.caller.Node); err != nil {
		return 0, err
	}
	mk, err := loadMarket(ctx, h.tx, op.MarketID)
	if err != nil {
		return 0, err
	}
	if err := checkActive(mk); err != nil {
		return 0, err
	}
	if err := checkOdds(mk, op.Odds); err != nil {
		return 0, err
	}

	mk.Odds = append([]float64(nil), op.Odds...)
	if err := h.tx.PutMarket(ctx, mk); err != nil {
		return 0, fmt.Errorf("put market: %w", err)
	}

	// fan-out: um OddsUpdate por assinante
	subs, err := h.tx.Subscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}
	msg := events.OddsUpdate{MarketID: mk.ID, Odds: mk.Odds, SentimentScore: op.SentimentScore}
	for _, sub := range subs {
		if err := h.enqueue(ctx, events.KindOddsUpdate, sub, msg); err != nil {
			return 0, err
		}
	}
	return mk.ID, nil
}

func (h *handler) Resolve(ctx context.Context, op Resolve) (uint64, error) {
	if err := requireNode(h.caller); err != nil {
		return 0, err
	}
	if err := requireOracle(ctx, h.tx, h.caller.Node); err != nil {
		return 0, err
	}
	mk, err := loadMarket(ctx, h.tx, op.MarketID)
	if err != nil {
		return 0, err
	}
	if prev, ok, err := h.tx.WinningOutcome(ctx, mk.ID); err != nil {
		return 0, fmt.Errorf("load winning outcome: %w", err)
	} else if ok || mk.Status == StatusResolved {
		return 0, newError(KindAlreadyResolved, "market %d already resolved with outcome %d", mk.ID, prev)
	}
	if err := checkActive(mk); err != nil {
		return 0, err
	}
	if err := checkOutcome(mk, op.WinningOutcome); err != nil {
		return 0, err
	}

	mk.Status = StatusResolved
	if err := h.tx.PutMarket(ctx, mk); err != nil {
		return 0, fmt.Errorf("put market: %w", err)
	}
	if err := h.tx.PutWinningOutcome(ctx, mk.ID, op.WinningOutcome); err != nil {
		return 0, fmt.Errorf("put winning outcome: %w", err)
	}
	if !mk.ResolutionTime.IsZero() && h.now.Before(mk.ResolutionTime) {
		h.log.Info("market resolved before advisory resolution time",
			zap.Uint64("market_id", mk.ID),
			zap.Time("resolution_time", mk.ResolutionTime),
		)
	}

	return mk.ID, h.processPayouts(ctx, mk, op.WinningOutcome)
}

// processPayouts enumera as apostas no vencedor e enfileira um PayoutNotice por beneficiário
func (h *handler) processPayouts(ctx context.Context, mk Market, winner uint32) error {
	if mk.TotalStaked[winner] == 0 {
		return nil
	}
	records, err := h.tx.ScanStakes(ctx, mk.ID, winner)
	if err != nil {
		return fmt.Errorf("scan stakes: %w", err)
	}
	stakes := make([]settlement.Stake, 0, len(records))
	for _, r := range records {
		stakes = append(stakes, settlement.Stake{Node: string(r.Node), Amount: r.Amount})
	}

	payouts := settlement.Compute(h.payout, mk.TotalStaked, winner, stakes)
	for _, p := range payouts {
		notice := events.PayoutNotice{MarketID: mk.ID, Amount: p.Amount, Beneficiary: p.Beneficiary}
		if err := h.enqueue(ctx, events.KindPayoutNotice, NodeID(p.Beneficiary), notice); err != nil {
			return err
		}
	}
	h.log.Info("payouts computed",
		zap.Uint64("market_id", mk.ID),
		zap.Uint32("winning_outcome", winner),
		zap.Uint64("winning_total", mk.TotalStaked[winner]),
		zap.Uint64("pool", h.payout.PoolSize(mk.TotalStaked, winner)),
		zap.Int("notices", len(payouts)),
	)
	return nil
}

func (h *handler) Subscribe(ctx context.Context, _ Subscribe) (uint64, error) {
	if err := requireNode(h.caller); err != nil {
		return 0, err
	}
	if err := h.tx.AddSubscriber(ctx, h.caller.Node); err != nil {
		return 0, fmt.Errorf("add subscriber: %w", err)
	}
	return 0, nil
}

func (h *handler) AddOracle(ctx context.Context, op AddOracle) (uint64, error) {
	if err := requireNode(h.caller); err != nil {
		return 0, err
	}
	if err := requireOracleAdmin(ctx, h.tx, h.caller.Node); err != nil {
		return 0, err
	}
	if err := h.tx.AddOracle(ctx, op.Node); err != nil {
		return 0, fmt.Errorf("add oracle: %w", err)
	}
	return 0, nil
}

func (h *handler) enqueue(ctx context.Context, kind events.Kind, target NodeID, payload any) error {
	env, err := events.NewEnvelope(kind, string(h.node), string(target), payload, h.now)
	if err != nil {
		return err
	}
	if err := h.tx.Enqueue(ctx, env); err != nil {
		return fmt.Errorf("enqueue %s to %s: %w", kind, target, err)
	}
	h.enqueued[kind]++
	return nil
}
