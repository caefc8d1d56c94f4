// Package memory implementa market.Store em memória. Cada Update trabalha
// sobre um overlay que só é aplicado ao estado base quando fn retorna nil.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/radieske/prediction-market-node/internal/market"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

type bucket struct {
	marketID uint64
	outcome  uint32
}

type state struct {
	nextID       uint64
	instantiator market.NodeID
	hasInst      bool
	markets      map[uint64]market.Market
	stakes       map[bucket]map[market.NodeID]uint64
	subscribers  map[market.NodeID]struct{}
	oracles      map[market.NodeID]struct{}
	winners      map[uint64]uint32
	outbox       []events.Envelope
}

type Store struct {
	mu sync.RWMutex
	s  state
}

func New() *Store {
	return &Store{s: state{
		markets:     make(map[uint64]market.Market),
		stakes:      make(map[bucket]map[market.NodeID]uint64),
		subscribers: make(map[market.NodeID]struct{}),
		oracles:     make(map[market.NodeID]struct{}),
		winners:     make(map[uint64]uint32),
	}}
}

func (s *Store) View(ctx context.Context, fn func(market.ReadTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTx(&s.s))
}

func (s *Store) Update(ctx context.Context, fn func(market.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := newTx(&s.s)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// PendingMessages devolve até limit mensagens do outbox em ordem de inserção
func (s *Store) PendingMessages(ctx context.Context, limit int) ([]events.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.s.outbox)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]events.Envelope(nil), s.s.outbox[:n]...), nil
}

// Ack remove do outbox as mensagens entregues ao transporte
func (s *Store) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.s.outbox[:0]
	for _, env := range s.s.outbox {
		if _, ok := drop[env.ID]; !ok {
			kept = append(kept, env)
		}
	}
	s.s.outbox = kept
	return nil
}

type tx struct {
	base *state

	nextID       *uint64
	instantiator *market.NodeID
	markets      map[uint64]market.Market
	stakes       map[market.StakeKey]uint64
	subscribers  map[market.NodeID]struct{}
	oracles      map[market.NodeID]struct{}
	winners      map[uint64]uint32
	outbox       []events.Envelope
}

var _ market.Tx = (*tx)(nil)

func newTx(base *state) *tx {
	return &tx{
		base:        base,
		markets:     make(map[uint64]market.Market),
		stakes:      make(map[market.StakeKey]uint64),
		subscribers: make(map[market.NodeID]struct{}),
		oracles:     make(map[market.NodeID]struct{}),
		winners:     make(map[uint64]uint32),
	}
}

func (t *tx) commit() {
	b := t.base
	if t.nextID != nil {
		b.nextID = *t.nextID
	}
	if t.instantiator != nil {
		b.instantiator = *t.instantiator
		b.hasInst = true
	}
	for id, m := range t.markets {
		b.markets[id] = m
	}
	for k, v := range t.stakes {
		bk := bucket{marketID: k.MarketID, outcome: k.Outcome}
		if b.stakes[bk] == nil {
			b.stakes[bk] = make(map[market.NodeID]uint64)
		}
		b.stakes[bk][k.Node] = v
	}
	for n := range t.subscribers {
		b.subscribers[n] = struct{}{}
	}
	for n := range t.oracles {
		b.oracles[n] = struct{}{}
	}
	for id, w := range t.winners {
		b.winners[id] = w
	}
	b.outbox = append(b.outbox, t.outbox...)
}

func (t *tx) NextMarketID(ctx context.Context) (uint64, error) {
	if t.nextID != nil {
		return *t.nextID, nil
	}
	return t.base.nextID, nil
}

func (t *tx) Market(ctx context.Context, id uint64) (market.Market, bool, error) {
	if m, ok := t.markets[id]; ok {
		return m.Clone(), true, nil
	}
	m, ok := t.base.markets[id]
	if !ok {
		return market.Market{}, false, nil
	}
	return m.Clone(), true, nil
}

func (t *tx) Stake(ctx context.Context, key market.StakeKey) (uint64, error) {
	if v, ok := t.stakes[key]; ok {
		return v, nil
	}
	return t.base.stakes[bucket{marketID: key.MarketID, outcome: key.Outcome}][key.Node], nil
}

func (t *tx) ScanStakes(ctx context.Context, marketID uint64, outcome uint32) ([]market.StakeRecord, error) {
	merged := make(map[market.NodeID]uint64)
	for n, v := range t.base.stakes[bucket{marketID: marketID, outcome: outcome}] {
		merged[n] = v
	}
	for k, v := range t.stakes {
		if k.MarketID == marketID && k.Outcome == outcome {
			merged[k.Node] = v
		}
	}
	out := make([]market.StakeRecord, 0, len(merged))
	for n, v := range merged {
		out = append(out, market.StakeRecord{Node: n, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out, nil
}

func (t *tx) IsSubscriber(ctx context.Context, node market.NodeID) (bool, error) {
	return member(node, t.subscribers, t.base.subscribers), nil
}

func (t *tx) Subscribers(ctx context.Context) ([]market.NodeID, error) {
	return union(t.subscribers, t.base.subscribers), nil
}

func (t *tx) IsOracle(ctx context.Context, node market.NodeID) (bool, error) {
	return member(node, t.oracles, t.base.oracles), nil
}

func (t *tx) Oracles(ctx context.Context) ([]market.NodeID, error) {
	return union(t.oracles, t.base.oracles), nil
}

func (t *tx) WinningOutcome(ctx context.Context, marketID uint64) (uint32, bool, error) {
	if w, ok := t.winners[marketID]; ok {
		return w, true, nil
	}
	w, ok := t.base.winners[marketID]
	return w, ok, nil
}

func (t *tx) Instantiator(ctx context.Context) (market.NodeID, bool, error) {
	if t.instantiator != nil {
		return *t.instantiator, true, nil
	}
	return t.base.instantiator, t.base.hasInst, nil
}

func (t *tx) SetNextMarketID(ctx context.Context, next uint64) error {
	t.nextID = &next
	return nil
}

func (t *tx) PutMarket(ctx context.Context, m market.Market) error {
	t.markets[m.ID] = m.Clone()
	return nil
}

func (t *tx) PutStake(ctx context.Context, key market.StakeKey, amount uint64) error {
	t.stakes[key] = amount
	return nil
}

func (t *tx) AddSubscriber(ctx context.Context, node market.NodeID) error {
	t.subscribers[node] = struct{}{}
	return nil
}

func (t *tx) AddOracle(ctx context.Context, node market.NodeID) error {
	t.oracles[node] = struct{}{}
	return nil
}

func (t *tx) PutWinningOutcome(ctx context.Context, marketID uint64, outcome uint32) error {
	t.winners[marketID] = outcome
	return nil
}

func (t *tx) SetInstantiator(ctx context.Context, node market.NodeID) error {
	t.instantiator = &node
	return nil
}

func (t *tx) Enqueue(ctx context.Context, env events.Envelope) error {
	t.outbox = append(t.outbox, env)
	return nil
}

func member(n market.NodeID, sets ...map[market.NodeID]struct{}) bool {
	for _, s := range sets {
		if _, ok := s[n]; ok {
			return true
		}
	}
	return false
}

func union(sets ...map[market.NodeID]struct{}) []market.NodeID {
	seen := make(map[market.NodeID]struct{})
	var out []market.NodeID
	for _, s := range sets {
		for n := range s {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
