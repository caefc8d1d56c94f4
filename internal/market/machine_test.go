package market_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/prediction-market-node/internal/market"
	"github.com/radieske/prediction-market-node/internal/settlement"
	"github.com/radieske/prediction-market-node/internal/store/memory"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

const home market.NodeID = "node-home"

var (
	oracle   = market.Caller{Node: home, Signer: "owner-home"}
	alice    = market.Caller{Node: "node-alice", Signer: "owner-alice"}
	bob      = market.Caller{Node: "node-bob", Signer: "owner-bob"}
	stranger = market.Caller{Node: "node-stranger", Signer: "owner-stranger"}
)

func newMachine(t *testing.T, pool settlement.Pool) (*market.Machine, *memory.Store) {
	t.Helper()
	st := memory.New()
	m := market.NewMachine(st, market.Config{Node: home, Payout: settlement.Policy{Pool: pool}}, nil)
	if err := m.Instantiate(context.Background()); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return m, st
}

func createYesNo(t *testing.T, m *market.Machine) uint64 {
	t.Helper()
	id, err := m.Execute(context.Background(), alice, market.CreateMarket{
		Question: "Will it rain tomorrow?",
		Outcomes: []string{"Yes", "No"},
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return id
}

func checkShape(t *testing.T, mk market.Market) {
	t.Helper()
	if len(mk.Odds) != len(mk.Outcomes) || len(mk.TotalStaked) != len(mk.Outcomes) {
		t.Fatalf("shape mismatch: outcomes=%d odds=%d totals=%d",
			len(mk.Outcomes), len(mk.Odds), len(mk.TotalStaked))
	}
}

func pending(t *testing.T, st *memory.Store) []events.Envelope {
	t.Helper()
	out, err := st.PendingMessages(context.Background(), 0)
	if err != nil {
		t.Fatalf("pending messages: %v", err)
	}
	return out
}

func TestInstantiate_SeedsOnlyInstantiatorAsOracle(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()

	// restart não deve duplicar nem alterar o estado
	if err := m.Instantiate(ctx); err != nil {
		t.Fatalf("second instantiate: %v", err)
	}
	oracles, err := m.Oracles(ctx)
	if err != nil {
		t.Fatalf("oracles: %v", err)
	}
	if len(oracles) != 1 || oracles[0] != home {
		t.Fatalf("oracles = %v, want [%s]", oracles, home)
	}
	n, _ := m.MarketCount(ctx)
	if n != 0 {
		t.Fatalf("MarketCount = %d, want 0", n)
	}
}

func TestCreateMarket_ScenarioA(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()

	id := createYesNo(t, m)
	if id != 0 {
		t.Fatalf("id = %d, want 0", id)
	}
	mk, err := m.Market(ctx, id)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	checkShape(t, mk)
	if mk.Odds[0] != 0.5 || mk.Odds[1] != 0.5 {
		t.Errorf("odds = %v, want [0.5 0.5]", mk.Odds)
	}
	if mk.Status != market.StatusActive {
		t.Errorf("status = %s, want active", mk.Status)
	}
	if mk.Creator != alice.Signer {
		t.Errorf("creator = %q, want %q", mk.Creator, alice.Signer)
	}
	if n, _ := m.MarketCount(ctx); n != 1 {
		t.Errorf("MarketCount = %d, want 1", n)
	}
	if second := createYesNo(t, m); second != 1 {
		t.Errorf("second id = %d, want 1", second)
	}
}

func TestCreateMarket_UniformOddsForThreeOutcomes(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	id, err := m.Execute(context.Background(), alice, market.CreateMarket{
		Question: "Match result", Outcomes: []string{"Home", "Draw", "Away"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mk, _ := m.Market(context.Background(), id)
	checkShape(t, mk)
	for i, p := range mk.Odds {
		if math.Abs(p-1.0/3.0) > 1e-12 {
			t.Errorf("odds[%d] = %v, want 1/3", i, p)
		}
	}
}

func TestCreateMarket_SingleOutcome_ScenarioE(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()

	_, err := m.Execute(ctx, alice, market.CreateMarket{Question: "?", Outcomes: []string{"Only"}})
	if !errors.Is(err, market.ErrInvalidOutcomeSet) {
		t.Fatalf("err = %v, want InvalidOutcomeSet", err)
	}
	if n, _ := m.MarketCount(ctx); n != 0 {
		t.Fatalf("MarketCount = %d after rejected create, want 0", n)
	}
}

func TestCreateMarket_RequiresSigner(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	_, err := m.Execute(context.Background(), market.Caller{Node: "node-x"}, market.CreateMarket{
		Question: "?", Outcomes: []string{"a", "b"},
	})
	if !errors.Is(err, market.ErrUnauthenticated) {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
}

func TestStake_Accumulates_ScenarioB(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	if _, err := m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 0, Amount: 100}); err != nil {
		t.Fatalf("stake 100: %v", err)
	}
	resp, err := m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 0, Amount: 50})
	if err != nil {
		t.Fatalf("stake 50: %v", err)
	}
	if resp != id {
		t.Errorf("response = %d, want market id %d", resp, id)
	}

	got, _ := m.StakeOf(ctx, market.StakeKey{MarketID: id, Outcome: 0, Node: alice.Node})
	if got != 150 {
		t.Errorf("stake record = %d, want 150", got)
	}
	mk, _ := m.Market(ctx, id)
	checkShape(t, mk)
	if mk.TotalStaked[0] != 150 || mk.TotalStaked[1] != 0 {
		t.Errorf("total_staked = %v, want [150 0]", mk.TotalStaked)
	}
}

func TestStake_MultipleOutcomesAndNodes(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	_, _ = m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 0, Amount: 10})
	_, _ = m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 1, Amount: 20})
	_, _ = m.Execute(ctx, bob, market.Stake{MarketID: id, Outcome: 1, Amount: 5})

	recs, err := m.Stakes(ctx, id, 1)
	if err != nil {
		t.Fatalf("stakes: %v", err)
	}
	if len(recs) != 2 || recs[0].Node != alice.Node || recs[0].Amount != 20 || recs[1].Amount != 5 {
		t.Errorf("stakes on outcome 1 = %+v", recs)
	}
	mk, _ := m.Market(ctx, id)
	if mk.TotalStaked[0] != 10 || mk.TotalStaked[1] != 25 {
		t.Errorf("total_staked = %v, want [10 25]", mk.TotalStaked)
	}
}

func TestStake_Saturates(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	_, _ = m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 0, Amount: math.MaxUint64 - 10})
	if _, err := m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 0, Amount: 100}); err != nil {
		t.Fatalf("saturating stake: %v", err)
	}
	got, _ := m.StakeOf(ctx, market.StakeKey{MarketID: id, Outcome: 0, Node: alice.Node})
	if got != math.MaxUint64 {
		t.Errorf("stake = %d, want MaxUint64", got)
	}
	mk, _ := m.Market(ctx, id)
	if mk.TotalStaked[0] != math.MaxUint64 {
		t.Errorf("total = %d, want MaxUint64", mk.TotalStaked[0])
	}
}

func TestStake_Rejections(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	_, err := m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 2, Amount: 10})
	if !errors.Is(err, market.ErrInvalidOutcome) {
		t.Errorf("out of range err = %v, want InvalidOutcome", err)
	}
	var opErr *market.Error
	if !errors.As(err, &opErr) || opErr.Detail == "" {
		t.Errorf("error should carry the offending index, got %v", err)
	}

	_, err = m.Execute(ctx, alice, market.Stake{MarketID: 42, Outcome: 0, Amount: 10})
	if !errors.Is(err, market.ErrMarketNotFound) {
		t.Errorf("missing market err = %v, want MarketNotFound", err)
	}

	_, err = m.Execute(ctx, market.Caller{}, market.Stake{MarketID: id, Outcome: 0, Amount: 10})
	if !errors.Is(err, market.ErrUnauthenticated) {
		t.Errorf("anonymous err = %v, want Unauthenticated", err)
	}

	if got, _ := m.StakeOf(ctx, market.StakeKey{MarketID: 42, Outcome: 0, Node: alice.Node}); got != 0 {
		t.Errorf("rejected stake left a record: %d", got)
	}
	mk, _ := m.Market(ctx, id)
	if mk.TotalStaked[0] != 0 {
		t.Errorf("rejected stake changed totals: %v", mk.TotalStaked)
	}
}

func TestStake_RejectedAfterResolution(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	if _, err := m.Execute(ctx, oracle, market.Resolve{MarketID: id, WinningOutcome: 1}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err := m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 1, Amount: 10})
	if !errors.Is(err, market.ErrMarketNotActive) {
		t.Fatalf("err = %v, want MarketNotActive", err)
	}
}

func TestResolve_NonOracle_ScenarioC(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	_, err := m.Execute(ctx, stranger, market.Resolve{MarketID: id, WinningOutcome: 0})
	if !errors.Is(err, market.ErrUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
	mk, _ := m.Market(ctx, id)
	if mk.Status != market.StatusActive {
		t.Errorf("status = %s, want active", mk.Status)
	}
	if _, ok, _ := m.WinningOutcome(ctx, id); ok {
		t.Error("winning outcome recorded by unauthorized resolve")
	}
}

func TestUpdateOdds_NonOracle(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	id := createYesNo(t, m)

	_, err := m.Execute(context.Background(), stranger, market.UpdateOdds{MarketID: id, Odds: []float64{0.1, 0.9}})
	if !errors.Is(err, market.ErrUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
}

func TestUpdateOdds_ScenarioD_FansOutToSubscribers(t *testing.T) {
	m, st := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	for _, c := range []market.Caller{alice, bob, alice} {
		if _, err := m.Execute(ctx, c, market.Subscribe{}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	subs, _ := m.Subscribers(ctx)
	if len(subs) != 2 {
		t.Fatalf("subscribers = %v, want 2 distinct", subs)
	}

	if _, err := m.Execute(ctx, oracle, market.UpdateOdds{MarketID: id, Odds: []float64{0.3, 0.7}, SentimentScore: 10}); err != nil {
		t.Fatalf("update odds: %v", err)
	}
	mk, _ := m.Market(ctx, id)
	checkShape(t, mk)
	if mk.Odds[0] != 0.3 || mk.Odds[1] != 0.7 {
		t.Fatalf("odds = %v, want [0.3 0.7]", mk.Odds)
	}

	msgs := pending(t, st)
	if len(msgs) != 2 {
		t.Fatalf("outbox = %d messages, want 2", len(msgs))
	}
	targets := map[string]bool{}
	for _, env := range msgs {
		if env.Kind != events.KindOddsUpdate || env.Sender != string(home) {
			t.Errorf("unexpected envelope %+v", env)
		}
		var upd events.OddsUpdate
		if err := json.Unmarshal(env.Payload, &upd); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if upd.MarketID != id || upd.SentimentScore != 10 || len(upd.Odds) != 2 || upd.Odds[1] != 0.7 {
			t.Errorf("payload = %+v", upd)
		}
		targets[env.Target] = true
	}
	if !targets[string(alice.Node)] || !targets[string(bob.Node)] {
		t.Errorf("targets = %v, want alice and bob", targets)
	}
}

func TestUpdateOdds_ShapeMismatch(t *testing.T) {
	m, st := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)
	_, _ = m.Execute(ctx, alice, market.Subscribe{})

	for _, odds := range [][]float64{{1}, {0.2, 0.3, 0.5}, {-0.1, 1.1}, {math.NaN(), 0.5}} {
		_, err := m.Execute(ctx, oracle, market.UpdateOdds{MarketID: id, Odds: odds})
		if !errors.Is(err, market.ErrInvalidOddsShape) {
			t.Errorf("odds %v: err = %v, want InvalidOddsShape", odds, err)
		}
	}
	mk, _ := m.Market(ctx, id)
	checkShape(t, mk)
	if mk.Odds[0] != 0.5 {
		t.Errorf("odds changed by rejected update: %v", mk.Odds)
	}
	if n := len(pending(t, st)); n != 0 {
		t.Errorf("rejected update enqueued %d messages", n)
	}
}

func TestUpdateOdds_UnknownMarket(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	_, err := m.Execute(context.Background(), oracle, market.UpdateOdds{MarketID: 9, Odds: []float64{0.5, 0.5}})
	if !errors.Is(err, market.ErrMarketNotFound) {
		t.Fatalf("err = %v, want MarketNotFound", err)
	}
}

func TestResolve_OnceOnly(t *testing.T) {
	m, st := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)
	_, _ = m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 0, Amount: 100})

	if _, err := m.Execute(ctx, oracle, market.Resolve{MarketID: id, WinningOutcome: 0}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	before := len(pending(t, st))

	_, err := m.Execute(ctx, oracle, market.Resolve{MarketID: id, WinningOutcome: 1})
	if !errors.Is(err, market.ErrAlreadyResolved) {
		t.Fatalf("second resolve err = %v, want AlreadyResolved", err)
	}
	w, ok, _ := m.WinningOutcome(ctx, id)
	if !ok || w != 0 {
		t.Errorf("winning outcome = %d (%v), want 0", w, ok)
	}
	if after := len(pending(t, st)); after != before {
		t.Errorf("second resolve enqueued payouts: %d -> %d", before, after)
	}
	mk, _ := m.Market(ctx, id)
	if mk.Status != market.StatusResolved {
		t.Errorf("status = %s, want resolved", mk.Status)
	}
}

func TestResolve_InvalidOutcome(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	_, err := m.Execute(ctx, oracle, market.Resolve{MarketID: id, WinningOutcome: 5})
	if !errors.Is(err, market.ErrInvalidOutcome) {
		t.Fatalf("err = %v, want InvalidOutcome", err)
	}
	mk, _ := m.Market(ctx, id)
	if mk.Status != market.StatusActive {
		t.Errorf("status = %s after rejected resolve", mk.Status)
	}
}

func TestResolve_NoWinningStakeProducesNoPayouts(t *testing.T) {
	m, st := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)
	_, _ = m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 1, Amount: 70})

	if _, err := m.Execute(ctx, oracle, market.Resolve{MarketID: id, WinningOutcome: 0}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, env := range pending(t, st) {
		if env.Kind == events.KindPayoutNotice {
			t.Fatalf("unexpected payout notice %+v", env)
		}
	}
}

func TestResolve_PayoutNoticesProportional(t *testing.T) {
	m, st := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	_, _ = m.Execute(ctx, alice, market.Stake{MarketID: id, Outcome: 0, Amount: 100})
	_, _ = m.Execute(ctx, bob, market.Stake{MarketID: id, Outcome: 0, Amount: 300})
	_, _ = m.Execute(ctx, stranger, market.Stake{MarketID: id, Outcome: 1, Amount: 400})

	if _, err := m.Execute(ctx, oracle, market.Resolve{MarketID: id, WinningOutcome: 0}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := map[string]uint64{}
	for _, env := range pending(t, st) {
		if env.Kind != events.KindPayoutNotice {
			continue
		}
		var n events.PayoutNotice
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if env.Target != n.Beneficiary || n.MarketID != id {
			t.Errorf("notice %+v addressed to %s", n, env.Target)
		}
		got[n.Beneficiary] = n.Amount
	}
	// pool = 800 (parimutuel); alice 100/400, bob 300/400
	if len(got) != 2 || got[string(alice.Node)] != 200 || got[string(bob.Node)] != 600 {
		t.Fatalf("payouts = %v, want alice=200 bob=600", got)
	}
}

func TestResolve_EarlyResolutionIsAllowed(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := market.NewMachine(memory.New(), market.Config{Node: home, Payout: settlement.Policy{Pool: settlement.PoolTotal}}, zap.New(core))
	ctx := context.Background()
	if err := m.Instantiate(ctx); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	id, err := m.Execute(ctx, alice, market.CreateMarket{
		Question:       "Future event",
		Outcomes:       []string{"Yes", "No"},
		ResolutionTime: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Execute(ctx, oracle, market.Resolve{MarketID: id, WinningOutcome: 1}); err != nil {
		t.Fatalf("early resolve should be accepted: %v", err)
	}
	if n := logs.FilterMessage("market resolved before advisory resolution time").Len(); n != 1 {
		t.Errorf("early resolution logged %d times, want 1", n)
	}
}

func TestAddOracle_Authorization(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()
	id := createYesNo(t, m)

	_, err := m.Execute(ctx, stranger, market.AddOracle{Node: stranger.Node})
	if !errors.Is(err, market.ErrUnauthorized) {
		t.Fatalf("self-promotion err = %v, want Unauthorized", err)
	}

	if _, err := m.Execute(ctx, oracle, market.AddOracle{Node: alice.Node}); err != nil {
		t.Fatalf("instantiator add oracle: %v", err)
	}
	// oráculo existente também pode adicionar
	if _, err := m.Execute(ctx, alice, market.AddOracle{Node: bob.Node}); err != nil {
		t.Fatalf("oracle add oracle: %v", err)
	}
	if _, err := m.Execute(ctx, bob, market.UpdateOdds{MarketID: id, Odds: []float64{0.4, 0.6}}); err != nil {
		t.Fatalf("new oracle update odds: %v", err)
	}
	oracles, _ := m.Oracles(ctx)
	if len(oracles) != 3 {
		t.Errorf("oracles = %v, want 3", oracles)
	}
}

func TestExecute_Callbacks(t *testing.T) {
	m, _ := newMachine(t, settlement.PoolTotal)
	ctx := context.Background()

	applied := map[string]int{}
	rejected := map[string]string{}
	enqueued := map[events.Kind]int{}
	m.OnApplied = func(op string) { applied[op]++ }
	m.OnRejected = func(op, kind string) { rejected[op] = kind }
	m.OnEnqueued = func(kind events.Kind, n int) { enqueued[kind] += n }

	id := createYesNo(t, m)
	_, _ = m.Execute(ctx, alice, market.Subscribe{})
	_, _ = m.Execute(ctx, oracle, market.UpdateOdds{MarketID: id, Odds: []float64{0.6, 0.4}})
	_, _ = m.Execute(ctx, stranger, market.Resolve{MarketID: id})

	if applied[market.OpCreateMarket] != 1 || applied[market.OpUpdateOdds] != 1 {
		t.Errorf("applied = %v", applied)
	}
	if rejected[market.OpResolve] != string(market.KindUnauthorized) {
		t.Errorf("rejected = %v", rejected)
	}
	if enqueued[events.KindOddsUpdate] != 1 {
		t.Errorf("enqueued = %v", enqueued)
	}
}
