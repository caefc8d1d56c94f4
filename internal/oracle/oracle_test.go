package oracle

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/api"
	"github.com/radieske/prediction-market-node/internal/market"
	"github.com/radieske/prediction-market-node/internal/settlement"
	"github.com/radieske/prediction-market-node/internal/store/memory"
)

func TestNextOdds(t *testing.T) {
	odds := []float64{0.5, 0.5}

	up := NextOdds(odds, 100, nil)
	if up[0] <= 0.5 {
		t.Errorf("positive sentiment should favour outcome 0: %v", up)
	}
	down := NextOdds(odds, -100, nil)
	if down[0] >= 0.5 {
		t.Errorf("negative sentiment should penalise outcome 0: %v", down)
	}
	flat := NextOdds([]float64{0.2, 0.3, 0.5}, 0, []float64{0, 0, 0})
	for i, want := range []float64{0.2, 0.3, 0.5} {
		if math.Abs(flat[i]-want) > 1e-9 {
			t.Errorf("flat[%d] = %v, want %v", i, flat[i], want)
		}
	}

	r := rand.New(rand.NewSource(7))
	cur := []float64{1, 0, 0}
	for step := 0; step < 50; step++ {
		noise := []float64{r.NormFloat64(), r.NormFloat64(), r.NormFloat64()}
		cur = NextOdds(cur, int32(r.Intn(201)-100), noise)
		var sum float64
		for _, p := range cur {
			if p <= 0 || math.IsNaN(p) {
				t.Fatalf("step %d: invalid odd %v", step, cur)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("step %d: sum = %v", step, sum)
		}
	}
}

func TestFeedPublishesThroughAPI(t *testing.T) {
	ctx := context.Background()
	m := market.NewMachine(memory.New(), market.Config{Node: "oracle-1", Payout: settlement.Policy{Pool: settlement.PoolTotal}}, nil)
	if err := m.Instantiate(ctx); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	srv := httptest.NewServer((&api.API{Machine: m}).Router())
	defer srv.Close()

	id, err := m.Execute(ctx, market.Caller{Node: "oracle-1", Signer: "k"}, market.CreateMarket{Question: "q", Outcomes: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	published := 0
	var stages []string
	f := &Feed{
		Client:      NewClient(srv.URL, "oracle-1"),
		Markets:     []uint64{id, 99},
		Rand:        rand.New(rand.NewSource(1)),
		Log:         zap.NewNop(),
		OnPublished: func() { published++ },
		OnError:     func(s string) { stages = append(stages, s) },
	}
	f.Step(ctx)

	if published != 1 {
		t.Errorf("published = %d", published)
	}
	if len(stages) != 1 || stages[0] != "fetch" {
		t.Errorf("stages = %v (market 99 does not exist)", stages)
	}
	mk, _ := m.Market(ctx, id)
	if mk.Odds[0] == 0.5 && mk.Odds[1] == 0.5 {
		b, _ := json.Marshal(mk)
		t.Errorf("odds unchanged: %s", b)
	}
}

func TestFeedRejectedWhenNotOracle(t *testing.T) {
	ctx := context.Background()
	m := market.NewMachine(memory.New(), market.Config{Node: "alice"}, nil)
	_ = m.Instantiate(ctx)
	srv := httptest.NewServer((&api.API{Machine: m}).Router())
	defer srv.Close()
	_, _ = m.Execute(ctx, market.Caller{Node: "alice", Signer: "k"}, market.CreateMarket{Question: "q", Outcomes: []string{"a", "b"}})

	c := NewClient(srv.URL, "mallory")
	err := c.UpdateOdds(ctx, market.UpdateOdds{MarketID: 0, Odds: []float64{0.9, 0.1}})
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
}
