package market

import (
	"context"
	"fmt"
	"math"

	"github.com/radieske/prediction-market-node/internal/settlement"
)

func loadMarket(ctx context.Context, tx ReadTx, id uint64) (Market, error) {
	m, ok, err := tx.Market(ctx, id)
	if err != nil {
		return Market{}, fmt.Errorf("load market %d: %w", id, err)
	}
	if !ok {
		return Market{}, newError(KindMarketNotFound, "market %d", id)
	}
	return m, nil
}

func checkOutcome(m Market, outcome uint32) error {
	if int(outcome) >= len(m.Outcomes) {
		return newError(KindInvalidOutcome, "outcome %d out of range for market %d with %d outcomes",
			outcome, m.ID, len(m.Outcomes))
	}
	return nil
}

func checkActive(m Market) error {
	if m.Status != StatusActive {
		return newError(KindMarketNotActive, "market %d is %s", m.ID, m.Status)
	}
	return nil
}

// checkOdds exige uma probabilidade finita e não negativa por resultado.
// Não há renormalização: a soma não precisa ser 1.
func checkOdds(m Market, odds []float64) error {
	if len(odds) != len(m.Outcomes) {
		return newError(KindInvalidOddsShape, "got %d odds for market %d with %d outcomes",
			len(odds), m.ID, len(m.Outcomes))
	}
	for i, p := range odds {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return newError(KindInvalidOddsShape, "odds[%d] = %v", i, p)
		}
	}
	return nil
}

func uniformOdds(n int) []float64 {
	odds := make([]float64, n)
	for i := range odds {
		odds[i] = 1.0 / float64(n)
	}
	return odds
}

// accumulateStake soma amount ao registro do nó e ao total do resultado,
// ambos com saturação.
func accumulateStake(ctx context.Context, tx Tx, m *Market, key StakeKey, amount uint64) (uint64, error) {
	current, err := tx.Stake(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load stake: %w", err)
	}
	next := settlement.SaturatingAdd(current, amount)
	if err := tx.PutStake(ctx, key, next); err != nil {
		return 0, fmt.Errorf("put stake: %w", err)
	}
	m.TotalStaked[key.Outcome] = settlement.SaturatingAdd(m.TotalStaked[key.Outcome], amount)
	return next, nil
}
