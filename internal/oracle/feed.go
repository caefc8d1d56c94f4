// Package oracle simula um oráculo de sentimento: lê as odds atuais de cada
// mercado, aplica um passeio aleatório inclinado pelo sentimento e envia
// UpdateOdds ao market-node.
package oracle

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/market"
)

// minOdd evita que um resultado zere e fique preso em 0 no passeio
const minOdd = 0.01

type Feed struct {
	Client   *Client
	Markets  []uint64
	Interval time.Duration
	Rand     *rand.Rand
	Log      *zap.Logger

	OnPublished func()
	OnError     func(stage string)
}

// Run publica uma rodada por intervalo até ctx acabar
func (f *Feed) Run(ctx context.Context) error {
	t := time.NewTicker(f.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			f.Step(ctx)
		}
	}
}

// Step faz uma rodada sobre todos os mercados configurados
func (f *Feed) Step(ctx context.Context) {
	for _, id := range f.Markets {
		mk, err := f.Client.Market(ctx, id)
		if err != nil {
			f.Log.Warn("fetch market failed", zap.Uint64("market_id", id), zap.Error(err))
			f.fail("fetch")
			continue
		}
		if mk.Status != market.StatusActive {
			continue
		}

		sentiment := int32(f.Rand.Intn(201) - 100)
		noise := make([]float64, len(mk.Odds))
		for i := range noise {
			noise[i] = f.Rand.NormFloat64() * 0.05
		}
		op := market.UpdateOdds{MarketID: id, Odds: NextOdds(mk.Odds, sentiment, noise), SentimentScore: sentiment}

		if err := f.Client.UpdateOdds(ctx, op); err != nil {
			f.Log.Warn("update odds failed", zap.Uint64("market_id", id), zap.Error(err))
			f.fail("update")
			continue
		}
		f.Log.Debug("odds published",
			zap.Uint64("market_id", id),
			zap.Float64s("odds", op.Odds),
			zap.Int32("sentiment", sentiment),
		)
		if f.OnPublished != nil {
			f.OnPublished()
		}
	}
}

func (f *Feed) fail(stage string) {
	if f.OnError != nil {
		f.OnError(stage)
	}
}

// NextOdds move a massa de probabilidade: o sentimento (-100..100) favorece
// ou desfavorece o resultado 0, e noise[i] perturba cada resultado.
// O retorno é normalizado para somar 1.
func NextOdds(odds []float64, sentiment int32, noise []float64) []float64 {
	out := make([]float64, len(odds))
	if len(odds) == 0 {
		return out
	}
	var sum float64
	for i, p := range odds {
		w := math.Max(p, minOdd)
		if i < len(noise) {
			w *= math.Exp(noise[i])
		}
		if i == 0 {
			w *= math.Exp(float64(sentiment) / 200)
		}
		out[i] = w
		sum += w
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
