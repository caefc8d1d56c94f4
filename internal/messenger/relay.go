package messenger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

// Outbox é a fila durável escrita pela Machine na mesma transação das operações
type Outbox interface {
	PendingMessages(ctx context.Context, limit int) ([]events.Envelope, error)
	Ack(ctx context.Context, ids ...string) error
}

// Relay drena o outbox para o transporte. Mensagens com falha de envio
// ficam no outbox e voltam na próxima drenagem.
type Relay struct {
	Outbox    Outbox
	Transport Transport
	Log       *zap.Logger
	Interval  time.Duration
	Batch     int

	OnSent  func(kind events.Kind) // métricas
	OnError func(stage string)     // métricas por fase

	wake chan struct{}
}

func NewRelay(outbox Outbox, transport Transport, interval time.Duration, batch int, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{
		Outbox:    outbox,
		Transport: transport,
		Log:       log.Named("relay"),
		Interval:  interval,
		Batch:     batch,
		wake:      make(chan struct{}, 1),
	}
}

// Notify acorda o relay sem esperar o próximo tick; nunca bloqueia
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drena no intervalo configurado ou quando notificado, até ctx acabar
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-r.wake:
		}
		for {
			sent, more, err := r.drain(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.Log.Warn("outbox read failed", zap.Error(err))
				r.fail("read")
				break
			}
			if !more || sent == 0 {
				break
			}
		}
	}
}

// Drain faz uma passada pelo outbox e retorna quantas mensagens foram entregues
func (r *Relay) Drain(ctx context.Context) (int, error) {
	sent, _, err := r.drain(ctx)
	return sent, err
}

func (r *Relay) drain(ctx context.Context) (sent int, more bool, err error) {
	pending, err := r.Outbox.PendingMessages(ctx, r.Batch)
	if err != nil {
		return 0, false, err
	}

	acked := make([]string, 0, len(pending))
	for _, env := range pending {
		if err := r.Transport.Send(ctx, env); err != nil {
			r.Log.Warn("send failed, kept in outbox",
				zap.String("id", env.ID),
				zap.String("kind", string(env.Kind)),
				zap.String("target", env.Target),
				zap.Error(err),
			)
			r.fail("send")
			continue
		}
		acked = append(acked, env.ID)
		if r.OnSent != nil {
			r.OnSent(env.Kind)
		}
	}

	if err := r.Outbox.Ack(ctx, acked...); err != nil {
		// reenvio na próxima passada; o destino tolera duplicatas
		r.Log.Warn("outbox ack failed", zap.Int("count", len(acked)), zap.Error(err))
		r.fail("ack")
		return 0, false, nil
	}
	if len(acked) > 0 {
		r.Log.Debug("outbox drained", zap.Int("sent", len(acked)), zap.Int("pending", len(pending)))
	}
	return len(acked), len(pending) == r.Batch, nil
}

func (r *Relay) fail(stage string) {
	if r.OnError != nil {
		r.OnError(stage)
	}
}
