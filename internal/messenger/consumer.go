package messenger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedkafka "github.com/radieske/prediction-market-node/internal/shared/kafka"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo Consumer
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Consumer lê o inbox Kafka do nó e entrega cada envelope ao Handler.
// Falhas transitórias são tentadas de novo com backoff; envelopes inválidos
// ou que esgotam as tentativas vão para a DLQ.
type Consumer struct {
	Log      *zap.Logger
	Reader   MessageReader
	Handler  EnvelopeHandler
	DLQ      MessageWriter // opcional
	DLQTopic string

	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas (counter++)
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo até o contexto ser cancelado
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.fail("read")
			sleep(ctx, 500*time.Millisecond)
			continue
		}

		if c.OnConsumed != nil {
			c.OnConsumed()
		}
		c.process(ctx, m)
	}
}

func (c *Consumer) process(ctx context.Context, m kafka.Message) {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		c.Log.Warn("invalid envelope", zap.String("topic", m.Topic), zap.Error(err))
		c.fail("decode")
		c.deadLetter(ctx, m, err)
		return
	}

	err := c.Handler.Handle(ctx, env)
	for i := 0; err != nil && !IsPermanent(err) && i < c.Retries; i++ {
		sleep(ctx, time.Duration(i+1)*c.Backoff)
		if ctx.Err() != nil {
			return
		}
		err = c.Handler.Handle(ctx, env)
	}
	if err == nil {
		return
	}

	stage := "handle"
	if IsPermanent(err) {
		stage = "rejected"
	}
	c.Log.Warn("envelope not applied",
		zap.String("id", env.ID),
		zap.String("kind", string(env.Kind)),
		zap.String("sender", env.Sender),
		zap.Error(err),
	)
	c.fail(stage)
	c.deadLetter(ctx, m, err)
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if c.DLQ == nil {
		return
	}
	headers := append(append([]kafka.Header(nil), m.Headers...),
		kafka.Header{Key: "source_topic", Value: []byte(m.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	if err := sharedkafka.WriteJSON(ctx, c.DLQ, c.DLQTopic, string(m.Key), m.Value, headers...); err != nil {
		c.Log.Error("dlq publish failed", zap.Error(err))
		c.fail("dlq")
	}
}

func (c *Consumer) fail(stage string) {
	if c.OnError != nil {
		c.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
