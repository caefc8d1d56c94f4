package messenger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedkafka "github.com/radieske/prediction-market-node/internal/shared/kafka"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
	"github.com/radieske/prediction-market-node/pkg/contracts/topics"
)

type MessageWriter = sharedkafka.MessageWriter

// KafkaTransport publica cada envelope no inbox do nó destino
// (<prefix>.<target>). A chave é o remetente, preservando a ordem por origem.
type KafkaTransport struct {
	writer MessageWriter
	prefix string
	log    *zap.Logger
}

func NewKafkaTransport(w MessageWriter, inboxPrefix string, log *zap.Logger) *KafkaTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaTransport{writer: w, prefix: inboxPrefix, log: log}
}

func (k *KafkaTransport) Send(ctx context.Context, env events.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	topic := topics.Inbox(k.prefix, env.Target)
	err = sharedkafka.WriteJSON(ctx, k.writer, topic, env.Sender, value,
		kafka.Header{Key: "kind", Value: []byte(env.Kind)},
		kafka.Header{Key: "message_id", Value: []byte(env.ID)},
	)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.Kind, topic, err)
	}

	k.log.Debug("envelope published",
		zap.String("id", env.ID),
		zap.String("kind", string(env.Kind)),
		zap.String("topic", topic),
	)
	return nil
}
