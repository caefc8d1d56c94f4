package messenger

import (
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/shared/metrics"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

// NewInboxConsumer monta o Consumer do inbox do nó com os callbacks de
// métricas ligados ao Receiver. dlq nil desliga a DLQ.
func NewInboxConsumer(reader MessageReader, recv *Receiver, dlq MessageWriter, dlqTopic string, col *metrics.Collectors, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Consumer{
		Log:      log.Named("inbox"),
		Reader:   reader,
		Handler:  recv,
		DLQ:      dlq,
		DLQTopic: dlqTopic,
		Retries:  3,
		Backoff:  300 * time.Millisecond,
	}
	if col == nil {
		return c
	}

	recv.OnReceived = func(k events.Kind) { col.MessageReceived(string(k)) }
	recv.OnDuplicate = col.Duplicates.Inc
	recv.OnPayout = func(uint64) { col.PayoutsRecorded.Inc() }
	c.OnConsumed = col.MessageConsumed
	c.OnError = col.Error
	return c
}
