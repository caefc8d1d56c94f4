package stream

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/oddscache"
)

// StartRedisSubscriber escuta o canal Pub/Sub onde o cache publica cada odd
// aplicada e repassa para os clientes do Hub. Para quando ctx acaba.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e oddscache.Entry
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					log.Warn("odds broadcast unmarshal", zap.Error(err))
					continue
				}
				hub.Broadcast(e)
			}
		}
	}()
}
