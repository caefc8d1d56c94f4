package oddscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setIfNewer grava a entrada somente se o timestamp não for anterior ao atual
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// RedisCache encapsula o cache de odds no Redis
// Channel: canal Pub/Sub onde cada entrada aplicada é publicada (vazio desliga)
type RedisCache struct {
	Client  *redis.Client
	TTL     time.Duration
	Channel string
	Log     *zap.Logger
}

// NewRedisCache cria uma instância de cache Redis com TTL configurável
func NewRedisCache(c *redis.Client, ttl time.Duration, channel string, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{Client: c, TTL: ttl, Channel: channel, Log: log}
}

// key gera a chave Redis das odds de um mercado de um nó
func key(node string, marketID uint64) string { return "odds:remote:" + Key(node, marketID) }

func (r *RedisCache) Set(ctx context.Context, e Entry) (bool, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	applied, err := setIfNewer.Run(ctx, r.Client,
		[]string{key(e.Node, e.MarketID)},
		e.UpdatedAt.UnixMicro(), string(b), r.TTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set odds: %w", err)
	}
	if applied == 0 {
		return false, nil
	}

	// broadcast não bloqueia o cache
	if r.Channel != "" {
		if err := r.Client.Publish(ctx, r.Channel, b).Err(); err != nil {
			r.Log.Warn("odds broadcast publish failed", zap.String("key", e.Key()), zap.Error(err))
		}
	}
	return true, nil
}

func (r *RedisCache) Get(ctx context.Context, node string, marketID uint64) (Entry, bool, error) {
	b, err := r.Client.HGet(ctx, key(node, marketID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached odds: %w", err)
	}
	return e, true, nil
}
