package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

// RedisBackend is the durable remote store. Values are opaque JSON envelopes
// written by the Store facade; Redis applies the TTL natively on top of the
// envelope's own expiry bookkeeping.
type RedisBackend struct {
	ctx    context.Context
	logger types.Logger
	client *redis.Client
}

func NewRedisBackend(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.RedisAddr,
		Password:     config.RedisPass,
		DB:           config.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return &RedisBackend{
		ctx:    ctx,
		logger: logger,
		client: client,
	}, nil
}

func (r *RedisBackend) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	result, err := r.client.Get(r.ctx, key).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, types.WrapError(err, "failed to get cache entry")
	}

	return result, true, nil
}

func (r *RedisBackend) Set(key string, data []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	if err := r.client.Set(r.ctx, key, data, ttl).Err(); err != nil {
		return types.WrapError(err, "failed to set cache entry")
	}

	return nil
}

func (r *RedisBackend) Delete(key string) error {
	if key == "" {
		return nil
	}

	if err := r.client.Del(r.ctx, key).Err(); err != nil {
		return types.WrapError(err, "failed to delete cache key")
	}

	return nil
}

func (r *RedisBackend) DeletePrefix(prefix string) error {
	iter := r.client.Scan(r.ctx, 0, prefix+"*", 100).Iterator()

	deleted := 0
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			r.logger.Warn("Failed to delete cache key during prefix invalidation",
				zap.String("key", iter.Val()), zap.Error(err))
		} else {
			deleted++
		}
	}

	if err := iter.Err(); err != nil {
		return types.WrapError(err, "prefix scan failed")
	}

	if deleted > 0 {
		r.logger.Debug("Prefix invalidation completed",
			zap.String("prefix", prefix), zap.Int("deleted", deleted))
	}

	return nil
}

func (r *RedisBackend) Close() error {
	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis cache closed")
	return nil
}
