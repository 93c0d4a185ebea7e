package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// SessionTTL is how long an untouched session hash survives. Every write
// pushes the expiry back, so only abandoned attempts age out.
const SessionTTL = 24 * time.Hour

// Redis keeps each namespace in one hash so a session can be cleared with a
// single DEL and read back with a single HGETALL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a Redis-backed store whose hashes expire after SessionTTL.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, ttl: SessionTTL}
}

func (r *Redis) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, config.CacheKey.SessionHashKey(namespace), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, namespace, key, value string) error {
	hash := config.CacheKey.SessionHashKey(namespace)

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, hash, key, value)
	pipe.Expire(ctx, hash, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, namespace, key string) error {
	return r.rdb.HDel(ctx, config.CacheKey.SessionHashKey(namespace), key).Err()
}

func (r *Redis) Clear(ctx context.Context, namespace string) error {
	return r.rdb.Del(ctx, config.CacheKey.SessionHashKey(namespace)).Err()
}

func (r *Redis) All(ctx context.Context, namespace string) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, config.CacheKey.SessionHashKey(namespace)).Result()
}
