package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// InflightRegistry tracks activations in progress across every server
// instance with SET NX PX.
type InflightRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewInflightRegistry(client *redis.Client, prefix string, ttl time.Duration) *InflightRegistry {
	return &InflightRegistry{client: client, prefix: prefix, ttl: ttl}
}

// Acquire returns false when key is already held.
func (r *InflightRegistry) Acquire(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
}

func (r *InflightRegistry) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
