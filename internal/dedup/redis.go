package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSet is a RecencySet shared between processes. Entries expire after
// ttl instead of being evicted by size.
type RedisSet struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ RecencySet = (*RedisSet)(nil)

func NewRedisSet(client *redis.Client, prefix string, ttl time.Duration) *RedisSet {
	if prefix == "" {
		prefix = "recent_tx:"
	}
	return &RedisSet{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSet) Mark(ctx context.Context, hash string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+hash, 1, s.ttl).Result()
}

func (s *RedisSet) Unmark(ctx context.Context, hash string) error {
	return s.client.Del(ctx, s.prefix+hash).Err()
}
