package dedup

import (
	"fmt"

	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taskpilot:inflight:"

// RedisGuard is an InFlightGuard shared across nodes, backed by a Redis
// SETNX with TTL. It replaces LocalGuard when the webhook receivers run
// behind a load balancer and the same retry can land on different nodes.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisGuard creates a Redis-backed in-flight guard.
func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Begin(ctx context.Context, id string) (bool, error) {
	// SET NX = set only if the key does not exist; true means we own it.
	set, err := g.rdb.SetNX(ctx, keyPrefix+id, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inflight SETNX: %w", err)
	}
	return set, nil
}

func (g *RedisGuard) End(ctx context.Context, id string) {
	g.rdb.Del(ctx, keyPrefix+id)
}
