package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	RedisKeyRemaining = "harvester:quota:remaining"
	RedisKeyResetAt   = "harvester:quota:reset_at"
)

// RedisQuotaStore keeps the quota in Redis with a TTL ending at the reset time, so a
// stale window never outlives itself.
type RedisQuotaStore struct {
	client *redis.Client
}

func NewRedisQuotaStore(client *redis.Client) *RedisQuotaStore {
	return &RedisQuotaStore{client: client}
}

func (s *RedisQuotaStore) Load(ctx context.Context) (QuotaState, bool, error) {
	remaining, err := s.client.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		return QuotaState{}, false, nil
	}
	if err != nil {
		return QuotaState{}, false, fmt.Errorf("get quota remaining: %w", err)
	}

	resetAt, err := s.client.Get(ctx, RedisKeyResetAt).Int64()
	if errors.Is(err, redis.Nil) {
		return QuotaState{}, false, nil
	}
	if err != nil {
		return QuotaState{}, false, fmt.Errorf("get quota reset: %w", err)
	}

	return QuotaState{
		Remaining: remaining,
		ResetAt:   time.Unix(resetAt, 0).UTC(),
		Known:     true,
	}, true, nil
}

func (s *RedisQuotaStore) Save(ctx context.Context, state QuotaState, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}
	return nil
}
