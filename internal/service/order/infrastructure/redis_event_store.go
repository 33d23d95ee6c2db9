// internal/service/order/infrastructure/redis_event_store.go
package infrastructure

import (
	"context"
	"time"

	"oms/internal/pkg/apperr"
	"oms/internal/pkg/redis"
)

const processedEventKeyPrefix = "oms:order:processed_events:"

// RedisProcessedEventStore 用 Redis SETNX 实现事件去重。
// 抢到 key 的消费者才处理事件；处理失败后释放 key，
// 让 at-least-once 的重投递有机会重新执行。
type RedisProcessedEventStore struct {
	client *redis.Client
}

func NewRedisProcessedEventStore(client *redis.Client) *RedisProcessedEventStore {
	return &RedisProcessedEventStore{client: client}
}

func (s *RedisProcessedEventStore) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.ClaimOnce(ctx, processedEventKeyPrefix+eventID, ttl)
	if err != nil {
		return false, apperr.DependencyUnavailable("redis", err)
	}
	return ok, nil
}

func (s *RedisProcessedEventStore) Release(ctx context.Context, eventID string) error {
	if err := s.client.ReleaseClaim(ctx, processedEventKeyPrefix+eventID); err != nil {
		return apperr.DependencyUnavailable("redis", err)
	}
	return nil
}
