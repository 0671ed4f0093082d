package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/segyhp/loan-engine/internal/domain"
)

// ScheduleCache keeps read copies of loan schedules for listing endpoints.
// Payment and foreclosure decisions always read from the LoanRepository.
type ScheduleCache interface {
	Get(ctx context.Context, loanID string) (domain.Schedule, bool, error)
	Set(ctx context.Context, loanID string, schedule domain.Schedule) error
	Invalidate(ctx context.Context, loanID string) error
}

type redisScheduleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisScheduleCache(client *redis.Client, ttl time.Duration) ScheduleCache {
	return &redisScheduleCache{client: client, ttl: ttl}
}

func scheduleKey(loanID string) string {
	return fmt.Sprintf("loan:%s:schedule", loanID)
}

func (c *redisScheduleCache) Get(ctx context.Context, loanID string) (domain.Schedule, bool, error) {
	raw, err := c.client.Get(ctx, scheduleKey(loanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var schedule domain.Schedule
	if err := json.Unmarshal(raw, &schedule); err != nil {
		return nil, false, err
	}
	return schedule, true, nil
}

func (c *redisScheduleCache) Set(ctx context.Context, loanID string, schedule domain.Schedule) error {
	raw, err := json.Marshal(schedule)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, scheduleKey(loanID), raw, c.ttl).Err()
}

func (c *redisScheduleCache) Invalidate(ctx context.Context, loanID string) error {
	return c.client.Del(ctx, scheduleKey(loanID)).Err()
}

// noopScheduleCache is used when no Redis is configured.
type noopScheduleCache struct{}

func NewNoopScheduleCache() ScheduleCache { return noopScheduleCache{} }

func (noopScheduleCache) Get(context.Context, string) (domain.Schedule, bool, error) {
	return nil, false, nil
}
func (noopScheduleCache) Set(context.Context, string, domain.Schedule) error { return nil }
func (noopScheduleCache) Invalidate(context.Context, string) error          { return nil }
