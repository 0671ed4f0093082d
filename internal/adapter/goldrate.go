package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// DefaultGoldRateKey holds the current rate per gram, maintained by the
// pricing feed.
const DefaultGoldRateKey = "pricing:gold:rate_per_gram"

type RedisGoldRate struct {
	client *redis.Client
	key    string
}

func NewRedisGoldRate(client *redis.Client, key string) *RedisGoldRate {
	if key == "" {
		key = DefaultGoldRateKey
	}
	return &RedisGoldRate{client: client, key: key}
}

func (p *RedisGoldRate) CurrentRatePerGram(ctx context.Context) (decimal.Decimal, error) {
	raw, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, customError.ErrRateUnavailable
	}
	if err != nil {
		return decimal.Zero, err
	}

	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal", customError.ErrRateUnavailable, raw)
	}
	return rate, nil
}

// Publish stores a new rate, as the pricing feed would.
func (p *RedisGoldRate) Publish(ctx context.Context, rate decimal.Decimal) error {
	return p.client.Set(ctx, p.key, rate.String(), 0).Err()
}

// StaticGoldRate always returns the configured rate.
type StaticGoldRate struct {
	rate decimal.Decimal
}

func NewStaticGoldRate(rate decimal.Decimal) *StaticGoldRate {
	return &StaticGoldRate{rate: rate}
}

func (p *StaticGoldRate) CurrentRatePerGram(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if !p.rate.IsPositive() {
		return decimal.Zero, customError.ErrRateUnavailable
	}
	return p.rate, nil
}
