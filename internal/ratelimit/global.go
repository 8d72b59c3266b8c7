package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed adapts a ulule fixed-window limiter to Allower. It backs the coarse global
// limit applied to every request.
type Fixed struct {
	Limiter *limiter.Limiter
}

// NewFixed builds a Fixed limiter from a formatted rate such as "300-M".
func NewFixed(store limiter.Store, formatted string) (Fixed, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return Fixed{}, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return Fixed{Limiter: limiter.New(store, rate)}, nil
}

// NewRedisStore returns a ulule store sharing the API's Redis client.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Allow implements Allower.
func (f Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.Limiter.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}
