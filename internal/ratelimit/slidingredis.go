// Package ratelimit throttles requests per client with Redis-backed counters.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// SlidingWindow counts events per key in a Redis sorted set, so a burst at a window
// edge cannot double the budget.
type SlidingWindow struct {
	Client redis.UniversalClient
	Prefix string
	Window time.Duration
	Max    int

	now func() time.Time
}

func (l SlidingWindow) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

// Allow registers an event for key and reports whether it fits in the window.
func (l SlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.clock()
	d := Decision{Allowed: true, Limit: l.Max, Remaining: l.Max, ResetAt: now.Add(l.Window)}
	if l.Client == nil || l.Max <= 0 || l.Window <= 0 {
		return d, nil
	}

	redisKey := l.Prefix + key
	cutoff := strconv.FormatInt(now.Add(-l.Window).UnixNano(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return d, fmt.Errorf("rate limit %s: %w", key, err)
	}

	current := int(count.Val())
	d.Allowed = current <= l.Max
	d.Remaining = max(l.Max-current, 0)
	if first := oldest.Val(); len(first) == 1 {
		d.ResetAt = time.Unix(0, int64(first[0].Score)).Add(l.Window)
	}
	return d, nil
}
