package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/cache"
	"github.com/noah-isme/backend-pos/internal/common"
)

const dateLayout = "2006-01-02"

// LifetimeEarnings sums every billing record.
func (s *Service) LifetimeEarnings(ctx context.Context) (Earnings, error) {
	total, err := s.store.SumTotal(ctx, Range{})
	if err != nil {
		return Earnings{}, fmt.Errorf("lifetime earnings: %w", err)
	}
	return Earnings{Total: total}, nil
}

// RangeEarnings sums records created between start and end inclusive. Ranges that
// ended in the past are served from cache when possible.
func (s *Service) RangeEarnings(ctx context.Context, start, end time.Time) (Earnings, error) {
	if start.After(end) {
		return Earnings{}, common.Validation("start must not be after end").WithDetails(map[string]any{"field": "start"})
	}
	out := Earnings{Start: &start, End: &end}
	closed := end.Before(s.now())
	key := cache.Key("billing", "earnings", start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if closed {
		var cached Earnings
		ok, err := s.earnings.Get(ctx, key, &cached)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("earnings cache read failed")
		} else if ok {
			out.Total = cached.Total
			return out, nil
		}
	}
	total, err := s.store.SumTotal(ctx, Range{Start: &start, End: &end})
	if err != nil {
		return Earnings{}, fmt.Errorf("range earnings: %w", err)
	}
	out.Total = total
	if closed {
		if err := s.earnings.Set(ctx, key, Earnings{Total: total}); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("earnings cache write failed")
		}
	}
	return out, nil
}

// TodayEarnings sums records from local midnight until now.
func (s *Service) TodayEarnings(ctx context.Context) (Earnings, error) {
	now := s.now().In(s.location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	return s.RangeEarnings(ctx, midnight, now)
}

// ParseBound reads an RFC3339 timestamp or a YYYY-MM-DD date. A date-only value
// is the start of that day, or its last instant when endOfDay is set.
func (s *Service) ParseBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, s.location)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

// ParseRange reads optional start/end query values. When required is set both must be present.
func (s *Service) ParseRange(startRaw, endRaw string, required bool) (Range, error) {
	var rng Range
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)
	if required && (startRaw == "" || endRaw == "") {
		return Range{}, common.Validation("start and end are required").WithDetails(map[string]any{"fields": []string{"start", "end"}})
	}
	if startRaw != "" {
		t, err := s.ParseBound(startRaw, false)
		if err != nil {
			return Range{}, invalidBound("start")
		}
		rng.Start = &t
	}
	if endRaw != "" {
		t, err := s.ParseBound(endRaw, true)
		if err != nil {
			return Range{}, invalidBound("end")
		}
		rng.End = &t
	}
	if rng.Start != nil && rng.End != nil && rng.Start.After(*rng.End) {
		return Range{}, common.Validation("start must not be after end").WithDetails(map[string]any{"field": "start"})
	}
	return rng, nil
}

func invalidBound(field string) error {
	return common.Validation(field+" must be RFC3339 or YYYY-MM-DD").WithDetails(map[string]any{"field": field})
}
