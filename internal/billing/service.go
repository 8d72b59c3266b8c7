package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/backend-pos/internal/cache"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/product"
)

var (
	tracer = otel.Tracer("github.com/noah-isme/backend-pos/internal/billing")
	meter  = otel.Meter("github.com/noah-isme/backend-pos/internal/billing")

	itemsPerBill, _ = meter.Int64Histogram(
		"billing.items_per_bill",
		metric.WithDescription("Line items per persisted bill"),
		metric.WithUnit("{item}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 50),
	)
)

// Service implements the billing calculator and its read models.
type Service struct {
	store           Store
	earnings        *cache.JSON
	retryMaxElapsed time.Duration
	defaultLimit    int
	maxLimit        int
	location        *time.Location
	now             func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store Store
	// EarningsCache holds sums for ranges that ended in the past.
	EarningsCache   *cache.JSON
	RetryMaxElapsed time.Duration
	DefaultLimit    int
	MaxLimit        int
	// Location interprets date-only bounds and "today". Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

// ListParams captures paging and ordering for List.
type ListParams struct {
	Page  int
	Limit int
	Sort  common.Sort
}

// ListResult is one page of records.
type ListResult struct {
	Items      []Record
	Pagination common.Pagination
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("billing: store is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 || defaultLimit > maxLimit {
		defaultLimit = min(10, maxLimit)
	}
	retry := cfg.RetryMaxElapsed
	if retry <= 0 {
		retry = 2 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:           cfg.Store,
		earnings:        cfg.EarningsCache,
		retryMaxElapsed: retry,
		defaultLimit:    defaultLimit,
		maxLimit:        maxLimit,
		location:        loc,
		now:             now,
	}, nil
}

// DefaultLimit reports the page size used when none is requested.
func (s *Service) DefaultLimit() int { return s.defaultLimit }

// MaxLimit reports the largest accepted page size.
func (s *Service) MaxLimit() int { return s.maxLimit }

// Calculate prices the requested lines, bumps each product's counters and stores
// the bill in one transaction. Either every counter update and the record commit
// together or none of them do.
func (s *Service) Calculate(ctx context.Context, lines []LineInput) (Record, error) {
	ctx, span := tracer.Start(ctx, "billing.calculate")
	defer span.End()
	span.SetAttributes(attribute.Int("billing.lines", len(lines)))

	if err := validateLines(lines); err != nil {
		obs.BillingFailuresTotal.WithLabelValues("validation").Inc()
		span.SetStatus(codes.Error, "invalid lines")
		return Record{}, err
	}

	logger := zerolog.Ctx(ctx)
	attempt := 0
	rec, err := backoff.Retry(ctx, func() (Record, error) {
		attempt++
		rec, err := s.calculateOnce(ctx, lines)
		if err == nil {
			return rec, nil
		}
		if db.IsRetryable(err) {
			return Record{}, err
		}
		return Record{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(newRetryBackOff()),
		backoff.WithMaxElapsedTime(s.retryMaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			obs.BillingRetriesTotal.Inc()
			logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("billing transaction conflict, retrying")
		}),
	)
	span.SetAttributes(attribute.Int("billing.attempts", attempt))
	if err != nil {
		err = s.mapCalculateError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "billing failed")
		return Record{}, err
	}

	obs.BillingCreatedTotal.Inc()
	itemsPerBill.Record(ctx, int64(len(rec.Items)))
	obs.BillingRevenueTotal.Add(rec.TotalPrice.InexactFloat64())
	span.SetAttributes(
		attribute.String("billing.id", rec.ID),
		attribute.String("billing.total", rec.TotalPrice.StringFixed(2)),
	)
	return rec, nil
}

func (s *Service) calculateOnce(ctx context.Context, lines []LineInput) (Record, error) {
	var out Record
	err := s.store.WithTx(ctx, func(tx Tx) error {
		items := make([]Item, 0, len(lines))
		priced := make([]pricing.Item, 0, len(lines))
		for _, line := range lines {
			p, err := tx.ApplySale(ctx, line.ProductID, line.Quantity)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return common.NotFound(fmt.Sprintf("product %s not found", line.ProductID)).
						WithDetails(map[string]any{"productId": line.ProductID})
				}
				return err
			}
			items = append(items, Item{ProductID: p.ID, Quantity: line.Quantity, UnitPrice: p.Price, Product: &p})
			priced = append(priced, pricing.Item{Qty: line.Quantity, UnitPrice: p.Price})
		}
		summary := pricing.Compute(priced)
		for i := range items {
			items[i].LineTotal = summary.Lines[i]
		}
		rec, err := tx.Insert(ctx, Record{TotalPrice: summary.Total, Items: items})
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *Service) mapCalculateError(err error) error {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		reason := "error"
		if appErr.HTTPStatus == http.StatusNotFound {
			reason = "product_not_found"
		}
		obs.BillingFailuresTotal.WithLabelValues(reason).Inc()
		return appErr
	case db.IsOutOfRange(err):
		obs.BillingFailuresTotal.WithLabelValues("out_of_range").Inc()
		return common.Validation("billing amounts exceed the supported range")
	case db.IsRetryable(err):
		obs.BillingFailuresTotal.WithLabelValues("conflict").Inc()
		return common.Conflict("BILLING_CONFLICT", "billing could not be committed due to concurrent updates, please retry", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		obs.BillingFailuresTotal.WithLabelValues("canceled").Inc()
		return err
	}
	obs.BillingFailuresTotal.WithLabelValues("error").Inc()
	return fmt.Errorf("calculate billing: %w", err)
}

func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return common.Validation("items must not be empty").WithDetails(map[string]any{"field": "items"})
	}
	for i, line := range lines {
		if _, err := uuid.Parse(line.ProductID); err != nil {
			return common.Validation("invalid product id").WithDetails(map[string]any{"field": fmt.Sprintf("items[%d].productId", i)})
		}
		if line.Quantity <= 0 {
			return common.Validation("quantity must be greater than zero").WithDetails(map[string]any{"field": fmt.Sprintf("items[%d].quantity", i)})
		}
		if line.Quantity > MaxQuantity {
			return common.Validation(fmt.Sprintf("quantity must not exceed %d", MaxQuantity)).WithDetails(map[string]any{"field": fmt.Sprintf("items[%d].quantity", i)})
		}
	}
	return nil
}

// Get returns a billing record by id.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, common.Validation("invalid billing id").WithDetails(map[string]any{"field": "billId"})
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, common.NotFound("billing record not found")
		}
		return Record{}, fmt.Errorf("get billing: %w", err)
	}
	return rec, nil
}

// List returns one page of billing records.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	limit := params.Limit
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	page := max(params.Page, 1)
	if params.Sort.Field == "" {
		params.Sort = common.Sort{Field: SortCreatedAt, Desc: true}
	}
	items, total, err := s.store.List(ctx, params.Sort, limit, (page-1)*limit)
	if err != nil {
		return ListResult{}, fmt.Errorf("list billing: %w", err)
	}
	return ListResult{Items: items, Pagination: common.NewPagination(page, limit, total)}, nil
}
