package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/cache"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
)

var namesCacheKey = cache.Key("product", "names")

// Service implements catalog use cases on top of a Store.
type Service struct {
	store        Store
	names        *cache.JSON
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        Store
	NamesCache   *cache.JSON
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures paging and ordering for List.
type ListParams struct {
	Page  int
	Limit int
	Sort  common.Sort
}

// ListResult is one page of products.
type ListResult struct {
	Items      []Product
	Pagination common.Pagination
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("product: store is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 || defaultLimit > maxLimit {
		defaultLimit = min(10, maxLimit)
	}
	return &Service{
		store:        cfg.Store,
		names:        cfg.NamesCache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// DefaultLimit reports the page size used when none is requested.
func (s *Service) DefaultLimit() int { return s.defaultLimit }

// MaxLimit reports the largest accepted page size.
func (s *Service) MaxLimit() int { return s.maxLimit }

// Add creates a product with zeroed counters.
func (s *Service) Add(ctx context.Context, in CreateInput) (Product, error) {
	in.Name = normalizeName(in.Name)
	if in.Name == "" {
		return Product{}, common.Validation("name is required")
	}
	if err := checkPrice(in.Price); err != nil {
		return Product{}, err
	}
	p, err := s.store.Create(ctx, in)
	if err != nil {
		return Product{}, mapStoreError(err)
	}
	s.invalidateNames(ctx)
	return p, nil
}

// Update replaces the provided fields of an existing product.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Product, error) {
	if err := checkID(id); err != nil {
		return Product{}, err
	}
	if in.Name != nil {
		name := normalizeName(*in.Name)
		if name == "" {
			return Product{}, common.Validation("name cannot be empty")
		}
		in.Name = &name
	}
	if in.Price != nil {
		if err := checkPrice(*in.Price); err != nil {
			return Product{}, err
		}
	}
	p, err := s.store.Update(ctx, id, in)
	if err != nil {
		return Product{}, mapStoreError(err)
	}
	s.invalidateNames(ctx)
	return p, nil
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	if err := checkID(id); err != nil {
		return Product{}, err
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Product{}, mapStoreError(err)
	}
	return p, nil
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	limit := params.Limit
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	page := max(params.Page, 1)
	items, total, err := s.store.List(ctx, params.Sort, limit, (page-1)*limit)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Pagination: common.NewPagination(page, limit, total)}, nil
}

// SoldCount returns the cumulative units sold for a product.
func (s *Service) SoldCount(ctx context.Context, id string) (int64, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.ProductSold, nil
}

// Revenue returns the cumulative gross revenue for a product.
func (s *Service) Revenue(ctx context.Context, id string) (decimal.Decimal, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return p.GrossRevenue, nil
}

// Top returns the best product by the given metric.
func (s *Service) Top(ctx context.Context, metric TopMetric) (Product, error) {
	p, err := s.store.Top(ctx, metric)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, common.NotFound("no products found")
		}
		return Product{}, err
	}
	return p, nil
}

// Names returns id/name pairs, served from Redis when warm.
func (s *Service) Names(ctx context.Context) ([]NameEntry, error) {
	var cached []NameEntry
	if ok, err := s.names.Get(ctx, namesCacheKey, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("product names cache read failed")
	}
	entries, err := s.store.Names(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.names.Set(ctx, namesCacheKey, entries); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("product names cache write failed")
	}
	return entries, nil
}

func (s *Service) invalidateNames(ctx context.Context) {
	if err := s.names.Delete(ctx, namesCacheKey); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("product names cache invalidation failed")
	}
}

// ParsePrice converts client text into a validated price.
func ParsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, common.Validation("price must be a decimal number").WithDetails(map[string]any{"field": "price"})
	}
	if err := checkPrice(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func checkPrice(d decimal.Decimal) error {
	if !d.IsPositive() || !d.Equal(d.Round(2)) {
		return common.Validation("price must be positive with at most 2 decimal places").WithDetails(map[string]any{"field": "price"})
	}
	if d.GreaterThan(common.MaxMoney) {
		return common.Validation("price must not exceed " + common.MaxMoney.StringFixed(2)).WithDetails(map[string]any{"field": "price"})
	}
	return nil
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.Validation("invalid product id").WithDetails(map[string]any{"field": "productId"})
	}
	return nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("product not found")
	case errors.Is(err, ErrDuplicateName):
		return common.Conflict("PRODUCT_EXISTS", "product name already exists", err)
	case db.IsOutOfRange(err):
		return common.Validation("value exceeds the supported range")
	}
	return fmt.Errorf("product store: %w", err)
}
