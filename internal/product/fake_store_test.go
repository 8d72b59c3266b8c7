package product_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/product"
)

type fakeStore struct {
	mu        sync.Mutex
	items     map[string]product.Product
	order     []string
	nameCalls int
	clock     time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]product.Product{}, clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeStore) nameTaken(name, except string) bool {
	for id, p := range f.items {
		if id != except && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (f *fakeStore) Create(_ context.Context, in product.CreateInput) (product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameTaken(in.Name, "") {
		return product.Product{}, product.ErrDuplicateName
	}
	f.clock = f.clock.Add(time.Minute)
	p := product.Product{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Price:        in.Price,
		BannerImg:    in.BannerImg,
		GrossRevenue: decimal.Zero,
		CreatedAt:    f.clock,
		UpdatedAt:    f.clock,
	}
	f.items[p.ID] = p
	f.order = append(f.order, p.ID)
	return p, nil
}

func (f *fakeStore) Update(_ context.Context, id string, in product.UpdateInput) (product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	if in.Name != nil {
		if f.nameTaken(*in.Name, id) {
			return product.Product{}, product.ErrDuplicateName
		}
		p.Name = *in.Name
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.BannerImg != nil {
		p.BannerImg = in.BannerImg
	}
	f.items[id] = p
	return p, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) List(_ context.Context, s common.Sort, limit, offset int) ([]product.Product, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(s)
	if offset >= len(all) {
		return []product.Product{}, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (f *fakeStore) sorted(s common.Sort) []product.Product {
	all := make([]product.Product, 0, len(f.order))
	for _, id := range f.order {
		all = append(all, f.items[id])
	}
	less := func(a, b product.Product) bool {
		switch s.Field {
		case product.SortName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case product.SortPrice:
			return a.Price.LessThan(b.Price)
		case product.SortProductSold:
			return a.ProductSold < b.ProductSold
		case product.SortGrossRevenue:
			return a.GrossRevenue.LessThan(b.GrossRevenue)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if s.Desc {
			return less(all[j], all[i])
		}
		return less(all[i], all[j])
	})
	return all
}

func (f *fakeStore) Top(_ context.Context, metric product.TopMetric) (product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	field := product.SortProductSold
	if metric == product.TopByRevenue {
		field = product.SortGrossRevenue
	}
	all := f.sorted(common.Sort{Field: field, Desc: true})
	if len(all) == 0 {
		return product.Product{}, product.ErrNotFound
	}
	return all[0], nil
}

func (f *fakeStore) Names(_ context.Context) ([]product.NameEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls++
	all := f.sorted(common.Sort{Field: product.SortName})
	out := make([]product.NameEntry, 0, len(all))
	for _, p := range all {
		out = append(out, product.NameEntry{ID: p.ID, Name: p.Name})
	}
	return out, nil
}

func (f *fakeStore) setCounters(id string, sold int64, revenue string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.items[id]
	p.ProductSold = sold
	p.GrossRevenue = decimal.RequireFromString(revenue)
	f.items[id] = p
}
