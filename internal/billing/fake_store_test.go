package billing_test

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/product"
)

// fakeStore keeps state in memory. Transactions work on copies that replace the
// committed state only when fn succeeds.
type fakeStore struct {
	mu       sync.Mutex
	products map[string]product.Product
	records  []billing.Record
	clock    time.Time

	// conflicts makes the next N transactions fail with a deadlock error.
	conflicts int
	// applyErr, when set, fails every ApplySale call.
	applyErr  error
	txCalls   int
	sumCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]product.Product{},
		clock:    time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addProduct(name, price string) product.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := product.Product{
		ID:           uuid.NewString(),
		Name:         name,
		Price:        decimal.RequireFromString(price),
		GrossRevenue: decimal.Zero,
		CreatedAt:    f.clock,
		UpdatedAt:    f.clock,
	}
	f.products[p.ID] = p
	return p
}

func (f *fakeStore) setCounters(id string, sold int64, revenue string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.ProductSold = sold
	p.GrossRevenue = decimal.RequireFromString(revenue)
	f.products[id] = p
}

func (f *fakeStore) product(id string) product.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id]
}

func (f *fakeStore) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// seedRecord stores a record directly with the given timestamp and total.
func (f *fakeStore) seedRecord(at time.Time, total string) billing.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := billing.Record{ID: uuid.NewString(), TotalPrice: decimal.RequireFromString(total), CreatedAt: at, Items: []billing.Item{}}
	f.records = append(f.records, rec)
	return rec
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(billing.Tx) error) error {
	f.mu.Lock()
	f.txCalls++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	}
	tx := &fakeTx{
		applyErr: f.applyErr,
		products: maps.Clone(f.products),
		records:  slices.Clone(f.records),
		clock:    f.clock,
	}
	f.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = tx.products
	f.records = tx.records
	f.clock = tx.clock
	return nil
}

type fakeTx struct {
	applyErr error
	products map[string]product.Product
	records  []billing.Record
	clock    time.Time
}

func (t *fakeTx) ApplySale(_ context.Context, productID string, qty int) (product.Product, error) {
	if t.applyErr != nil {
		return product.Product{}, fmt.Errorf("apply sale: %w", t.applyErr)
	}
	p, ok := t.products[productID]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	p.ProductSold += int64(qty)
	p.GrossRevenue = p.GrossRevenue.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	t.products[productID] = p
	return p, nil
}

func (t *fakeTx) Insert(_ context.Context, rec billing.Record) (billing.Record, error) {
	t.clock = t.clock.Add(time.Minute)
	rec.ID = uuid.NewString()
	rec.CreatedAt = t.clock
	t.records = append(t.records, rec)
	return rec, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (billing.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return billing.Record{}, billing.ErrNotFound
}

func (f *fakeStore) List(_ context.Context, s common.Sort, limit, offset int) ([]billing.Record, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := slices.Clone(f.records)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if s.Desc {
			a, b = b, a
		}
		if s.Field == billing.SortTotalPrice {
			return a.TotalPrice.LessThan(b.TotalPrice)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if offset >= len(all) {
		return []billing.Record{}, len(all), nil
	}
	return all[offset:min(offset+limit, len(all))], len(all), nil
}

func inRange(at time.Time, rng billing.Range) bool {
	if rng.Start != nil && at.Before(*rng.Start) {
		return false
	}
	if rng.End != nil && at.After(*rng.End) {
		return false
	}
	return true
}

func (f *fakeStore) SumTotal(_ context.Context, rng billing.Range) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sumCalls++
	total := decimal.Zero
	for _, rec := range f.records {
		if inRange(rec.CreatedAt, rng) {
			total = total.Add(rec.TotalPrice)
		}
	}
	return total, nil
}

func (f *fakeStore) ReportRows(_ context.Context, rng billing.Range, fn func(billing.ReportRow) error) error {
	f.mu.Lock()
	recs := slices.Clone(f.records)
	f.mu.Unlock()
	for _, rec := range recs {
		if !inRange(rec.CreatedAt, rng) {
			continue
		}
		for _, it := range rec.Items {
			name := ""
			if it.Product != nil {
				name = it.Product.Name
			}
			if err := fn(billing.ReportRow{
				BillingID:   rec.ID,
				CreatedAt:   rec.CreatedAt,
				ProductName: name,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				LineTotal:   it.LineTotal,
				BillTotal:   rec.TotalPrice,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
