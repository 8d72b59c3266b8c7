package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/product"
)

// Store persists billing records.
type Store interface {
	// WithTx runs fn in one transaction. Nothing fn wrote survives a non-nil return.
	WithTx(ctx context.Context, fn func(Tx) error) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, sort common.Sort, limit, offset int) ([]Record, int, error)
	SumTotal(ctx context.Context, rng Range) (decimal.Decimal, error)
	ReportRows(ctx context.Context, rng Range, fn func(ReportRow) error) error
}

// Tx is the transactional view used while creating a bill.
type Tx interface {
	// ApplySale atomically adds qty and qty x price to the product's counters and
	// returns the updated product. It returns product.ErrNotFound for unknown ids.
	ApplySale(ctx context.Context, productID string, qty int) (product.Product, error)
	// Insert stores the record and its items, assigning ID and CreatedAt.
	Insert(ctx context.Context, rec Record) (Record, error)
}

// Pool is the subset of *pgxpool.Pool the PGStore needs.
type Pool interface {
	db.DBTX
	db.TxBeginner
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool Pool) *PGStore {
	return &PGStore{DB: pool}
}

// WithTx implements Store.
func (s *PGStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return db.InTx(ctx, s.DB, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) ApplySale(ctx context.Context, productID string, qty int) (product.Product, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE products SET
			product_sold = product_sold + $2,
			gross_revenue = gross_revenue + price * $2,
			updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+product.Columns,
		productID, qty)
	p, err := product.ScanRow(row)
	if err != nil {
		if db.IsNoRows(err) {
			return product.Product{}, product.ErrNotFound
		}
		return product.Product{}, fmt.Errorf("apply sale: %w", err)
	}
	return p, nil
}

func (t pgTx) Insert(ctx context.Context, rec Record) (Record, error) {
	if err := t.tx.QueryRow(ctx,
		`INSERT INTO billings (total_price) VALUES ($1::numeric) RETURNING id::text, created_at`,
		rec.TotalPrice.String(),
	).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return Record{}, fmt.Errorf("insert billing: %w", err)
	}

	positions := make([]int32, len(rec.Items))
	productIDs := make([]string, len(rec.Items))
	quantities := make([]int32, len(rec.Items))
	prices := make([]string, len(rec.Items))
	lines := make([]string, len(rec.Items))
	for i, it := range rec.Items {
		positions[i] = int32(i)
		productIDs[i] = it.ProductID
		quantities[i] = int32(it.Quantity)
		prices[i] = it.UnitPrice.String()
		lines[i] = it.LineTotal.String()
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO billing_items (billing_id, position, product_id, quantity, unit_price, line_total)
		SELECT $1::uuid, t.pos, t.pid::uuid, t.qty, t.price::numeric, t.line::numeric
		FROM unnest($2::int[], $3::text[], $4::int[], $5::text[], $6::text[]) AS t(pos, pid, qty, price, line)`,
		rec.ID, positions, productIDs, quantities, prices, lines,
	); err != nil {
		return Record{}, fmt.Errorf("insert billing items: %w", err)
	}
	return rec, nil
}

const recordColumns = `id::text, total_price::text, created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec   Record
		total string
	)
	if err := row.Scan(&rec.ID, &total, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	var err error
	if rec.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return Record{}, fmt.Errorf("parse total price: %w", err)
	}
	return rec, nil
}

// Get loads a record with its items and their products.
func (s *PGStore) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(s.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM billings WHERE id = $1::uuid`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get billing: %w", err)
	}
	recs := []Record{rec}
	if err := s.attachItems(ctx, recs); err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

var sortColumns = map[string]string{
	SortCreatedAt:  "created_at",
	SortTotalPrice: "total_price",
}

// List returns one page of records and the total count.
func (s *PGStore) List(ctx context.Context, sort common.Sort, limit, offset int) ([]Record, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM billings`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count billings: %w", err)
	}
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = sortColumns[SortCreatedAt]
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	rows, err := s.DB.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM billings ORDER BY %s %s, id %s LIMIT $1 OFFSET $2`, recordColumns, column, dir, dir),
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list billings: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan billings: %w", err)
	}
	if err := s.attachItems(ctx, recs); err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (s *PGStore) attachItems(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(recs))
	index := make(map[string]int, len(recs))
	for i, rec := range recs {
		parsed, err := uuid.Parse(rec.ID)
		if err != nil {
			return fmt.Errorf("parse billing id: %w", err)
		}
		ids = append(ids, parsed)
		index[rec.ID] = i
		recs[i].Items = []Item{}
	}
	rows, err := s.DB.Query(ctx, `
		SELECT bi.billing_id::text, bi.quantity, bi.unit_price::text, bi.line_total::text, `+product.QualifiedColumns("p")+`
		FROM billing_items bi
		JOIN products p ON p.id = bi.product_id
		WHERE bi.billing_id = ANY($1::uuid[])
		ORDER BY bi.billing_id, bi.position`, ids)
	if err != nil {
		return fmt.Errorf("list billing items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			billingID   string
			item        Item
			price, line string
			ps          product.RowScanner
		)
		targets := append([]any{&billingID, &item.Quantity, &price, &line}, ps.Targets()...)
		if err := rows.Scan(targets...); err != nil {
			return fmt.Errorf("scan billing item: %w", err)
		}
		p, err := ps.Product()
		if err != nil {
			return err
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("parse unit price: %w", err)
		}
		if item.LineTotal, err = decimal.NewFromString(line); err != nil {
			return fmt.Errorf("parse line total: %w", err)
		}
		item.ProductID = p.ID
		item.Product = &p
		i := index[billingID]
		recs[i].Items = append(recs[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate billing items: %w", err)
	}
	return nil
}

// SumTotal sums total_price over records created within rng.
func (s *PGStore) SumTotal(ctx context.Context, rng Range) (decimal.Decimal, error) {
	var total string
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_price), 0)::text FROM billings
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)`,
		rng.Start, rng.End).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum billings: %w", err)
	}
	return decimal.NewFromString(total)
}

// ReportRows streams line items within rng ordered by bill creation time.
func (s *PGStore) ReportRows(ctx context.Context, rng Range, fn func(ReportRow) error) error {
	rows, err := s.DB.Query(ctx, `
		SELECT b.id::text, b.created_at, p.name, bi.quantity, bi.unit_price::text, bi.line_total::text, b.total_price::text
		FROM billings b
		JOIN billing_items bi ON bi.billing_id = b.id
		JOIN products p ON p.id = bi.product_id
		WHERE ($1::timestamptz IS NULL OR b.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR b.created_at <= $2)
		ORDER BY b.created_at, b.id, bi.position`,
		rng.Start, rng.End)
	if err != nil {
		return fmt.Errorf("query billing report: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r                   ReportRow
			price, line, totals string
		)
		if err := rows.Scan(&r.BillingID, &r.CreatedAt, &r.ProductName, &r.Quantity, &price, &line, &totals); err != nil {
			return fmt.Errorf("scan billing report: %w", err)
		}
		if r.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("parse unit price: %w", err)
		}
		if r.LineTotal, err = decimal.NewFromString(line); err != nil {
			return fmt.Errorf("parse line total: %w", err)
		}
		if r.BillTotal, err = decimal.NewFromString(totals); err != nil {
			return fmt.Errorf("parse bill total: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

