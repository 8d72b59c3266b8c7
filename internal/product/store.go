package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
)

// Store persists products.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Product, error)
	Update(ctx context.Context, id string, in UpdateInput) (Product, error)
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, sort common.Sort, limit, offset int) ([]Product, int, error)
	Top(ctx context.Context, metric TopMetric) (Product, error)
	Names(ctx context.Context) ([]NameEntry, error)
}

// Columns is the select list understood by ScanRow.
const Columns = `id::text, name, price::text, banner_img, product_sold, gross_revenue::text, created_at, updated_at`

// QualifiedColumns returns Columns with every column read from the given table alias,
// for queries that join products with other tables.
func QualifiedColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id::text, %[1]s.name, %[1]s.price::text, %[1]s.banner_img, %[1]s.product_sold, %[1]s.gross_revenue::text, %[1]s.created_at, %[1]s.updated_at`, alias)
}

// RowScanner collects product columns as part of a wider Scan call.
type RowScanner struct {
	p              Product
	price, revenue string
}

// Targets returns scan destinations matching Columns.
func (s *RowScanner) Targets() []any {
	return []any{&s.p.ID, &s.p.Name, &s.price, &s.p.BannerImg, &s.p.ProductSold, &s.revenue, &s.p.CreatedAt, &s.p.UpdatedAt}
}

// Product converts the scanned text columns into a Product.
func (s *RowScanner) Product() (Product, error) {
	p := s.p
	var err error
	if p.Price, err = decimal.NewFromString(s.price); err != nil {
		return Product{}, fmt.Errorf("parse price: %w", err)
	}
	if p.GrossRevenue, err = decimal.NewFromString(s.revenue); err != nil {
		return Product{}, fmt.Errorf("parse gross revenue: %w", err)
	}
	return p, nil
}

// ScanRow reads a row selected with Columns.
func ScanRow(row pgx.Row) (Product, error) {
	var s RowScanner
	if err := row.Scan(s.Targets()...); err != nil {
		return Product{}, err
	}
	return s.Product()
}

var sortColumns = map[string]string{
	SortName:         "lower(name)",
	SortPrice:        "price",
	SortProductSold:  "product_sold",
	SortGrossRevenue: "gross_revenue",
	SortCreatedAt:    "created_at",
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

// Create inserts a product with zeroed counters.
func (s *PGStore) Create(ctx context.Context, in CreateInput) (Product, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO products (name, price, banner_img)
		VALUES ($1, $2::numeric, $3)
		RETURNING `+Columns,
		in.Name, in.Price.String(), in.BannerImg)
	p, err := ScanRow(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, ErrDuplicateName
		}
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// Update applies the non-nil fields of in.
func (s *PGStore) Update(ctx context.Context, id string, in UpdateInput) (Product, error) {
	var price *string
	if in.Price != nil {
		v := in.Price.String()
		price = &v
	}
	row := s.DB.QueryRow(ctx, `
		UPDATE products SET
			name = COALESCE($2, name),
			price = COALESCE($3::numeric, price),
			banner_img = COALESCE($4, banner_img),
			updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+Columns,
		id, in.Name, price, in.BannerImg)
	p, err := ScanRow(row)
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return Product{}, ErrNotFound
		case db.IsUniqueViolation(err):
			return Product{}, ErrDuplicateName
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// Get loads a product by id.
func (s *PGStore) Get(ctx context.Context, id string) (Product, error) {
	p, err := ScanRow(s.DB.QueryRow(ctx, `SELECT `+Columns+` FROM products WHERE id = $1::uuid`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// List returns one page of products and the total row count.
func (s *PGStore) List(ctx context.Context, sort common.Sort, limit, offset int) ([]Product, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = sortColumns[SortCreatedAt]
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM products ORDER BY %s %s, id %s LIMIT $1 OFFSET $2`, Columns, column, dir, dir)
	rows, err := s.DB.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	items := make([]Product, 0, limit)
	for rows.Next() {
		p, err := ScanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate products: %w", err)
	}
	return items, total, nil
}

// Top returns the product with the highest value for metric. Ties go to the oldest product.
func (s *PGStore) Top(ctx context.Context, metric TopMetric) (Product, error) {
	column := "product_sold"
	if metric == TopByRevenue {
		column = "gross_revenue"
	}
	p, err := ScanRow(s.DB.QueryRow(ctx, `SELECT `+Columns+` FROM products ORDER BY `+column+` DESC, created_at ASC LIMIT 1`))
	if err != nil {
		if db.IsNoRows(err) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("top product: %w", err)
	}
	return p, nil
}

// Names returns every product's id and name ordered by name.
func (s *PGStore) Names(ctx context.Context) ([]NameEntry, error) {
	rows, err := s.DB.Query(ctx, `SELECT id::text, name FROM products ORDER BY lower(name), id`)
	if err != nil {
		return nil, fmt.Errorf("list product names: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (NameEntry, error) {
		var e NameEntry
		err := row.Scan(&e.ID, &e.Name)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan product names: %w", err)
	}
	return entries, nil
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
