// Package billing records sales and keeps product counters in step with them.
package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/product"
)

// ErrNotFound is returned by stores when no billing record matches.
var ErrNotFound = errors.New("billing record not found")

// MaxQuantity bounds a single line. billing_items.quantity is an INTEGER column.
const MaxQuantity = 1_000_000

// LineInput is one requested line of a bill.
type LineInput struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=1000000"`
}

// Item is a persisted billing line. UnitPrice is the product price at the time of sale.
type Item struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unitPrice"`
	LineTotal decimal.Decimal  `json:"lineTotal"`
	Product   *product.Product `json:"product,omitempty"`
}

// Record is an immutable billing record.
type Record struct {
	ID         string          `json:"id"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	CreatedAt  time.Time       `json:"createdAt"`
	Items      []Item          `json:"items"`
}

// Range bounds earnings and report queries. Nil bounds are open and both ends are inclusive.
type Range struct {
	Start *time.Time
	End   *time.Time
}

// Earnings is the summed total price over a range.
type Earnings struct {
	Total decimal.Decimal `json:"totalEarnings"`
	Start *time.Time      `json:"start,omitempty"`
	End   *time.Time      `json:"end,omitempty"`
}

// ReportRow is one line item flattened with its bill for CSV export.
type ReportRow struct {
	BillingID   string
	CreatedAt   time.Time
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	BillTotal   decimal.Decimal
}

// Sort fields accepted by List.
const (
	SortCreatedAt  = "createdAt"
	SortTotalPrice = "totalPrice"
)

// SortFields lists the sort keys accepted by List.
var SortFields = []string{SortCreatedAt, SortTotalPrice}
