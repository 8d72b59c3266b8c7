// Package product manages catalog entries and the cumulative sales counters
// that billing updates.
package product

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by stores when no product matches.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateName is returned by stores when the name is already taken.
	ErrDuplicateName = errors.New("product name already exists")
)

// Product is a catalog entry with its running sales counters.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	BannerImg    *string         `json:"bannerImg,omitempty"`
	ProductSold  int64           `json:"productSold"`
	GrossRevenue decimal.Decimal `json:"grossRevenue"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NameEntry is the compact id/name pair used by product pickers.
type NameEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateInput carries the fields for a new product.
type CreateInput struct {
	Name      string
	Price     decimal.Decimal
	BannerImg *string
}

// UpdateInput carries optional replacements; nil fields are left unchanged.
type UpdateInput struct {
	Name      *string
	Price     *decimal.Decimal
	BannerImg *string
}

// TopMetric selects the counter used to rank products.
type TopMetric string

const (
	TopBySold    TopMetric = "sold"
	TopByRevenue TopMetric = "revenue"
)

// Sort fields accepted by list endpoints.
const (
	SortName         = "name"
	SortPrice        = "price"
	SortProductSold  = "productSold"
	SortGrossRevenue = "grossRevenue"
	SortCreatedAt    = "createdAt"
)

// SortFields lists the sort keys accepted by List.
var SortFields = []string{SortName, SortPrice, SortProductSold, SortGrossRevenue, SortCreatedAt}

// PriceString accepts a JSON string or number and keeps its literal text.
type PriceString string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PriceString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PriceString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = PriceString(n.String())
	return nil
}
