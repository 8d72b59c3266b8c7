// Package pricing computes bill totals with exact decimal arithmetic.
package pricing

import "github.com/shopspring/decimal"

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Lines []decimal.Decimal
	Units int64
	Total decimal.Decimal
}

// LineTotal returns unitPrice x qty rounded to cents.
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}

// Compute calculates per-line totals and the bill total. Non-positive quantities contribute nothing.
func Compute(items []Item) Summary {
	s := Summary{Lines: make([]decimal.Decimal, len(items)), Total: decimal.Zero}
	for i, it := range items {
		if it.Qty <= 0 {
			s.Lines[i] = decimal.Zero
			continue
		}
		line := LineTotal(it.UnitPrice, it.Qty)
		s.Lines[i] = line
		s.Units += int64(it.Qty)
		s.Total = s.Total.Add(line)
	}
	return s
}
