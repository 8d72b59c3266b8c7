package billing

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var reportHeader = []string{"billing_id", "created_at", "product_name", "quantity", "unit_price", "line_total", "bill_total"}

// WriteReport streams one CSV row per billing line item within rng.
func (s *Service) WriteReport(ctx context.Context, w io.Writer, rng Range) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	err := s.store.ReportRows(ctx, rng, func(r ReportRow) error {
		return cw.Write([]string{
			r.BillingID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.ProductName,
			strconv.Itoa(r.Quantity),
			r.UnitPrice.StringFixed(2),
			r.LineTotal.StringFixed(2),
			r.BillTotal.StringFixed(2),
		})
	})
	if err != nil {
		return fmt.Errorf("write report rows: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
