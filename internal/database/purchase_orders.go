package database

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

// Vendor RUTs are compared after stripping everything but digits and K,
// matching core.NormalizeRUT.
var openPOLinesSQL = fmt.Sprintf(`SELECT po_id, line_id, vendor_rut, project_id, amount, qty,
	invoiced_amount, invoiced_qty, received_qty, po_date
FROM %s
WHERE ($1::text = '' OR regexp_replace(upper(vendor_rut), '[^0-9K]', '', 'g') = $1::text)
  AND ($2::text = '' OR project_id = $2::text)
ORDER BY po_id, line_id
LIMIT $3`, quoteRelation(OpenPOLinesView))

// OpenPOLines implements core.POLineProvider.
func (s *Store) OpenPOLines(ctx context.Context, q core.POQuery) ([]core.POLine, error) {
	rows, err := s.db.Query(ctx, openPOLinesSQL, core.NormalizeRUT(q.VendorRUT), q.ProjectID, q.MaxRows)
	if err != nil {
		return nil, mapError(OpenPOLinesView, err)
	}
	defer rows.Close()

	var out []core.POLine
	for rows.Next() {
		var (
			poID, lineID           string
			vendorRUT, projectID   pgtype.Text
			amount, qty            pgtype.Numeric
			invoicedAmt, invoicedQ pgtype.Numeric
			receivedQty            pgtype.Numeric
			poDate                 pgtype.Date
		)
		if err := rows.Scan(&poID, &lineID, &vendorRUT, &projectID, &amount, &qty,
			&invoicedAmt, &invoicedQ, &receivedQty, &poDate); err != nil {
			return nil, fmt.Errorf("scan %s: %w", OpenPOLinesView, err)
		}

		lineAmount, ok := PgNumericToDecimal(amount)
		if !ok {
			continue
		}
		out = append(out, core.POLine{
			POID:           poID,
			LineID:         lineID,
			VendorRUT:      PgTextToString(vendorRUT),
			ProjectID:      PgTextToString(projectID),
			Amount:         lineAmount,
			Qty:            pgNumericOrZero(qty),
			InvoicedAmount: pgNumericOrZero(invoicedAmt),
			InvoicedQty:    pgNumericOrZero(invoicedQ),
			ReceivedQty:    pgNumericOrZero(receivedQty),
			Date:           PgDateToTime(poDate),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(OpenPOLinesView, err)
	}
	return out, nil
}
