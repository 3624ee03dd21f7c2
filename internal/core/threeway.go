package core

// threeway.go matches a purchase invoice against open purchase order lines.
//
// The invoice amount is spread over a PO's open lines in proportion to each
// line's remaining balance. A PO is rejected outright when any line would
// end up invoiced beyond its amount or quantity tolerance, or when receipts
// are required and do not cover the new invoiced quantity. Remaining
// balances never go below zero; the excess over a line's amount is reported
// as variance.

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceAnchor is a purchase invoice to be matched against PO lines.
// Qty is optional. When zero, the quantity tolerance is not checked and
// each line's invoiced quantity is derived from its unit price for the
// receipt checks.
type InvoiceAnchor struct {
	ID        string              `json:"id,omitempty"`
	VendorRUT string              `json:"vendor_rut,omitempty"`
	ProjectID string              `json:"project_id,omitempty"`
	Amount    decimal.NullDecimal `json:"amount"`
	Qty       decimal.Decimal     `json:"qty"`
	Date      time.Time           `json:"date"`
	Reference string              `json:"reference,omitempty"`
}

// POLine is an open purchase order line with its invoiced and received totals.
type POLine struct {
	POID           string
	LineID         string
	VendorRUT      string
	ProjectID      string
	Amount         decimal.Decimal
	Qty            decimal.Decimal
	InvoicedAmount decimal.Decimal
	InvoicedQty    decimal.Decimal
	ReceivedQty    decimal.Decimal
	Date           time.Time
}

// LineAllocation is the share of an invoice assigned to one PO line.
type LineAllocation struct {
	LineID          string          `json:"line_id"`
	Amount          decimal.Decimal `json:"amount"`
	Qty             decimal.Decimal `json:"qty"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	RemainingQty    decimal.Decimal `json:"remaining_qty"`
	Variance        decimal.Decimal `json:"variance"`
}

// POMatch is a scored purchase order for an invoice.
type POMatch struct {
	POID          string           `json:"po_id"`
	VendorRUT     string           `json:"vendor_rut,omitempty"`
	ProjectID     string           `json:"project_id,omitempty"`
	Lines         []LineAllocation `json:"lines"`
	CoveredAmount decimal.Decimal  `json:"covered_amount"`
	Variance      decimal.Decimal  `json:"variance"`
	Score         int              `json:"score"`
	Evidence      []Evidence       `json:"evidence"`
}

// POQuery selects the open lines considered for an invoice.
type POQuery struct {
	VendorRUT string
	ProjectID string
	MaxRows   int
}

// Default 3-way weights, used when every resolved weight is zero.
const (
	defaultWeightVendor = 0.3
	defaultWeightAmount = 0.5
	defaultWeight3Way   = 0.2
)

// SuggestPO ranks the purchase orders that can absorb inv under tol.
func (e *Engine) SuggestPO(ctx context.Context, inv InvoiceAnchor, tol EffectiveTolerance, limit int) ([]POMatch, error) {
	if err := ValidateInvoice(inv); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, ValidationError{Field: "limit", Value: fmt.Sprint(limit), Message: "must not be negative"}
	}
	if e.poLines == nil {
		return []POMatch{}, nil
	}
	limit = e.normalize(SuggestParams{Limit: limit}).Limit

	scanCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	lines, err := e.poLines.OpenPOLines(scanCtx, POQuery{
		VendorRUT: NormalizeRUT(inv.VendorRUT),
		ProjectID: inv.ProjectID,
		MaxRows:   e.maxRows,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, ErrSourceUnavailable) {
		return []POMatch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load open po lines: %w", err)
	}

	matches := make([]POMatch, 0)
	for _, po := range groupByPO(lines) {
		m, ok := allocate(inv, po, tol)
		if !ok || m.Score <= 0 {
			continue
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// groupByPO splits lines into POs, keeping first-seen order.
func groupByPO(lines []POLine) [][]POLine {
	idx := make(map[string]int)
	var out [][]POLine
	for _, l := range lines {
		i, ok := idx[l.POID]
		if !ok {
			i = len(out)
			idx[l.POID] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], l)
	}
	return out
}

func remaining(total, used decimal.Decimal) decimal.Decimal {
	return decimal.Max(total.Sub(used), decimal.Zero)
}

// allocate spreads inv over the open lines of one PO.
func allocate(inv InvoiceAnchor, po []POLine, tol EffectiveTolerance) (POMatch, bool) {
	var open []POLine
	totalRemaining := decimal.Zero
	for _, l := range po {
		r := remaining(l.Amount, l.InvoicedAmount)
		if r.IsPositive() {
			open = append(open, l)
			totalRemaining = totalRemaining.Add(r)
		}
	}
	if len(open) == 0 {
		return POMatch{}, false
	}

	amountCap := decimal.NewFromFloat(1 + tol.AmountTolPct)
	qtyCap := decimal.NewFromFloat(1 + tol.QtyTolPct)
	invAmount := inv.Amount.Decimal

	m := POMatch{
		POID:          po[0].POID,
		VendorRUT:     po[0].VendorRUT,
		ProjectID:     po[0].ProjectID,
		CoveredAmount: decimal.Zero,
		Variance:      decimal.Zero,
	}
	allocated := decimal.Zero
	newInvoicedQty, coveredQty := decimal.Zero, decimal.Zero

	for i, l := range open {
		share := remaining(l.Amount, l.InvoicedAmount)
		var amt decimal.Decimal
		if i == len(open)-1 {
			amt = invAmount.Sub(allocated)
		} else {
			amt = invAmount.Mul(share).Div(totalRemaining).Round(2)
		}
		allocated = allocated.Add(amt)

		var qty decimal.Decimal
		switch {
		case inv.Qty.IsPositive():
			qty = inv.Qty.Mul(share).Div(totalRemaining)
		case l.Amount.IsPositive():
			qty = l.Qty.Mul(amt).Div(l.Amount)
		}

		cumAmount := l.InvoicedAmount.Add(amt)
		cumQty := l.InvoicedQty.Add(qty)
		if cumAmount.GreaterThan(l.Amount.Mul(amountCap)) {
			return POMatch{}, false
		}
		if inv.Qty.IsPositive() && l.Qty.IsPositive() && cumQty.GreaterThan(l.Qty.Mul(qtyCap)) {
			return POMatch{}, false
		}
		if tol.RecvRequired && cumQty.GreaterThan(l.ReceivedQty.Mul(qtyCap)) {
			return POMatch{}, false
		}

		variance := remaining(cumAmount, l.Amount)
		m.Lines = append(m.Lines, LineAllocation{
			LineID:          l.LineID,
			Amount:          amt,
			Qty:             qty.Round(4),
			RemainingAmount: remaining(l.Amount, cumAmount),
			RemainingQty:    remaining(l.Qty, cumQty).Round(4),
			Variance:        variance,
		})
		m.CoveredAmount = m.CoveredAmount.Add(decimal.Min(amt, share))
		m.Variance = m.Variance.Add(variance)

		newInvoicedQty = newInvoicedQty.Add(cumQty)
		coveredQty = coveredQty.Add(decimal.Min(cumQty, l.ReceivedQty))
	}

	m.Score, m.Evidence = scorePO(inv, m, totalRemaining, newInvoicedQty, coveredQty, tol)
	return m, true
}

func scorePO(inv InvoiceAnchor, m POMatch, totalRemaining, invoicedQty, coveredQty decimal.Decimal, tol EffectiveTolerance) (int, []Evidence) {
	wv, wa, w3 := tol.WeightVendor, tol.WeightAmount, tol.Weight3Way
	if wv+wa+w3 <= 0 {
		wv, wa, w3 = defaultWeightVendor, defaultWeightAmount, defaultWeight3Way
	}
	norm := 100 / (wv + wa + w3)

	var (
		total float64
		ev    []Evidence
	)

	vendor := NormalizeRUT(inv.VendorRUT)
	if vendor != "" && vendor == NormalizeRUT(m.VendorRUT) {
		w := wv * norm
		total += w
		ev = append(ev, evidence("vendor_match", w, "vendor %s", vendor))
	}

	gap, _ := inv.Amount.Decimal.Sub(totalRemaining).Abs().Div(totalRemaining).Float64()
	if fit := math.Max(0, 1-gap); fit > 0 {
		w := wa * norm * fit
		total += w
		ev = append(ev, evidence("amount_fit", w, "invoice %s against open balance %s",
			inv.Amount.Decimal.StringFixed(2), totalRemaining.StringFixed(2)))
	}

	if invoicedQty.IsPositive() {
		coverage, _ := coveredQty.Div(invoicedQty).Float64()
		coverage = math.Min(coverage, 1)
		if coverage > 0 {
			w := w3 * norm * coverage
			total += w
			ev = append(ev, evidence("receipt_coverage", w, "received quantity covers %.0f%% of invoiced", coverage*100))
		}
	}

	if m.Variance.IsPositive() {
		ev = append(ev, Evidence{
			Rule:   "tolerance_variance",
			Detail: fmt.Sprintf("%s over open balance, within %s%% tolerance", m.Variance.StringFixed(2), pct(tol.AmountTolPct)),
		})
	}

	score := int(math.Round(total))
	if score > MaxScore {
		score = MaxScore
	}
	return score, ev
}
