package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultRelativeTolerance is the relative amount fallback when no
// tolerance scope is resolved.
const DefaultRelativeTolerance = 0.01

// Rule weights.
const (
	WeightAmountExact = 70
	WeightAmountClose = 50
	WeightSameDate    = 20
	WeightDateWindow  = 10
	WeightReference   = 10
	MaxScore          = 100
)

// Scorer scores one anchor/candidate pair.
type Scorer interface {
	Score(a Anchor, c Candidate) (int, []Evidence)
}

// RuleScorer implements the fixed amount/date/reference rules.
type RuleScorer struct {
	AmountTol  decimal.Decimal
	RelTol     float64 // relative to the anchor amount
	DaysWindow int
}

// Score implements Scorer.
func (s RuleScorer) Score(a Anchor, c Candidate) (int, []Evidence) {
	var (
		total int
		ev    []Evidence
	)

	anchorAmount := a.Amount.Decimal
	diff := c.Amount.Sub(anchorAmount).Abs()
	switch {
	case diff.LessThanOrEqual(s.AmountTol):
		total += WeightAmountExact
		ev = append(ev, evidence("amount_exact", WeightAmountExact,
			"difference %s within tolerance %s", diff.StringFixed(2), s.AmountTol.String()))
	case withinRelative(diff, anchorAmount, s.RelTol):
		total += WeightAmountClose
		ev = append(ev, evidence("amount_close", WeightAmountClose,
			"difference %s within %s%% of %s", diff.StringFixed(2), pct(s.RelTol), anchorAmount.StringFixed(2)))
	}

	days := daysBetween(a.Date, c.Date)
	switch {
	case days == 0:
		total += WeightSameDate
		ev = append(ev, evidence("same_date", WeightSameDate, "both dated %s", civilDate(c.Date).Format("2006-01-02")))
	case days <= s.DaysWindow:
		total += WeightDateWindow
		ev = append(ev, evidence("date_window", WeightDateWindow, "%d days apart (window %d)", days, s.DaysWindow))
	}

	if ref := stripSpace(a.Reference); ref != "" {
		if strings.Contains(stripSpace(c.Reference), ref) || strings.Contains(stripSpace(c.Folio), ref) {
			total += WeightReference
			ev = append(ev, evidence("reference_match", WeightReference, "reference %q found in candidate", ref))
		}
	}

	if total > MaxScore {
		total = MaxScore
	}
	return total, ev
}

// withinRelative reports diff <= |base| * rel.
func withinRelative(diff, base decimal.Decimal, rel float64) bool {
	if rel <= 0 {
		return false
	}
	return diff.LessThanOrEqual(base.Abs().Mul(decimal.NewFromFloat(rel)))
}

func pct(rel float64) string {
	return decimal.NewFromFloat(rel).Shift(2).String()
}

// stripSpace removes all whitespace and upper-cases s.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}
