package core

// validation.go checks request inputs before any provider or scoring work.
//
// Validation failures are client errors: the service classifies them as
// "invalid" and the web layer answers 400. Every failing field is reported
// so callers can fix a request in one round trip.

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every failing field of one input.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err is or wraps a validation failure.
func IsValidationError(err error) bool {
	var one ValidationError
	var many ValidationErrors
	return errors.As(err, &one) || errors.As(err, &many)
}

// ValidateAnchor checks that a is complete enough to score against.
func ValidateAnchor(a Anchor) error {
	var errs ValidationErrors

	if !a.Kind.Valid() {
		errs = append(errs, ValidationError{Field: "kind", Value: string(a.Kind), Message: "unknown document kind"})
	}
	if !a.Amount.Valid {
		errs = append(errs, ValidationError{Field: "amount", Message: "required field is empty"})
	}
	if a.Date.IsZero() {
		errs = append(errs, ValidationError{Field: "date", Message: "required field is empty"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateInvoice checks a 3-way matching anchor.
func ValidateInvoice(inv InvoiceAnchor) error {
	var errs ValidationErrors

	if !inv.Amount.Valid {
		errs = append(errs, ValidationError{Field: "amount", Message: "required field is empty"})
	} else if !inv.Amount.Decimal.IsPositive() {
		errs = append(errs, ValidationError{Field: "amount", Value: inv.Amount.Decimal.String(), Message: "must be positive"})
	}
	if inv.Date.IsZero() {
		errs = append(errs, ValidationError{Field: "date", Message: "required field is empty"})
	}
	if inv.Qty.IsNegative() {
		errs = append(errs, ValidationError{Field: "qty", Value: inv.Qty.String(), Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateParams checks caller-supplied numeric parameters.
func validateParams(p SuggestParams) error {
	var errs ValidationErrors

	if p.DaysWindow < 0 {
		errs = append(errs, ValidationError{Field: "days_window", Value: fmt.Sprint(p.DaysWindow), Message: "must not be negative"})
	}
	if p.AmountTol.IsNegative() {
		errs = append(errs, ValidationError{Field: "amount_tol", Value: p.AmountTol.String(), Message: "must not be negative"})
	}
	if p.AmountTolPct != nil && (*p.AmountTolPct < 0 || *p.AmountTolPct > 1) {
		errs = append(errs, ValidationError{Field: "amount_tol_pct", Value: fmt.Sprint(*p.AmountTolPct), Message: "must be between 0 and 1"})
	}
	if p.Limit < 0 {
		errs = append(errs, ValidationError{Field: "limit", Value: fmt.Sprint(p.Limit), Message: "must not be negative"})
	}
	switch p.Mode {
	case "", ModeRules, ModeAssisted:
	default:
		errs = append(errs, ValidationError{Field: "mode", Value: string(p.Mode), Message: "invalid enum value"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
