package database

// convert.go maps between pgtype column values and the engine's types.
//
// Views may expose NULL in any column. Text and dates collapse to their zero
// value; numerics report validity so callers can skip incomplete rows.

import (
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a time to pgtype.Date. The zero time is NULL.
func ToPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

// ToPgNumeric converts a decimal to pgtype.Numeric without loss.
func ToPgNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(d.Coefficient()), Exp: d.Exponent(), Valid: true}
}

// PgTextToString returns the text value, or "" for NULL.
func PgTextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// PgDateToTime returns the date at midnight UTC, or the zero time for NULL
// and infinite dates.
func PgDateToTime(d pgtype.Date) time.Time {
	if !d.Valid || d.InfinityModifier != pgtype.Finite {
		return time.Time{}
	}
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// PgNumericToDecimal converts a numeric column. ok is false for NULL, NaN
// and infinities.
func PgNumericToDecimal(n pgtype.Numeric) (d decimal.Decimal, ok bool) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), true
}

// pgNumericOrZero is PgNumericToDecimal with NULL read as zero, for running
// totals such as invoiced amounts.
func pgNumericOrZero(n pgtype.Numeric) decimal.Decimal {
	d, _ := PgNumericToDecimal(n)
	return d
}

// PgFloat8Ptr returns nil for NULL.
func PgFloat8Ptr(f pgtype.Float8) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// PgBoolPtr returns nil for NULL.
func PgBoolPtr(b pgtype.Bool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}
