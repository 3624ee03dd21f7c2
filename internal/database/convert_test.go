package database

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPgNumericToDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   pgtype.Numeric
		want string
		ok   bool
	}{
		{"valid", pgtype.Numeric{Int: big.NewInt(123456), Exp: -2, Valid: true}, "1234.56", true},
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(5), Exp: 3, Valid: true}, "5000", true},
		{"null", pgtype.Numeric{}, "0", false},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, "0", false},
		{"infinity", pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PgNumericToDecimal(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), got.String())
		})
	}
}

func TestToPgNumericRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("-42.015")
	got, ok := PgNumericToDecimal(ToPgNumeric(d))
	assert.True(t, ok)
	assert.True(t, d.Equal(got))
}

func TestDatesAndText(t *testing.T) {
	local := time.Date(2024, 2, 29, 23, 30, 0, 0, time.FixedZone("CLT", -3*3600))
	d := ToPgDate(local)
	assert.True(t, d.Valid)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), PgDateToTime(d))

	assert.False(t, ToPgDate(time.Time{}).Valid)
	assert.True(t, PgDateToTime(pgtype.Date{InfinityModifier: pgtype.Infinity, Valid: true}).IsZero())

	assert.False(t, ToPgText("   ").Valid)
	assert.Equal(t, "abc", PgTextToString(ToPgText(" abc ")))
	assert.Equal(t, "", PgTextToString(pgtype.Text{}))

	assert.Nil(t, PgFloat8Ptr(pgtype.Float8{}))
	assert.Nil(t, PgBoolPtr(pgtype.Bool{}))
	assert.Equal(t, 0.5, *PgFloat8Ptr(pgtype.Float8{Float64: 0.5, Valid: true}))
}
