package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func text(s string) pgtype.Text { return ToPgText(s) }

func numeric(s string) pgtype.Numeric { return ToPgNumeric(decimal.RequireFromString(s)) }

func float8(f float64) pgtype.Float8 { return pgtype.Float8{Float64: f, Valid: true} }

func candidateRow(id string, date pgtype.Date, amount pgtype.Numeric) []any {
	return []any{
		id, date, amount, text("CLP"), text("FAC 123"), text("000123"),
		text("76.543.210-K"), text("Acme Ltda"), pgtype.Text{}, text("servicios"),
	}
}

func TestCandidateSQL(t *testing.T) {
	sql, args := candidateSQL("reporting.v_match_expenses", core.CandidateQuery{
		Currency:  " clp ",
		DateFrom:  day.AddDate(0, 0, -3),
		DateTo:    day.AddDate(0, 0, 3),
		AmountMin: decimal.RequireFromString("990"),
		AmountMax: decimal.RequireFromString("1010"),
		Reference: "fac123",
		MaxRows:   500,
	})

	assert.Contains(t, sql, `FROM "reporting"."v_match_expenses"`)
	assert.Contains(t, sql, "ORDER BY doc_date, doc_id LIMIT $7")
	require.Len(t, args, 7)
	assert.Equal(t, "clp", args[0])
	assert.Equal(t, ToPgDate(day.AddDate(0, 0, -3)), args[1])
	assert.Equal(t, "FAC123", args[5])
	assert.Equal(t, 500, args[6])
}

func TestCandidates(t *testing.T) {
	db := &fakeQuerier{rows: [][]any{
		candidateRow("e-1", ToPgDate(day), numeric("1000.50")),
		candidateRow("e-null-amount", ToPgDate(day), pgtype.Numeric{}),
		candidateRow("e-null-date", pgtype.Date{}, numeric("10")),
	}}
	src := core.SourceDefinition{Key: "expenses", Kind: core.KindExpense, View: "v_match_expenses"}

	got, err := New(db).Candidates(context.Background(), src, core.CandidateQuery{MaxRows: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "e-1", c.DocID)
	assert.Equal(t, core.KindExpense, c.TargetKind)
	assert.Equal(t, "expenses", c.Source)
	assert.True(t, decimal.RequireFromString("1000.5").Equal(c.Amount))
	assert.Equal(t, day, c.Date)
	assert.Equal(t, "000123", c.Folio)
	assert.Empty(t, c.ProjectID)
	assert.Contains(t, db.sql, `"v_match_expenses"`)
}

func TestCandidates_MissingViewIsUnavailable(t *testing.T) {
	db := &fakeQuerier{err: &pgconn.PgError{Code: "42P01", Message: `relation "v_match_tax_filings" does not exist`}}
	src := core.SourceDefinition{Key: "tax_filings", View: "v_match_tax_filings"}

	_, err := New(db).Candidates(context.Background(), src, core.CandidateQuery{})
	assert.ErrorIs(t, err, core.ErrSourceUnavailable)

	db.err = errors.New("connection reset by peer")
	_, err = New(db).Candidates(context.Background(), src, core.CandidateQuery{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrSourceUnavailable)
}

func TestOpenPOLines(t *testing.T) {
	db := &fakeQuerier{rows: [][]any{
		{"PO-1", "1", text("76543210-K"), pgtype.Text{}, numeric("6000"), numeric("60"),
			pgtype.Numeric{}, pgtype.Numeric{}, numeric("60"), ToPgDate(day)},
	}}

	lines, err := New(db).OpenPOLines(context.Background(), core.POQuery{VendorRUT: "76.543.210-k", MaxRows: 50})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].InvoicedAmount.IsZero())
	assert.True(t, decimal.NewFromInt(60).Equal(lines[0].ReceivedQty))
	assert.Equal(t, []any{"76543210K", "", 50}, db.args)
}

func toleranceRow(scope, value string, cols ...any) []any {
	return append([]any{text(scope), text(value)}, cols...)
}

func TestLoadTolerance(t *testing.T) {
	null := pgtype.Float8{}
	db := &fakeQuerier{rows: [][]any{
		toleranceRow("global", "", float8(0.01), float8(0.02), pgtype.Bool{Bool: false, Valid: true}, float8(0.3), float8(0.5), float8(0.2)),
		toleranceRow("vendor", "76543210-K", float8(0.03), null, pgtype.Bool{}, null, null, null),
		toleranceRow("project", "P-7", null, float8(0.05), pgtype.Bool{Bool: true, Valid: true}, null, null, null),
	}}

	layers, err := New(db).LoadTolerance(context.Background(), "76.543.210-K", "P-7")
	require.NoError(t, err)
	require.NotNil(t, layers.Global)
	assert.Equal(t, 0.01, layers.Global.AmountTolPct)
	require.NotNil(t, layers.Vendor)
	assert.Equal(t, 0.03, *layers.Vendor.AmountTolPct)
	assert.Nil(t, layers.Vendor.QtyTolPct)
	require.NotNil(t, layers.Project)
	assert.True(t, *layers.Project.RecvRequired)
	assert.Equal(t, []any{"76543210K", "P-7"}, db.args)
}

func TestLoadTolerance_IncompleteGlobal(t *testing.T) {
	db := &fakeQuerier{rows: [][]any{
		toleranceRow("global", "", float8(0.01), pgtype.Float8{}, pgtype.Bool{Valid: true}, float8(0.3), float8(0.5), float8(0.2)),
	}}

	_, err := New(db).LoadTolerance(context.Background(), "", "")
	require.ErrorIs(t, err, core.ErrMissingGlobalScope)
	assert.Contains(t, err.Error(), "qty_tol_pct")
}

func TestLoadTolerance_DuplicateVendorScope(t *testing.T) {
	null := pgtype.Float8{}
	db := &fakeQuerier{rows: [][]any{
		toleranceRow("global", "", float8(0.01), float8(0.02), pgtype.Bool{Valid: true}, float8(0.3), float8(0.5), float8(0.2)),
		toleranceRow("vendor", "76543210-K", float8(0.03), null, pgtype.Bool{}, null, null, null),
		toleranceRow("vendor", "76.543.210-k", float8(0.08), null, pgtype.Bool{}, null, null, null),
	}}

	_, err := New(db).LoadTolerance(context.Background(), "76543210K", "")
	require.ErrorIs(t, err, ErrDuplicateScope)
	assert.Contains(t, err.Error(), "76.543.210-k")
}

func TestToleranceSQL_IsOrdered(t *testing.T) {
	assert.Contains(t, toleranceSQL, "ORDER BY scope_type, scope_value")
}

func TestLookupAliases(t *testing.T) {
	db := &fakeQuerier{rows: [][]any{{"76543210K", "TRANSF ACME", 0.7}}}

	table, err := New(db).Lookup(context.Background(), []string{"76543210K"})
	require.NoError(t, err)
	assert.Equal(t, 0.7, table.Confidence("76.543.210-K", "transf 555 acme"))

	empty, err := New(&fakeQuerier{err: errors.New("not called")}).Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLearn_BeginFailure(t *testing.T) {
	_, err := New(&fakeQuerier{}).Learn(context.Background(), core.AliasKey{RUT: "1", Description: "X"})
	assert.ErrorContains(t, err, "begin alias update")
}
