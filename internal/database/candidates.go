package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// candidateColumns is the column set every candidate view exposes.
var candidateColumns = []string{
	"doc_id", "doc_date", "amount", "currency", "reference", "folio",
	"counterparty_rut", "counterparty_name", "project_id", "description",
}

// candidateSQL builds the candidate query for one view. A row qualifies
// when its date is in the window, its amount is in the band, or the anchor
// reference appears in its reference or folio. A candidate without a
// currency is never excluded by currency.
func candidateSQL(view string, q core.CandidateQuery) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE ", strings.Join(candidateColumns, ", "), quoteRelation(view))
	b.WriteString("($1::text = '' OR currency IS NULL OR currency = '' OR upper(currency) = upper($1::text)) AND (")
	b.WriteString("(doc_date BETWEEN $2 AND $3)")
	b.WriteString(" OR (amount BETWEEN $4 AND $5)")
	b.WriteString(" OR ($6::text <> '' AND (")
	b.WriteString("strpos(upper(replace(coalesce(reference, ''), ' ', '')), $6::text) > 0")
	b.WriteString(" OR strpos(upper(replace(coalesce(folio, ''), ' ', '')), $6::text) > 0))")
	b.WriteString(") ORDER BY doc_date, doc_id LIMIT $7")

	args := []any{
		strings.TrimSpace(q.Currency),
		ToPgDate(q.DateFrom),
		ToPgDate(q.DateTo),
		ToPgNumeric(q.AmountMin),
		ToPgNumeric(q.AmountMax),
		strings.ToUpper(q.Reference),
		q.MaxRows,
	}
	return b.String(), args
}

// Candidates implements core.CandidateProvider.
func (s *Store) Candidates(ctx context.Context, src core.SourceDefinition, q core.CandidateQuery) ([]core.Candidate, error) {
	sql, args := candidateSQL(src.View, q)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(src.View, err)
	}
	defer rows.Close()

	var out []core.Candidate
	for rows.Next() {
		c, ok, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", src.View, err)
		}
		if !ok {
			continue
		}
		c.TargetKind = src.Kind
		c.Source = src.Key
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(src.View, err)
	}
	return out, nil
}

// scanCandidate reads one row. Rows without an amount or date cannot be
// scored and are reported as not ok.
func scanCandidate(rows pgx.Rows) (core.Candidate, bool, error) {
	var (
		docID            string
		docDate          pgtype.Date
		amount           pgtype.Numeric
		currency         pgtype.Text
		reference        pgtype.Text
		folio            pgtype.Text
		counterpartyRUT  pgtype.Text
		counterpartyName pgtype.Text
		projectID        pgtype.Text
		description      pgtype.Text
	)
	err := rows.Scan(
		&docID, &docDate, &amount, &currency, &reference, &folio,
		&counterpartyRUT, &counterpartyName, &projectID, &description,
	)
	if err != nil {
		return core.Candidate{}, false, err
	}

	value, ok := PgNumericToDecimal(amount)
	date := PgDateToTime(docDate)
	if !ok || date.IsZero() {
		return core.Candidate{}, false, nil
	}

	return core.Candidate{
		DocID:            docID,
		Date:             date,
		Amount:           value,
		Currency:         PgTextToString(currency),
		Reference:        PgTextToString(reference),
		Folio:            PgTextToString(folio),
		CounterpartyRUT:  PgTextToString(counterpartyRUT),
		CounterpartyName: PgTextToString(counterpartyName),
		ProjectID:        PgTextToString(projectID),
		Description:      PgTextToString(description),
	}, true, nil
}
