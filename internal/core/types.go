package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Kind identifies a document domain.
type Kind string

const (
	KindBank     Kind = "bank"
	KindPurchase Kind = "purchase"
	KindSale     Kind = "sale"
	KindExpense  Kind = "expense"
	KindPayroll  Kind = "payroll"
	KindTax      Kind = "tax"
)

var kinds = []Kind{KindBank, KindPurchase, KindSale, KindExpense, KindPayroll, KindTax}

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Mode selects the scorer used for a suggestion request.
type Mode string

const (
	ModeRules    Mode = "rules"
	ModeAssisted Mode = "assisted"
)

// Anchor is the document a reconciliation search starts from.
// Amount and Date are required.
type Anchor struct {
	Kind             Kind                `json:"kind"`
	ID               string              `json:"id,omitempty"`
	Amount           decimal.NullDecimal `json:"amount"`
	Date             time.Time           `json:"date"`
	Currency         string              `json:"currency,omitempty"`
	Reference        string              `json:"reference,omitempty"`
	CounterpartyRUT  string              `json:"counterparty_rut,omitempty"`
	CounterpartyName string              `json:"counterparty_name,omitempty"`
	Description      string              `json:"description,omitempty"`
	ProjectID        string              `json:"project_id,omitempty"`
}

// Candidate is a read-only projection of a document from a target view.
type Candidate struct {
	TargetKind       Kind            `json:"target_kind"`
	Source           string          `json:"source"`
	DocID            string          `json:"doc_id"`
	Date             time.Time       `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency,omitempty"`
	Reference        string          `json:"reference,omitempty"`
	Folio            string          `json:"folio,omitempty"`
	CounterpartyRUT  string          `json:"counterparty_rut,omitempty"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	Description      string          `json:"description,omitempty"`
	ProjectID        string          `json:"project_id,omitempty"`
}

// Evidence is one scoring rule's contribution to a match.
type Evidence struct {
	Rule   string   `json:"rule"`
	Detail string   `json:"detail"`
	Score  *float64 `json:"score,omitempty"`
}

func evidence(rule string, weight float64, format string, args ...any) Evidence {
	w := weight
	return Evidence{Rule: rule, Detail: fmt.Sprintf(format, args...), Score: &w}
}

// MatchResult is a scored candidate.
type MatchResult struct {
	Candidate Candidate  `json:"candidate"`
	Score     int        `json:"score"`
	Evidence  []Evidence `json:"evidence"`
}

// SuggestParams are the per-request matching parameters.
type SuggestParams struct {
	DaysWindow int
	// AmountTol is the absolute amount tolerance for the exact-amount rule.
	AmountTol decimal.Decimal
	// AmountTolPct overrides the resolved relative tolerance when set.
	AmountTolPct *float64
	Limit        int
	Mode         Mode
}

// CandidateQuery bounds the rows a provider returns for one source.
// Providers return rows matching the date window OR the amount band.
type CandidateQuery struct {
	Currency  string
	DateFrom  time.Time
	DateTo    time.Time
	AmountMin decimal.Decimal
	AmountMax decimal.Decimal
	Reference string
	MaxRows   int
}

// civilDate truncates t to its calendar date in UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the absolute number of calendar days between a and b.
func daysBetween(a, b time.Time) int {
	d := int(civilDate(a).Sub(civilDate(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
