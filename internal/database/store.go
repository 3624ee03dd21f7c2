// Package database reads candidate documents, open purchase order lines,
// tolerance scopes and the alias table from Postgres.
//
// Candidate sources are views with a common column set (see candidateColumns);
// the engine's source registry names the view for each source. Queries are
// plain SQL over pgx so a Store can run on a pool or inside a transaction.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// Relations outside the candidate views.
const (
	OpenPOLinesView = "v_open_po_lines"
	ToleranceTable  = "match_tolerance_scopes"
	AliasTable      = "match_aliases"
)

// Querier is a DBTX that can also open a transaction.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	core.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements the engine's provider interfaces.
type Store struct {
	db Querier
}

var (
	_ core.CandidateProvider = (*Store)(nil)
	_ core.POLineProvider    = (*Store)(nil)
	_ core.ToleranceStore    = (*Store)(nil)
	_ core.AliasStore        = (*Store)(nil)
)

// New creates a Store over db.
func New(db Querier) *Store {
	return &Store{db: db}
}

// mapError marks a missing view or table as an unavailable source.
func mapError(relation string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", core.ErrSourceUnavailable, relation)
	}
	return fmt.Errorf("query %s: %w", relation, err)
}

// quoteRelation quotes a possibly schema-qualified relation name.
func quoteRelation(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
