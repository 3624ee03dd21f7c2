package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/jackc/pgx/v5"
)

var (
	aliasLookupSQL = fmt.Sprintf(`SELECT rut, description, confidence FROM %s WHERE rut = ANY($1)`,
		quoteRelation(AliasTable))

	aliasLockSQL = fmt.Sprintf(`SELECT confidence FROM %s WHERE rut = $1 AND description = $2 FOR UPDATE`,
		quoteRelation(AliasTable))

	aliasUpsertSQL = fmt.Sprintf(`INSERT INTO %s (rut, description, confidence, confirmations, updated_at)
VALUES ($1, $2, $3, 1, now())
ON CONFLICT (rut, description) DO UPDATE
SET confidence = EXCLUDED.confidence,
    confirmations = %s.confirmations + 1,
    updated_at = now()`, quoteRelation(AliasTable), quoteRelation(AliasTable))
)

// Lookup implements core.AliasStore.
func (s *Store) Lookup(ctx context.Context, ruts []string) (core.AliasTable, error) {
	table := make(core.AliasTable)
	if len(ruts) == 0 {
		return table, nil
	}

	rows, err := s.db.Query(ctx, aliasLookupSQL, ruts)
	if err != nil {
		return nil, mapError(AliasTable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key core.AliasKey
		var confidence float64
		if err := rows.Scan(&key.RUT, &key.Description, &confidence); err != nil {
			return nil, fmt.Errorf("scan %s: %w", AliasTable, err)
		}
		table[key] = confidence
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(AliasTable, err)
	}
	return table, nil
}

// Learn implements core.AliasStore. The row is locked while the next
// confidence is computed so concurrent confirmations each count.
func (s *Store) Learn(ctx context.Context, key core.AliasKey) (float64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin alias update: %w", err)
	}
	defer tx.Rollback(ctx)

	var current float64
	exists := true
	err = tx.QueryRow(ctx, aliasLockSQL, key.RUT, key.Description).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		exists = false
	} else if err != nil {
		return 0, mapError(AliasTable, err)
	}

	next := core.NextAliasConfidence(current, exists)
	if _, err := tx.Exec(ctx, aliasUpsertSQL, key.RUT, key.Description, next); err != nil {
		return 0, mapError(AliasTable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit alias update: %w", err)
	}
	return next, nil
}
