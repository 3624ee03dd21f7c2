package core

import "context"

// Collaborators the engine reads from. The database package implements all
// of them over Postgres; tests use the generated mocks.
//
//go:generate mockgen -destination=mocks/mock_core.go -package=mock_core -source=interfaces.go

// CandidateProvider reads candidate rows for a registered source. It
// returns an error wrapping ErrSourceUnavailable when the source's view
// does not exist.
type CandidateProvider interface {
	Candidates(ctx context.Context, src SourceDefinition, q CandidateQuery) ([]Candidate, error)
}

// POLineProvider reads open purchase order lines, ordered by PO then line.
type POLineProvider interface {
	OpenPOLines(ctx context.Context, q POQuery) ([]POLine, error)
}

// ToleranceStore loads tolerance rows.
type ToleranceStore interface {
	LoadTolerance(ctx context.Context, vendorRUT, projectID string) (ToleranceLayers, error)
}

// AliasStore persists the learned counterparty alias table.
type AliasStore interface {
	// Lookup returns every alias whose RUT is in ruts. RUTs are normalized.
	Lookup(ctx context.Context, ruts []string) (AliasTable, error)
	// Learn records a confirmed pairing and returns the new confidence.
	Learn(ctx context.Context, key AliasKey) (float64, error)
}
