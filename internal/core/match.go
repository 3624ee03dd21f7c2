package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrSourceUnavailable marks a candidate view that does not exist. The
// engine treats it as zero candidates from that source.
var ErrSourceUnavailable = errors.New("candidate source unavailable")

// Engine defaults.
const (
	DefaultLimit        = 10
	DefaultMaxLimit     = 50
	DefaultQueryTimeout = 5 * time.Second
	DefaultMaxRows      = 500
)

// Engine finds and ranks counterpart candidates for an anchor.
type Engine struct {
	candidates CandidateProvider
	poLines    POLineProvider
	aliases    AliasStore

	queryTimeout time.Duration
	maxRows      int
	defaultLimit int
	maxLimit     int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPOLines enables 3-way matching against p.
func WithPOLines(p POLineProvider) EngineOption {
	return func(e *Engine) { e.poLines = p }
}

// WithAliases enables learned alias lookups in assisted mode.
func WithAliases(a AliasStore) EngineOption {
	return func(e *Engine) { e.aliases = a }
}

// WithQueryTimeout sets the deadline applied to one request's source scans.
func WithQueryTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.queryTimeout = d
		}
	}
}

// WithLimits sets the default and maximum result counts.
func WithLimits(def, max int) EngineOption {
	return func(e *Engine) {
		if def > 0 {
			e.defaultLimit = def
		}
		if max > 0 {
			e.maxLimit = max
		}
	}
}

// WithMaxRows caps the rows read from each source.
func WithMaxRows(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// NewEngine creates an engine reading candidates from provider.
func NewEngine(provider CandidateProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		candidates:   provider,
		queryTimeout: DefaultQueryTimeout,
		maxRows:      DefaultMaxRows,
		defaultLimit: DefaultLimit,
		maxLimit:     DefaultMaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultLimit > e.maxLimit {
		e.defaultLimit = e.maxLimit
	}
	return e
}

// Suggest returns the ranked candidates for a. Results hold only positive
// scores, sorted descending with ties kept in source then row order, and
// are capped at the effective limit. The anchor and parameters are
// validated before any source is read.
func (e *Engine) Suggest(ctx context.Context, a Anchor, p SuggestParams) ([]MatchResult, error) {
	if err := ValidateAnchor(a); err != nil {
		return nil, err
	}
	if err := validateParams(p); err != nil {
		return nil, err
	}
	p = e.normalize(p)

	sources := Targets(a.Kind)
	if len(sources) == 0 {
		return []MatchResult{}, nil
	}

	batches, err := e.scan(ctx, sources, e.query(a, p))
	if err != nil {
		return nil, err
	}

	scorer := e.scorer(ctx, a, p, batches)

	results := make([]MatchResult, 0)
	for _, batch := range batches {
		for _, c := range batch {
			if a.Currency != "" && c.Currency != "" && !strings.EqualFold(a.Currency, c.Currency) {
				continue
			}
			score, ev := scorer.Score(a, c)
			if score <= 0 {
				continue
			}
			results = append(results, MatchResult{Candidate: c, Score: score, Evidence: ev})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > p.Limit {
		results = results[:p.Limit]
	}
	return results, nil
}

// normalize applies defaults to validated params.
func (e *Engine) normalize(p SuggestParams) SuggestParams {
	if p.Limit == 0 {
		p.Limit = e.defaultLimit
	}
	if p.Limit > e.maxLimit {
		p.Limit = e.maxLimit
	}
	if p.Mode == "" {
		p.Mode = ModeRules
	}
	if p.AmountTolPct == nil {
		rel := DefaultRelativeTolerance
		p.AmountTolPct = &rel
	}
	return p
}

func (e *Engine) query(a Anchor, p SuggestParams) CandidateQuery {
	amount := a.Amount.Decimal
	band := decimal.Max(p.AmountTol, amount.Abs().Mul(decimal.NewFromFloat(*p.AmountTolPct)))
	date := civilDate(a.Date)
	return CandidateQuery{
		Currency:  a.Currency,
		DateFrom:  date.AddDate(0, 0, -p.DaysWindow),
		DateTo:    date.AddDate(0, 0, p.DaysWindow),
		AmountMin: amount.Sub(band),
		AmountMax: amount.Add(band),
		Reference: stripSpace(a.Reference),
		MaxRows:   e.maxRows,
	}
}

// scan queries every source concurrently under the request deadline and
// returns the batches in source order.
func (e *Engine) scan(ctx context.Context, sources []SourceDefinition, q CandidateQuery) ([][]Candidate, error) {
	scanCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	batches := make([][]Candidate, len(sources))
	g, gctx := errgroup.WithContext(scanCtx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			rows, err := e.candidates.Candidates(gctx, src, q)
			if errors.Is(err, ErrSourceUnavailable) {
				logging.WithFields(ctx, "source", src.Key).Warn("candidate source unavailable, skipping", "error", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("scan %s: %w", src.Key, err)
			}
			batches[i] = rows
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (e *Engine) scorer(ctx context.Context, a Anchor, p SuggestParams, batches [][]Candidate) Scorer {
	if p.Mode != ModeAssisted {
		return RuleScorer{AmountTol: p.AmountTol, RelTol: *p.AmountTolPct, DaysWindow: p.DaysWindow}
	}
	return AssistedScorer{
		Builder:    FeatureBuilder{Aliases: e.loadAliases(ctx, a, batches)},
		AmountTol:  p.AmountTol,
		RelTol:     *p.AmountTolPct,
		DaysWindow: p.DaysWindow,
	}
}

// loadAliases reads the alias rows for every RUT in play, once per request.
// Lookup failures degrade to no alias evidence.
func (e *Engine) loadAliases(ctx context.Context, a Anchor, batches [][]Candidate) AliasTable {
	if e.aliases == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var ruts []string
	addRUT := func(r string) {
		r = NormalizeRUT(r)
		if r == "" {
			return
		}
		if _, dup := seen[r]; !dup {
			seen[r] = struct{}{}
			ruts = append(ruts, r)
		}
	}
	addRUT(a.CounterpartyRUT)
	for _, batch := range batches {
		for _, c := range batch {
			addRUT(c.CounterpartyRUT)
		}
	}
	if len(ruts) == 0 {
		return nil
	}

	table, err := e.aliases.Lookup(ctx, ruts)
	if err != nil {
		logging.FromContext(ctx).Warn("alias lookup failed, scoring without aliases", "error", err)
		return nil
	}
	return table
}
