package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/reconcile/internal/eventlog"
	"github.com/JonMunkholm/reconcile/internal/latency"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Event names emitted by the service.
const (
	EventSuggestionRequested   = "suggestion_requested"
	EventPOSuggestionRequested = "po_suggestion_requested"
	EventMatchConfirmed        = "match_confirmed"
	EventMetricsReset          = "metrics_reset"
	EventLogsOverridden        = "logs_overridden"
)

// Request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeEmpty     = "empty"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var outcomes = []string{OutcomeOK, OutcomeEmpty, OutcomeInvalid, OutcomeError, OutcomeCancelled}

// ServiceConfig wires a Service. Only Engine is required.
type ServiceConfig struct {
	Engine     *Engine
	Resolver   *Resolver  // nil disables tolerance scopes and 3-way matching
	Aliases    AliasStore // nil disables alias learning on Confirm
	Window     *latency.Window
	Events     *eventlog.Pipeline
	Limiter    *ScanLimiter
	DebugToken string
	Namespace  string
	Now        func() time.Time
}

// Service is the entry point for matching requests and their telemetry.
type Service struct {
	engine     *Engine
	resolver   *Resolver
	aliases    AliasStore
	window     *latency.Window
	events     *eventlog.Pipeline
	limiter    *ScanLimiter
	debugToken string
	now        func() time.Time

	registry *prometheus.Registry
	outcomes map[string]*atomic.Int64
}

// NewService creates a Service and registers its metrics.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		engine:     cfg.Engine,
		resolver:   cfg.Resolver,
		aliases:    cfg.Aliases,
		window:     cfg.Window,
		events:     cfg.Events,
		limiter:    cfg.Limiter,
		debugToken: cfg.DebugToken,
		now:        cfg.Now,
		registry:   prometheus.NewRegistry(),
		outcomes:   make(map[string]*atomic.Int64, len(outcomes)),
	}
	if s.window == nil {
		s.window = latency.NewWindow(latency.Options{})
	}
	if s.events == nil {
		s.events = eventlog.New(eventlog.Config{SampleRate: 1}, nil)
	}
	if s.limiter == nil {
		s.limiter = NewScanLimiter(0, 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	for _, o := range outcomes {
		s.outcomes[o] = new(atomic.Int64)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "reconcile"
	}
	s.registry.MustRegister(
		latency.NewCollector(ns, s.window),
		eventlog.NewCollector(ns, s.events),
		newServiceCollector(ns, s),
	)
	return s
}

// Limiter returns the scan limiter, for draining at shutdown.
func (s *Service) Limiter() *ScanLimiter { return s.limiter }

// Window returns the latency window.
func (s *Service) Window() *latency.Window { return s.window }

// Suggest finds counterpart candidates for anchor. The request is timed,
// classified and audited whatever the outcome.
func (s *Service) Suggest(ctx context.Context, anchor Anchor, params SuggestParams) ([]MatchResult, error) {
	start := s.now()

	results, err := s.suggest(ctx, anchor, params)

	outcome := s.classify(ctx, len(results), err)
	fields := map[string]any{
		"anchor_kind":  string(anchor.Kind),
		"limit":        params.Limit,
		"days_window":  params.DaysWindow,
		"mode":         string(params.Mode),
		"result_count": len(results),
	}
	if anchor.Kind == KindBank {
		fields["movement_id"] = anchor.ID
	} else {
		fields["document_id"] = anchor.ID
	}
	if len(results) > 0 {
		fields["top_score"] = results[0].Score
		fields["top_doc_id"] = results[0].Candidate.DocID
	}
	s.finish(ctx, EventSuggestionRequested, start, outcome, err, fields)

	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) suggest(ctx context.Context, anchor Anchor, params SuggestParams) ([]MatchResult, error) {
	if err := ValidateAnchor(anchor); err != nil {
		return nil, err
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.resolver != nil {
		eff, err := s.resolver.Resolve(ctx, anchor.CounterpartyRUT, anchor.ProjectID, params.AmountTolPct)
		if err != nil {
			return nil, err
		}
		params.AmountTolPct = &eff.AmountTolPct
	}

	return s.engine.Suggest(ctx, anchor, params)
}

// POSuggestion is the result of a 3-way matching request.
type POSuggestion struct {
	Tolerance EffectiveTolerance `json:"tolerance"`
	Matches   []POMatch          `json:"matches"`
}

// SuggestPO matches a purchase invoice against open purchase order lines.
// amountTolPct, when set, overrides the resolved amount tolerance.
func (s *Service) SuggestPO(ctx context.Context, inv InvoiceAnchor, amountTolPct *float64, limit int) (POSuggestion, error) {
	start := s.now()

	res, err := s.suggestPO(ctx, inv, amountTolPct, limit)

	outcome := s.classify(ctx, len(res.Matches), err)
	fields := map[string]any{
		"invoice_id":   inv.ID,
		"vendor_rut":   inv.VendorRUT,
		"project_id":   inv.ProjectID,
		"limit":        limit,
		"result_count": len(res.Matches),
	}
	if amountTolPct != nil {
		fields["amount_tol_override"] = *amountTolPct
	}
	if len(res.Matches) > 0 {
		fields["top_score"] = res.Matches[0].Score
		fields["top_po_id"] = res.Matches[0].POID
	}
	s.finish(ctx, EventPOSuggestionRequested, start, outcome, err, fields)

	if err != nil {
		return POSuggestion{}, err
	}
	return res, nil
}

func (s *Service) suggestPO(ctx context.Context, inv InvoiceAnchor, amountTolPct *float64, limit int) (POSuggestion, error) {
	if err := ValidateInvoice(inv); err != nil {
		return POSuggestion{}, err
	}
	if s.resolver == nil {
		return POSuggestion{}, ErrMissingGlobalScope
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return POSuggestion{}, err
	}
	defer s.limiter.Release()

	tol, err := s.resolver.Resolve(ctx, inv.VendorRUT, inv.ProjectID, amountTolPct)
	if err != nil {
		return POSuggestion{}, err
	}

	matches, err := s.engine.SuggestPO(ctx, inv, tol, limit)
	if err != nil {
		return POSuggestion{}, err
	}
	return POSuggestion{Tolerance: tol, Matches: matches}, nil
}

// Confirmation records that a user accepted a suggested match.
type Confirmation struct {
	Anchor    Anchor    `json:"anchor"`
	Candidate Candidate `json:"candidate"`
	Score     int       `json:"score"`
}

// ConfirmResult reports the alias learned from a confirmation, if any.
type ConfirmResult struct {
	AliasLearned    bool    `json:"alias_learned"`
	AliasConfidence float64 `json:"alias_confidence,omitempty"`
}

// Confirm audits an accepted match and teaches the alias table the pairing
// of the bank description with the ledger counterparty.
func (s *Service) Confirm(ctx context.Context, c Confirmation) (ConfirmResult, error) {
	if err := validateConfirmation(c); err != nil {
		return ConfirmResult{}, err
	}

	var res ConfirmResult
	key := confirmedAlias(c)
	if s.aliases != nil && key.RUT != "" && key.Description != "" {
		conf, err := s.aliases.Learn(ctx, key)
		if err != nil {
			return ConfirmResult{}, fmt.Errorf("learn alias: %w", err)
		}
		res = ConfirmResult{AliasLearned: true, AliasConfidence: conf}
	}

	s.emit(ctx, EventMatchConfirmed, map[string]any{
		"anchor_kind":      string(c.Anchor.Kind),
		"anchor_id":        c.Anchor.ID,
		"target_kind":      string(c.Candidate.TargetKind),
		"doc_id":           c.Candidate.DocID,
		"score":            c.Score,
		"alias_learned":    res.AliasLearned,
		"alias_confidence": res.AliasConfidence,
	})
	return res, nil
}

func validateConfirmation(c Confirmation) error {
	var errs ValidationErrors
	if !c.Anchor.Kind.Valid() {
		errs = append(errs, ValidationError{Field: "anchor.kind", Value: string(c.Anchor.Kind), Message: "unknown document kind"})
	}
	if c.Anchor.ID == "" {
		errs = append(errs, ValidationError{Field: "anchor.id", Message: "required field is empty"})
	}
	if c.Candidate.DocID == "" {
		errs = append(errs, ValidationError{Field: "candidate.doc_id", Message: "required field is empty"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// confirmedAlias pairs the bank side's description with the ledger side's RUT.
func confirmedAlias(c Confirmation) AliasKey {
	if c.Anchor.Kind == KindBank {
		return NewAliasKey(c.Candidate.CounterpartyRUT, c.Anchor.Description)
	}
	return NewAliasKey(c.Anchor.CounterpartyRUT, c.Candidate.Description)
}

// classify maps a request result to its outcome label.
func (s *Service) classify(ctx context.Context, n int, err error) string {
	switch {
	case err == nil && n == 0:
		return OutcomeEmpty
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeError
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case IsValidationError(err):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// finish records the latency sample and emits the request's audit event.
// Cancelled requests record no sample; they count as abandoned. A request
// that ran out of time is an error and keeps its sample.
func (s *Service) finish(ctx context.Context, event string, start time.Time, outcome string, err error, fields map[string]any) {
	elapsed := s.now().Sub(start)

	if outcome == OutcomeCancelled {
		s.window.RecordAbandoned()
	} else {
		s.window.Record(elapsed)
	}
	s.outcomes[outcome].Add(1)

	fields["outcome"] = outcome
	fields["duration_ms"] = float64(elapsed.Microseconds()) / 1000
	if err != nil {
		fields["error_code"] = MapError(err).Code
		logging.WithFields(ctx, "event", event, "outcome", outcome).Warn("matching request failed", "error", err)
	}
	s.emit(ctx, event, fields)
}

// emit sends an audit event. Emission outlives request cancellation and
// never reports failure to the caller.
func (s *Service) emit(ctx context.Context, event string, fields map[string]any) {
	s.events.Emit(context.WithoutCancel(ctx), event, auditFields(ctx, fields))
}
