package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/reconcile/internal/core"
	mock_core "github.com/JonMunkholm/reconcile/internal/core/mocks"
	"github.com/JonMunkholm/reconcile/internal/eventlog"
	"github.com/JonMunkholm/reconcile/internal/latency"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

func (s *lineSink) Write(_ context.Context, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.buf.Write(line)
	s.buf.WriteByte('\n')
	return nil
}

func (s *lineSink) events(t *testing.T, name string) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(s.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		if ev["event"] == name {
			out = append(out, ev)
		}
	}
	return out
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

type fixture struct {
	ctrl      *gomock.Controller
	provider  *mock_core.MockCandidateProvider
	poLines   *mock_core.MockPOLineProvider
	tolerance *mock_core.MockToleranceStore
	aliases   *mock_core.MockAliasStore
	sink      *lineSink
	window    *latency.Window
	svc       *core.Service
}

func newFixture(t *testing.T, evCfg eventlog.Config) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		ctrl:      ctrl,
		provider:  mock_core.NewMockCandidateProvider(ctrl),
		poLines:   mock_core.NewMockPOLineProvider(ctrl),
		tolerance: mock_core.NewMockToleranceStore(ctrl),
		aliases:   mock_core.NewMockAliasStore(ctrl),
		sink:      &lineSink{},
		window: latency.NewWindow(latency.Options{
			Capacity:   10,
			SLOP95:     0.05,
			ResetToken: "s3cret",
		}),
	}
	engine := core.NewEngine(f.provider, core.WithPOLines(f.poLines), core.WithAliases(f.aliases))
	f.svc = core.NewService(core.ServiceConfig{
		Engine:     engine,
		Resolver:   core.NewResolver(f.tolerance),
		Aliases:    f.aliases,
		Window:     f.window,
		Events:     eventlog.New(evCfg, f.sink),
		DebugToken: "dbg",
		Now:        steppingClock(100 * time.Millisecond),
	})
	return f
}

func (f *fixture) expectGlobal(pct float64) {
	g := globalTolerance()
	g.AmountTolPct = pct
	f.tolerance.EXPECT().LoadTolerance(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(core.ToleranceLayers{Global: g}, nil).AnyTimes()
}

func TestService_SuggestRecordsAndAudits(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.expectGlobal(0.01)
	stubSources(f.provider, map[string][]core.Candidate{
		"purchase_invoices": {{DocID: "p-1", Amount: dec("1000"), Date: day}},
	}, nil)

	results, err := f.svc.Suggest(context.Background(), bankAnchor("1000"), rulesParams())
	require.NoError(t, err)
	require.Len(t, results, 1)

	st := f.window.State()
	assert.Equal(t, 1, st.Count)
	assert.InDelta(t, 0.1, st.Summary.P50, 1e-9)
	assert.Equal(t, int64(1), st.SLOViolationTotal)

	evs := f.sink.events(t, core.EventSuggestionRequested)
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.Equal(t, core.OutcomeOK, ev["outcome"])
	assert.Equal(t, "mov-1", ev["movement_id"])
	assert.Equal(t, float64(10), ev["limit"])
	assert.Equal(t, float64(90), ev["top_score"])
	assert.InDelta(t, 100, ev["duration_ms"], 1e-9)
	assert.NotEmpty(t, ev["request_id"])
	assert.NotEmpty(t, ev["timestamp"])
	assert.Equal(t, float64(1), ev["schema_version"])
}

func TestService_ResolvedToleranceFeedsScoring(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.expectGlobal(0.05)
	stubSources(f.provider, map[string][]core.Candidate{
		"expenses": {{DocID: "e-1", Amount: dec("1040"), Date: day.AddDate(0, 2, 0)}},
	}, nil)

	results, err := f.svc.Suggest(context.Background(), bankAnchor("1000"), rulesParams())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.WeightAmountClose, results[0].Score)
}

func TestService_RedactsSuggestionEvent(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1, RedactFields: []string{"movement_id", "limit"}})
	f.expectGlobal(0.01)
	stubSources(f.provider, nil, nil)

	results, err := f.svc.Suggest(context.Background(), bankAnchor("1000"), rulesParams())
	require.NoError(t, err)
	assert.Empty(t, results)

	evs := f.sink.events(t, core.EventSuggestionRequested)
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.NotContains(t, ev, "movement_id")
	assert.NotContains(t, ev, "limit")
	assert.GreaterOrEqual(t, ev["redaction_count"], float64(2))
	assert.Equal(t, core.OutcomeEmpty, ev["outcome"])
	for _, field := range []string{"event", "request_id", "timestamp", "schema_version"} {
		assert.Contains(t, ev, field)
	}
}

func TestService_LoggingFailureNeverFailsRequest(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.sink.err = errors.New("disk full")
	f.expectGlobal(0.01)
	stubSources(f.provider, map[string][]core.Candidate{
		"sales_invoices": {{DocID: "s-1", Amount: dec("1000"), Date: day}},
	}, nil)

	results, err := f.svc.Suggest(context.Background(), bankAnchor("1000"), rulesParams())
	require.NoError(t, err)
	assert.Len(t, results, 1)

	report, err := f.svc.MetricsJSON("dbg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Events.SinkErrors)
	assert.Equal(t, int64(1), report.Outcomes[core.OutcomeOK])
}

func TestService_InvalidAnchorSkipsProviders(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})

	_, err := f.svc.Suggest(context.Background(), core.Anchor{Kind: core.KindBank, Date: day}, rulesParams())
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	evs := f.sink.events(t, core.EventSuggestionRequested)
	require.Len(t, evs, 1)
	assert.Equal(t, core.OutcomeInvalid, evs[0]["outcome"])
	assert.Equal(t, "VAL001", evs[0]["error_code"])
	assert.Equal(t, 1, f.window.State().Count)
}

func TestService_CancelledRequestRecordsNoSample(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.expectGlobal(0.01)
	f.provider.EXPECT().Candidates(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ core.SourceDefinition, _ core.CandidateQuery) ([]core.Candidate, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := f.svc.Suggest(ctx, bankAnchor("1000"), rulesParams())
	require.ErrorIs(t, err, context.Canceled)

	st := f.window.State()
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, int64(1), st.AbandonedTotal)

	evs := f.sink.events(t, core.EventSuggestionRequested)
	require.Len(t, evs, 1)
	assert.Equal(t, core.OutcomeCancelled, evs[0]["outcome"])
}

func TestService_TimedOutRequestRecordsSample(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.expectGlobal(0.01)
	f.provider.EXPECT().Candidates(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ core.SourceDefinition, _ core.CandidateQuery) ([]core.Candidate, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.Suggest(ctx, bankAnchor("1000"), rulesParams())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	st := f.window.State()
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, int64(0), st.AbandonedTotal)
	assert.Equal(t, int64(1), st.SLOViolationTotal)

	evs := f.sink.events(t, core.EventSuggestionRequested)
	require.Len(t, evs, 1)
	assert.Equal(t, core.OutcomeError, evs[0]["outcome"])
	assert.Equal(t, "SRC003", evs[0]["error_code"])
}

func TestService_MissingGlobalScopeRejects(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.tolerance.EXPECT().LoadTolerance(gomock.Any(), gomock.Any(), gomock.Any()).Return(core.ToleranceLayers{}, nil)

	_, err := f.svc.Suggest(context.Background(), bankAnchor("1000"), rulesParams())
	require.ErrorIs(t, err, core.ErrMissingGlobalScope)

	evs := f.sink.events(t, core.EventSuggestionRequested)
	require.Len(t, evs, 1)
	assert.Equal(t, core.OutcomeError, evs[0]["outcome"])
	assert.Equal(t, "CFG001", evs[0]["error_code"])
}

func TestService_SuggestPOOverride(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.expectGlobal(0.01)
	f.poLines.EXPECT().OpenPOLines(gomock.Any(), core.POQuery{VendorRUT: "76543210K", MaxRows: core.DefaultMaxRows}).
		Return(splitPO(), nil).Times(2)

	res, err := f.svc.SuggestPO(context.Background(), invoice("10300"), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, 0.01, res.Tolerance.AmountTolPct)

	over := 0.05
	res, err = f.svc.SuggestPO(context.Background(), invoice("10300"), &over, 5)
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	assert.True(t, res.Matches[0].CoveredAmount.GreaterThanOrEqual(dec("10000")))
	assert.Equal(t, core.ScopeOverride, res.Tolerance.Sources["amount_tol_pct"])

	evs := f.sink.events(t, core.EventPOSuggestionRequested)
	require.Len(t, evs, 2)
	assert.Equal(t, core.OutcomeEmpty, evs[0]["outcome"])
	assert.Equal(t, core.OutcomeOK, evs[1]["outcome"])
	assert.Equal(t, 0.05, evs[1]["amount_tol_override"])
}

func TestService_ConfirmLearnsAlias(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.aliases.EXPECT().Learn(gomock.Any(), core.AliasKey{RUT: "76543210K", Description: "TRANSF ACME"}).Return(0.7, nil)

	anchor := bankAnchor("1000")
	anchor.Description = "Transf 123 Acme"
	res, err := f.svc.Confirm(context.Background(), core.Confirmation{
		Anchor:    anchor,
		Candidate: core.Candidate{TargetKind: core.KindPurchase, DocID: "p-1", CounterpartyRUT: "76.543.210-K"},
		Score:     90,
	})
	require.NoError(t, err)
	assert.True(t, res.AliasLearned)
	assert.Equal(t, 0.7, res.AliasConfidence)

	evs := f.sink.events(t, core.EventMatchConfirmed)
	require.Len(t, evs, 1)
	assert.Equal(t, "p-1", evs[0]["doc_id"])
	assert.Equal(t, true, evs[0]["alias_learned"])
}

func TestService_ConfirmValidation(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	_, err := f.svc.Confirm(context.Background(), core.Confirmation{Anchor: bankAnchor("1")})
	assert.True(t, core.IsValidationError(err))
}

func TestService_MetricsText(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.window.RecordSeconds(0.01)
	f.window.RecordSeconds(0.2)

	text, err := f.svc.MetricsText()
	require.NoError(t, err)
	for _, want := range []string{
		"reconcile_request_latency_seconds_bucket",
		`reconcile_request_latency_quantile_seconds{percentile="p95"}`,
		"reconcile_slo_violations_total 1",
		"reconcile_latency_window_capacity 10",
		`reconcile_suggestion_requests_total{outcome="ok"} 0`,
		"reconcile_events_emitted_total",
	} {
		assert.Contains(t, text, want)
	}
}

func TestService_MetricsJSONDebugToken(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.window.RecordSeconds(0.2)
	f.window.RecordSeconds(0.4)

	report, err := f.svc.MetricsJSON("")
	require.NoError(t, err)
	assert.Equal(t, 10, report.Latency.Capacity)
	assert.Equal(t, 2, report.Latency.Count)
	assert.False(t, report.Persistence.Enabled)
	assert.Contains(t, report.Sources, "bank_movements")
	assert.Nil(t, report.Samples)

	report, err = f.svc.MetricsJSON("dbg")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.4}, report.Samples)

	_, err = f.svc.MetricsJSON("wrong")
	assert.ErrorIs(t, err, core.ErrDebugTokenMismatch)
}

func TestService_ResetMetrics(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.window.RecordSeconds(0.3)

	_, err := f.svc.ResetMetrics(context.Background(), "nope")
	assert.ErrorIs(t, err, latency.ErrResetTokenMismatch)
	assert.Equal(t, 1, f.window.State().Count)

	report, err := f.svc.ResetMetrics(context.Background(), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Before.Count)
	assert.Equal(t, int64(1), report.Before.SLOViolationTotal)
	assert.Equal(t, 0, report.After.Count)
	assert.Equal(t, int64(0), report.After.SLOViolationTotal)
	assert.Equal(t, 10, report.After.Capacity)

	evs := f.sink.events(t, core.EventMetricsReset)
	require.Len(t, evs, 2)
	assert.Equal(t, "AUTH001", evs[0]["error_code"])
	assert.Equal(t, core.OutcomeOK, evs[1]["outcome"])
}

func TestService_LogsRuntimeOverride(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	f.expectGlobal(0.01)
	stubSources(f.provider, nil, nil)

	zero := 0.0
	applied, err := f.svc.LogsRuntimeOverride(context.Background(), eventlog.Overrides{SampleRate: &zero})
	require.NoError(t, err)
	require.NotNil(t, applied.SampleRate)
	assert.Equal(t, 0.0, f.svc.LogsConfig().SampleRate)

	_, err = f.svc.Suggest(context.Background(), bankAnchor("1000"), rulesParams())
	require.NoError(t, err)
	assert.Empty(t, f.sink.events(t, core.EventSuggestionRequested))

	bad := 2.0
	_, err = f.svc.LogsRuntimeOverride(context.Background(), eventlog.Overrides{SampleRate: &bad})
	assert.ErrorIs(t, err, eventlog.ErrInvalidOverride)
}

func TestService_NegativeAmountTolIsInvalid(t *testing.T) {
	f := newFixture(t, eventlog.Config{SampleRate: 1})
	params := rulesParams()
	params.AmountTol = decimal.NewFromInt(-1)

	_, err := f.svc.Suggest(context.Background(), bankAnchor("1"), params)
	assert.True(t, core.IsValidationError(err))
}
