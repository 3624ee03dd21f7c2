package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/core"
	_ "github.com/JonMunkholm/reconcile/internal/core/sources" // Register candidate sources
	"github.com/JonMunkholm/reconcile/internal/database"
	"github.com/JonMunkholm/reconcile/internal/eventlog"
	"github.com/JonMunkholm/reconcile/internal/latency"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/JonMunkholm/reconcile/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := database.New(pool)

	window := newLatencyWindow(cfg.Latency)

	var sinks eventlog.MultiSink
	sinks = append(sinks, eventlog.NewWriterSink(os.Stdout))
	var kafkaSink *eventlog.KafkaSink
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafkaSink = eventlog.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		sinks = append(sinks, kafkaSink)
		slog.Info("audit events mirrored to kafka", "topic", cfg.Events.KafkaTopic, "brokers", len(cfg.Events.KafkaBrokers))
	}
	events := eventlog.New(eventlog.Config{
		SampleRate:    cfg.Events.SampleRate,
		EventRates:    cfg.Events.EventRates,
		RedactFields:  cfg.Events.RedactFields,
		Async:         cfg.Events.Async,
		QueueSize:     cfg.Events.QueueSize,
		SchemaVersion: cfg.Events.SchemaVersion,
	}, sinks)

	engine := core.NewEngine(store,
		core.WithPOLines(store),
		core.WithAliases(store),
		core.WithQueryTimeout(cfg.Matching.QueryTimeout),
		core.WithLimits(cfg.Matching.Limit, cfg.Matching.MaxLimit),
	)
	service := core.NewService(core.ServiceConfig{
		Engine:     engine,
		Resolver:   core.NewResolver(store),
		Aliases:    store,
		Window:     window,
		Events:     events,
		Limiter:    core.NewScanLimiter(cfg.Matching.MaxConcurrent, cfg.Matching.MaxWait),
		DebugToken: cfg.Latency.DebugToken,
	})

	slog.Info("sources registered", "count", core.SourceCount())
	for _, def := range core.All() {
		slog.Debug("source", "key", def.Key, "kind", def.Kind, "view", def.View)
	}

	server := web.NewServer(service, cfg)

	// Background jobs: event drain loop and latency flusher
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	drained := make(chan struct{})
	go func() {
		events.Run(jobCtx)
		close(drained)
	}()
	flushed := make(chan struct{})
	go func() {
		window.StartFlushScheduler(jobCtx, cfg.Latency.FlushInterval)
		close(flushed)
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for in-flight matching scans to finish
		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for scans to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("scans did not complete in time", "error", err)
			}
		}

		cancelJobs()
		waitOrTimeout(shutdownCtx, drained, "event drain")
		waitOrTimeout(shutdownCtx, flushed, "latency flush")
		window.Flush(true) // the scheduler is disabled when FlushInterval is zero

		if kafkaSink != nil {
			if err := kafkaSink.Close(); err != nil {
				slog.Warn("kafka sink close failed", "error", err)
			}
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// newLatencyWindow builds the window and restores the last snapshot.
func newLatencyWindow(cfg config.LatencyConfig) *latency.Window {
	persister := latency.NewPersister(cfg.PersistPath, cfg.CompressThreshold, cfg.CompressForce)
	window := latency.NewWindow(latency.Options{
		Capacity:          cfg.WindowSize,
		SLOP95:            cfg.SLOP95,
		FlushEvery:        cfg.FlushEvery,
		Buckets:           cfg.Buckets,
		ResetToken:        cfg.ResetToken,
		RequireResetToken: cfg.ResetRequireToken,
		Persister:         persister,
	})

	if snap, ok := persister.Load(); ok {
		window.Restore(snap)
		slog.Info("latency window restored",
			"path", persister.Path(),
			"samples", len(snap.Latencies),
			"slo_violation_total", snap.SLOViolationTotal,
		)
	}
	return window
}

func waitOrTimeout(ctx context.Context, done <-chan struct{}, what string) {
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("timed out waiting for background job", "job", what)
	}
}
