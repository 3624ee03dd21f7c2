// Package config loads process configuration from the environment.
//
// Values are read through viper with AutomaticEnv, so every key below can be
// set as an environment variable (or in a .env file loaded by cmd/server).
// Load applies defaults, parses list-valued keys and validates the result.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the complete process configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Matching MatchingConfig
	Latency  LatencyConfig
	Events   EventsConfig
	Security SecurityConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string // CIDRs allowed to set X-Real-IP / X-Forwarded-For
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig controls the pgx connection pool.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// MatchingConfig holds defaults for suggestion requests.
type MatchingConfig struct {
	Limit         int
	MaxLimit      int
	DaysWindow    int
	AmountTol     string // decimal string, absolute currency units
	QueryTimeout  time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
}

// LatencyConfig controls the latency window and its snapshot file.
type LatencyConfig struct {
	WindowSize        int
	PersistPath       string
	FlushEvery        int
	FlushInterval     time.Duration
	CompressThreshold int
	CompressForce     bool
	SLOP95            float64
	Buckets           []float64
	ResetToken        string
	ResetRequireToken bool
	DebugToken        string
}

// EventsConfig controls the structured event pipeline.
type EventsConfig struct {
	SampleRate    float64
	EventRates    map[string]float64
	RedactFields  []string
	Async         bool
	QueueSize     int
	SchemaVersion int
	KafkaBrokers  []string
	KafkaTopic    string
}

// SecurityConfig controls API key authentication of /api routes.
type SecurityConfig struct {
	RequireAPIKey bool
	APIKeys       []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_REQUEST_TIMEOUT", "30s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("TRUSTED_PROXIES", "")

	v.SetDefault("REQUIRE_API_KEY", false)
	v.SetDefault("API_KEYS", "")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_LIFETIME", "1h")
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", "30m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("MATCH_LIMIT", 10)
	v.SetDefault("MATCH_MAX_LIMIT", 50)
	v.SetDefault("MATCH_DAYS_WINDOW", 3)
	v.SetDefault("MATCH_AMOUNT_TOL", "1")
	v.SetDefault("MATCH_QUERY_TIMEOUT", "5s")
	v.SetDefault("MATCH_MAX_CONCURRENT", 16)
	v.SetDefault("MATCH_MAX_WAIT", "2s")

	v.SetDefault("LATENCY_WINDOW", 500)
	v.SetDefault("LATENCY_PERSIST_PATH", "")
	v.SetDefault("LATENCY_FLUSH_EVERY", 50)
	v.SetDefault("LATENCY_FLUSH_INTERVAL", "1m")
	v.SetDefault("LATENCY_COMPRESS_THRESHOLD", 64*1024)
	v.SetDefault("LATENCY_COMPRESS_FORCE", false)
	v.SetDefault("LATENCY_SLO_P95", 0.5)
	v.SetDefault("LATENCY_BUCKETS", "0.05,0.1,0.25,0.5,1,2.5,5")
	v.SetDefault("METRICS_RESET_TOKEN", "")
	v.SetDefault("METRICS_RESET_REQUIRE_TOKEN", true)
	v.SetDefault("METRICS_DEBUG_TOKEN", "")

	v.SetDefault("EVENTS_SAMPLE_RATE", 1.0)
	v.SetDefault("EVENTS_SAMPLE_RATES", "")
	v.SetDefault("EVENTS_REDACT_FIELDS", "")
	v.SetDefault("EVENTS_ASYNC", false)
	v.SetDefault("EVENTS_QUEUE_SIZE", 1024)
	v.SetDefault("EVENTS_SCHEMA_VERSION", 1)
	v.SetDefault("EVENTS_KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "reconcile.audit")
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already-populated viper instance.
// Defaults are applied for any key not set.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	buckets, err := parseFloatList(v.GetString("LATENCY_BUCKETS"))
	if err != nil {
		return nil, fmt.Errorf("LATENCY_BUCKETS: %w", err)
	}
	rates, err := parseRates(v.GetString("EVENTS_SAMPLE_RATES"))
	if err != nil {
		return nil, fmt.Errorf("EVENTS_SAMPLE_RATES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			RequestTimeout:  v.GetDuration("SERVER_REQUEST_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			TrustedProxies:  parseList(v.GetString("TRUSTED_PROXIES")),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("DATABASE_URL"),
			MaxConns:        v.GetInt("DB_MAX_CONNS"),
			MinConns:        v.GetInt("DB_MIN_CONNS"),
			MaxConnLifetime: v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime: v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Matching: MatchingConfig{
			Limit:         v.GetInt("MATCH_LIMIT"),
			MaxLimit:      v.GetInt("MATCH_MAX_LIMIT"),
			DaysWindow:    v.GetInt("MATCH_DAYS_WINDOW"),
			AmountTol:     v.GetString("MATCH_AMOUNT_TOL"),
			QueryTimeout:  v.GetDuration("MATCH_QUERY_TIMEOUT"),
			MaxConcurrent: v.GetInt("MATCH_MAX_CONCURRENT"),
			MaxWait:       v.GetDuration("MATCH_MAX_WAIT"),
		},
		Latency: LatencyConfig{
			WindowSize:        v.GetInt("LATENCY_WINDOW"),
			PersistPath:       v.GetString("LATENCY_PERSIST_PATH"),
			FlushEvery:        v.GetInt("LATENCY_FLUSH_EVERY"),
			FlushInterval:     v.GetDuration("LATENCY_FLUSH_INTERVAL"),
			CompressThreshold: v.GetInt("LATENCY_COMPRESS_THRESHOLD"),
			CompressForce:     v.GetBool("LATENCY_COMPRESS_FORCE"),
			SLOP95:            v.GetFloat64("LATENCY_SLO_P95"),
			Buckets:           buckets,
			ResetToken:        v.GetString("METRICS_RESET_TOKEN"),
			ResetRequireToken: v.GetBool("METRICS_RESET_REQUIRE_TOKEN"),
			DebugToken:        v.GetString("METRICS_DEBUG_TOKEN"),
		},
		Events: EventsConfig{
			SampleRate:    v.GetFloat64("EVENTS_SAMPLE_RATE"),
			EventRates:    rates,
			RedactFields:  parseList(v.GetString("EVENTS_REDACT_FIELDS")),
			Async:         v.GetBool("EVENTS_ASYNC"),
			QueueSize:     v.GetInt("EVENTS_QUEUE_SIZE"),
			SchemaVersion: v.GetInt("EVENTS_SCHEMA_VERSION"),
			KafkaBrokers:  parseList(v.GetString("EVENTS_KAFKA_BROKERS")),
			KafkaTopic:    v.GetString("EVENTS_KAFKA_TOPIC"),
		},
		Security: SecurityConfig{
			RequireAPIKey: v.GetBool("REQUIRE_API_KEY"),
			APIKeys:       parseList(v.GetString("API_KEYS")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. It does not require DATABASE_URL so that
// tests and tooling can build a Config without a database.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		problems = append(problems, "DB_MIN_CONNS exceeds DB_MAX_CONNS")
	}
	if c.Matching.Limit <= 0 || c.Matching.Limit > c.Matching.MaxLimit {
		problems = append(problems, fmt.Sprintf("MATCH_LIMIT must be in 1..%d", c.Matching.MaxLimit))
	}
	if tol, err := decimal.NewFromString(c.Matching.AmountTol); err != nil || tol.IsNegative() {
		problems = append(problems, fmt.Sprintf("MATCH_AMOUNT_TOL must be a non-negative decimal: %q", c.Matching.AmountTol))
	}
	if c.Matching.DaysWindow < 0 {
		problems = append(problems, "MATCH_DAYS_WINDOW must not be negative")
	}
	if c.Latency.WindowSize <= 0 {
		problems = append(problems, "LATENCY_WINDOW must be positive")
	}
	if c.Latency.FlushEvery <= 0 {
		problems = append(problems, "LATENCY_FLUSH_EVERY must be positive")
	}
	if c.Latency.SLOP95 <= 0 {
		problems = append(problems, "LATENCY_SLO_P95 must be positive")
	}
	if c.Events.SampleRate < 0 || c.Events.SampleRate > 1 {
		problems = append(problems, "EVENTS_SAMPLE_RATE must be in [0,1]")
	}
	for name, rate := range c.Events.EventRates {
		if rate < 0 || rate > 1 {
			problems = append(problems, fmt.Sprintf("sample rate for %s must be in [0,1]", name))
		}
	}
	if c.Events.SchemaVersion < 1 {
		problems = append(problems, "EVENTS_SCHEMA_VERSION must be >= 1")
	}
	if c.Events.QueueSize <= 0 {
		problems = append(problems, "EVENTS_QUEUE_SIZE must be positive")
	}
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		problems = append(problems, "REQUIRE_API_KEY is true but API_KEYS is empty")
	}
	problems = append(problems, c.validateLogging()...)

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloatList(s string) ([]float64, error) {
	var out []float64
	for _, part := range parseList(s) {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		out = append(out, f)
	}
	return out, nil
}

// parseRates parses "event=rate,event=rate".
func parseRates(s string) (map[string]float64, error) {
	rates := make(map[string]float64)
	for _, part := range parseList(s) {
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=rate, got %q", part)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %q", name, val)
		}
		rates[strings.TrimSpace(name)] = f
	}
	return rates, nil
}
