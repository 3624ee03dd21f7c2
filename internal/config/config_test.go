package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 500, cfg.Latency.WindowSize)
	assert.Equal(t, 50, cfg.Latency.FlushEvery)
	assert.Equal(t, []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}, cfg.Latency.Buckets)
	assert.True(t, cfg.Latency.ResetRequireToken)
	assert.Equal(t, 1.0, cfg.Events.SampleRate)
	assert.Equal(t, 1, cfg.Events.SchemaVersion)
	assert.Empty(t, cfg.Events.RedactFields)
	assert.Equal(t, 5*time.Second, cfg.Matching.QueryTimeout)
}

func TestFromViper_ParsesLists(t *testing.T) {
	v := viper.New()
	v.Set("EVENTS_REDACT_FIELDS", "movement_id, limit ,")
	v.Set("EVENTS_SAMPLE_RATES", "suggestion_requested=0.25,match_confirmed=1")
	v.Set("EVENTS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	v.Set("LATENCY_BUCKETS", "0.1, 0.2")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"movement_id", "limit"}, cfg.Events.RedactFields)
	assert.Equal(t, map[string]float64{"suggestion_requested": 0.25, "match_confirmed": 1}, cfg.Events.EventRates)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, []float64{0.1, 0.2}, cfg.Latency.Buckets)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"sample rate above one", "EVENTS_SAMPLE_RATE", 1.5},
		{"zero window", "LATENCY_WINDOW", 0},
		{"zero flush cadence", "LATENCY_FLUSH_EVERY", 0},
		{"limit above max", "MATCH_LIMIT", 500},
		{"bad bucket", "LATENCY_BUCKETS", "0.1,abc"},
		{"bad rate pair", "EVENTS_SAMPLE_RATES", "suggestion_requested"},
		{"schema version zero", "EVENTS_SCHEMA_VERSION", 0},
		{"unknown log level", "LOG_LEVEL", "verbose"},
		{"unknown log format", "LOG_FORMAT", "xml"},
		{"amount tolerance not a number", "MATCH_AMOUNT_TOL", "one"},
		{"api key required without keys", "REQUIRE_API_KEY", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestString_MasksSecrets(t *testing.T) {
	v := viper.New()
	v.Set("DATABASE_URL", "postgres://user:hunter2@db/reconcile")
	v.Set("METRICS_RESET_TOKEN", "reset-secret")
	cfg, err := FromViper(v)
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "reset-secret")
	assert.Contains(t, s, "ResetToken: [MASKED]")
	assert.Contains(t, s, "DebugToken: [UNSET]")
}
