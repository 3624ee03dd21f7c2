package config

import (
	"fmt"
	"strings"
)

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// validateLogging checks the slog level and format names.
func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}
	return errs
}

// String returns a safe string representation of the config for logging.
// The database URL and every token are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		mask(c.Database.URL), c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Matching: {Limit: %d, MaxLimit: %d, DaysWindow: %d, AmountTol: %s}, ",
		c.Matching.Limit, c.Matching.MaxLimit, c.Matching.DaysWindow, c.Matching.AmountTol))
	b.WriteString(fmt.Sprintf("Latency: {Window: %d, SLOP95: %g, Persist: %q, ResetToken: %s, DebugToken: %s}, ",
		c.Latency.WindowSize, c.Latency.SLOP95, c.Latency.PersistPath,
		mask(c.Latency.ResetToken), mask(c.Latency.DebugToken)))
	b.WriteString(fmt.Sprintf("Events: {SampleRate: %g, Async: %v, Redact: %d fields, Kafka: %v}, ",
		c.Events.SampleRate, c.Events.Async, len(c.Events.RedactFields), len(c.Events.KafkaBrokers) > 0))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
