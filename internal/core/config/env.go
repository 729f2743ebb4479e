package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads <root>/.env into the process environment. Existing
// variables win; a missing file is not an error.
func LoadDotEnv(root string) error {
	path := filepath.Join(root, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	slog.Debug("loaded environment file", "path", path)
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: CODEINDEX_[SECTION]_[KEY] (e.g., CODEINDEX_STALENESS_CUTOFF).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.Root, "CODEINDEX_PATHS_ROOT")
	setEnvString(&cfg.Paths.OutputDir, "CODEINDEX_PATHS_OUTPUT_DIR")

	// Extract
	setEnvInt(&cfg.Extract.Workers, "CODEINDEX_EXTRACT_WORKERS")
	setEnvInt64(&cfg.Extract.MaxFileBytes, "CODEINDEX_EXTRACT_MAX_FILE_BYTES")
	setEnvFloat64(&cfg.Extract.ReadsPerSecond, "CODEINDEX_EXTRACT_READS_PER_SECOND")

	// Staleness
	setEnvInt(&cfg.Staleness.ThresholdDays, "CODEINDEX_STALENESS_THRESHOLD_DAYS")
	setEnvFloat64(&cfg.Staleness.AgeWeight, "CODEINDEX_STALENESS_AGE_WEIGHT")
	setEnvFloat64(&cfg.Staleness.RefWeight, "CODEINDEX_STALENESS_REF_WEIGHT")
	setEnvFloat64(&cfg.Staleness.Cutoff, "CODEINDEX_STALENESS_CUTOFF")
	setEnvString(&cfg.Staleness.History, "CODEINDEX_STALENESS_HISTORY")

	// Summary
	setEnvInt(&cfg.Summary.MaxLines, "CODEINDEX_SUMMARY_MAX_LINES")
	setEnvInt(&cfg.Summary.MaxBytes, "CODEINDEX_SUMMARY_MAX_BYTES")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "CODEINDEX_WATCH_DEBOUNCE")

	// Observability
	setEnvString(&cfg.Observability.MetricsTextfile, "CODEINDEX_OBSERVABILITY_METRICS_TEXTFILE")
	setEnvString(&cfg.Observability.OTLPEndpoint, "CODEINDEX_OBSERVABILITY_OTLP_ENDPOINT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvInt64(target *int64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
