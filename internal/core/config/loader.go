package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	coreerrors "codeindex/internal/core/errors"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
)

const (
	weightEpsilon = 1e-9

	// The summary header, the parse-failures heading, its overflow line and
	// the omitted-sections note always fit within these.
	minSummaryLines = 20
	minSummaryBytes = 2048
)

// Load reads and validates a TOML config file. Every failure is a config
// error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfig, "read config")
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns defaults when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultConfig(), nil
	}
	cfg, err := Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfig, "decode config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, coreerrors.Newf(coreerrors.CodeConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}

	// An explicit cutoff of 0 flags every file; only an absent key defaults.
	cutoff := cfg.Staleness.Cutoff
	applyDefaults(&cfg)
	if meta.IsDefined("staleness", "cutoff") {
		cfg.Staleness.Cutoff = cutoff
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.Root) == "" {
		cfg.Paths.Root = "."
	}
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		cfg.Paths.OutputDir = DefaultOutputDir
	}

	if strings.TrimSpace(cfg.Ignore.File) == "" {
		cfg.Ignore.File = DefaultIgnoreFile
	}

	if cfg.Extract.Workers <= 0 {
		cfg.Extract.Workers = defaultWorkers()
	}
	if cfg.Extract.MaxFileBytes <= 0 {
		cfg.Extract.MaxFileBytes = 2 << 20
	}
	if cfg.Extract.CacheEntries <= 0 {
		cfg.Extract.CacheEntries = 4096
	}

	if cfg.Staleness.ThresholdDays <= 0 {
		cfg.Staleness.ThresholdDays = 180
	}
	if cfg.Staleness.AgeWeight == 0 && cfg.Staleness.RefWeight == 0 {
		cfg.Staleness.AgeWeight = 0.5
		cfg.Staleness.RefWeight = 0.5
	}
	if cfg.Staleness.Cutoff <= 0 {
		cfg.Staleness.Cutoff = 0.7
	}
	if strings.TrimSpace(cfg.Staleness.History) == "" {
		cfg.Staleness.History = "auto"
	}

	if cfg.Summary.MaxLines <= 0 {
		cfg.Summary.MaxLines = 500
	}
	if cfg.Summary.MaxBytes <= 0 {
		cfg.Summary.MaxBytes = 64 << 10
	}
	if cfg.Summary.TopN <= 0 {
		cfg.Summary.TopN = 10
	}

	if cfg.Snapshot.Keep <= 0 {
		cfg.Snapshot.Keep = 3
	}

	if strings.TrimSpace(cfg.RunLog.Path) == "" {
		cfg.RunLog.Path = "runs.db"
	}

	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "codeindex"
	}
}

// Validate checks cross-field constraints. It is exported so callers that
// mutate a loaded config (CLI flags, env overrides) can re-check it.
func Validate(cfg *Config) error {
	if cfg.Version != 1 {
		return coreerrors.Newf(coreerrors.CodeConfig, "unsupported config version %d", cfg.Version)
	}
	if err := validateStaleness(cfg.Staleness); err != nil {
		return err
	}
	switch cfg.Staleness.History {
	case "auto", "git", "fs":
	default:
		return coreerrors.Newf(coreerrors.CodeConfig, "staleness.history must be auto, git or fs, got %q", cfg.Staleness.History)
	}
	if cfg.Extract.ReadsPerSecond < 0 {
		return coreerrors.New(coreerrors.CodeConfig, "extract.reads_per_second must not be negative")
	}
	if cfg.Summary.MaxLines < minSummaryLines {
		return coreerrors.Newf(coreerrors.CodeConfig, "summary.max_lines must be at least %d, got %d", minSummaryLines, cfg.Summary.MaxLines)
	}
	if cfg.Summary.MaxBytes < minSummaryBytes {
		return coreerrors.Newf(coreerrors.CodeConfig, "summary.max_bytes must be at least %d, got %d", minSummaryBytes, cfg.Summary.MaxBytes)
	}
	if err := validatePatterns("resolver.roots", cfg.Resolver.Roots); err != nil {
		return err
	}
	return validatePatterns("summary.entry_points", cfg.Summary.EntryPoints)
}

func validatePatterns(field string, patterns []string) error {
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" || !doublestar.ValidatePattern(p) {
			err := coreerrors.Newf(coreerrors.CodeConfig, "%s: invalid pattern %q", field, p)
			return coreerrors.AddContext(err, coreerrors.CtxPattern, p)
		}
	}
	return nil
}

func validateStaleness(s Staleness) error {
	if s.AgeWeight < 0 || s.AgeWeight > 1 || s.RefWeight < 0 || s.RefWeight > 1 {
		return coreerrors.New(coreerrors.CodeConfig, "staleness weights must be within [0,1]")
	}
	if math.Abs(s.AgeWeight+s.RefWeight-1) > weightEpsilon {
		return coreerrors.New(coreerrors.CodeConfig, fmt.Sprintf("staleness.age_weight + staleness.ref_weight must equal 1, got %g", s.AgeWeight+s.RefWeight))
	}
	if s.Cutoff < 0 || s.Cutoff > 1 {
		return coreerrors.Newf(coreerrors.CodeConfig, "staleness.cutoff must be within [0,1], got %g", s.Cutoff)
	}
	return nil
}
