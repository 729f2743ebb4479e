package config

import (
	"runtime"
	"time"
)

const (
	DefaultConfigFile = "codeindex.toml"
	DefaultOutputDir  = ".codeindex"
	DefaultIgnoreFile = ".codeindexignore"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Ignore        Ignore        `toml:"ignore"`
	Extract       Extract       `toml:"extract"`
	Resolver      Resolver      `toml:"resolver"`
	Staleness     Staleness     `toml:"staleness"`
	Summary       Summary       `toml:"summary"`
	Snapshot      Snapshot      `toml:"snapshot"`
	RunLog        RunLog        `toml:"runlog"`
	Watch         Watch         `toml:"watch"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	Root      string `toml:"root"`
	OutputDir string `toml:"output_dir"`
}

type Ignore struct {
	Patterns    []string `toml:"patterns"`
	UseDefaults *bool    `toml:"use_defaults"`
	File        string   `toml:"file"`
}

type Extract struct {
	Workers        int     `toml:"workers"`
	MaxFileBytes   int64   `toml:"max_file_bytes"`
	ReadsPerSecond float64 `toml:"reads_per_second"`
	CacheEntries   int     `toml:"cache_entries"`
}

type Resolver struct {
	// Roots are doublestar patterns over the tree's directories ("." selects
	// the project root); empty means the project root plus every top-level
	// directory.
	Roots []string `toml:"roots"`
}

type Staleness struct {
	ThresholdDays int     `toml:"threshold_days"`
	AgeWeight     float64 `toml:"age_weight"`
	RefWeight     float64 `toml:"ref_weight"`
	Cutoff        float64 `toml:"cutoff"`
	History       string  `toml:"history"` // auto, git, fs
}

type Summary struct {
	MaxLines    int      `toml:"max_lines"`
	MaxBytes    int      `toml:"max_bytes"`
	TopN        int      `toml:"top_n"`
	EntryPoints []string `toml:"entry_points"`
}

type Snapshot struct {
	Keep int  `toml:"keep"`
	DOT  bool `toml:"dot"`
}

type RunLog struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

type Observability struct {
	MetricsTextfile string `toml:"metrics_textfile"`
	OTLPEndpoint    string `toml:"otlp_endpoint"`
	ServiceName     string `toml:"service_name"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func (c *Config) UseDefaultIgnores() bool {
	return c.Ignore.UseDefaults == nil || *c.Ignore.UseDefaults
}

func (c *Config) RunLogEnabled() bool {
	return c.RunLog.Enabled == nil || *c.RunLog.Enabled
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
