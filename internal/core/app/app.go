package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"codeindex/internal/core/config"
	"codeindex/internal/core/ports"
	"codeindex/internal/data/history"
	"codeindex/internal/data/runlog"
	"codeindex/internal/data/snapshot"
	"codeindex/internal/engine/enumerate"
	"codeindex/internal/engine/parser"
	"codeindex/internal/shared/util"

	"github.com/google/uuid"
)

// Dependencies lets callers and tests replace collaborators. Zero fields are
// built from the configuration.
type Dependencies struct {
	CodeParser ports.CodeParser
	History    ports.HistoryProvider
	RunLog     ports.RunLog
	Clock      func() time.Time
	RunID      func() string
	// ChangesSince builds the change source behind IndexRequest.Since.
	ChangesSince func(root, ref string) ports.ChangeSource
}

// App owns one project root and everything needed to index it.
type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	codeParser ports.CodeParser
	history    ports.HistoryProvider
	runLog     ports.RunLog
	store      *snapshot.Store
	limiter    *util.Limiter
	clock      func() time.Time
	newRunID   func() string
	since      func(root, ref string) ports.ChangeSource

	// runs are serialized so watch batches and manual runs never interleave
	runMu sync.Mutex
}

func New(ctx context.Context, cfg *config.Config, paths config.ResolvedPaths) (*App, error) {
	return NewWithDependencies(ctx, cfg, paths, Dependencies{})
}

func NewWithDependencies(ctx context.Context, cfg *config.Config, paths config.ResolvedPaths, deps Dependencies) (*App, error) {
	a := &App{
		Config:     cfg,
		Paths:      paths,
		codeParser: deps.CodeParser,
		history:    deps.History,
		runLog:     deps.RunLog,
		clock:      deps.Clock,
		newRunID:   deps.RunID,
		since:      deps.ChangesSince,
		store:      snapshot.NewStore(paths.OutputDir, cfg.Snapshot.Keep),
		limiter:    util.NewLimiter(cfg.Extract.ReadsPerSecond, cfg.Extract.Workers),
	}

	if a.codeParser == nil {
		p, err := parser.NewParser(parser.Options{
			MaxFileBytes: cfg.Extract.MaxFileBytes,
			CacheEntries: cfg.Extract.CacheEntries,
		})
		if err != nil {
			return nil, err
		}
		a.codeParser = p
	}
	if a.history == nil {
		h, err := history.New(ctx, cfg.Staleness.History, paths.Root)
		if err != nil {
			return nil, err
		}
		a.history = h
	}
	if a.runLog == nil && cfg.RunLogEnabled() && paths.RunLogPath != "" {
		store, err := runlog.Open(paths.RunLogPath)
		switch {
		case err != nil && runlog.IsCorruptError(err):
			slog.Warn("run log is corrupt, remove it to start a new one", "path", paths.RunLogPath, "error", err)
		case err != nil:
			// The run log is optional; indexing proceeds without it.
			slog.Warn("run log unavailable", "path", paths.RunLogPath, "error", err)
		default:
			a.runLog = store
		}
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.newRunID == nil {
		a.newRunID = uuid.NewString
	}
	if a.since == nil {
		a.since = func(root, ref string) ports.ChangeSource {
			return history.NewGitChanges(root, ref)
		}
	}
	return a, nil
}

func (a *App) Close() error {
	if a.runLog == nil {
		return nil
	}
	return a.runLog.Close()
}

func (a *App) Store() *snapshot.Store {
	return a.store
}

func (a *App) HistoryName() string {
	return a.history.Name()
}

// ignorePatterns assembles the ignore rules in precedence order: built-in
// defaults, configured patterns, then the ignore file. The output directory
// is always excluded.
func (a *App) ignorePatterns() ([]string, error) {
	outRel, err := filepath.Rel(a.Paths.Root, a.Paths.OutputDir)
	if err != nil {
		outRel = ""
	}
	var patterns []string
	if a.Config.UseDefaultIgnores() {
		patterns = append(patterns, enumerate.DefaultPatterns(outRel)...)
	} else if p := enumerate.OutputPattern(outRel); p != "" {
		patterns = append(patterns, p)
	}
	patterns = append(patterns, a.Config.Ignore.Patterns...)

	fromFile, err := enumerate.ReadIgnoreFile(a.Paths.IgnoreFile)
	if err != nil {
		return nil, err
	}
	return append(patterns, fromFile...), nil
}

func (a *App) enumerator() (*enumerate.Enumerator, error) {
	patterns, err := a.ignorePatterns()
	if err != nil {
		return nil, err
	}
	return enumerate.New(a.Paths.Root, patterns)
}

// AnalysisService exposes the app through the driving port.
func (a *App) AnalysisService() ports.AnalysisService {
	return NewAnalysisService(a)
}

func (a *App) WatchService() ports.WatchService {
	return &watchService{app: a}
}
