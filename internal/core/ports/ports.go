package ports

import (
	"context"
	"time"

	"codeindex/internal/data/runlog"
	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"
)

// CodeParser abstracts per-file extraction. Implementations never return an
// error: failures are recorded on the Fact Record.
type CodeParser interface {
	ParsePath(root, rel string) parser.FactRecord
	IsSupportedPath(path string) bool
}

// HistoryProvider supplies last-modified timestamps. ok=false means the age
// is unknown and the file is treated as maximally stale.
type HistoryProvider interface {
	Name() string
	LastModified(ctx context.Context, path string) (time.Time, bool)
}

// Preloader is an optional HistoryProvider extension that fetches the
// timestamps of many paths in one pass.
type Preloader interface {
	Preload(ctx context.Context, paths []string) error
}

// ChangeSource produces the changed-file set of an incremental run.
// Paths are slash separated and relative to the project root.
type ChangeSource interface {
	ChangedFiles(ctx context.Context) ([]string, error)
}

// RunLog abstracts the run history store.
type RunLog interface {
	Record(ctx context.Context, run runlog.Run) error
	Recent(ctx context.Context, limit int) ([]runlog.Run, error)
	Close() error
}

type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// IndexRequest defines one indexing run for driving adapters.
type IndexRequest struct {
	Mode Mode
	// Changed is the explicit changed-file set; nil lets the run derive it.
	Changed []string
	// Since selects a git ref to diff against when Changed is nil.
	Since string
}

// IndexResult summarizes a promoted snapshot.
type IndexResult struct {
	Version         int
	RunID           string
	Mode            Mode
	Fallback        string // why an incremental request ran in full
	SnapshotDir     string
	Files           int
	Reextracted     int
	Failed          []FileFailure
	Nodes           int
	Edges           int
	Cycles          [][]string
	StaleCandidates []StaleCandidate
	SummaryBytes    int64
	Duration        time.Duration
}

type FileFailure struct {
	Path   string
	Status parser.StatusKind
	Reason string
}

type StaleCandidate struct {
	Path  string
	Score float64
}

// AnalysisService is the driving port over indexing and graph queries.
type AnalysisService interface {
	Index(ctx context.Context, req IndexRequest) (IndexResult, error)
	TraceImportChain(ctx context.Context, from, to string) ([]string, error)
	AnalyzeImpact(ctx context.Context, path string) (graph.ImpactReport, error)
	RunHistory(ctx context.Context, limit int) ([]runlog.Run, error)
}

// WatchService exposes watch mode to driving adapters. Each debounced batch
// becomes one incremental run whose result is passed to handler.
type WatchService interface {
	Watch(ctx context.Context, handler func(IndexResult, error)) error
}
