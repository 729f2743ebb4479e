package observability

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every codeindex metric. It is separate from the default
// registry so textfile exports carry only index metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Metrics definitions
var (
	FilesParsed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "codeindex_files_parsed_total",
		Help: "Files extracted, by language and parse status.",
	}, []string{"language", "status"})

	ParsingDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeindex_parsing_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	GraphNodes = factory.NewGauge(prometheus.GaugeOpts{
		Name: "codeindex_graph_nodes",
		Help: "Number of nodes in the dependency graph.",
	})

	GraphEdges = factory.NewGauge(prometheus.GaugeOpts{
		Name: "codeindex_graph_edges",
		Help: "Number of edges in the dependency graph.",
	})

	GraphCycles = factory.NewGauge(prometheus.GaugeOpts{
		Name: "codeindex_graph_cycles",
		Help: "Number of import cycles in the dependency graph.",
	})

	StaleCandidates = factory.NewGauge(prometheus.GaugeOpts{
		Name: "codeindex_stale_candidates",
		Help: "Files at or above the staleness cutoff.",
	})

	RunDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeindex_run_seconds",
		Help:    "Wall time of an indexing run.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"mode"})

	PhaseDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeindex_phase_seconds",
		Help:    "Time spent in each phase of a run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	WatcherEventsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "codeindex_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)

// WriteTextfile exports the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, Registry)
}
