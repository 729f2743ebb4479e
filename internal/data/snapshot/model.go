package snapshot

import (
	"time"

	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"
	"codeindex/internal/engine/staleness"
)

// SchemaVersion is bumped whenever an artifact layout changes. Snapshots
// with another version are not reused by incremental runs.
const SchemaVersion = 1

const (
	FileStructural = "codebase-index.json"
	FileGraph      = "dependency-graph.json"
	FileStaleness  = "stale-files.json"
	FileSummary    = "CODEBASE.md"
	FileManifest   = "snapshot.json"
	FileDOT        = "dependency-graph.dot"
	CurrentPointer = "CURRENT"
)

// Snapshot is one complete indexing result. Version is assigned by the
// store when the snapshot is written.
type Snapshot struct {
	Version     int
	RunID       string
	GeneratedAt time.Time
	Mode        string
	Records     map[string]parser.FactRecord
	Graph       *graph.ModuleGraph
	Staleness   staleness.Report
}

// Counts summarises a snapshot for the manifest and the run log.
type Counts struct {
	Cycles          int `json:"cycles"`
	Edges           int `json:"edges"`
	Failed          int `json:"failed"`
	Files           int `json:"files"`
	Nodes           int `json:"nodes"`
	Skipped         int `json:"skipped"`
	StaleCandidates int `json:"stale_candidates"`
}

func (s Snapshot) Counts() Counts {
	c := Counts{Files: len(s.Records), StaleCandidates: len(s.Staleness.Candidates)}
	for _, rec := range s.Records {
		switch rec.Status.Kind {
		case parser.StatusFailed:
			c.Failed++
		case parser.StatusSkipped:
			c.Skipped++
		}
	}
	if s.Graph != nil {
		c.Nodes = len(s.Graph.Nodes)
		c.Edges = len(s.Graph.Edges)
		c.Cycles = len(s.Graph.Cycles)
	}
	return c
}

// Manifest is the only artifact carrying the run clock.
type Manifest struct {
	Artifacts     []string  `json:"artifacts"`
	Counts        Counts    `json:"counts"`
	GeneratedAt   time.Time `json:"generated_at"`
	Mode          string    `json:"mode"`
	RunID         string    `json:"run_id"`
	SchemaVersion int       `json:"schema_version"`
	Version       int       `json:"version"`
}
