package parser

import (
	"time"
)

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

type StatusKind string

const (
	StatusOK      StatusKind = "ok"
	StatusFailed  StatusKind = "failed"
	StatusSkipped StatusKind = "skipped"
)

// ParseStatus is ok, failed(reason) or skipped(reason).
type ParseStatus struct {
	Kind   StatusKind
	Reason string
}

func OK() ParseStatus                   { return ParseStatus{Kind: StatusOK} }
func Failed(reason string) ParseStatus  { return ParseStatus{Kind: StatusFailed, Reason: reason} }
func Skipped(reason string) ParseStatus { return ParseStatus{Kind: StatusSkipped, Reason: reason} }

func (s ParseStatus) String() string {
	if s.Reason == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "(" + s.Reason + ")"
}

type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
)

type ImportForm string

const (
	FormImport     ImportForm = "import"
	FormFrom       ImportForm = "from"
	FormRequire    ImportForm = "require"
	FormExportFrom ImportForm = "export-from"
	FormDynamic    ImportForm = "dynamic"
	FormHeuristic  ImportForm = "heuristic"
)

// SourceFile identifies one indexed file. Path is relative to the project
// root and slash separated.
type SourceFile struct {
	Path        string
	Language    string
	Hash        string // sha256, hex
	Size        int64
	ModTime     time.Time // filesystem mtime; not persisted
	LinesOfCode int
}

type Symbol struct {
	Name         string
	Kind         SymbolKind
	File         string
	StartLine    int
	EndLine      int
	HasDocstring bool
	Depth        int
	Decorators   []string
	Component    bool
}

// ImportEdge is an import as written. Resolution happens in the graph
// builder; the edge itself is never rewritten.
type ImportEdge struct {
	Specifier string
	File      string
	Line      int
	Relative  bool
	Level     int      // leading-dot count for python relative imports
	Names     []string // imported names for from-style imports
	Form      ImportForm
}

// FactRecord is everything extracted from one file in one pass.
type FactRecord struct {
	File               SourceFile
	Symbols            []Symbol
	Imports            []ImportEdge
	Exports            []string
	HasModuleDocstring bool
	Confidence         Confidence
	Status             ParseStatus
}

func (r FactRecord) OK() bool      { return r.Status.Kind == StatusOK }
func (r FactRecord) Failed() bool  { return r.Status.Kind == StatusFailed }
func (r FactRecord) Skipped() bool { return r.Status.Kind == StatusSkipped }
