package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"
	"codeindex/internal/engine/staleness"
)

// Artifact structs list their fields in key order so the encoded objects
// come out with sorted keys.

type fileEntry struct {
	Confidence         parser.Confidence `json:"confidence"`
	Exports            []string          `json:"exports"`
	HasModuleDocstring bool              `json:"has_module_docstring"`
	Hash               string            `json:"hash"`
	Imports            []importEntry     `json:"imports"`
	Language           string            `json:"language"`
	LinesOfCode        int               `json:"lines_of_code"`
	ParseStatus        parser.StatusKind `json:"parse_status"`
	Reason             string            `json:"reason,omitempty"`
	Size               int64             `json:"size"`
	Symbols            []symbolEntry     `json:"symbols"`
}

type symbolEntry struct {
	Component    bool              `json:"component,omitempty"`
	Decorators   []string          `json:"decorators,omitempty"`
	Depth        int               `json:"depth"`
	EndLine      int               `json:"end_line"`
	HasDocstring bool              `json:"has_docstring"`
	Kind         parser.SymbolKind `json:"kind"`
	Name         string            `json:"name"`
	StartLine    int               `json:"start_line"`
}

type importEntry struct {
	External       bool              `json:"external"`
	Form           parser.ImportForm `json:"form"`
	Level          int               `json:"level,omitempty"`
	Line           int               `json:"line"`
	Names          []string          `json:"names,omitempty"`
	Relative       bool              `json:"relative,omitempty"`
	ResolvedTarget *string           `json:"resolved_target"`
	Specifier      string            `json:"specifier"`
}

type graphArtifact struct {
	Cycles [][]string  `json:"cycles"`
	Edges  []edgeEntry `json:"edges"`
	Nodes  []string    `json:"nodes"`
}

type edgeEntry struct {
	Confidence parser.Confidence `json:"confidence"`
	Counted    bool              `json:"counted"`
	From       string            `json:"from"`
	To         string            `json:"to"`
}

type stalenessArtifact struct {
	Cutoff          float64               `json:"cutoff"`
	Files           map[string]staleEntry `json:"files"`
	StaleCandidates []candidateEntry      `json:"stale_candidates"`
	ThresholdDays   int                   `json:"threshold_days"`
}

type staleEntry struct {
	AgeComponent       float64 `json:"age_component"`
	DaysSinceModified  *int    `json:"days_since_modified"`
	InboundReferences  int     `json:"inbound_references"`
	LastModified       *string `json:"last_modified"`
	ReferenceComponent float64 `json:"reference_component"`
	Score              float64 `json:"score"`
}

type candidateEntry struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// EncodeStructural renders the per-file facts. Import targets come from the
// graph's resolution table; files without one (failed, skipped) carry null
// targets.
func EncodeStructural(records map[string]parser.FactRecord, g *graph.ModuleGraph) ([]byte, error) {
	out := make(map[string]fileEntry, len(records))
	for path, rec := range records {
		entry := fileEntry{
			Confidence:         rec.Confidence,
			Exports:            nonNil(rec.Exports),
			HasModuleDocstring: rec.HasModuleDocstring,
			Hash:               rec.File.Hash,
			Imports:            make([]importEntry, 0, len(rec.Imports)),
			Language:           rec.File.Language,
			LinesOfCode:        rec.File.LinesOfCode,
			ParseStatus:        rec.Status.Kind,
			Reason:             rec.Status.Reason,
			Size:               rec.File.Size,
			Symbols:            make([]symbolEntry, 0, len(rec.Symbols)),
		}
		for _, sym := range rec.Symbols {
			entry.Symbols = append(entry.Symbols, symbolEntry{
				Component:    sym.Component,
				Decorators:   sym.Decorators,
				Depth:        sym.Depth,
				EndLine:      sym.EndLine,
				HasDocstring: sym.HasDocstring,
				Kind:         sym.Kind,
				Name:         sym.Name,
				StartLine:    sym.StartLine,
			})
		}

		var resolutions []graph.Resolution
		if g != nil {
			resolutions = g.Resolutions[path]
		}
		for i, imp := range rec.Imports {
			ie := importEntry{
				Form:      imp.Form,
				Level:     imp.Level,
				Line:      imp.Line,
				Names:     imp.Names,
				Relative:  imp.Relative,
				Specifier: imp.Specifier,
			}
			if i < len(resolutions) {
				res := resolutions[i]
				ie.External = res.External
				if !res.External {
					target := res.Target
					ie.ResolvedTarget = &target
				}
			}
			entry.Imports = append(entry.Imports, ie)
		}
		out[path] = entry
	}
	return encode(out)
}

// DecodeStructural restores Fact Records from a structural artifact.
// Modification times are not persisted and stay zero.
func DecodeStructural(data []byte) (map[string]parser.FactRecord, error) {
	var raw map[string]fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode structural artifact: %w", err)
	}
	records := make(map[string]parser.FactRecord, len(raw))
	for path, entry := range raw {
		rec := parser.FactRecord{
			File: parser.SourceFile{
				Path:        path,
				Language:    entry.Language,
				Hash:        entry.Hash,
				Size:        entry.Size,
				LinesOfCode: entry.LinesOfCode,
			},
			Exports:            entry.Exports,
			HasModuleDocstring: entry.HasModuleDocstring,
			Confidence:         entry.Confidence,
			Status:             parser.ParseStatus{Kind: entry.ParseStatus, Reason: entry.Reason},
		}
		for _, sym := range entry.Symbols {
			rec.Symbols = append(rec.Symbols, parser.Symbol{
				Name:         sym.Name,
				Kind:         sym.Kind,
				File:         path,
				StartLine:    sym.StartLine,
				EndLine:      sym.EndLine,
				HasDocstring: sym.HasDocstring,
				Depth:        sym.Depth,
				Decorators:   sym.Decorators,
				Component:    sym.Component,
			})
		}
		for _, imp := range entry.Imports {
			rec.Imports = append(rec.Imports, parser.ImportEdge{
				Specifier: imp.Specifier,
				File:      path,
				Line:      imp.Line,
				Relative:  imp.Relative,
				Level:     imp.Level,
				Names:     imp.Names,
				Form:      imp.Form,
			})
		}
		records[path] = rec
	}
	return records, nil
}

func EncodeGraph(g *graph.ModuleGraph) ([]byte, error) {
	out := graphArtifact{
		Cycles: make([][]string, 0, len(g.Cycles)),
		Edges:  make([]edgeEntry, 0, len(g.Edges)),
		Nodes:  nonNil(g.Nodes),
	}
	out.Cycles = append(out.Cycles, g.Cycles...)
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, edgeEntry{Confidence: e.Confidence, Counted: e.Counted, From: e.From, To: e.To})
	}
	return encode(out)
}

// DecodeGraph rebuilds a queryable graph from a graph artifact. The
// resolution table is not part of the artifact and stays empty.
func DecodeGraph(data []byte) (*graph.ModuleGraph, error) {
	var raw graphArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode graph artifact: %w", err)
	}
	edges := make([]graph.Edge, 0, len(raw.Edges))
	for _, e := range raw.Edges {
		edges = append(edges, graph.Edge{From: e.From, To: e.To, Confidence: e.Confidence, Counted: e.Counted})
	}
	g := graph.New(raw.Nodes, edges)
	g.Cycles = raw.Cycles
	return g, nil
}

func EncodeStaleness(report staleness.Report) ([]byte, error) {
	out := stalenessArtifact{
		Cutoff:          report.Cutoff,
		Files:           make(map[string]staleEntry, len(report.Files)),
		StaleCandidates: make([]candidateEntry, 0, len(report.Candidates)),
		ThresholdDays:   report.ThresholdDays,
	}
	for path, rec := range report.Files {
		entry := staleEntry{
			AgeComponent:       rec.AgeComponent,
			DaysSinceModified:  rec.DaysSinceModified,
			InboundReferences:  rec.InboundReferences,
			ReferenceComponent: rec.ReferenceComponent,
			Score:              rec.Score,
		}
		if rec.LastModified != nil {
			ts := rec.LastModified.UTC().Format(time.RFC3339)
			entry.LastModified = &ts
		}
		out.Files[path] = entry
	}
	for _, c := range report.Candidates {
		out.StaleCandidates = append(out.StaleCandidates, candidateEntry{Path: c.Path, Score: c.Score})
	}
	return encode(out)
}

func EncodeManifest(m Manifest) ([]byte, error) {
	m.Artifacts = append([]string(nil), m.Artifacts...)
	sort.Strings(m.Artifacts)
	m.GeneratedAt = m.GeneratedAt.UTC()
	return encode(m)
}
