package graph

import (
	"sort"

	"codeindex/internal/engine/parser"
	"codeindex/internal/engine/resolver"
)

// Resolver maps one import edge to an indexed path or an external node id.
type Resolver interface {
	Resolve(edge parser.ImportEdge) resolver.Resolution
}

type Edge struct {
	From       string
	To         string
	Confidence parser.Confidence
	Counted    bool // feeds inbound reference counts
}

func (e Edge) External() bool {
	return resolver.IsExternal(e.To)
}

// Resolution is the outcome for one import edge of a file, in the same
// order as the record's imports.
type Resolution struct {
	Specifier string
	Target    string
	External  bool
}

// ModuleGraph is an immutable dependency graph over indexed files and
// synthetic external nodes.
type ModuleGraph struct {
	Nodes       []string
	Edges       []Edge
	Cycles      [][]string
	Resolutions map[string][]Resolution

	imports    map[string][]string // internal edges, from -> sorted targets
	importedBy map[string][]string // internal edges, to -> sorted importers
	strong     map[string][]string // high-confidence internal edges
	inbound    map[string]int
	nodeSet    map[string]bool
}

// Build resolves every ok record's imports and assembles the graph. The
// records are not modified.
func Build(records map[string]parser.FactRecord, r Resolver) *ModuleGraph {
	paths := make([]string, 0, len(records))
	for p := range records {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	resolutions := make(map[string][]Resolution)
	merged := make(map[[2]string]Edge)

	for _, from := range paths {
		record := records[from]
		if !record.OK() || len(record.Imports) == 0 {
			continue
		}
		fileResolutions := make([]Resolution, 0, len(record.Imports))
		for _, imp := range record.Imports {
			res := r.Resolve(imp)
			fileResolutions = append(fileResolutions, Resolution{
				Specifier: imp.Specifier,
				Target:    res.Target,
				External:  res.External,
			})
			for _, to := range append([]string{res.Target}, res.Also...) {
				if to == from {
					continue
				}
				edge := Edge{From: from, To: to, Confidence: record.Confidence}
				key := [2]string{edge.From, edge.To}
				if prev, ok := merged[key]; ok && prev.Confidence == parser.ConfidenceHigh {
					continue
				}
				merged[key] = edge
			}
		}
		resolutions[from] = fileResolutions
	}

	edges := make([]Edge, 0, len(merged))
	for _, edge := range merged {
		if !edge.External() {
			edge.Counted = edge.Confidence == parser.ConfidenceHigh || !contradicted(edge, records)
		}
		edges = append(edges, edge)
	}

	g := New(nil, edges)
	g.Resolutions = resolutions
	g.Cycles = g.DetectCycles()
	return g
}

// A low-confidence edge is contradicted when its target was parsed by a
// grammar in a different language family than the importer.
func contradicted(edge Edge, records map[string]parser.FactRecord) bool {
	target, ok := records[edge.To]
	if !ok || target.Confidence != parser.ConfidenceHigh || !target.OK() {
		return false
	}
	source := records[edge.From]
	return parser.LanguageFamily(source.File.Language) != parser.LanguageFamily(target.File.Language)
}

// New indexes a graph from its edges. Nodes are derived from edge endpoints
// and merged with extra, which lets a graph loaded from a snapshot keep its
// node list verbatim.
func New(extra []string, edges []Edge) *ModuleGraph {
	g := &ModuleGraph{
		Edges:       append([]Edge(nil), edges...),
		Resolutions: make(map[string][]Resolution),
		imports:     make(map[string][]string),
		importedBy:  make(map[string][]string),
		strong:      make(map[string][]string),
		inbound:     make(map[string]int),
		nodeSet:     make(map[string]bool),
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From == g.Edges[j].From {
			return g.Edges[i].To < g.Edges[j].To
		}
		return g.Edges[i].From < g.Edges[j].From
	})

	for _, n := range extra {
		g.nodeSet[n] = true
	}
	for _, e := range g.Edges {
		g.nodeSet[e.To] = true
		if e.External() {
			continue
		}
		g.nodeSet[e.From] = true
		g.imports[e.From] = append(g.imports[e.From], e.To)
		g.importedBy[e.To] = append(g.importedBy[e.To], e.From)
		if e.Confidence == parser.ConfidenceHigh {
			g.strong[e.From] = append(g.strong[e.From], e.To)
		}
		if e.Counted {
			g.inbound[e.To]++
		}
	}
	// An importer whose every edge is external still anchors its edges.
	for _, e := range g.Edges {
		if e.External() {
			g.nodeSet[e.From] = true
		}
	}
	for _, list := range g.importedBy {
		sort.Strings(list)
	}

	g.Nodes = make([]string, 0, len(g.nodeSet))
	for n := range g.nodeSet {
		g.Nodes = append(g.Nodes, n)
	}
	sort.Strings(g.Nodes)
	return g
}

func (g *ModuleGraph) HasNode(id string) bool {
	return g.nodeSet[id]
}

// Inbound returns the number of counted internal edges pointing at path.
func (g *ModuleGraph) Inbound(path string) int {
	return g.inbound[path]
}

// Outbound returns the number of internal files path imports.
func (g *ModuleGraph) Outbound(path string) int {
	return len(g.imports[path])
}

// Imports returns the internal targets of path, sorted.
func (g *ModuleGraph) Imports(path string) []string {
	return append([]string(nil), g.imports[path]...)
}

// ImportedBy returns the internal importers of path, sorted.
func (g *ModuleGraph) ImportedBy(path string) []string {
	return append([]string(nil), g.importedBy[path]...)
}

func (g *ModuleGraph) InternalNodes() []string {
	var out []string
	for _, n := range g.Nodes {
		if !resolver.IsExternal(n) {
			out = append(out, n)
		}
	}
	return out
}

func (g *ModuleGraph) ExternalNodes() []string {
	var out []string
	for _, n := range g.Nodes {
		if resolver.IsExternal(n) {
			out = append(out, n)
		}
	}
	return out
}
