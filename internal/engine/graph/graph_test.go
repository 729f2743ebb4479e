package graph

import (
	"testing"

	"codeindex/internal/engine/parser"
	"codeindex/internal/engine/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(path string, conf parser.Confidence, specifiers ...string) parser.FactRecord {
	rec := parser.FactRecord{
		File:       parser.SourceFile{Path: path, Language: parser.LanguageForPath(path)},
		Confidence: conf,
		Status:     parser.OK(),
	}
	for i, spec := range specifiers {
		rec.Imports = append(rec.Imports, parser.ImportEdge{Specifier: spec, File: path, Line: i + 1})
	}
	return rec
}

func buildGraph(t *testing.T, records ...parser.FactRecord) *ModuleGraph {
	t.Helper()
	byPath := make(map[string]parser.FactRecord, len(records))
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		byPath[rec.File.Path] = rec
		paths = append(paths, rec.File.Path)
	}
	r, err := resolver.New(paths, nil)
	require.NoError(t, err)
	return Build(byPath, r)
}

func TestBuildResolvesEdges(t *testing.T) {
	g := buildGraph(t,
		record("app.py", parser.ConfidenceHigh, "lib", "requests", "lib"),
		record("lib.py", parser.ConfidenceHigh),
		record("orphan.py", parser.ConfidenceHigh),
	)

	assert.Equal(t, []string{"app.py", "external:requests", "lib.py"}, g.Nodes)
	assert.Equal(t, []Edge{
		{From: "app.py", To: "external:requests", Confidence: parser.ConfidenceHigh},
		{From: "app.py", To: "lib.py", Confidence: parser.ConfidenceHigh, Counted: true},
	}, g.Edges)
	assert.Equal(t, 1, g.Inbound("lib.py"))
	assert.Equal(t, 0, g.Inbound("app.py"))
	assert.Equal(t, 0, g.Inbound("external:requests"))

	require.Len(t, g.Resolutions["app.py"], 3)
	assert.Equal(t, Resolution{Specifier: "requests", Target: "external:requests", External: true}, g.Resolutions["app.py"][1])
	assert.Equal(t, []string{"external:requests"}, g.ExternalNodes())
	assert.Equal(t, []string{"app.py", "lib.py"}, g.InternalNodes())
}

func TestBuildFromImportOfSeveralSubmodules(t *testing.T) {
	app := record("app.py", parser.ConfidenceHigh)
	app.Imports = []parser.ImportEdge{{File: "app.py", Specifier: "pkg", Names: []string{"a", "b"}, Form: parser.FormFrom}}
	g := buildGraph(t,
		app,
		record("pkg/__init__.py", parser.ConfidenceHigh),
		record("pkg/a.py", parser.ConfidenceHigh),
		record("pkg/b.py", parser.ConfidenceHigh),
	)

	assert.Equal(t, []string{"pkg/a.py", "pkg/b.py"}, g.Imports("app.py"))
	assert.Equal(t, 1, g.Inbound("pkg/a.py"))
	assert.Equal(t, 1, g.Inbound("pkg/b.py"))
	require.Len(t, g.Resolutions["app.py"], 1)
	assert.Equal(t, "pkg/a.py", g.Resolutions["app.py"][0].Target)
}

func TestBuildEdgeEndpointsAreNodes(t *testing.T) {
	g := buildGraph(t,
		record("a.py", parser.ConfidenceHigh, "b", "os"),
		record("b.py", parser.ConfidenceHigh, "c"),
		record("c.py", parser.ConfidenceHigh),
		record("only_external.py", parser.ConfidenceHigh, "numpy"),
	)
	for _, e := range g.Edges {
		assert.True(t, g.HasNode(e.From), "missing from node %s", e.From)
		assert.True(t, g.HasNode(e.To), "missing to node %s", e.To)
	}
}

func TestBuildSkipsFailedRecords(t *testing.T) {
	broken := record("broken.py", parser.ConfidenceHigh, "lib")
	broken.Status = parser.Failed("syntax error at line 1, column 4")

	g := buildGraph(t, broken, record("lib.py", parser.ConfidenceHigh))
	assert.Empty(t, g.Edges)
	assert.Empty(t, g.Nodes)
	assert.NotContains(t, g.Resolutions, "broken.py")
}

func TestBuildDropsSelfImports(t *testing.T) {
	g := buildGraph(t, record("self.py", parser.ConfidenceHigh, "self"))
	assert.Empty(t, g.Edges)
	require.Len(t, g.Resolutions["self.py"], 1)
	assert.Equal(t, "self.py", g.Resolutions["self.py"][0].Target)
}

func TestBuildDuplicateEdgesHighWins(t *testing.T) {
	edges := []parser.ImportEdge{
		{Specifier: "lib", File: "a.py"},
		{Specifier: "lib", File: "a.py"},
	}
	stub := stubResolver{"lib": "lib.py"}
	records := map[string]parser.FactRecord{
		"a.py":   {File: parser.SourceFile{Path: "a.py", Language: "python"}, Confidence: parser.ConfidenceHigh, Status: parser.OK(), Imports: edges},
		"lib.py": {File: parser.SourceFile{Path: "lib.py", Language: "python"}, Confidence: parser.ConfidenceHigh, Status: parser.OK()},
	}
	g := Build(records, stub)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, parser.ConfidenceHigh, g.Edges[0].Confidence)
	assert.Equal(t, 1, g.Inbound("lib.py"))
}

func TestBuildContradictedLowConfidenceEdge(t *testing.T) {
	g := buildGraph(t,
		// A shell heuristic claims it sources a python module parsed by grammar.
		record("deploy.sh", parser.ConfidenceLow, "tool.py"),
		record("tool.py", parser.ConfidenceHigh),
		record("main.rb", parser.ConfidenceLow, "helper"),
		record("helper.rb", parser.ConfidenceLow),
	)

	byTarget := make(map[string]Edge)
	for _, e := range g.Edges {
		byTarget[e.To] = e
	}
	require.Contains(t, byTarget, "tool.py")
	assert.False(t, byTarget["tool.py"].Counted)
	assert.Equal(t, 0, g.Inbound("tool.py"))

	require.Contains(t, byTarget, "helper.rb")
	assert.True(t, byTarget["helper.rb"].Counted)
	assert.Equal(t, 1, g.Inbound("helper.rb"))
}

func TestBuildDeterministic(t *testing.T) {
	records := []parser.FactRecord{
		record("a.py", parser.ConfidenceHigh, "b", "c", "json"),
		record("b.py", parser.ConfidenceHigh, "c"),
		record("c.py", parser.ConfidenceHigh, "a"),
	}
	first := buildGraph(t, records...)
	for i := 0; i < 5; i++ {
		again := buildGraph(t, records[2], records[0], records[1])
		assert.Equal(t, first.Nodes, again.Nodes)
		assert.Equal(t, first.Edges, again.Edges)
		assert.Equal(t, first.Cycles, again.Cycles)
	}
}

type stubResolver map[string]string

func (s stubResolver) Resolve(edge parser.ImportEdge) resolver.Resolution {
	if target, ok := s[edge.Specifier]; ok {
		return resolver.Resolution{Target: target}
	}
	return resolver.Resolution{Target: resolver.ExternalID(edge.Specifier), External: true}
}
