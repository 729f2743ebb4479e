package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"
	"codeindex/internal/engine/staleness"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(runID string) Snapshot {
	records := map[string]parser.FactRecord{
		"app/main.py": {
			File:       parser.SourceFile{Path: "app/main.py", Language: "python", Hash: "aa", Size: 20, LinesOfCode: 2},
			Symbols:    []parser.Symbol{{Name: "run", Kind: parser.SymbolFunction, File: "app/main.py", StartLine: 1, EndLine: 2}},
			Imports:    []parser.ImportEdge{{Specifier: "app.util", File: "app/main.py", Line: 1, Form: parser.FormImport}, {Specifier: "requests", File: "app/main.py", Line: 2, Form: parser.FormImport}},
			Exports:    []string{"run"},
			Confidence: parser.ConfidenceHigh,
			Status:     parser.OK(),
		},
		"app/util.py": {
			File:       parser.SourceFile{Path: "app/util.py", Language: "python", Hash: "bb", Size: 10, LinesOfCode: 1},
			Imports:    []parser.ImportEdge{{Specifier: "app.main", File: "app/util.py", Line: 1, Form: parser.FormImport}},
			Confidence: parser.ConfidenceHigh,
			Status:     parser.OK(),
		},
		"broken.py": {
			File:       parser.SourceFile{Path: "broken.py", Language: "python", Hash: "cc", Size: 5},
			Confidence: parser.ConfidenceHigh,
			Status:     parser.Failed("syntax error at line 1"),
		},
	}
	g := graph.New([]string{"app/main.py", "app/util.py", "broken.py"}, []graph.Edge{
		{From: "app/main.py", To: "app/util.py", Confidence: parser.ConfidenceHigh, Counted: true},
		{From: "app/main.py", To: "external:requests", Confidence: parser.ConfidenceHigh, Counted: true},
		{From: "app/util.py", To: "app/main.py", Confidence: parser.ConfidenceHigh, Counted: true},
	})
	g.Cycles = g.DetectCycles()
	g.Resolutions = map[string][]graph.Resolution{
		"app/main.py": {{Specifier: "app.util", Target: "app/util.py"}, {Specifier: "requests", Target: "external:requests", External: true}},
		"app/util.py": {{Specifier: "app.main", Target: "app/main.py"}},
	}
	days := 400
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	report := staleness.Report{
		Files: map[string]staleness.Record{
			"app/util.py": {Path: "app/util.py", LastModified: &old, DaysSinceModified: &days, InboundReferences: 1, AgeComponent: 1, ReferenceComponent: 0.5, Score: 0.75},
		},
		Candidates:    []staleness.Candidate{{Path: "app/util.py", Score: 0.75}},
		ThresholdDays: 180,
		Cutoff:        0.7,
	}
	return Snapshot{
		RunID:       runID,
		GeneratedAt: time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC),
		Mode:        "full",
		Records:     records,
		Graph:       g,
		Staleness:   report,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestStoreWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 0)
	snap := fixture("run-1")

	out, err := store.Write(context.Background(), &snap, WriteOptions{Summary: DefaultSummaryOptions(), DOT: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "v1"), out)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, "v1\n", readFile(t, filepath.Join(dir, CurrentPointer)))

	for _, name := range []string{FileStructural, FileGraph, FileStaleness, FileSummary, FileManifest, FileDOT} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, out, loaded.Dir)
	assert.Equal(t, 1, loaded.Manifest.Version)
	assert.Equal(t, SchemaVersion, loaded.Manifest.SchemaVersion)
	assert.Equal(t, 3, loaded.Manifest.Counts.Files)
	assert.Equal(t, 1, loaded.Manifest.Counts.Failed)
	assert.Equal(t, 1, loaded.Manifest.Counts.Cycles)

	require.Len(t, loaded.Records, 3)
	main := loaded.Records["app/main.py"]
	assert.Equal(t, "aa", main.File.Hash)
	require.Len(t, main.Imports, 2)
	assert.Equal(t, "app/main.py", main.Imports[0].File)
	assert.Equal(t, "app/main.py", main.Symbols[0].File)
	assert.True(t, loaded.Records["broken.py"].Failed())
	assert.Equal(t, "syntax error at line 1", loaded.Records["broken.py"].Status.Reason)

	g, err := store.LoadGraph()
	require.NoError(t, err)
	assert.Equal(t, snap.Graph.Nodes, g.Nodes)
	assert.Equal(t, snap.Graph.Edges, g.Edges)
	assert.Equal(t, [][]string{{"app/main.py", "app/util.py"}}, g.Cycles)
}

func TestStructuralArtifactTargets(t *testing.T) {
	snap := fixture("run-1")
	data, err := EncodeStructural(snap.Records, snap.Graph)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, `"resolved_target": "app/util.py"`)
	assert.Contains(t, doc, `"resolved_target": null`)
	assert.NotContains(t, doc, "2026")
	require.NoError(t, validate(schemaStructural, data))
}

func TestStoreDeterministicArtifacts(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 5)
	first := fixture("run-1")
	second := fixture("run-2")
	second.GeneratedAt = second.GeneratedAt.Add(time.Hour)

	out1, err := store.Write(context.Background(), &first, WriteOptions{})
	require.NoError(t, err)
	out2, err := store.Write(context.Background(), &second, WriteOptions{})
	require.NoError(t, err)

	for _, name := range []string{FileStructural, FileGraph, FileStaleness} {
		assert.Equal(t, readFile(t, filepath.Join(out1, name)), readFile(t, filepath.Join(out2, name)), name)
	}
	assert.NotEqual(t, readFile(t, filepath.Join(out1, FileManifest)), readFile(t, filepath.Join(out2, FileManifest)))
	assert.NoFileExists(t, filepath.Join(out1, FileDOT))
}

func TestStorePrunesOldVersions(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 2)
	for i := 1; i <= 3; i++ {
		snap := fixture("run")
		_, err := store.Write(context.Background(), &snap, WriteOptions{})
		require.NoError(t, err)
		assert.Equal(t, i, snap.Version)
	}

	assert.NoDirExists(t, filepath.Join(dir, "v1"))
	assert.DirExists(t, filepath.Join(dir, "v2"))
	assert.DirExists(t, filepath.Join(dir, "v3"))

	version, current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, filepath.Join(dir, "v3"), current)

	next, err := store.NextVersion()
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestStoreRemovesStaleTemp(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".tmp-crashed")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, FileGraph), []byte("{"), 0o644))

	store := NewStore(dir, 3)
	snap := fixture("run-1")
	_, err := store.Write(context.Background(), &snap, WriteOptions{})
	require.NoError(t, err)
	assert.NoDirExists(t, stale)
}

func TestStoreCancelledWriteKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 3)
	snap := fixture("run-1")
	_, err := store.Write(context.Background(), &snap, WriteOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next := fixture("run-2")
	_, err = store.Write(ctx, &next, WriteOptions{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, "v1\n", readFile(t, filepath.Join(dir, CurrentPointer)))
	assert.NoDirExists(t, filepath.Join(dir, ".tmp-run-2"))
	assert.NoDirExists(t, filepath.Join(dir, "v2"))
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := NewStore(t.TempDir(), 3).Load()
		require.Error(t, err)
		assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotFound))
	})

	t.Run("invalid manifest", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(dir, 3)
		snap := fixture("run-1")
		out, err := store.Write(context.Background(), &snap, WriteOptions{})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(out, FileManifest), []byte(`{"version": 1}`), 0o644))

		_, err = store.Load()
		require.Error(t, err)
		assert.True(t, coreerrors.IsCode(err, coreerrors.CodeValidationError))
	})

	t.Run("schema version", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(dir, 3)
		snap := fixture("run-1")
		out, err := store.Write(context.Background(), &snap, WriteOptions{})
		require.NoError(t, err)
		path := filepath.Join(out, FileManifest)
		manifest := strings.Replace(readFile(t, path), `"schema_version": 1`, `"schema_version": 99`, 1)
		require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

		_, err = store.Load()
		require.Error(t, err)
		assert.True(t, coreerrors.IsCode(err, coreerrors.CodeValidationError))
		assert.Contains(t, err.Error(), "schema version 99")
	})

	t.Run("corrupt structural", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(dir, 3)
		snap := fixture("run-1")
		out, err := store.Write(context.Background(), &snap, WriteOptions{})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(out, FileStructural), []byte(`{"a.py": {"language": 3}}`), 0o644))

		_, err = store.Load()
		require.Error(t, err)
		assert.True(t, coreerrors.IsCode(err, coreerrors.CodeValidationError))
	})
}

func TestRenderSummary(t *testing.T) {
	snap := fixture("run-1")
	snap.Version = 4
	doc := RenderSummary(snap, DefaultSummaryOptions())

	assert.True(t, strings.HasPrefix(doc, "# Codebase Index\n"))
	assert.Contains(t, doc, "Snapshot v4 (full run run-1), generated 2026-02-05T10:00:00Z.")
	assert.Contains(t, doc, "- Files: 3 (1 failed, 0 skipped)")
	assert.Contains(t, doc, "- `broken.py`: failed(syntax error at line 1)")
	assert.Contains(t, doc, "## Entry points\n\n- `app/main.py`\n")
	assert.Contains(t, doc, "- `app/util.py`: score 0.75, 400 days, 1 inbound")
	assert.Contains(t, doc, "- app/main.py -> app/util.py -> app/main.py")
	assert.NotContains(t, doc, "Sections omitted")
}

func TestRenderSummaryEntryPointPatterns(t *testing.T) {
	snap := fixture("run-1")
	opts := DefaultSummaryOptions()
	opts.EntryPoints = []string{"app/util.*"}
	doc := RenderSummary(snap, opts)
	assert.Contains(t, doc, "## Entry points\n\n- `app/util.py`\n")
}

func TestRenderSummaryDropsWholeSections(t *testing.T) {
	snap := fixture("run-1")
	full := RenderSummary(snap, DefaultSummaryOptions())

	opts := DefaultSummaryOptions()
	opts.MaxLines = strings.Count(full, "\n") - 2
	doc := RenderSummary(snap, opts)
	assert.NotContains(t, doc, "## Import cycles")
	assert.Contains(t, doc, "## Stale candidates")
	assert.Contains(t, doc, "_Sections omitted to fit the size limit: Import cycles._")

	opts.MaxLines = 1
	doc = RenderSummary(snap, opts)
	assert.Contains(t, doc, "## Parse failures")
	assert.NotContains(t, doc, "## Structure")
	assert.Contains(t, doc, "Structure, Entry points, Key modules, Recently changed, Stale candidates, Import cycles")
}

func TestRenderSummaryBoundsParseFailures(t *testing.T) {
	records := make(map[string]parser.FactRecord)
	for i := 0; i < 50; i++ {
		p := fmt.Sprintf("pkg/mod%02d.py", i)
		records[p] = parser.FactRecord{
			File:   parser.SourceFile{Path: p, Language: "python"},
			Status: parser.Failed("syntax error at line 1"),
		}
	}
	snap := Snapshot{
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC),
		Mode:        "full",
		Records:     records,
		Graph:       graph.New(nil, nil),
	}
	opts := DefaultSummaryOptions()
	opts.MaxLines = 20

	doc := RenderSummary(snap, opts)
	assert.LessOrEqual(t, strings.Count(doc, "\n"), 20)
	assert.Contains(t, doc, "- `pkg/mod00.py`: failed(syntax error at line 1)")
	assert.NotContains(t, doc, "pkg/mod49.py")
	assert.Regexp(t, `- \.\.\. and \d+ more \(see codebase-index\.json\)\n`, doc)
	assert.Contains(t, doc, "_Sections omitted to fit the size limit: Structure,")
	assert.Equal(t, doc, RenderSummary(snap, opts))

	opts.MaxLines = 500
	opts.MaxBytes = 1200
	doc = RenderSummary(snap, opts)
	assert.LessOrEqual(t, len(doc), 1200)
	assert.Contains(t, doc, "more (see codebase-index.json)")
}

func TestRenderDOT(t *testing.T) {
	snap := fixture("run-1")
	dot := RenderDOT(snap.Graph)
	assert.True(t, strings.HasPrefix(dot, "digraph dependencies {"))
	assert.Contains(t, dot, `"app/main.py" -> "app/util.py" [color="red", penwidth=3.0, label="CYCLE"];`)
	assert.Contains(t, dot, `"app/main.py" -> "external:requests" [color="grey"];`)
	assert.Contains(t, dot, `"external:requests";`)
}
