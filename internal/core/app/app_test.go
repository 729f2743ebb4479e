package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeindex/internal/core/config"
	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/core/ports"
	"codeindex/internal/data/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubHistory map[string]time.Time

func (s stubHistory) Name() string { return "stub" }

func (s stubHistory) LastModified(_ context.Context, p string) (time.Time, bool) {
	t, ok := s[p]
	return t, ok
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

type appOption func(*config.Config)

func newTestApp(t *testing.T, root string, history stubHistory, opts ...appOption) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Extract.Workers = 3
	disabled := false
	cfg.RunLog.Enabled = &disabled
	for _, opt := range opts {
		opt(cfg)
	}
	paths, err := config.ResolvePaths(cfg, root)
	require.NoError(t, err)

	n := 0
	a, err := NewWithDependencies(context.Background(), cfg, paths, Dependencies{
		History: history,
		Clock:   func() time.Time { return runClock },
		RunID: func() string {
			n++
			return fmt.Sprintf("run-%d", n)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func artifact(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func assertSameArtifacts(t *testing.T, dirA, dirB string) {
	t.Helper()
	for _, name := range []string{snapshot.FileStructural, snapshot.FileGraph, snapshot.FileStaleness} {
		assert.Equal(t, artifact(t, dirA, name), artifact(t, dirB, name), name)
	}
}

func TestIndexFullIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py":            "def helper():\n    return 1\n",
		"b.py":            "import a\nimport requests\n",
		"pkg/__init__.py": "",
		"pkg/c.py":        "from . import d\n",
		"pkg/d.py":        "from pkg import c\n",
	})
	a := newTestApp(t, root, stubHistory{})
	svc := a.AnalysisService()

	first, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)
	second, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 5, first.Files)
	assert.Empty(t, first.Failed)
	assert.Equal(t, [][]string{{"pkg/c.py", "pkg/d.py"}}, first.Cycles)
	assertSameArtifacts(t, first.SnapshotDir, second.SnapshotDir)

	current, err := os.ReadFile(filepath.Join(root, config.DefaultOutputDir, snapshot.CurrentPointer))
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(current))
	assert.Positive(t, second.SummaryBytes)
}

func TestIndexStalenessScenario(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py": "VALUE = 1\n",
		"b.py": "import a\n",
	})
	history := stubHistory{
		"a.py": runClock.AddDate(0, 0, -400),
		"b.py": runClock,
	}
	a := newTestApp(t, root, history)

	res, err := a.AnalysisService().Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)
	assert.Equal(t, []ports.StaleCandidate{{Path: "a.py", Score: 0.75}}, res.StaleCandidates)

	doc := artifact(t, res.SnapshotDir, snapshot.FileStaleness)
	assert.Contains(t, doc, `"days_since_modified": 400`)
	assert.Contains(t, doc, `"reference_component": 0.5`)
}

func TestIndexSyntaxErrorIsRecorded(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py":      "VALUE = 1\n",
		"broken.py": "import a\ndef broken(:\n    pass\n",
	})
	a := newTestApp(t, root, stubHistory{})

	res, err := a.AnalysisService().Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "broken.py", res.Failed[0].Path)
	assert.NotEmpty(t, res.Failed[0].Reason)

	g, err := a.Store().LoadGraph()
	require.NoError(t, err)
	for _, e := range g.Edges {
		assert.NotEqual(t, "broken.py", e.From)
	}
	assert.Contains(t, artifact(t, res.SnapshotDir, snapshot.FileSummary), "`broken.py`")
}

func TestIndexIgnoredVendorIsInvisible(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.py":       "import lib\n",
		"vendor/lib.py": "def broken(:\n",
	})
	a := newTestApp(t, root, stubHistory{}, func(cfg *config.Config) {
		cfg.Ignore.Patterns = []string{"vendor/"}
	})

	res, err := a.AnalysisService().Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 1, res.Files)
	for _, name := range []string{snapshot.FileStructural, snapshot.FileGraph, snapshot.FileStaleness, snapshot.FileSummary} {
		assert.NotContains(t, artifact(t, res.SnapshotDir, name), "vendor/", name)
	}
}

func TestIndexMalformedIgnorePatternIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.py":                "x = 1\n",
		config.DefaultIgnoreFile: "src/[abc\n",
	})
	a := newTestApp(t, root, stubHistory{})

	_, err := a.AnalysisService().Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.Error(t, err)
	assert.True(t, coreerrors.IsFatal(err))
	assert.NoFileExists(t, filepath.Join(root, config.DefaultOutputDir, snapshot.CurrentPointer))
}

func TestIncrementalMatchesFullRun(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py":     "def helper():\n    return 1\n",
		"b.py":     "import a\n",
		"c.py":     "import b\n",
		"web/x.js": "import { y } from './y.js';\n",
		"web/y.js": "export const y = 1;\n",
	})
	history := stubHistory{"a.py": runClock.AddDate(-1, 0, 0), "b.py": runClock.AddDate(0, -1, 0)}
	a := newTestApp(t, root, history)
	svc := a.AnalysisService()

	_, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)

	writeFiles(t, root, map[string]string{
		"b.py": "import a\nimport c\n",
		"d.py": "import a\n",
	})
	require.NoError(t, os.Remove(filepath.Join(root, "c.py")))
	require.NoError(t, os.RemoveAll(filepath.Join(root, "web")))

	incremental, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeIncremental})
	require.NoError(t, err)
	assert.Equal(t, ports.ModeIncremental, incremental.Mode)
	assert.Empty(t, incremental.Fallback)
	assert.Equal(t, 2, incremental.Reextracted)

	full, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)
	assertSameArtifacts(t, incremental.SnapshotDir, full.SnapshotDir)
	assert.NotContains(t, artifact(t, full.SnapshotDir, snapshot.FileStructural), "web/")
}

func TestIncrementalExplicitChanges(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py":       "VALUE = 1\n",
		"b.py":       "import a\n",
		"lib/one.py": "import a\n",
		"lib/two.py": "import a\n",
	})
	a := newTestApp(t, root, stubHistory{})
	svc := a.AnalysisService()
	_, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)

	writeFiles(t, root, map[string]string{"b.py": "VALUE = 2\n"})
	require.NoError(t, os.RemoveAll(filepath.Join(root, "lib")))

	// A removed directory is reported by its own path.
	incremental, err := svc.Index(context.Background(), ports.IndexRequest{
		Mode:    ports.ModeIncremental,
		Changed: []string{"./b.py", "lib"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, incremental.Reextracted)
	assert.Equal(t, 2, incremental.Files)

	full, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)
	assertSameArtifacts(t, incremental.SnapshotDir, full.SnapshotDir)
}

func TestIncrementalFallsBackWithoutSnapshot(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "x = 1\n"})
	a := newTestApp(t, root, stubHistory{})

	res, err := a.AnalysisService().Index(context.Background(), ports.IndexRequest{Mode: ports.ModeIncremental})
	require.NoError(t, err)
	assert.Equal(t, ports.ModeFull, res.Mode)
	assert.Equal(t, "no prior snapshot", res.Fallback)
}

func TestIncrementalFallsBackOnCorruptSnapshot(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "x = 1\n"})
	a := newTestApp(t, root, stubHistory{})
	svc := a.AnalysisService()

	first, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first.SnapshotDir, snapshot.FileStructural), []byte("[]"), 0o644))

	res, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeIncremental})
	require.NoError(t, err)
	assert.Equal(t, ports.ModeFull, res.Mode)
	assert.True(t, strings.HasPrefix(res.Fallback, "prior snapshot rejected"), res.Fallback)
}

func TestIndexRejectsChangedOnFullRun(t *testing.T) {
	a := newTestApp(t, t.TempDir(), stubHistory{})
	_, err := a.AnalysisService().Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull, Changed: []string{"a.py"}})
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeValidationError))
}

func TestIndexCancelledWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "x = 1\n"})
	a := newTestApp(t, root, stubHistory{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Index(ctx, ports.IndexRequest{Mode: ports.ModeFull})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, filepath.Join(root, config.DefaultOutputDir))
}

func TestTraceAndImpact(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py": "VALUE = 1\n",
		"b.py": "import a\n",
		"c.py": "import b\n",
	})
	a := newTestApp(t, root, stubHistory{})
	svc := a.AnalysisService()

	_, err := svc.TraceImportChain(context.Background(), "c.py", "a.py")
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotFound))

	_, err = svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)

	chain, err := svc.TraceImportChain(context.Background(), "./c.py", "a.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.py", "b.py", "a.py"}, chain)

	_, err = svc.TraceImportChain(context.Background(), "a.py", "c.py")
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotFound))

	report, err := svc.AnalyzeImpact(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py"}, report.DirectImporters)
	assert.Equal(t, []string{"c.py"}, report.TransitiveImporters)

	_, err = svc.AnalyzeImpact(context.Background(), "missing.py")
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotFound))
}

func TestRunHistory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "x = 1\n"})

	disabled := newTestApp(t, root, stubHistory{})
	_, err := disabled.AnalysisService().RunHistory(context.Background(), 5)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotSupported))

	a := newTestApp(t, root, stubHistory{}, func(cfg *config.Config) {
		cfg.RunLog.Enabled = nil
	})
	svc := a.AnalysisService()
	for i := 0; i < 2; i++ {
		_, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
		require.NoError(t, err)
	}

	runs, err := svc.RunHistory(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Version)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, 1, runs[0].Files)
}

type fakeChanges struct {
	paths []string
	err   error
}

func (f fakeChanges) ChangedFiles(context.Context) ([]string, error) {
	return f.paths, f.err
}

func TestIncrementalSinceRef(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "VALUE = 1\n", "b.py": "import a\n"})
	a := newTestApp(t, root, stubHistory{})
	var gotRef string
	a.since = func(_, ref string) ports.ChangeSource {
		gotRef = ref
		return fakeChanges{paths: []string{"b.py"}}
	}
	svc := a.AnalysisService()
	_, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)

	writeFiles(t, root, map[string]string{"b.py": "VALUE = 2\n"})
	res, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeIncremental, Since: " HEAD~1 "})
	require.NoError(t, err)
	assert.Equal(t, "HEAD~1", gotRef)
	assert.Equal(t, ports.ModeIncremental, res.Mode)
	assert.Empty(t, res.Fallback)
	assert.Equal(t, 1, res.Reextracted)
	assert.Equal(t, 0, res.Edges)
}

func TestIncrementalSinceBadRefFallsBack(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "VALUE = 1\n", "b.py": "import a\n"})
	a := newTestApp(t, root, stubHistory{})
	a.since = func(_, _ string) ports.ChangeSource {
		return fakeChanges{err: fmt.Errorf("unknown revision no-such-ref")}
	}
	svc := a.AnalysisService()
	_, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeFull})
	require.NoError(t, err)

	res, err := svc.Index(context.Background(), ports.IndexRequest{Mode: ports.ModeIncremental, Since: "no-such-ref"})
	require.NoError(t, err)
	assert.Equal(t, ports.ModeFull, res.Mode)
	assert.Equal(t, "changed files unavailable: unknown revision no-such-ref", res.Fallback)
	assert.Equal(t, 2, res.Reextracted)
}
