package staleness

import (
	"context"
	"testing"
	"time"

	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runClock = time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

type stubHistory map[string]time.Time

func (s stubHistory) Name() string { return "stub" }

func (s stubHistory) LastModified(_ context.Context, path string) (time.Time, bool) {
	t, ok := s[path]
	return t, ok
}

func okRecord(path string) parser.FactRecord {
	return parser.FactRecord{
		File:       parser.SourceFile{Path: path, Language: "python"},
		Confidence: parser.ConfidenceHigh,
		Status:     parser.OK(),
	}
}

func newScorer(history stubHistory) *Scorer {
	return NewScorer(DefaultConfig(), history, WithClock(func() time.Time { return runClock }))
}

func TestScoreAgeAndReferences(t *testing.T) {
	records := map[string]parser.FactRecord{
		"a.py": okRecord("a.py"),
		"b.py": okRecord("b.py"),
	}
	g := graph.New(nil, []graph.Edge{{From: "b.py", To: "a.py", Confidence: parser.ConfidenceHigh, Counted: true}})
	history := stubHistory{
		"a.py": runClock.AddDate(0, 0, -400),
		"b.py": runClock,
	}

	report := newScorer(history).Score(context.Background(), records, g)

	a := report.Files["a.py"]
	assert.Equal(t, 1.0, a.AgeComponent)
	assert.Equal(t, 0.5, a.ReferenceComponent)
	assert.Equal(t, 0.75, a.Score)
	assert.Equal(t, 1, a.InboundReferences)
	require.NotNil(t, a.DaysSinceModified)
	assert.Equal(t, 400, *a.DaysSinceModified)

	b := report.Files["b.py"]
	assert.Equal(t, 0.0, b.AgeComponent)
	assert.Equal(t, 1.0, b.ReferenceComponent)
	assert.Equal(t, 0.5, b.Score)

	assert.Equal(t, []Candidate{{Path: "a.py", Score: 0.75}}, report.Candidates)
	assert.Equal(t, 180, report.ThresholdDays)
	assert.Equal(t, 0.7, report.Cutoff)
}

func TestScoreUnknownHistoryIsMaximallyOld(t *testing.T) {
	records := map[string]parser.FactRecord{"lost.py": okRecord("lost.py")}
	report := newScorer(stubHistory{}).Score(context.Background(), records, graph.New(nil, nil))

	rec := report.Files["lost.py"]
	assert.Nil(t, rec.LastModified)
	assert.Nil(t, rec.DaysSinceModified)
	assert.Equal(t, 1.0, rec.AgeComponent)
	assert.Equal(t, 1.0, rec.Score)
}

func TestScoreExcludesSkipped(t *testing.T) {
	skipped := okRecord("big.py")
	skipped.Status = parser.Skipped("file exceeds size limit")
	failed := okRecord("broken.py")
	failed.Status = parser.Failed("syntax error at line 2, column 1")

	records := map[string]parser.FactRecord{"big.py": skipped, "broken.py": failed}
	report := newScorer(stubHistory{}).Score(context.Background(), records, graph.New(nil, nil))

	assert.NotContains(t, report.Files, "big.py")
	assert.Contains(t, report.Files, "broken.py")
}

func TestScoreMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	score := func(days, inbound int) float64 {
		return cfg.AgeWeight*AgeComponent(days, cfg.ThresholdDays) + cfg.RefWeight*ReferenceComponent(inbound)
	}
	for days := 0; days < 400; days += 7 {
		for inbound := 0; inbound < 20; inbound++ {
			assert.LessOrEqual(t, score(days, inbound), score(days+7, inbound))
			assert.GreaterOrEqual(t, score(days, inbound), score(days, inbound+1))
		}
	}
}

func TestCandidatesOrdering(t *testing.T) {
	records := map[string]parser.FactRecord{
		"b.py": okRecord("b.py"),
		"a.py": okRecord("a.py"),
		"c.py": okRecord("c.py"),
	}
	history := stubHistory{
		"c.py": runClock.AddDate(0, 0, -90),
	}
	report := newScorer(history).Score(context.Background(), records, graph.New(nil, nil))
	assert.Equal(t, []Candidate{
		{Path: "a.py", Score: 1},
		{Path: "b.py", Score: 1},
		{Path: "c.py", Score: 0.75},
	}, report.Candidates)
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(runClock, runClock))
	assert.Equal(t, 0, DaysBetween(runClock.Add(time.Hour), runClock))
	// Earlier the same UTC day still counts as today.
	assert.Equal(t, 0, DaysBetween(time.Date(2025, 6, 1, 0, 1, 0, 0, time.UTC), runClock))
	assert.Equal(t, 1, DaysBetween(time.Date(2025, 5, 31, 23, 59, 0, 0, time.UTC), runClock))
}

type preloadingHistory struct {
	stubHistory
	preloaded []string
}

func (p *preloadingHistory) Preload(_ context.Context, paths []string) error {
	p.preloaded = paths
	return nil
}

func TestScorePreloadsHistory(t *testing.T) {
	history := &preloadingHistory{stubHistory: stubHistory{}}
	records := map[string]parser.FactRecord{"b.py": okRecord("b.py"), "a.py": okRecord("a.py")}
	NewScorer(DefaultConfig(), history).Score(context.Background(), records, graph.New(nil, nil))
	assert.Equal(t, []string{"a.py", "b.py"}, history.preloaded)
}
