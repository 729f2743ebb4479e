package staleness

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"codeindex/internal/core/ports"
	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"
)

const day = 24 * time.Hour

type Config struct {
	ThresholdDays int
	AgeWeight     float64
	RefWeight     float64
	Cutoff        float64
}

func DefaultConfig() Config {
	return Config{ThresholdDays: 180, AgeWeight: 0.5, RefWeight: 0.5, Cutoff: 0.7}
}

// Record is the staleness of one file. LastModified and DaysSinceModified
// are nil when the history provider does not know the file.
type Record struct {
	Path               string
	LastModified       *time.Time
	DaysSinceModified  *int
	InboundReferences  int
	AgeComponent       float64
	ReferenceComponent float64
	Score              float64
}

type Candidate struct {
	Path  string
	Score float64
}

type Report struct {
	Files         map[string]Record
	Candidates    []Candidate
	ThresholdDays int
	Cutoff        float64
}

type Scorer struct {
	cfg     Config
	history ports.HistoryProvider
	now     func() time.Time
}

type Option func(*Scorer)

// WithClock pins the run clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

func NewScorer(cfg Config, history ports.HistoryProvider, opts ...Option) *Scorer {
	if cfg.ThresholdDays <= 0 {
		cfg.ThresholdDays = DefaultConfig().ThresholdDays
	}
	s := &Scorer{cfg: cfg, history: history, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates every ok or failed record. Skipped files are left out.
func (s *Scorer) Score(ctx context.Context, records map[string]parser.FactRecord, g *graph.ModuleGraph) Report {
	paths := make([]string, 0, len(records))
	for p, rec := range records {
		if rec.Skipped() {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if pre, ok := s.history.(ports.Preloader); ok {
		if err := pre.Preload(ctx, paths); err != nil {
			slog.Warn("history preload failed", "provider", s.history.Name(), "error", err)
		}
	}

	now := s.now()
	report := Report{
		Files:         make(map[string]Record, len(paths)),
		ThresholdDays: s.cfg.ThresholdDays,
		Cutoff:        s.cfg.Cutoff,
	}
	for _, p := range paths {
		rec := Record{Path: p, InboundReferences: g.Inbound(p)}
		if modified, ok := s.history.LastModified(ctx, p); ok {
			modified = modified.UTC()
			days := DaysBetween(modified, now)
			rec.LastModified = &modified
			rec.DaysSinceModified = &days
			rec.AgeComponent = AgeComponent(days, s.cfg.ThresholdDays)
		} else {
			rec.AgeComponent = 1
		}
		rec.ReferenceComponent = ReferenceComponent(rec.InboundReferences)
		rec.Score = round(clamp(s.cfg.AgeWeight*rec.AgeComponent + s.cfg.RefWeight*rec.ReferenceComponent))
		rec.AgeComponent = round(rec.AgeComponent)
		rec.ReferenceComponent = round(rec.ReferenceComponent)
		report.Files[p] = rec

		if rec.Score >= s.cfg.Cutoff {
			report.Candidates = append(report.Candidates, Candidate{Path: p, Score: rec.Score})
		}
	}

	sort.Slice(report.Candidates, func(i, j int) bool {
		if report.Candidates[i].Score == report.Candidates[j].Score {
			return report.Candidates[i].Path < report.Candidates[j].Path
		}
		return report.Candidates[i].Score > report.Candidates[j].Score
	})
	return report
}

// DaysBetween counts UTC calendar days from modified to now, never negative.
func DaysBetween(modified, now time.Time) int {
	from := modified.UTC().Truncate(day)
	to := now.UTC().Truncate(day)
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / day)
}

func AgeComponent(days, thresholdDays int) float64 {
	if thresholdDays <= 0 {
		return 1
	}
	return math.Min(float64(days)/float64(thresholdDays), 1)
}

func ReferenceComponent(inbound int) float64 {
	if inbound <= 0 {
		return 1
	}
	return 1 / float64(1+inbound)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Scores are kept to six decimals so artifacts do not carry float noise.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
