package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/core/ports"
	"codeindex/internal/data/runlog"
	"codeindex/internal/data/snapshot"
	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/resolver"
	"codeindex/internal/engine/staleness"
	"codeindex/internal/shared/observability"
	"codeindex/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// phase runs fn inside a span and records its duration.
func phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observability.Tracer.Start(ctx, "index."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	observability.PhaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	return err
}

// Index performs one run and promotes its snapshot. Per-file failures are
// part of the result; only configuration problems, cancellation and
// snapshot write failures return an error.
func (a *App) Index(ctx context.Context, req ports.IndexRequest) (ports.IndexResult, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	started := a.clock()
	runID := a.newRunID()
	ctx, span := observability.Tracer.Start(ctx, "app.Index", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	en, err := a.enumerator()
	if err != nil {
		return ports.IndexResult{}, err
	}

	var files []string
	err = phase(ctx, "enumerate", func(ctx context.Context) error {
		var err error
		files, err = en.Enumerate(ctx)
		return err
	})
	if err != nil {
		return ports.IndexResult{}, err
	}
	slog.Debug("enumerated files", "files", len(files))

	plan := a.plan(ctx, req, files)
	records := plan.carried
	err = phase(ctx, "extract", func(ctx context.Context) error {
		extracted, err := a.extract(ctx, plan.extract)
		if err != nil {
			return err
		}
		for p, rec := range extracted {
			records[p] = rec
		}
		return nil
	})
	if err != nil {
		return ports.IndexResult{}, err
	}

	var g *graph.ModuleGraph
	err = phase(ctx, "graph", func(ctx context.Context) error {
		r, err := resolver.New(util.SortedStringKeys(records), a.Config.Resolver.Roots)
		if err != nil {
			return err
		}
		g = graph.Build(records, r)
		return nil
	})
	if err != nil {
		return ports.IndexResult{}, err
	}

	var report staleness.Report
	_ = phase(ctx, "staleness", func(ctx context.Context) error {
		scorer := staleness.NewScorer(staleness.Config{
			ThresholdDays: a.Config.Staleness.ThresholdDays,
			AgeWeight:     a.Config.Staleness.AgeWeight,
			RefWeight:     a.Config.Staleness.RefWeight,
			Cutoff:        a.Config.Staleness.Cutoff,
		}, a.history, staleness.WithClock(func() time.Time { return started }))
		report = scorer.Score(ctx, records, g)
		return nil
	})

	if err := ctx.Err(); err != nil {
		return ports.IndexResult{}, err
	}

	snap := snapshot.Snapshot{
		RunID:       runID,
		GeneratedAt: started,
		Mode:        string(plan.mode),
		Records:     records,
		Graph:       g,
		Staleness:   report,
	}
	var dir string
	err = phase(ctx, "persist", func(ctx context.Context) error {
		var err error
		dir, err = a.store.Write(ctx, &snap, snapshot.WriteOptions{
			Summary: snapshot.SummaryOptions{
				MaxLines:    a.Config.Summary.MaxLines,
				MaxBytes:    a.Config.Summary.MaxBytes,
				TopN:        a.Config.Summary.TopN,
				EntryPoints: a.Config.Summary.EntryPoints,
			},
			DOT: a.Config.Snapshot.DOT,
		})
		return err
	})
	if err != nil {
		return ports.IndexResult{}, coreerrors.AddContext(err, coreerrors.CtxOperation, "write snapshot")
	}

	finished := a.clock()
	result := buildResult(snap, plan, dir, finished.Sub(started))
	if info, err := os.Stat(filepath.Join(dir, snapshot.FileSummary)); err == nil {
		result.SummaryBytes = info.Size()
	}

	a.recordMetrics(result)
	a.recordRun(ctx, snap, result, started, finished)

	slog.Info("snapshot promoted",
		"version", result.Version,
		"mode", result.Mode,
		"files", result.Files,
		"failed", len(result.Failed),
		"cycles", len(result.Cycles),
		"duration", result.Duration,
		"heap_mb", util.HeapAllocMB(),
	)
	return result, nil
}

func buildResult(snap snapshot.Snapshot, plan runPlan, dir string, d time.Duration) ports.IndexResult {
	result := ports.IndexResult{
		Version:     snap.Version,
		RunID:       snap.RunID,
		Mode:        plan.mode,
		Fallback:    plan.fallback,
		SnapshotDir: dir,
		Files:       len(snap.Records),
		Reextracted: len(plan.extract),
		Nodes:       len(snap.Graph.Nodes),
		Edges:       len(snap.Graph.Edges),
		Cycles:      snap.Graph.Cycles,
		Duration:    d,
	}
	for _, p := range util.SortedStringKeys(snap.Records) {
		rec := snap.Records[p]
		if !rec.OK() {
			result.Failed = append(result.Failed, ports.FileFailure{Path: p, Status: rec.Status.Kind, Reason: rec.Status.Reason})
		}
	}
	for _, c := range snap.Staleness.Candidates {
		result.StaleCandidates = append(result.StaleCandidates, ports.StaleCandidate{Path: c.Path, Score: c.Score})
	}
	return result
}

func (a *App) recordMetrics(result ports.IndexResult) {
	observability.GraphNodes.Set(float64(result.Nodes))
	observability.GraphEdges.Set(float64(result.Edges))
	observability.GraphCycles.Set(float64(len(result.Cycles)))
	observability.StaleCandidates.Set(float64(len(result.StaleCandidates)))
	observability.RunDuration.WithLabelValues(string(result.Mode)).Observe(result.Duration.Seconds())

	if a.Paths.MetricsTextfile == "" {
		return
	}
	if err := observability.WriteTextfile(a.Paths.MetricsTextfile); err != nil {
		slog.Warn("failed to write metrics textfile", "path", a.Paths.MetricsTextfile, "error", err)
	}
}

// recordRun appends the run to the run log. Failures are logged only.
func (a *App) recordRun(ctx context.Context, snap snapshot.Snapshot, result ports.IndexResult, started, finished time.Time) {
	if a.runLog == nil {
		return
	}
	counts := snap.Counts()
	run := runlog.Run{
		RunID:           result.RunID,
		Version:         result.Version,
		Mode:            string(result.Mode),
		StartedAt:       started,
		FinishedAt:      finished,
		Files:           counts.Files,
		Reextracted:     result.Reextracted,
		Failed:          counts.Failed,
		Skipped:         counts.Skipped,
		Nodes:           counts.Nodes,
		Edges:           counts.Edges,
		Cycles:          counts.Cycles,
		StaleCandidates: counts.StaleCandidates,
		SnapshotDir:     result.SnapshotDir,
	}
	if err := a.runLog.Record(ctx, run); err != nil {
		slog.Warn("failed to record run", "run_id", run.RunID, "error", err)
	}
}
