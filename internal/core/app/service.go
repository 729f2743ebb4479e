package app

import (
	"context"
	"fmt"

	"codeindex/internal/core/errors"
	"codeindex/internal/core/ports"
	"codeindex/internal/data/runlog"
	"codeindex/internal/engine/graph"
	"codeindex/internal/shared/observability"
	"codeindex/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type analysisService struct {
	app *App
}

var _ ports.AnalysisService = (*analysisService)(nil)

func NewAnalysisService(app *App) ports.AnalysisService {
	return &analysisService{app: app}
}

func (s *analysisService) Index(ctx context.Context, req ports.IndexRequest) (ports.IndexResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.Index", trace.WithAttributes(
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return ports.IndexResult{}, err
	}
	if s.app == nil {
		return ports.IndexResult{}, fmt.Errorf("app is required")
	}
	if req.Mode == "" {
		req.Mode = ports.ModeFull
	}
	if req.Mode == ports.ModeFull && (req.Changed != nil || req.Since != "") {
		return ports.IndexResult{}, errors.New(errors.CodeValidationError, "changed files only apply to incremental runs")
	}
	return s.app.Index(ctx, req)
}

// TraceImportChain returns the shortest import path from one file to
// another in the current snapshot.
func (s *analysisService) TraceImportChain(ctx context.Context, from, to string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.app == nil {
		return nil, fmt.Errorf("app is required")
	}
	g, err := s.app.store.LoadGraph()
	if err != nil {
		return nil, err
	}
	from, to = util.NormalizePatternPath(from), util.NormalizePatternPath(to)
	for _, p := range []string{from, to} {
		if !g.HasNode(p) {
			return nil, errors.AddContext(errors.Newf(errors.CodeNotFound, "%s is not in the graph", p), errors.CtxPath, p)
		}
	}
	chain, ok := g.FindImportChain(from, to)
	if !ok {
		err := errors.Newf(errors.CodeNotFound, "no import chain from %s to %s", from, to)
		err = errors.AddContext(err, "from", from)
		return nil, errors.AddContext(err, "to", to)
	}
	return chain, nil
}

func (s *analysisService) AnalyzeImpact(ctx context.Context, path string) (graph.ImpactReport, error) {
	if err := ctx.Err(); err != nil {
		return graph.ImpactReport{}, err
	}
	if s.app == nil {
		return graph.ImpactReport{}, fmt.Errorf("app is required")
	}
	g, err := s.app.store.LoadGraph()
	if err != nil {
		return graph.ImpactReport{}, err
	}
	report, err := g.AnalyzeImpact(util.NormalizePatternPath(path))
	if err != nil {
		return graph.ImpactReport{}, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "impact target"), errors.CtxPath, path)
	}
	return report, nil
}

func (s *analysisService) RunHistory(ctx context.Context, limit int) ([]runlog.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.app == nil {
		return nil, fmt.Errorf("app is required")
	}
	if s.app.runLog == nil {
		return nil, errors.New(errors.CodeNotSupported, "run log is disabled")
	}
	return s.app.runLog.Recent(ctx, limit)
}
