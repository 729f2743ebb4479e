package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"codeindex/internal/engine/parser"
	"codeindex/internal/shared/observability"
)

// extract parses paths on a bounded worker pool. Results are keyed by path,
// so scheduling order never shows in the output. A cancelled context stops
// the feed and discards the partial result.
func (a *App) extract(ctx context.Context, paths []string) (map[string]parser.FactRecord, error) {
	results := make(map[string]parser.FactRecord, len(paths))
	if len(paths) == 0 {
		return results, ctx.Err()
	}

	workers := a.Config.Extract.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := a.limiter.Wait(ctx, 1); err != nil {
					continue
				}
				rec := a.extractFile(rel)
				mu.Lock()
				results[rel] = rec
				mu.Unlock()
			}
		}()
	}

feed:
	for _, rel := range paths {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- rel:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *App) extractFile(rel string) parser.FactRecord {
	start := time.Now()
	rec := a.codeParser.ParsePath(a.Paths.Root, rel)
	language := rec.File.Language
	if language == "" {
		language = "unknown"
	}
	observability.ParsingDuration.WithLabelValues(language).Observe(time.Since(start).Seconds())
	observability.FilesParsed.WithLabelValues(language, string(rec.Status.Kind)).Inc()

	switch rec.Status.Kind {
	case parser.StatusFailed:
		slog.Warn("failed to parse file", "path", rel, "error", rec.Status.Reason)
	case parser.StatusSkipped:
		slog.Debug("skipped file", "path", rel, "reason", rec.Status.Reason)
	}
	return rec
}
