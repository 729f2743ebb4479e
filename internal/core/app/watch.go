package app

import (
	"context"
	"fmt"
	"log/slog"

	"codeindex/internal/core/ports"
	"codeindex/internal/core/watcher"
)

type watchService struct {
	app *App
}

var _ ports.WatchService = (*watchService)(nil)

// Watch brings the snapshot up to date, then turns every debounced batch of
// file events into an incremental run. It blocks until ctx is done.
func (s *watchService) Watch(ctx context.Context, handler func(ports.IndexResult, error)) error {
	if s.app == nil {
		return fmt.Errorf("app is required")
	}
	if handler == nil {
		handler = func(ports.IndexResult, error) {}
	}

	en, err := s.app.enumerator()
	if err != nil {
		return err
	}

	handler(s.app.Index(ctx, ports.IndexRequest{Mode: ports.ModeIncremental}))

	w, err := watcher.NewWatcher(s.app.Paths.Root, s.app.Config.Watch.Debounce, en.Matcher(), s.app.codeParser.IsSupportedPath, func(paths []string) {
		if ctx.Err() != nil {
			return
		}
		slog.Debug("change batch", "files", len(paths))
		handler(s.app.Index(ctx, ports.IndexRequest{Mode: ports.ModeIncremental, Changed: paths}))
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Start(ctx); err != nil {
		return err
	}
	slog.Info("watching for changes", "root", s.app.Paths.Root, "debounce", s.app.Config.Watch.Debounce)
	<-ctx.Done()
	return nil
}
