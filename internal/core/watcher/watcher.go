package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"codeindex/internal/engine/enumerate"
	"codeindex/internal/engine/parser"
	"codeindex/internal/shared/observability"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports batches of changed files under one root. Paths handed to
// onChange are root-relative, slash separated and sorted. Directories the
// ignore matcher rejects are never watched.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	root       string
	debounce   time.Duration
	matcher    *enumerate.Matcher
	supported  func(string) bool
	onChange   func([]string)
	callbackMu sync.Mutex

	pending   map[string]struct{}
	pendingMu sync.Mutex
	timer     *time.Timer
}

// NewWatcher prepares a watcher for root. supported decides which file paths
// are worth reporting; nil accepts every language the parser knows.
func NewWatcher(root string, debounce time.Duration, matcher *enumerate.Matcher, supported func(string) bool, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	if supported == nil {
		supported = func(path string) bool { return parser.LanguageForPath(path) != "" }
	}
	if matcher == nil {
		var err error
		if matcher, err = enumerate.NewMatcher(nil); err != nil {
			return nil, err
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsw,
		root:      abs,
		debounce:  debounce,
		matcher:   matcher,
		supported: supported,
		onChange:  onChange,
		pending:   make(map[string]struct{}),
	}, nil
}

// Start registers the tree and processes events until ctx is done or Close
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watchRecursive(w.root); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func (w *Watcher) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			slog.Warn("skipping unreadable directory", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldExcludeDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Op&fsnotify.Create == fsnotify.Create {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.shouldExcludeDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			// A removed or renamed directory is reported by its own path;
			// the indexer expands it to the files it used to hold.
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if rel, ok := w.rel(event.Name); ok && !w.matcher.Ignored(rel, false) {
					w.scheduleChange(rel)
				}
				continue
			}

			if w.shouldExcludeFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if rel, ok := w.rel(event.Name); ok {
					w.scheduleChange(rel)
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleChange(rel string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[rel] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) > 0 {
		sort.Strings(paths)
		w.callbackMu.Lock()
		defer w.callbackMu.Unlock()
		w.onChange(paths)
	}
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	rel, ok := w.rel(path)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	return w.matcher.Ignored(rel, true)
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	rel, ok := w.rel(path)
	if !ok || rel == "." {
		return true
	}
	if !w.supported(rel) {
		return true
	}
	return w.matcher.Ignored(rel, false)
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		if rel, ok := w.rel(path); ok {
			w.scheduleChange(rel)
		}
		return nil
	})
}
