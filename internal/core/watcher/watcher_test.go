package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeindex/internal/engine/enumerate"
)

func newTestWatcher(t *testing.T, root string, patterns []string) (*Watcher, chan []string) {
	t.Helper()
	matcher, err := enumerate.NewMatcher(patterns)
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan []string, 8)
	w, err := NewWatcher(root, 100*time.Millisecond, matcher, nil, func(paths []string) {
		changed <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, changed
}

func waitFor(t *testing.T, changed chan []string, want string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case paths := <-changed:
			for _, p := range paths {
				if p == want {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for change to %s", want)
		}
	}
}

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 100*time.Millisecond, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "vendor"), 0o755); err != nil {
		t.Fatal(err)
	}
	w, changed := newTestWatcher(t, root, []string{"vendor/", "*.gen.py"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(root, "app.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed, "app.py")

	for _, name := range []string{"notes.txt", "model.gen.py", filepath.Join("vendor", "lib.py")} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case paths := <-changed:
		t.Fatalf("ignored or unsupported files triggered a change: %v", paths)
	case <-time.After(500 * time.Millisecond):
	}

	// New directory should be recursively watched after create.
	if err := os.MkdirAll(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "pkg", "mod.py"), []byte("y = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed, "pkg/mod.py")
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	root := t.TempDir()
	w, changed := newTestWatcher(t, root, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(root, "old.go")
	if err := os.WriteFile(oldPath, []byte("package main"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed, "old.go")

	if err := os.Rename(oldPath, filepath.Join(root, "new.go")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed, "old.go")
}

func TestWatcher_Filters(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root, []string{"build/"})

	if !w.shouldExcludeFile(filepath.Join(root, "README.txt")) {
		t.Fatal("expected unsupported extension to be excluded")
	}
	if w.shouldExcludeFile(filepath.Join(root, "src", "main.py")) {
		t.Fatal("expected python source to be included")
	}
	if !w.shouldExcludeFile(filepath.Join(root, "build", "out.js")) {
		t.Fatal("expected file under ignored directory to be excluded")
	}
	if !w.shouldExcludeDir(filepath.Join(root, "build")) {
		t.Fatal("expected ignored directory to be pruned")
	}
	if w.shouldExcludeDir(root) {
		t.Fatal("root must never be pruned")
	}
	if !w.shouldExcludeFile(filepath.Join(filepath.Dir(root), "outside.py")) {
		t.Fatal("expected path outside the root to be excluded")
	}
}

func TestWatcher_CustomSupportFilter(t *testing.T) {
	root := t.TempDir()
	onlyPython := func(path string) bool { return filepath.Ext(path) == ".py" }
	w, err := NewWatcher(root, 100*time.Millisecond, nil, onlyPython, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if w.shouldExcludeFile(filepath.Join(root, "main.py")) {
		t.Fatal("expected python source to be included")
	}
	if !w.shouldExcludeFile(filepath.Join(root, "index.js")) {
		t.Fatal("expected filter to reject javascript")
	}
}
