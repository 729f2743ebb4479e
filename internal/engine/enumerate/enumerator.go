package enumerate

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/engine/parser"
)

// Enumerator lists the candidate source files below a root.
type Enumerator struct {
	root     string
	realRoot string
	matcher  *Matcher
}

// New compiles patterns for root. Patterns are applied in order, so callers
// pass defaults first, then configured patterns, then the ignore file.
func New(root string, patterns []string) (*Enumerator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, coreerrors.AddContext(
			coreerrors.Wrap(err, coreerrors.CodeConfig, "resolve root"),
			coreerrors.CtxPath, root,
		)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, coreerrors.AddContext(
			coreerrors.Wrap(err, coreerrors.CodeConfig, "unreadable root"),
			coreerrors.CtxPath, abs,
		)
	}
	if !info.IsDir() {
		return nil, coreerrors.AddContext(
			coreerrors.New(coreerrors.CodeConfig, "root is not a directory"),
			coreerrors.CtxPath, abs,
		)
	}
	realRoot, err := filepath.EvalSymlinks(abs)
	if err != nil {
		realRoot = abs
	}

	matcher, err := NewMatcher(patterns)
	if err != nil {
		return nil, err
	}
	return &Enumerator{root: abs, realRoot: realRoot, matcher: matcher}, nil
}

func (e *Enumerator) Root() string {
	return e.root
}

func (e *Enumerator) Matcher() *Matcher {
	return e.matcher
}

// Accept reports whether a root-relative path would be enumerated, judging
// by ignore rules and extension only.
func (e *Enumerator) Accept(rel string) bool {
	rel = filepath.ToSlash(rel)
	if e.matcher.Ignored(rel, false) {
		return false
	}
	return parser.LanguageForPath(rel) != ""
}

// Enumerate walks the root and returns candidate paths relative to it, slash
// separated and sorted. Ignored directories are never descended.
func (e *Enumerator) Enumerate(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(e.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == e.root {
				return coreerrors.AddContext(
					coreerrors.Wrap(walkErr, coreerrors.CodeConfig, "unreadable root"),
					coreerrors.CtxPath, p,
				)
			}
			slog.Warn("skipping unreadable path", "path", p, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == e.root {
			return nil
		}

		rel, err := filepath.Rel(e.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			if e.acceptSymlink(p, rel) {
				files = append(files, rel)
			}
			return nil
		}
		if d.IsDir() {
			if e.matcher.Match(rel, true) {
				slog.Debug("pruning ignored directory", "path", rel)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if e.matcher.Match(rel, false) || parser.LanguageForPath(rel) == "" {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Symlinked files inside the root are candidates; symlinked directories and
// links escaping the root are not.
func (e *Enumerator) acceptSymlink(abs, rel string) bool {
	target, err := filepath.EvalSymlinks(abs)
	if err != nil {
		slog.Debug("skipping dangling symlink", "path", rel)
		return false
	}
	inside, err := filepath.Rel(e.realRoot, target)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		slog.Debug("skipping symlink outside root", "path", rel, "target", target)
		return false
	}
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if e.matcher.Match(rel, false) {
		return false
	}
	return parser.LanguageForPath(rel) != ""
}
