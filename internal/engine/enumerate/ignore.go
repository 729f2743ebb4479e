package enumerate

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path"
	"strings"

	coreerrors "codeindex/internal/core/errors"

	"github.com/gobwas/glob"
)

var defaultPatterns = []string{
	".git/",
	"__pycache__/",
	".venv/",
	"venv/",
	"node_modules/",
	".pytest_cache/",
	".mypy_cache/",
	".ruff_cache/",
	"*.egg-info/",
	"dist/",
	"build/",
	".tox/",
	"htmlcov/",
	".archive/",
}

// DefaultPatterns returns the built-in ignore list. outputDir, when it lies
// inside the root, is ignored too so snapshots never index themselves.
func DefaultPatterns(outputDir string) []string {
	patterns := append([]string(nil), defaultPatterns...)
	if p := OutputPattern(outputDir); p != "" {
		patterns = append(patterns, p)
	}
	return patterns
}

// OutputPattern returns an anchored directory pattern for a root-relative
// output directory, or "" when the directory lies outside the root.
func OutputPattern(outputDir string) string {
	outputDir = strings.Trim(path.Clean(strings.ReplaceAll(outputDir, "\\", "/")), "/")
	if outputDir == "" || outputDir == "." || outputDir == ".." || strings.HasPrefix(outputDir, "../") {
		return ""
	}
	return "/" + outputDir + "/"
}

// ReadIgnoreFile returns the raw lines of an ignore file. A missing file
// yields no patterns.
func ReadIgnoreFile(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, coreerrors.AddContext(
			coreerrors.Wrap(err, coreerrors.CodeConfig, "read ignore file"),
			coreerrors.CtxPath, file,
		)
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, nil
}

type rule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
	globs    []glob.Glob
}

func (r rule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	target := rel
	if !r.anchored {
		target = path.Base(rel)
	}
	for _, g := range r.globs {
		if g.Match(target) {
			return true
		}
	}
	return false
}

// Matcher applies gitignore-style rules to slash separated paths relative to
// the root. The last matching rule wins.
type Matcher struct {
	rules []rule
}

// NewMatcher compiles patterns in order. Blank lines and comments are
// dropped; a malformed glob is a config error.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		r, ok, err := compileRule(raw)
		if err != nil {
			return nil, err
		}
		if ok {
			m.rules = append(m.rules, r)
		}
	}
	return m, nil
}

func compileRule(raw string) (rule, bool, error) {
	line := strings.TrimRight(raw, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false, nil
	}

	r := rule{pattern: line}
	if strings.HasPrefix(line, `\#`) || strings.HasPrefix(line, `\!`) {
		line = line[1:]
	} else if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	} else if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return rule{}, false, nil
	}

	exprs := []string{line}
	// "**/x" also matches x at the root.
	if r.anchored && strings.HasPrefix(line, "**/") {
		exprs = append(exprs, strings.TrimPrefix(line, "**/"))
	}
	for _, expr := range exprs {
		g, err := glob.Compile(expr, '/')
		if err != nil {
			return rule{}, false, coreerrors.AddContext(
				coreerrors.Wrap(err, coreerrors.CodeConfig, "malformed ignore pattern"),
				coreerrors.CtxPattern, raw,
			)
		}
		r.globs = append(r.globs, g)
	}
	return r, true, nil
}

// Match reports whether rel itself is ignored, without looking at its parent
// directories.
func (m *Matcher) Match(rel string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// Ignored reports whether rel or any of its parent directories is ignored.
// A file below an ignored directory cannot be re-included.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	rel = strings.Trim(path.Clean(rel), "/")
	if rel == "." || rel == "" {
		return false
	}
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if m.Match(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return m.Match(rel, isDir)
}
