package config

import (
	"os"
	"path/filepath"
	"strings"

	coreerrors "codeindex/internal/core/errors"
)

type ResolvedPaths struct {
	Root            string
	OutputDir       string
	IgnoreFile      string
	RunLogPath      string
	MetricsTextfile string
}

// ResolvePaths turns the configured paths into absolute, cleaned paths. Root
// is resolved against cwd; everything else against root, except the run log
// which lives inside the output directory.
func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, coreerrors.New(coreerrors.CodeConfig, "cwd must not be empty")
	}

	root := ResolveRelative(cwd, cfg.Paths.Root)
	info, err := os.Stat(root)
	if err != nil {
		return ResolvedPaths{}, coreerrors.AddContext(coreerrors.Wrap(err, coreerrors.CodeConfig, "project root"), coreerrors.CtxPath, root)
	}
	if !info.IsDir() {
		return ResolvedPaths{}, coreerrors.Newf(coreerrors.CodeConfig, "project root %s is not a directory", root)
	}

	outputDir := ResolveRelative(root, cfg.Paths.OutputDir)
	resolved := ResolvedPaths{
		Root:       root,
		OutputDir:  outputDir,
		IgnoreFile: ResolveRelative(root, cfg.Ignore.File),
		RunLogPath: ResolveRelative(outputDir, cfg.RunLog.Path),
	}
	if strings.TrimSpace(cfg.Observability.MetricsTextfile) != "" {
		resolved.MetricsTextfile = ResolveRelative(root, cfg.Observability.MetricsTextfile)
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// FindConfigFile walks up from start looking for codeindex.toml, stopping at
// the first directory that holds a .git entry. It returns "" when none is
// found.
func FindConfigFile(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	for {
		candidate := filepath.Join(dir, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
