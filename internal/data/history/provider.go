package history

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/core/ports"
)

// FSProvider reports filesystem modification times.
type FSProvider struct {
	root string
}

func NewFSProvider(root string) *FSProvider {
	return &FSProvider{root: root}
}

func (f *FSProvider) Name() string { return "fs" }

func (f *FSProvider) LastModified(_ context.Context, p string) (time.Time, bool) {
	info, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(p)))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime().UTC(), true
}

// ChainProvider asks each provider in turn; the first known answer wins.
type ChainProvider struct {
	providers []ports.HistoryProvider
}

func NewChainProvider(providers ...ports.HistoryProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (c *ChainProvider) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}

func (c *ChainProvider) Preload(ctx context.Context, paths []string) error {
	for _, p := range c.providers {
		pre, ok := p.(ports.Preloader)
		if !ok {
			continue
		}
		if err := pre.Preload(ctx, paths); err != nil {
			slog.Debug("history preload failed", "provider", p.Name(), "error", err)
		}
	}
	return nil
}

func (c *ChainProvider) LastModified(ctx context.Context, p string) (time.Time, bool) {
	for _, provider := range c.providers {
		if t, ok := provider.LastModified(ctx, p); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// New selects a provider by kind: "git", "fs" or "auto" (git falling back
// to filesystem times, or filesystem alone outside a repository).
func New(ctx context.Context, kind, root string) (ports.HistoryProvider, error) {
	switch kind {
	case "fs":
		return NewFSProvider(root), nil
	case "git":
		return NewGitProvider(root), nil
	case "", "auto":
		if IsGitRepo(ctx, root) {
			return NewChainProvider(NewGitProvider(root), NewFSProvider(root)), nil
		}
		slog.Debug("not a git work tree, using filesystem times", "root", root)
		return NewFSProvider(root), nil
	default:
		return nil, coreerrors.Newf(coreerrors.CodeConfig, "unknown history provider %q", kind)
	}
}
