package history

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	coreerrors "codeindex/internal/core/errors"
)

// runner executes git in dir and returns stdout.
type runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

func execGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, coreerrors.AddContext(
			coreerrors.Wrap(err, coreerrors.CodeIO, "git "+args[0]+": "+strings.TrimSpace(stderr.String())),
			coreerrors.CtxOperation, strings.Join(args, " "),
		)
	}
	return stdout.Bytes(), nil
}

// IsGitAvailable reports whether the git binary is on PATH.
func IsGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsGitRepo reports whether root lies inside a git work tree.
func IsGitRepo(ctx context.Context, root string) bool {
	if !IsGitAvailable() {
		return false
	}
	out, err := execGit(ctx, root, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// GitProvider reads commit timestamps. Paths are relative to root, which may
// be a subdirectory of the repository.
type GitProvider struct {
	root string
	run  runner

	mu    sync.Mutex
	times map[string]time.Time
}

func NewGitProvider(root string) *GitProvider {
	return &GitProvider{root: root, run: execGit, times: make(map[string]time.Time)}
}

func (g *GitProvider) Name() string { return "git" }

// Preload replaces the cache with a single log pass, so every run sees the
// history as of that run. The newest commit touching a path wins. On
// failure the cache is emptied and paths are looked up one by one.
func (g *GitProvider) Preload(ctx context.Context, _ []string) error {
	out, err := g.run(ctx, g.root, "log", "--format=COMMIT:%ct", "--name-only", "--relative", "--no-renames", "--", ".")
	times := map[string]time.Time{}
	if err == nil {
		times = parseNameOnlyLog(out)
	}

	g.mu.Lock()
	g.times = times
	g.mu.Unlock()
	return err
}

// LastModified returns the last commit time of path. Paths missing from the
// batch pass are looked up individually with --follow so renamed files keep
// their history.
func (g *GitProvider) LastModified(ctx context.Context, p string) (time.Time, bool) {
	g.mu.Lock()
	t, ok := g.times[p]
	g.mu.Unlock()
	if ok {
		return t, !t.IsZero()
	}

	out, err := g.run(ctx, g.root, "log", "-1", "--follow", "--format=%ct", "--", p)
	if err != nil {
		return time.Time{}, false
	}
	t, ok = parseUnix(strings.TrimSpace(string(out)))

	g.mu.Lock()
	g.times[p] = t // a zero time caches "unknown"
	g.mu.Unlock()
	return t, ok
}

func parseNameOnlyLog(out []byte) map[string]time.Time {
	times := make(map[string]time.Time)
	var current time.Time
	var valid bool
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ts, found := strings.CutPrefix(line, "COMMIT:"); found {
			current, valid = parseUnix(ts)
			continue
		}
		if !valid {
			continue
		}
		p := path.Clean(line)
		if _, seen := times[p]; !seen {
			times[p] = current
		}
	}
	return times
}

func parseUnix(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
