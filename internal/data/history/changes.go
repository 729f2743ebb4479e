package history

import (
	"bufio"
	"bytes"
	"context"
	"sort"
	"strings"

	"codeindex/internal/shared/util"
)

// StaticChanges is an explicit changed-file list, such as the --changed flag.
type StaticChanges []string

func (s StaticChanges) ChangedFiles(context.Context) ([]string, error) {
	return NormalizePaths(s), nil
}

// GitChanges lists files changed since a ref: committed and uncommitted
// differences plus untracked files. Renames arrive as delete + add.
type GitChanges struct {
	root string
	ref  string
	run  runner
}

func NewGitChanges(root, ref string) *GitChanges {
	return &GitChanges{root: root, ref: ref, run: execGit}
}

func (g *GitChanges) ChangedFiles(ctx context.Context) ([]string, error) {
	diff, err := g.run(ctx, g.root, "diff", "--name-only", "--no-renames", "--relative", g.ref, "--")
	if err != nil {
		return nil, err
	}
	untracked, err := g.run(ctx, g.root, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return NormalizePaths(append(splitLines(diff), splitLines(untracked)...)), nil
}

// NormalizePaths cleans, slash-converts, dedupes and sorts paths. Paths that
// climb out of the root are dropped.
func NormalizePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = util.NormalizePatternPath(p)
		if p == "" || p == ".." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func splitLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
