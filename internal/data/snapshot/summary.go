package snapshot

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

type SummaryOptions struct {
	MaxLines    int
	MaxBytes    int
	TopN        int
	EntryPoints []string // doublestar patterns; empty uses the stem list
}

func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{MaxLines: 500, MaxBytes: 64 * 1024, TopN: 10}
}

var entryStems = map[string]bool{
	"main": true, "app": true, "cli": true, "server": true, "index": true, "__main__": true,
}

type section struct {
	title     string
	body      []string
	mandatory bool
	listed    bool // body is a list that may be shortened
}

func (s section) render() string {
	var b strings.Builder
	b.WriteString("## " + s.title + "\n\n")
	for _, line := range s.body {
		b.WriteString(line + "\n")
	}
	return b.String()
}

// RenderSummary writes the human-readable summary. Sections are listed in
// priority order; when the document is over a limit, whole optional
// sections are dropped from the end and named in a trailing note. If that
// is not enough, the parse-failure list is cut short and the rest counted.
func RenderSummary(snap Snapshot, opts SummaryOptions) string {
	if opts.TopN <= 0 {
		opts.TopN = DefaultSummaryOptions().TopN
	}
	header := renderHeader(snap)
	sections := []section{
		failuresSection(snap),
		treeSection(snap),
		entryPointsSection(snap, opts),
		keyModulesSection(snap, opts),
		recentSection(snap, opts),
		staleSection(snap, opts),
		cyclesSection(snap),
	}

	keep := len(sections)
	var dropped []string
	for {
		doc := assemble(header, sections[:keep], dropped)
		if fits(doc, opts) || keep == 0 {
			return doc
		}
		if sections[keep-1].mandatory {
			if !sections[0].listed {
				return doc
			}
			return fitFailures(header, sections[:keep], dropped, opts)
		}
		keep--
		dropped = append([]string{sections[keep].title}, dropped...)
	}
}

// fitFailures shortens the parse-failures list, the first section, to the
// longest prefix that keeps the document within its limits. The remainder
// is counted on a final line.
func fitFailures(header string, sections []section, dropped []string, opts SummaryOptions) string {
	failures := sections[0]
	entries := failures.body
	withPrefix := func(n int) string {
		trimmed := failures
		trimmed.body = append(append([]string(nil), entries[:n]...),
			fmt.Sprintf("- ... and %d more (see %s)", len(entries)-n, FileStructural))
		return assemble(header, append([]section{trimmed}, sections[1:]...), dropped)
	}
	// fits is monotone in the prefix length
	n := sort.Search(len(entries), func(n int) bool {
		return !fits(withPrefix(n+1), opts)
	})
	return withPrefix(n)
}

func assemble(header string, sections []section, dropped []string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, s := range sections {
		b.WriteString("\n")
		b.WriteString(s.render())
	}
	if len(dropped) > 0 {
		b.WriteString("\n_Sections omitted to fit the size limit: " + strings.Join(dropped, ", ") + "._\n")
	}
	return b.String()
}

func fits(doc string, opts SummaryOptions) bool {
	if opts.MaxBytes > 0 && len(doc) > opts.MaxBytes {
		return false
	}
	if opts.MaxLines > 0 && strings.Count(doc, "\n") > opts.MaxLines {
		return false
	}
	return true
}

func renderHeader(snap Snapshot) string {
	counts := snap.Counts()
	languages := make(map[string]int)
	for _, rec := range snap.Records {
		languages[rec.File.Language]++
	}
	names := make([]string, 0, len(languages))
	for lang := range languages {
		names = append(names, lang)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, lang := range names {
		parts = append(parts, fmt.Sprintf("%s %d", lang, languages[lang]))
	}

	var b strings.Builder
	b.WriteString("# Codebase Index\n\n")
	fmt.Fprintf(&b, "Snapshot v%d (%s run %s), generated %s.\n\n", snap.Version, snap.Mode, snap.RunID, snap.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Files: %d (%d failed, %d skipped)\n", counts.Files, counts.Failed, counts.Skipped)
	if len(parts) > 0 {
		fmt.Fprintf(&b, "- Languages: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "- Graph: %d nodes, %d edges, %d cycles\n", counts.Nodes, counts.Edges, counts.Cycles)
	fmt.Fprintf(&b, "- Stale candidates: %d\n", counts.StaleCandidates)
	return b.String()
}

func sortedPaths(snap Snapshot) []string {
	paths := make([]string, 0, len(snap.Records))
	for p := range snap.Records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func failuresSection(snap Snapshot) section {
	s := section{title: "Parse failures", mandatory: true}
	for _, p := range sortedPaths(snap) {
		rec := snap.Records[p]
		if rec.OK() {
			continue
		}
		s.body = append(s.body, fmt.Sprintf("- `%s`: %s", p, rec.Status))
	}
	s.listed = len(s.body) > 0
	if !s.listed {
		s.body = []string{"None."}
	}
	return s
}

func treeSection(snap Snapshot) section {
	dirs := make(map[string]int)
	for p := range snap.Records {
		dirs[path.Dir(p)]++
	}
	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names)

	s := section{title: "Structure"}
	s.body = append(s.body, "```")
	for _, d := range names {
		depth := 0
		label := "./"
		if d != "." {
			depth = strings.Count(d, "/") + 1
			label = path.Base(d) + "/"
		}
		s.body = append(s.body, fmt.Sprintf("%s%s (%d files)", strings.Repeat("  ", depth), label, dirs[d]))
	}
	s.body = append(s.body, "```")
	return s
}

func isEntryPoint(p string, patterns []string) bool {
	if len(patterns) > 0 {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, p); ok {
				return true
			}
		}
		return false
	}
	base := path.Base(p)
	return entryStems[strings.TrimSuffix(base, path.Ext(base))]
}

func entryPointsSection(snap Snapshot, opts SummaryOptions) section {
	s := section{title: "Entry points"}
	for _, p := range sortedPaths(snap) {
		if isEntryPoint(p, opts.EntryPoints) {
			s.body = append(s.body, fmt.Sprintf("- `%s`", p))
		}
	}
	if len(s.body) == 0 {
		s.body = []string{"None detected."}
	}
	return s
}

func keyModulesSection(snap Snapshot, opts SummaryOptions) section {
	s := section{title: "Key modules"}
	if snap.Graph == nil {
		s.body = []string{"None."}
		return s
	}
	symbols := make(map[string]int, len(snap.Records))
	for p, rec := range snap.Records {
		if !rec.Skipped() {
			symbols[p] = len(rec.Symbols)
		}
	}
	for _, m := range snap.Graph.KeyModules(symbols, opts.TopN) {
		s.body = append(s.body, fmt.Sprintf("- `%s`: %d symbols, imported by %d, imports %d", m.Path, m.Symbols, m.FanIn, m.FanOut))
	}
	if len(s.body) == 0 {
		s.body = []string{"None."}
	}
	return s
}

func recentSection(snap Snapshot, opts SummaryOptions) section {
	type recent struct {
		path string
		at   time.Time
	}
	var files []recent
	for p, rec := range snap.Staleness.Files {
		if rec.LastModified != nil {
			files = append(files, recent{path: p, at: *rec.LastModified})
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].at.Equal(files[j].at) {
			return files[i].path < files[j].path
		}
		return files[i].at.After(files[j].at)
	})
	if len(files) > opts.TopN {
		files = files[:opts.TopN]
	}

	s := section{title: "Recently changed"}
	for _, f := range files {
		s.body = append(s.body, fmt.Sprintf("- `%s` (%s)", f.path, f.at.UTC().Format("2006-01-02")))
	}
	if len(s.body) == 0 {
		s.body = []string{"No history available."}
	}
	return s
}

func staleSection(snap Snapshot, opts SummaryOptions) section {
	s := section{title: "Stale candidates"}
	candidates := snap.Staleness.Candidates
	if len(candidates) > opts.TopN {
		candidates = candidates[:opts.TopN]
	}
	for _, c := range candidates {
		rec := snap.Staleness.Files[c.Path]
		age := "unknown age"
		if rec.DaysSinceModified != nil {
			age = fmt.Sprintf("%d days", *rec.DaysSinceModified)
		}
		s.body = append(s.body, fmt.Sprintf("- `%s`: score %.2f, %s, %d inbound", c.Path, c.Score, age, rec.InboundReferences))
	}
	if rest := len(snap.Staleness.Candidates) - len(candidates); rest > 0 {
		s.body = append(s.body, fmt.Sprintf("- ... and %d more", rest))
	}
	if len(s.body) == 0 {
		s.body = []string{"None."}
	}
	return s
}

func cyclesSection(snap Snapshot) section {
	s := section{title: "Import cycles"}
	if snap.Graph != nil {
		for _, cycle := range snap.Graph.Cycles {
			s.body = append(s.body, "- "+strings.Join(cycle, " -> ")+" -> "+cycle[0])
		}
	}
	if len(s.body) == 0 {
		s.body = []string{"None."}
	}
	return s
}
