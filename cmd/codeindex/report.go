package main

import (
	"fmt"
	"io"
	"strings"

	"codeindex/internal/core/ports"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	cycleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

func printIndexResult(w io.Writer, r ports.IndexResult, topN int) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("Snapshot v%d promoted", r.Version)))
	mode := string(r.Mode)
	if r.Fallback != "" {
		mode += " (" + r.Fallback + ")"
	}
	fmt.Fprintln(w, statusStyle.Render(fmt.Sprintf("%s run %s in %s", mode, r.RunID, r.Duration.Round(1e6))))
	fmt.Fprintf(w, "Files: %s (%s re-extracted)\n", humanize.Comma(int64(r.Files)), humanize.Comma(int64(r.Reextracted)))
	fmt.Fprintf(w, "Graph: %d nodes, %d edges\n", r.Nodes, r.Edges)
	fmt.Fprintf(w, "Summary: %s\n", humanize.Bytes(uint64(r.SummaryBytes)))
	fmt.Fprintf(w, "Snapshot: %s\n", r.SnapshotDir)

	if len(r.Failed) > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d files not parsed:", len(r.Failed))))
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  %s: %s", f.Path, f.Status)
			if f.Reason != "" {
				fmt.Fprintf(w, " (%s)", f.Reason)
			}
			fmt.Fprintln(w)
		}
	}
	if len(r.Cycles) > 0 {
		fmt.Fprintln(w, cycleStyle.Render(fmt.Sprintf("%d import cycles:", len(r.Cycles))))
		for _, c := range r.Cycles {
			fmt.Fprintf(w, "  %s -> %s\n", strings.Join(c, " -> "), c[0])
		}
	}
	if len(r.StaleCandidates) > 0 {
		fmt.Fprintf(w, "Stale candidates: %d\n", len(r.StaleCandidates))
		for i, c := range r.StaleCandidates {
			if topN > 0 && i >= topN {
				fmt.Fprintln(w, statusStyle.Render(fmt.Sprintf("  ... %d more", len(r.StaleCandidates)-topN)))
				break
			}
			fmt.Fprintf(w, "  %s (%.2f)\n", c.Path, c.Score)
		}
	}
}

func printList(w io.Writer, title string, items []string) {
	fmt.Fprintf(w, "%s (%d):\n", title, len(items))
	if len(items) == 0 {
		fmt.Fprintln(w, statusStyle.Render("  none"))
		return
	}
	for _, item := range items {
		fmt.Fprintf(w, "  %s\n", item)
	}
}
