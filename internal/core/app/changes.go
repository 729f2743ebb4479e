package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/core/ports"
	"codeindex/internal/data/history"
	"codeindex/internal/engine/parser"
)

// runPlan is what a run extracts and what it carries over from the prior
// snapshot.
type runPlan struct {
	mode     ports.Mode
	fallback string
	carried  map[string]parser.FactRecord
	extract  []string
}

// plan decides between a full run and an incremental one. Any problem with
// the prior snapshot or the changed-file source degrades to a full run.
func (a *App) plan(ctx context.Context, req ports.IndexRequest, files []string) runPlan {
	full := runPlan{mode: ports.ModeFull, carried: map[string]parser.FactRecord{}, extract: files}
	if req.Mode != ports.ModeIncremental {
		return full
	}

	prior, err := a.store.Load()
	if err != nil {
		full.fallback = describeLoadFailure(err)
		slog.Info("incremental run falling back to full run", "reason", full.fallback)
		return full
	}

	changed, err := a.changedFiles(ctx, req, files, prior.Records)
	if err != nil {
		full.fallback = fmt.Sprintf("changed files unavailable: %v", err)
		slog.Info("incremental run falling back to full run", "reason", full.fallback)
		return full
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	carried := make(map[string]parser.FactRecord, len(prior.Records))
	for p, rec := range prior.Records {
		carried[p] = rec
	}

	var extract []string
	for _, p := range expandRemovedDirs(changed, present, prior.Records) {
		if present[p] {
			extract = append(extract, p)
			continue
		}
		// missing, ignored or no longer a candidate
		delete(carried, p)
	}
	slog.Debug("incremental plan", "changed", len(changed), "extract", len(extract), "carried", len(carried)-len(extract))
	return runPlan{mode: ports.ModeIncremental, carried: carried, extract: extract}
}

func describeLoadFailure(err error) string {
	switch {
	case coreerrors.IsCode(err, coreerrors.CodeNotFound):
		return "no prior snapshot"
	case coreerrors.IsCode(err, coreerrors.CodeValidationError):
		return fmt.Sprintf("prior snapshot rejected: %v", err)
	default:
		return fmt.Sprintf("prior snapshot unreadable: %v", err)
	}
}

func (a *App) changedFiles(ctx context.Context, req ports.IndexRequest, files []string, prior map[string]parser.FactRecord) ([]string, error) {
	var source ports.ChangeSource
	switch {
	case req.Changed != nil:
		source = history.StaticChanges(req.Changed)
	case strings.TrimSpace(req.Since) != "":
		source = a.since(a.Paths.Root, strings.TrimSpace(req.Since))
	default:
		return a.hashChanges(ctx, files, prior)
	}
	return source.ChangedFiles(ctx)
}

// hashChanges compares the enumerated tree against the prior records:
// added, modified and removed files are all reported.
func (a *App) hashChanges(ctx context.Context, files []string, prior map[string]parser.FactRecord) ([]string, error) {
	present := make(map[string]bool, len(files))
	var changed []string
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		present[rel] = true
		rec, ok := prior[rel]
		if !ok {
			changed = append(changed, rel)
			continue
		}
		hash, err := parser.HashFile(filepath.Join(a.Paths.Root, filepath.FromSlash(rel)))
		if err != nil || hash != rec.File.Hash {
			changed = append(changed, rel)
		}
	}
	for p := range prior {
		if !present[p] {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// expandRemovedDirs replaces a changed path that names a directory of prior
// records with those records, so a removed directory drops its files.
func expandRemovedDirs(changed []string, present map[string]bool, prior map[string]parser.FactRecord) []string {
	seen := make(map[string]bool, len(changed))
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range changed {
		add(p)
		if present[p] {
			continue
		}
		if _, ok := prior[p]; ok {
			continue
		}
		prefix := p + "/"
		for q := range prior {
			if strings.HasPrefix(q, prefix) {
				add(q)
			}
		}
	}
	sort.Strings(out)
	return out
}
