package graph

import (
	"errors"
	"fmt"
	"sort"
)

var ErrImpactTargetNotFound = errors.New("impact target not found")

type ImpactReport struct {
	TargetPath          string
	DirectImporters     []string
	TransitiveImporters []string
}

type ImpactTargetError struct {
	Target string
}

func (e *ImpactTargetError) Error() string {
	return fmt.Sprintf("%v: %s", ErrImpactTargetNotFound, e.Target)
}

func (e *ImpactTargetError) Unwrap() error {
	return ErrImpactTargetNotFound
}

// AnalyzeImpact splits the files that depend on path into direct importers
// and those reached only through other importers.
func (g *ModuleGraph) AnalyzeImpact(path string) (ImpactReport, error) {
	if !g.HasNode(path) {
		return ImpactReport{}, &ImpactTargetError{Target: path}
	}

	report := ImpactReport{TargetPath: path}
	direct := g.ImportedBy(path)
	report.DirectImporters = direct

	directSet := make(map[string]bool, len(direct))
	for _, importer := range direct {
		directSet[importer] = true
	}

	queue := append([]string(nil), direct...)
	seen := map[string]bool{path: true}
	for _, f := range queue {
		seen[f] = true
	}

	transitive := make([]string, 0)
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, next := range g.importedBy[curr] {
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
			if !directSet[next] {
				transitive = append(transitive, next)
			}
		}
	}
	sort.Strings(transitive)
	report.TransitiveImporters = transitive
	return report, nil
}
