package graph

import (
	"path"
	"sort"
	"strings"
)

// CalculateImportanceScore ranks a file's structural weight:
//
//	Score = (FanIn * 2) + (FanOut * 1) + (Symbols * 0.5) + (IsAPI ? 10 : 0)
func CalculateImportanceScore(fanIn, fanOut, symbols int, file string) float64 {
	score := float64(fanIn*2) + float64(fanOut) + float64(symbols)*0.5
	if isAPIModule(file) {
		score += 10
	}
	return score
}

func isAPIModule(file string) bool {
	lower := strings.ToLower(strings.TrimSuffix(file, path.Ext(file)))
	keywords := []string{"api", "gateway", "handler", "server", "service"}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type KeyModule struct {
	Path    string
	FanIn   int
	FanOut  int
	Symbols int
	Score   float64
}

// KeyModules returns the n highest scoring files. symbolCounts supplies the
// candidate set; ties break on path.
func (g *ModuleGraph) KeyModules(symbolCounts map[string]int, n int) []KeyModule {
	if n <= 0 {
		return nil
	}
	modules := make([]KeyModule, 0, len(symbolCounts))
	for file, symbols := range symbolCounts {
		m := KeyModule{
			Path:    file,
			FanIn:   g.Inbound(file),
			FanOut:  g.Outbound(file),
			Symbols: symbols,
		}
		m.Score = CalculateImportanceScore(m.FanIn, m.FanOut, m.Symbols, file)
		if m.Score == 0 {
			continue
		}
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Score == modules[j].Score {
			return modules[i].Path < modules[j].Path
		}
		return modules[i].Score > modules[j].Score
	})
	if len(modules) > n {
		modules = modules[:n]
	}
	return modules
}
