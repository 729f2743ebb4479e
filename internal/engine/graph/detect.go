package graph

import (
	"sort"
	"strings"
)

const (
	unvisited = iota
	inProgress
	done
)

// maxCycles bounds elementary cycle enumeration on pathological graphs.
const maxCycles = 10000

// DetectCycles runs a coloured DFS over high-confidence internal edges. Every
// back edge yields one cycle, rotated so its smallest node comes first. Each
// strongly connected component holding such a cycle is then searched for
// its remaining elementary cycles, so a cycle closing through an already
// finished node is reported too. The result is deduplicated and sorted.
func (g *ModuleGraph) DetectCycles() [][]string {
	state := make(map[string]int)
	seen := make(map[string]bool)
	var cycles [][]string
	var stack []string

	record := func(cycle []string) bool {
		key := strings.Join(cycle, "\x00")
		if seen[key] {
			return false
		}
		seen[key] = true
		cycles = append(cycles, cycle)
		return true
	}

	var visit func(node string)
	visit = func(node string) {
		state[node] = inProgress
		stack = append(stack, node)

		for _, next := range g.strong[node] {
			switch state[next] {
			case unvisited:
				visit(next)
			case inProgress:
				start := len(stack) - 1
				for start >= 0 && stack[start] != next {
					start--
				}
				record(rotate(append([]string(nil), stack[start:]...)))
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = done
	}

	for _, node := range g.Nodes {
		if state[node] == unvisited && len(g.strong[node]) > 0 {
			visit(node)
		}
	}

	if len(cycles) > 0 {
		onCycle := make(map[string]bool)
		for _, c := range cycles {
			for _, n := range c {
				onCycle[n] = true
			}
		}
		for _, comp := range g.stronglyConnected() {
			if len(comp) > 1 && onCycle[comp[0]] {
				g.elementaryCycles(comp, record)
			}
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return lessPath(cycles[i], cycles[j])
	})
	return cycles
}

// stronglyConnected returns the components of the high-confidence subgraph
// (Tarjan), each sorted.
func (g *ModuleGraph) stronglyConnected() [][]string {
	index := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var comps [][]string
	next := 0

	var connect func(v string)
	connect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.strong[v] {
			if _, ok := index[w]; !ok {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			comps = append(comps, comp)
		}
	}

	for _, node := range g.Nodes {
		if _, ok := index[node]; !ok && len(g.strong[node]) > 0 {
			connect(node)
		}
	}
	return comps
}

// elementaryCycles enumerates the simple cycles of one component. Searching
// from each start only through larger nodes yields every cycle once, already
// rotated to its smallest node.
func (g *ModuleGraph) elementaryCycles(comp []string, record func([]string) bool) {
	member := make(map[string]bool, len(comp))
	for _, n := range comp {
		member[n] = true
	}
	found := 0
	onPath := make(map[string]bool)
	var path []string

	var search func(start, node string)
	search = func(start, node string) {
		path = append(path, node)
		onPath[node] = true
		for _, next := range g.strong[node] {
			if found >= maxCycles {
				break
			}
			switch {
			case !member[next] || next < start:
			case next == start:
				if record(append([]string(nil), path...)) {
					found++
				}
			case !onPath[next]:
				search(start, next)
			}
		}
		onPath[node] = false
		path = path[:len(path)-1]
	}

	for _, start := range comp {
		if found >= maxCycles {
			return
		}
		search(start, start)
	}
}

func rotate(cycle []string) []string {
	lo := 0
	for i, n := range cycle {
		if n < cycle[lo] {
			lo = i
		}
	}
	return append(cycle[lo:], cycle[:lo]...)
}

func lessPath(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// FindImportChain returns the shortest import path between two internal
// files, following edges of either confidence.
func (g *ModuleGraph) FindImportChain(from, to string) ([]string, bool) {
	if !g.HasNode(from) || !g.HasNode(to) {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	queue := []string{from}
	visited := map[string]bool{from: true}
	prev := make(map[string]string)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, next := range g.imports[curr] {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = curr

			if next == to {
				path := []string{to}
				for node := to; node != from; {
					node = prev[node]
					path = append(path, node)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}

			queue = append(queue, next)
		}
	}

	return nil, false
}
