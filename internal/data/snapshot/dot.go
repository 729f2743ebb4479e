package snapshot

import (
	"fmt"
	"strings"

	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"
)

// RenderDOT draws the graph for Graphviz. Internal files sit in one cluster,
// external targets outside it; cycle edges are red and low-confidence edges
// dashed.
func RenderDOT(g *graph.ModuleGraph) string {
	var buf strings.Builder

	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8, penwidth=1.2];\n")
	buf.WriteString("  ranksep=1.5;\n")
	buf.WriteString("  nodesep=0.6;\n")
	buf.WriteString("  overlap=false;\n\n")

	if g == nil {
		buf.WriteString("}\n")
		return buf.String()
	}

	cycleEdges := make(map[[2]string]bool)
	inCycle := make(map[string]bool)
	for _, cycle := range g.Cycles {
		for i, from := range cycle {
			cycleEdges[[2]string{from, cycle[(i+1)%len(cycle)]}] = true
			inCycle[from] = true
		}
	}

	buf.WriteString("  subgraph cluster_internal {\n")
	buf.WriteString("    label=\"Indexed files\";\n")
	buf.WriteString("    style=filled;\n")
	buf.WriteString("    color=\"whitesmoke\";\n")
	buf.WriteString("    node [fillcolor=\"white\", style=\"rounded,filled\"];\n")
	for _, node := range g.InternalNodes() {
		label := fmt.Sprintf("%s\\n(in %d, out %d)", node, g.Inbound(node), g.Outbound(node))
		if inCycle[node] {
			fmt.Fprintf(&buf, "    %q [label=%q, fillcolor=\"mistyrose\", color=\"red\", penwidth=2.0];\n", node, label)
		} else {
			fmt.Fprintf(&buf, "    %q [label=%q, color=\"darkslategrey\"];\n", node, label)
		}
	}
	buf.WriteString("  }\n\n")

	external := g.ExternalNodes()
	if len(external) > 0 {
		buf.WriteString("  node [fillcolor=\"gainsboro\", style=\"rounded,filled\", color=\"grey\"];\n")
		for _, node := range external {
			fmt.Fprintf(&buf, "  %q;\n", node)
		}
		buf.WriteString("\n")
	}

	for _, e := range g.Edges {
		switch {
		case cycleEdges[[2]string{e.From, e.To}]:
			fmt.Fprintf(&buf, "  %q -> %q [color=\"red\", penwidth=3.0, label=\"CYCLE\"];\n", e.From, e.To)
		case e.External():
			fmt.Fprintf(&buf, "  %q -> %q [color=\"grey\"];\n", e.From, e.To)
		case e.Confidence == parser.ConfidenceLow:
			fmt.Fprintf(&buf, "  %q -> %q [color=\"forestgreen\", style=dashed];\n", e.From, e.To)
		default:
			fmt.Fprintf(&buf, "  %q -> %q [color=\"forestgreen\", penwidth=1.8];\n", e.From, e.To)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}
