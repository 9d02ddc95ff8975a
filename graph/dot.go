package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/ndoll1998/cgrad/optable"
)

// WriteDOT writes a Graphviz DOT dump of the subgraph reachable from
// target — node id, op name, shape, and edges labeled with their slot
// number — to w. Debug helper only; no part of the core API depends on
// it (spec.md §6: "an optional DOT-format dump ... is a debug helper"),
// adapted from the teacher's VisualizeProblem.
func (g *Graph) WriteDOT(w io.Writer, target NodeID) error {
	const op = "graph.WriteDOT"
	g.mu.Lock()
	defer g.mu.Unlock()

	order, err := g.topoOrderLocked(target)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("digraph cgrad {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Arial\"];\n\n")

	for _, id := range order {
		n := g.nodes[id]
		color := "white"
		switch {
		case n.Op == optable.Leaf:
			color = "lightgreen"
		case id == target:
			color = "lightblue"
		}
		shape := "?"
		if n.Storage != nil {
			shape = fmt.Sprintf("%v", n.Storage.Shape())
		}
		label := fmt.Sprintf("#%d\\n%s\\nshape=%s\\n%s", id, n.Op, shape, n.State())
		fmt.Fprintf(&sb, "  N%d [label=\"%s\", fillcolor=\"%s\"];\n", id, label, color)
	}
	sb.WriteString("\n")
	for _, id := range order {
		n := g.nodes[id]
		for slot, inID := range n.Inputs {
			fmt.Fprintf(&sb, "  N%d -> N%d [label=\"slot %d\"];\n", inID, id, slot)
		}
	}
	sb.WriteString("}\n")

	_, err = io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
