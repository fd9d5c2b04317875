package framegraph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteDOT dumps the graph in Graphviz format. Resources are ellipses, passes
// boxes; moves are dashed edges from source to destination. When plan is not
// nil pass labels carry their execution index.
func WriteDOT(w io.Writer, g *Graph, plan *Plan) error {
	bw := bufio.NewWriter(w)

	order := make(map[PassID]int)
	if plan != nil {
		for i, pp := range plan.passes {
			order[pp.Pass] = i
		}
	}

	fmt.Fprintf(bw, "digraph %s {\n", strconv.Quote(g.name))
	fmt.Fprintln(bw, "\trankdir=LR;")
	fmt.Fprintln(bw, "\tnode [fontname=\"Helvetica\"];")
	for _, r := range g.resources {
		fmt.Fprintf(bw, "\tr%d [shape=ellipse, label=%s];\n", r.ID, strconv.Quote(r.Name))
	}
	for _, p := range g.passes {
		label := p.Name
		if i, ok := order[p.ID]; ok {
			label = fmt.Sprintf("%d: %s", i, p.Name)
		}
		fmt.Fprintf(bw, "\tp%d [shape=box, style=filled, fillcolor=\"#e8e8ff\", label=%s];\n", p.ID, strconv.Quote(label))
	}
	for _, p := range g.passes {
		for _, r := range p.Reads {
			fmt.Fprintf(bw, "\tr%d -> p%d;\n", r, p.ID)
		}
		for _, r := range p.Writes {
			fmt.Fprintf(bw, "\tp%d -> r%d [color=\"#c03030\"];\n", p.ID, r)
		}
	}
	for _, m := range g.moves {
		fmt.Fprintf(bw, "\tr%d -> r%d [style=dashed, label=\"move\"];\n", m.Src, m.Dst)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
