package graph

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// DumpDOT renders the graph (or the subgraph reachable backward from
// roots, if any are given) as a DOT document, for debugging and for the
// lazygraddemo CLI's --dot flag. Each node is labeled with its id, op tag
// and shape; realized nodes are filled.
func (g *Graph) DumpDOT(roots ...ID) (string, error) {
	gv := gographviz.NewGraph()
	if err := gv.SetName("lazygrad"); err != nil {
		return "", err
	}
	if err := gv.SetDir(true); err != nil {
		return "", err
	}

	include := make(map[ID]bool, len(g.nodes))
	if len(roots) == 0 {
		for _, n := range g.nodes {
			include[n.id] = true
		}
	} else {
		var mark func(ID)
		mark = func(id ID) {
			if include[id] {
				return
			}
			include[id] = true
			for _, p := range g.Node(id).Parents {
				mark(p)
			}
		}
		for _, r := range roots {
			mark(r)
		}
	}

	for _, n := range g.nodes {
		if !include[n.id] {
			continue
		}
		name := fmt.Sprintf("n%d", n.id)
		label := fmt.Sprintf("\"#%d %s %v %s\"", n.id, n.Op, n.Shape(), n.Dtype)
		attrs := map[string]string{"label": label}
		if n.Realized {
			attrs["style"] = "filled"
			attrs["fillcolor"] = "lightgrey"
		}
		if n.RequiresGrad {
			attrs["color"] = "blue"
		}
		if err := gv.AddNode("lazygrad", name, attrs); err != nil {
			return "", err
		}
	}
	for _, n := range g.nodes {
		if !include[n.id] {
			continue
		}
		dst := fmt.Sprintf("n%d", n.id)
		for i, p := range n.Parents {
			src := fmt.Sprintf("n%d", p)
			if err := gv.AddEdge(src, dst, true, map[string]string{"label": fmt.Sprintf("%d", i)}); err != nil {
				return "", err
			}
		}
	}
	return gv.String(), nil
}
