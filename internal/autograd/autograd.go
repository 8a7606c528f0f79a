// Package autograd implements reverse-mode differentiation (spec
// component C6): Backward walks the subgraph of nodes that require a
// gradient, in reverse topological (descending id) order, applying each
// node's VJP rule and accumulating contributions into its parents'
// gradients. Calling Backward twice on the same root accumulates into the
// existing .Grad fields rather than overwriting them (spec §4.6, §9a),
// matching the reference implementation's repeated-backward-accumulates
// contract.
package autograd

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/eval"
	"github.com/example/lazygrad/internal/graph"
	"github.com/example/lazygrad/internal/lazyerr"
)

// Backward differentiates root (which must be a scalar, i.e. shape with
// NumElements()==1, per spec §4.6) with respect to every node that
// requires a gradient and is reachable from it. It realizes root first
// (backward implies forward), seeds root's gradient with ones_like(root),
// propagates contributions in reverse topological order, and stores the
// final accumulated gradient on each node's Grad field.
func Backward(g *graph.Graph, b *backend.Backend, root graph.ID) error {
	if _, err := eval.Materialize(g, b, root); err != nil {
		return err
	}
	if n := g.Node(root).Shape().NumElements(); n != 1 {
		return lazyerr.Newf(lazyerr.ShapeMismatch, "backward", "backward() requires a scalar root, got shape %v", g.Node(root).Shape())
	}

	requiresGradSet := reachableRequiringGrad(g, root)
	if !requiresGradSet[root] {
		return lazyerr.New(lazyerr.NonDifferentiable, "backward", "root does not require grad")
	}

	ordered := make([]graph.ID, 0, len(requiresGradSet))
	for id := range requiresGradSet {
		ordered = append(ordered, id)
	}
	// descending id order is a valid reverse topological order since
	// parent ids are always strictly less than child ids (spec §3).
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j] > ordered[i] {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	// gradMap holds only this pass's fresh contributions. Seeding it from
	// each node's pre-existing .Grad would feed that historical total back
	// into the VJP walk as if it were live flow, double-applying it on any
	// repeated Backward() call over a graph deeper than one hop. Prior
	// .Grad is folded in exactly once, after the traversal, below.
	gradMap := make(map[graph.ID]graph.ID, len(ordered))

	seed, err := g.Build(graph.OpOnesLike, nil, root)
	if err != nil {
		return err
	}
	gradMap[root] = seed

	for _, id := range ordered {
		contribID, ok := gradMap[id]
		if !ok {
			continue
		}
		if !g.Differentiable(id) || len(g.Parents(id)) == 0 {
			continue
		}
		contribs, err := g.VJP(id, contribID)
		if err != nil {
			return err
		}
		parents := g.Parents(id)
		for parentIdx, contrib := range contribs {
			p := parents[parentIdx]
			if !requiresGradSet[p] {
				continue
			}
			gradMap[p] = accumulate2(g, gradMap, p, contrib)
		}
	}

	outputs := make([]graph.ID, 0, len(gradMap))
	for id, contrib := range gradMap {
		total := accumulate(g, g.Node(id).Grad, contrib)
		outputs = append(outputs, total)
		g.Node(id).Grad = total
	}
	return eval.MaterializeAll(g, b, outputs)
}

func accumulate2(g *graph.Graph, gradMap map[graph.ID]graph.ID, id graph.ID, contrib graph.ID) graph.ID {
	existing, ok := gradMap[id]
	if !ok {
		return contrib
	}
	sum, err := g.Build(graph.OpAdd, nil, existing, contrib)
	if err != nil {
		// graph.Build only fails on shape/dtype mismatch, which cannot
		// happen here since both operands already carry id's shape/dtype.
		panic(err)
	}
	return sum
}

func accumulate(g *graph.Graph, existing graph.ID, contrib graph.ID) graph.ID {
	if existing == 0 {
		return contrib
	}
	sum, err := g.Build(graph.OpAdd, nil, existing, contrib)
	if err != nil {
		panic(err)
	}
	return sum
}

// reachableRequiringGrad returns the set of ancestor nodes of root
// (inclusive) whose RequiresGrad flag is set, i.e. exactly the subgraph
// Backward needs to traverse.
func reachableRequiringGrad(g *graph.Graph, root graph.ID) map[graph.ID]bool {
	set := make(map[graph.ID]bool)
	var visit func(graph.ID)
	visit = func(id graph.ID) {
		n := g.Node(id)
		if !n.RequiresGrad || set[id] {
			return
		}
		set[id] = true
		for _, p := range n.Parents {
			visit(p)
		}
	}
	visit(root)
	return set
}
