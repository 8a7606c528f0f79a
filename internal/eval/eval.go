// Package eval implements the engine's evaluator (spec component C5): it
// walks a graph.Graph from a requested node down to its unrealized
// ancestors, in dependency order, and asks the Backend to compute each one
// exactly once. Re-evaluating an already-realized node is a no-op, which
// is what makes repeated .item()/.download() calls on the same Array
// cheap (spec §5's idempotent-materialization contract).
package eval

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/graph"
)

// Materialize realizes id and every unrealized ancestor it depends on,
// via a post-order (parents before children) traversal. It returns the
// realized Storage for id.
func Materialize(g *graph.Graph, b *backend.Backend, id graph.ID) (*backend.Storage, error) {
	visited := make(map[graph.ID]bool)
	var visit func(graph.ID) error
	visit = func(n graph.ID) error {
		if visited[n] || g.Realized(n) {
			return nil
		}
		visited[n] = true
		for _, p := range g.Parents(n) {
			if err := visit(p); err != nil {
				return err
			}
		}
		storage, err := g.Forward(b, n)
		if err != nil {
			return err
		}
		g.SetStorage(n, storage)
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return g.Storage(id), nil
}

// MaterializeAll realizes every id in ids, sharing visited-node state
// across all of them so shared ancestors are only computed once — used
// by internal/autograd to force the whole backward subgraph down to
// concrete numbers before reading gradients off of it.
func MaterializeAll(g *graph.Graph, b *backend.Backend, ids []graph.ID) error {
	visited := make(map[graph.ID]bool)
	var visit func(graph.ID) error
	visit = func(n graph.ID) error {
		if visited[n] || g.Realized(n) {
			return nil
		}
		visited[n] = true
		for _, p := range g.Parents(n) {
			if err := visit(p); err != nil {
				return err
			}
		}
		storage, err := g.Forward(b, n)
		if err != nil {
			return err
		}
		g.SetStorage(n, storage)
		return nil
	}
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
