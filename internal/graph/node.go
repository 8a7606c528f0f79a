// Package graph implements the engine's expression DAG (spec component C3)
// together with its op catalogue (spec component C4): an append-only
// arena of Nodes keyed by monotone ids, where node construction validates
// shapes/dtypes eagerly and never triggers computation.
//
// The op catalogue lives in this same package, not a separate one,
// because every op's shape rule, forward evaluator and VJP rule all need
// to construct or inspect Nodes directly — splitting them across a
// package boundary would just reintroduce the same coupling through an
// exported interface. eval and autograd, which only ever need to ask "what
// are the parents of this node" and "realize" / "differentiate" it, stay
// separate packages and talk to this one through the Graph methods below.
package graph

import (
	"fmt"

	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

// ID is a node's stable, monotonically increasing identifier. Since the
// arena is append-only and every parent must already exist before a child
// is constructed, id order equals a valid topological order. 0 is never
// assigned to a real node; it is the "no gradient yet" sentinel used by
// Node.Grad.
type ID int

// Op tags a node with the primitive operation that produced it.
type Op string

// Node is one vertex of the expression DAG (spec §3). Nodes are immutable
// once constructed except for two fields set later in their life:
// Storage/Realized (once, on first evaluation) and Grad (on each
// backward call, see internal/autograd).
type Node struct {
	id           ID
	Op           Op
	Attrs        map[string]any
	Parents      []ID
	View         shape.View
	Dtype        dtype.Dtype
	RequiresGrad bool

	Realized bool
	Storage  *backend.Storage
	Grad     ID
}

// ID returns the node's stable identifier.
func (n *Node) ID() ID { return n.id }

// Shape is a convenience accessor for the node's logical shape.
func (n *Node) Shape() shape.Shape { return n.View.Shape }

// IsLeaf reports whether n has no parent edges.
func (n *Node) IsLeaf() bool { return len(n.Parents) == 0 }

// Graph is the append-only arena described in spec §3/§4.3. It is scoped
// to a Backend session: callers construct one Graph per backend.Scope and
// discard it on Cleanup.
type Graph struct {
	backend *backend.Backend
	nodes   []*Node
}

// New creates an empty Graph bound to b. b must already be initialized
// — neither Graph nor the root-level Array facade checks this when a node
// is built, so building nodes succeeds outside an active scope; the
// BackendUninitialized error surfaces only when evaluation asks the
// Backend to allocate or compute.
func New(b *backend.Backend) *Graph {
	return &Graph{backend: b}
}

// Len returns the number of nodes currently in the arena.
func (g *Graph) Len() int { return len(g.nodes) }

// Node looks up a node by id. It panics on an invalid id, since ids are
// only ever handed out by this Graph and never crafted by callers — an
// invalid id is a programming error, not a user-facing failure mode.
func (g *Graph) Node(id ID) *Node {
	if id < 1 || int(id) > len(g.nodes) {
		panic(fmt.Sprintf("graph: invalid node id %d", id))
	}
	return g.nodes[id-1]
}

// Parents returns the parent ids of id, in operand order.
func (g *Graph) Parents(id ID) []ID { return g.Node(id).Parents }

// Build validates and appends a new node for op over parents, using attrs
// for any op-specific metadata (reduction axes, permutation, slice specs,
// ...). Shape/dtype validation happens here, eagerly, per the engine's
// construction-time error-propagation contract (spec §7).
func (g *Graph) Build(op Op, attrs map[string]any, parents ...ID) (ID, error) {
	entry, ok := catalogue[op]
	if !ok {
		return 0, lazyerr.Newf(lazyerr.DtypeUnsupported, string(op), "unregistered op")
	}
	parentNodes := make([]*Node, len(parents))
	for i, p := range parents {
		parentNodes[i] = g.Node(p)
	}
	view, dt, err := entry.Shape(parentNodes, attrs)
	if err != nil {
		return 0, err
	}
	requiresGrad := false
	if entry.Differentiable {
		for _, p := range parentNodes {
			if p.RequiresGrad {
				requiresGrad = true
				break
			}
		}
	}
	n := &Node{
		id:           ID(len(g.nodes) + 1),
		Op:           op,
		Attrs:        attrs,
		Parents:      append([]ID(nil), parents...),
		View:         view,
		Dtype:        dt,
		RequiresGrad: requiresGrad,
	}
	g.nodes = append(g.nodes, n)
	return n.id, nil
}

// Leaf appends an external leaf node (a constructor: zeros/ones/full/
// arange/from_numpy) that carries its materialization recipe in attrs and
// has no parent edges. Leaves default to requiresGrad=true, per spec §4.3
// ("leaf tensors materialized from external buffers have requires_grad =
// true by default... parameters are by convention leaves").
func (g *Graph) Leaf(op Op, attrs map[string]any, view shape.View, dt dtype.Dtype, requiresGrad bool) (ID, error) {
	entry, ok := catalogue[op]
	if !ok {
		return 0, lazyerr.Newf(lazyerr.DtypeUnsupported, string(op), "unregistered constructor op")
	}
	_ = entry
	n := &Node{
		id:           ID(len(g.nodes) + 1),
		Op:           op,
		Attrs:        attrs,
		View:         view,
		Dtype:        dt,
		RequiresGrad: requiresGrad,
	}
	g.nodes = append(g.nodes, n)
	return n.id, nil
}

// Detach appends a node that shares its parent's realized value but
// exposes no autograd edge: requires_grad is forced false. detach is
// modeled as its own op ("detach") whose single parent is retained in
// Parents only for forward evaluation, never for gradient propagation
// (the catalogue entry for "detach" is simply non-differentiable).
func (g *Graph) Detach(id ID) (ID, error) {
	return g.Build(OpDetach, nil, id)
}

// Realized reports whether id's Storage has already been computed.
func (g *Graph) Realized(id ID) bool { return g.Node(id).Realized }

// Storage returns id's realized Storage, or nil if not yet realized.
func (g *Graph) Storage(id ID) *backend.Storage { return g.Node(id).Storage }

// SetStorage marks id realized with the given Storage. Idempotent: called
// once per node by the evaluator.
func (g *Graph) SetStorage(id ID, s *backend.Storage) {
	n := g.Node(id)
	n.Storage = s
	n.Realized = true
}

// Forward looks up id's op in the catalogue and invokes its forward
// evaluator with id's parents' Storages, which the caller (internal/eval)
// guarantees are already realized.
func (g *Graph) Forward(b *backend.Backend, id ID) (*backend.Storage, error) {
	n := g.Node(id)
	entry := catalogue[n.Op]
	parentStorage := make([]*backend.Storage, len(n.Parents))
	for i, p := range n.Parents {
		parentStorage[i] = g.Node(p).Storage
	}
	return entry.Forward(b, parentStorage, n)
}

// Differentiable reports whether id's op carries a VJP rule at all.
func (g *Graph) Differentiable(id ID) bool {
	return catalogue[g.Node(id).Op].Differentiable
}

// VJP looks up id's op's VJP rule and applies it, returning the gradient
// contribution to each differentiable parent, keyed by parent index.
func (g *Graph) VJP(id ID, gradOutput ID) (map[int]ID, error) {
	n := g.Node(id)
	entry := catalogue[n.Op]
	if entry.VJP == nil {
		return nil, lazyerr.Newf(lazyerr.NonDifferentiable, string(n.Op), "node %d has no VJP rule", id)
	}
	return entry.VJP(g, n, gradOutput)
}
