// Package lazygrad is the public facade over the engine: a lazy,
// autograd-capable n-dimensional array built on a scoped Backend, a
// monotone expression graph, and an evaluator/autograd/JIT stack living
// under internal/. Every Array method only ever constructs graph nodes;
// no computation runs until the value is needed (Item, Download,
// Backward, or an explicit Realize).
package lazygrad

import (
	"github.com/rs/zerolog"

	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/eval"
	"github.com/example/lazygrad/internal/graph"
	"github.com/example/lazygrad/internal/jit"
	"github.com/example/lazygrad/internal/shape"
)

// Dtype re-exports the engine's dtype handles for callers who don't want
// to import internal/dtype directly.
type Dtype = dtype.Dtype

// Float32, Int32 and Bool are the three dtypes the engine supports. The
// constructors (Zeros, Ones, Full, Arange, FromSlice) take the dtype as an
// explicit argument; none of them applies a default dtype.
var (
	Float32 = dtype.F32
	Int32   = dtype.I32
	Bool    = dtype.B8
)

// Scope is one Backend session: a Graph arena, the Backend that realizes
// it, and a JIT cache namespaced to that session. Arrays are only valid
// within the Scope that created them — combining Arrays from different
// scopes returns a BackendUninitialized error, the way a closed file
// descriptor fails on use.
type Scope struct {
	backend *backend.Backend
	graph   *graph.Graph
	cache   *jit.Cache
}

// WithBackend opens a Backend scope, runs fn with it, and releases the
// backend on return — mirroring the reference implementation's
// `with ax.context():` contextmanager (spec §6: "demonstration programs
// open a Backend scope and print buffers"). Any error fn returns
// propagates after Cleanup runs.
func WithBackend(fn func(s *Scope) error) error {
	b := backend.New()
	if err := b.Init(); err != nil {
		return err
	}
	defer b.Cleanup()
	s := &Scope{
		backend: b,
		graph:   graph.New(b),
		cache:   jit.NewCache(b.SessionID()),
	}
	defer s.cache.Clear()
	return fn(s)
}

// Logger exposes the scope's structured logger (zerolog), for callers
// that want to attach their own fields before logging engine-adjacent
// events.
func (s *Scope) Logger() *zerolog.Logger { return s.backend.Logger() }

// Cache exposes the scope's JIT cache for callers building their own
// compiled call sites (see the jit package).
func (s *Scope) Cache() *jit.Cache { return s.cache }

// Graph exposes the scope's underlying expression graph, for callers that
// want to inspect or visualize it directly (e.g. DumpDOT).
func (s *Scope) Graph() *graph.Graph { return s.graph }

func (s *Scope) wrap(id graph.ID) Array { return Array{scope: s, id: id} }

// Zeros constructs an all-zero leaf Array of the given shape and dtype.
func (s *Scope) Zeros(sh []int, dt Dtype) (Array, error) {
	return s.fullLeaf(sh, dt, 0)
}

// Ones constructs an all-one leaf Array of the given shape and dtype.
func (s *Scope) Ones(sh []int, dt Dtype) (Array, error) {
	return s.fullLeaf(sh, dt, 1)
}

// Full constructs a leaf Array of the given shape and dtype, every
// element set to fill.
func (s *Scope) Full(sh []int, dt Dtype, fill float64) (Array, error) {
	return s.fullLeaf(sh, dt, fill)
}

func (s *Scope) fullLeaf(sh []int, dt Dtype, fill float64) (Array, error) {
	view := shape.NewContiguous(shape.Shape(sh))
	op := graph.OpFull
	attrs := map[string]any{"shape": view.Shape, "dtype": dt, "fill": fill}
	switch fill {
	case 0:
		op = graph.OpZeros
	case 1:
		op = graph.OpOnes
	}
	id, err := s.graph.Leaf(op, attrs, view, dt, true)
	if err != nil {
		return Array{}, err
	}
	return s.wrap(id), nil
}

// Arange constructs a 1-D leaf Array [start, start+step, start+2*step, ...)
// stopping once it would reach or pass stop, with elements of dtype dt.
// dt is always given by the caller: Int32 produces an integer range,
// Float32 a floating one; there is no default dtype.
func (s *Scope) Arange(start, stop, step float64, dt Dtype) (Array, error) {
	n := 0
	if step != 0 {
		n = countSteps(start, stop, step)
	}
	view := shape.NewContiguous(shape.Shape{n})
	attrs := map[string]any{"shape": view.Shape, "dtype": dt, "start": start, "step": step}
	id, err := s.graph.Leaf(graph.OpArange, attrs, view, dt, true)
	if err != nil {
		return Array{}, err
	}
	return s.wrap(id), nil
}

func countSteps(start, stop, step float64) int {
	n := 0
	for v := start; (step > 0 && v < stop) || (step < 0 && v > stop); v += step {
		n++
	}
	return n
}

// FromSlice uploads a host buffer (a []float32, []int32 or []bool) as a
// leaf Array of shape sh.
func (s *Scope) FromSlice(data any, sh []int, dt Dtype) (Array, error) {
	view := shape.NewContiguous(shape.Shape(sh))
	attrs := map[string]any{"shape": view.Shape, "dtype": dt, "data": data}
	id, err := s.graph.Leaf(graph.OpFromHost, attrs, view, dt, true)
	if err != nil {
		return Array{}, err
	}
	return s.wrap(id), nil
}

// materialize forces id (and its unrealized ancestors) to a concrete
// Storage; unexported, it backs Array.Realize and Array.Download.
func (s *Scope) materialize(id graph.ID) (*backend.Storage, error) {
	return eval.Materialize(s.graph, s.backend, id)
}
