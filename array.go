package lazygrad

import (
	"github.com/example/lazygrad/internal/autograd"
	"github.com/example/lazygrad/internal/graph"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

// Array is a handle into a Scope's expression graph: a lightweight value
// (scope pointer + node id) that user code copies around freely. All the
// interesting state — shape, dtype, realized Storage, accumulated
// gradient — lives on the underlying graph.Node.
type Array struct {
	scope *Scope
	id    graph.ID
}

// Shape returns the array's logical shape.
func (a Array) Shape() []int { return append([]int(nil), a.scope.graph.Node(a.id).Shape()...) }

// Dtype returns the array's element dtype.
func (a Array) Dtype() Dtype { return a.scope.graph.Node(a.id).Dtype }

// RequiresGrad reports whether this array (or something it was derived
// from) requires a gradient.
func (a Array) RequiresGrad() bool { return a.scope.graph.Node(a.id).RequiresGrad }

// NumElements returns the total element count of the array's shape.
func (a Array) NumElements() int { return shape.Shape(a.Shape()).NumElements() }

// Realize forces this array's value (and every unrealized ancestor) to be
// computed, without reading it back to the host. Most callers don't need
// this directly: Item/Download/Backward call it implicitly.
func (a Array) Realize() error {
	_, err := a.scope.materialize(a.id)
	return err
}

// Download realizes the array and copies its buffer back to the host as
// a dtype-typed Go slice ([]float32, []int32 or []bool).
func (a Array) Download() (any, error) {
	s, err := a.scope.materialize(a.id)
	if err != nil {
		return nil, err
	}
	return a.scope.backend.Download(s)
}

// Item returns the array's single scalar value as a float64. It is an
// error to call Item on an array with more than one element.
func (a Array) Item() (float64, error) {
	if n := a.NumElements(); n != 1 {
		return 0, lazyerr.Newf(lazyerr.ShapeMismatch, "item", "item() requires exactly one element, got shape %v", a.Shape())
	}
	data, err := a.Download()
	if err != nil {
		return 0, err
	}
	switch d := data.(type) {
	case []float32:
		return float64(d[0]), nil
	case []int32:
		return float64(d[0]), nil
	case []bool:
		if d[0] {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, nil
	}
}

// Detach returns a new array sharing this array's realized value but with
// no autograd edge back to it: RequiresGrad() is false and Backward
// cannot traverse through it, matching the VGD optimizer's
// detach-once/eval-repeatedly pattern.
func (a Array) Detach() (Array, error) {
	id, err := a.scope.graph.Detach(a.id)
	if err != nil {
		return Array{}, err
	}
	return a.scope.wrap(id), nil
}

// Backward differentiates this (scalar) array with respect to every
// upstream array that requires a gradient, accumulating into each one's
// Grad(). Calling Backward more than once on the same array adds to the
// previously accumulated gradients rather than replacing them.
func (a Array) Backward() error {
	return autograd.Backward(a.scope.graph, a.scope.backend, a.id)
}

// Grad returns the gradient accumulated on this array by the most recent
// Backward call(s), or ok=false if none has been accumulated yet.
func (a Array) Grad() (Array, bool) {
	g := a.scope.graph.Node(a.id).Grad
	if g == 0 {
		return Array{}, false
	}
	return a.scope.wrap(g), true
}

func (a Array) build(op graph.Op, attrs map[string]any, others ...Array) (Array, error) {
	ids := make([]graph.ID, 0, 1+len(others))
	ids = append(ids, a.id)
	for _, o := range others {
		if err := requireSameScope(a, o); err != nil {
			return Array{}, err
		}
		ids = append(ids, o.id)
	}
	id, err := a.scope.graph.Build(op, attrs, ids...)
	if err != nil {
		return Array{}, err
	}
	return a.scope.wrap(id), nil
}
