package lazygrad

import (
	"github.com/example/lazygrad/internal/graph"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

// --- elementwise unary ---

func (a Array) Neg() (Array, error)   { return a.build(graph.OpNeg, nil) }
func (a Array) Recip() (Array, error) { return a.build(graph.OpRecip, nil) }
func (a Array) Exp() (Array, error)   { return a.build(graph.OpExp, nil) }
func (a Array) Log() (Array, error)   { return a.build(graph.OpLog, nil) }
func (a Array) Sqrt() (Array, error)  { return a.build(graph.OpSqrt, nil) }
func (a Array) Square() (Array, error) { return a.build(graph.OpSq, nil) }

// --- elementwise binary ---

func (a Array) Add(b Array) (Array, error) { return a.build(graph.OpAdd, nil, b) }
func (a Array) Sub(b Array) (Array, error) { return a.build(graph.OpSub, nil, b) }
func (a Array) Mul(b Array) (Array, error) { return a.build(graph.OpMul, nil, b) }
func (a Array) Div(b Array) (Array, error) { return a.build(graph.OpDiv, nil, b) }
func (a Array) Minimum(b Array) (Array, error) { return a.build(graph.OpMin, nil, b) }
func (a Array) Maximum(b Array) (Array, error) { return a.build(graph.OpMax, nil, b) }

// --- comparisons (never carry gradient) ---

func (a Array) Lt(b Array) (Array, error) { return a.build(graph.OpLt, nil, b) }
func (a Array) Le(b Array) (Array, error) { return a.build(graph.OpLe, nil, b) }
func (a Array) Gt(b Array) (Array, error) { return a.build(graph.OpGt, nil, b) }
func (a Array) Ge(b Array) (Array, error) { return a.build(graph.OpGe, nil, b) }
func (a Array) Eq(b Array) (Array, error) { return a.build(graph.OpEq, nil, b) }
func (a Array) Ne(b Array) (Array, error) { return a.build(graph.OpNe, nil, b) }

// --- reductions ---
//
// Every reduction keeps reduced axes at size 1 internally (the catalogue
// always operates in keepdim=true form, spec §4.2); Sum/Mean/Max/Min/
// Argmax/Argmin here squeeze them back out afterward unless keepdim is
// requested, so the two call shapes in spec §8 ("sum with keepdim",
// "sum over all axes") both go through one code path.

func (a Array) Sum(keepdim bool, axes ...int) (Array, error) {
	return a.reduce(graph.OpSumReduce, keepdim, axes)
}

func (a Array) Mean(keepdim bool, axes ...int) (Array, error) {
	return a.reduce(graph.OpMeanReduce, keepdim, axes)
}

func (a Array) Max(keepdim bool, axes ...int) (Array, error) {
	return a.reduce(graph.OpMaxReduce, keepdim, axes)
}

func (a Array) Min(keepdim bool, axes ...int) (Array, error) {
	return a.reduce(graph.OpMinReduce, keepdim, axes)
}

// Argmax reduces exactly one axis to its index of the maximum value
// (int32 output, never differentiable, spec §4.2).
func (a Array) Argmax(axis int, keepdim bool) (Array, error) {
	return a.reduce(graph.OpArgmaxReduce, keepdim, []int{axis})
}

// Argmin is Argmax's dual.
func (a Array) Argmin(axis int, keepdim bool) (Array, error) {
	return a.reduce(graph.OpArgminReduce, keepdim, []int{axis})
}

func (a Array) reduce(op graph.Op, keepdim bool, axes []int) (Array, error) {
	norm, err := shape.NormalizeAxes(axes, len(a.Shape()))
	if err != nil {
		return Array{}, err
	}
	if len(norm) == 0 {
		norm = shape.AllAxes(len(a.Shape()))
	}
	out, err := a.build(op, map[string]any{"axes": norm})
	if err != nil {
		return Array{}, err
	}
	if keepdim {
		return out, nil
	}
	return out.build(graph.OpSqueeze, map[string]any{"axes": norm})
}

// --- movement ---

func (a Array) Reshape(to []int) (Array, error) {
	return a.build(graph.OpReshape, map[string]any{"shape": shape.Shape(to)})
}

func (a Array) Permute(perm []int) (Array, error) {
	return a.build(graph.OpPermute, map[string]any{"perm": perm})
}

// Slice carries one SliceSpec per axis; use shape.SliceSpec{0, n, 1} for
// "take everything along this axis".
func (a Array) Slice(specs []shape.SliceSpec) (Array, error) {
	return a.build(graph.OpSlice, map[string]any{"specs": specs})
}

func (a Array) Squeeze(axes ...int) (Array, error) {
	return a.build(graph.OpSqueeze, map[string]any{"axes": axes})
}

func (a Array) Unsqueeze(axes ...int) (Array, error) {
	return a.build(graph.OpUnsqueeze, map[string]any{"axes": axes})
}

func (a Array) Flatten(start, end int) (Array, error) {
	return a.build(graph.OpFlatten, map[string]any{"start": start, "end": end})
}

// BroadcastTo explicitly expands a to shape to, failing if a's shape
// cannot broadcast into it.
func (a Array) BroadcastTo(to []int) (Array, error) {
	return a.build(graph.OpBroadcast, map[string]any{"shape": shape.Shape(to)})
}

// IndexAdd returns a new array equal to a, except that at the region
// selected by specs, src's values have been added in — the graph
// construction behind the a[slice] += b mutation scenario (spec §8
// scenario 3). a is never mutated in place; callers rebind the result.
func (a Array) IndexAdd(specs []shape.SliceSpec, src Array) (Array, error) {
	return a.build(graph.OpIndexAdd, map[string]any{"specs": specs}, src)
}

// --- linear algebra ---

func (a Array) MatMul(b Array) (Array, error) { return a.build(graph.OpMatMul, nil, b) }

// --- dtype ---

func (a Array) Astype(dt Dtype) (Array, error) {
	return a.build(graph.OpCast, map[string]any{"dtype": dt})
}

// ZerosLike and OnesLike are constant constructors (never require grad)
// that borrow a's shape and dtype.
func (a Array) ZerosLike() (Array, error) { return a.build(graph.OpZerosLike, nil) }
func (a Array) OnesLike() (Array, error)  { return a.build(graph.OpOnesLike, nil) }

func requireSameScope(a, b Array) error {
	if a.scope != b.scope {
		return lazyerr.New(lazyerr.BackendUninitialized, "array_op", "arrays belong to different Backend scopes")
	}
	return nil
}
