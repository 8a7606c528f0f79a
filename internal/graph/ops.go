package graph

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

// Op tags, one per primitive the catalogue knows how to shape-check,
// evaluate and (where applicable) differentiate.
const (
	OpNeg   Op = "neg"
	OpRecip Op = "recip"
	OpExp   Op = "exp"
	OpLog   Op = "log"
	OpSqrt  Op = "sqrt"
	OpSq    Op = "sq"

	OpAdd Op = "add"
	OpSub Op = "sub"
	OpMul Op = "mul"
	OpDiv Op = "div"
	OpMin Op = "minimum"
	OpMax Op = "maximum"

	OpLt Op = "lt"
	OpLe Op = "le"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpEq Op = "eq"
	OpNe Op = "ne"

	OpSumReduce    Op = "sum_reduce"
	OpMeanReduce   Op = "mean_reduce"
	OpMaxReduce    Op = "max_reduce"
	OpMinReduce    Op = "min_reduce"
	OpArgmaxReduce Op = "argmax_reduce"
	OpArgminReduce Op = "argmin_reduce"

	OpReshape   Op = "reshape"
	OpPermute   Op = "permute"
	OpSlice     Op = "slice"
	OpSqueeze   Op = "squeeze"
	OpUnsqueeze Op = "unsqueeze"
	OpFlatten   Op = "flatten"
	OpBroadcast Op = "broadcast_to"

	OpMatMul Op = "matmul"
	OpCast   Op = "cast"
	OpDetach Op = "detach"

	OpZeros     Op = "zeros"
	OpOnes      Op = "ones"
	OpFull      Op = "full"
	OpArange    Op = "arange"
	OpFromHost  Op = "from_host"
	OpZerosLike Op = "zeros_like"
	OpOnesLike  Op = "ones_like"

	OpScatterZero Op = "scatter_zero"
	OpIndexAdd    Op = "index_add"
)

// ShapeRuleFn validates parents/attrs and computes the resulting view and
// dtype for a node, without touching any Storage.
type ShapeRuleFn func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error)

// ForwardFn computes a node's Storage from its already-realized parents'
// Storages.
type ForwardFn func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error)

// VJPFn computes, for node given the gradient flowing into its output
// (gradOutput), the gradient contribution to each differentiable parent,
// keyed by parent index. It is free to call g.Build to construct whatever
// new nodes the gradient expression needs.
type VJPFn func(g *Graph, node *Node, gradOutput ID) (map[int]ID, error)

type opEntry struct {
	Shape          ShapeRuleFn
	Forward        ForwardFn
	VJP            VJPFn
	Differentiable bool
}

var catalogue = map[Op]opEntry{}

func register(op Op, e opEntry) {
	if _, exists := catalogue[op]; exists {
		panic("graph: duplicate op registration " + string(op))
	}
	catalogue[op] = e
}

// attrInts / attrShape / attrDtype / attrFloat / attrSpecs are
// small, panic-free attribute accessors used throughout the catalogue
// files; missing/mistyped attrs are a construction-site programming error
// caught by the caller (internal facade), not a user-facing error kind.

func attrInts(attrs map[string]any, key string) []int {
	v, _ := attrs[key].([]int)
	return v
}

func attrShape(attrs map[string]any, key string) shape.Shape {
	v, _ := attrs[key].(shape.Shape)
	return v
}

func attrDtype(attrs map[string]any, key string) dtype.Dtype {
	v, _ := attrs[key].(dtype.Dtype)
	return v
}

func attrFloat(attrs map[string]any, key string) float64 {
	v, _ := attrs[key].(float64)
	return v
}

func attrSpecs(attrs map[string]any, key string) []shape.SliceSpec {
	v, _ := attrs[key].([]shape.SliceSpec)
	return v
}

// unbroadcast sums contrib's leading/broadcast axes down to target, per
// spec §4.4/§4.6's unbroadcasting requirement: a VJP rule must return a
// gradient exactly matching its parent's pre-broadcast shape.
func unbroadcast(g *Graph, contrib ID, target shape.Shape) (ID, error) {
	contribNode := g.Node(contrib)
	grown := contribNode.Shape()
	if grown.Equal(target) {
		return contrib, nil
	}
	axes := shape.UnbroadcastAxes(target, grown)
	summed := contrib
	if len(axes) > 0 {
		var err error
		summed, err = g.Build(OpSumReduce, map[string]any{"axes": axes}, contrib)
		if err != nil {
			return 0, err
		}
	}
	summedShape := g.Node(summed).Shape()
	if !summedShape.Equal(target) {
		var err error
		summed, err = g.Build(OpReshape, map[string]any{"shape": target}, summed)
		if err != nil {
			return 0, err
		}
	}
	return summed, nil
}

// constLike builds a leaf node of the given shape/dtype filled with value,
// the same fill-leaf pattern OpFull's catalogue entry uses.
func constLike(g *Graph, sh shape.Shape, dt dtype.Dtype, value float64) (ID, error) {
	return g.Leaf(OpFull, map[string]any{"shape": sh, "dtype": dt, "fill": value}, shape.NewContiguous(sh), dt, false)
}

func requireRank(op Op, n int, want int) error {
	if n != want {
		return lazyerr.Newf(lazyerr.ShapeMismatch, string(op), "expected rank %d, got %d", want, n)
	}
	return nil
}
