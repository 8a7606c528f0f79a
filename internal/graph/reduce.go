package graph

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

func init() {
	registerReduce(OpSumReduce, backend.Sum, true)
	registerReduce(OpMeanReduce, backend.Mean, true)
	registerReduce(OpMaxReduce, backend.Max, true)
	registerReduce(OpMinReduce, backend.Min, true)
	registerArgReduce(OpArgmaxReduce, backend.Argmax)
	registerArgReduce(OpArgminReduce, backend.Argmin)

	// broadcast_to: the dual of a reduction — its VJP is a sum-reduce back
	// down to the operand's pre-broadcast shape (via ops.go's unbroadcast),
	// registered here alongside the reductions it is the dual of.
	register(OpBroadcast, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpBroadcast, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			target := attrShape(attrs, "shape")
			if _, err := shape.BroadcastTo(parents[0].Shape(), target); err != nil {
				return shape.View{}, dtype.F32, err
			}
			return shape.NewContiguous(target), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			return broadcastOperand(b, parents[0], node.View.Shape)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			target := g.Node(node.Parents[0]).Shape()
			contrib, err := unbroadcast(g, gradOut, target)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})
}

func registerReduce(op Op, kernel backend.ReduceOp, differentiable bool) {
	register(op, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(op, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			axes, err := shape.NormalizeAxes(attrInts(attrs, "axes"), parents[0].View.Shape.Rank())
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			out := keepdimShape(parents[0].Shape(), axes)
			dt := parents[0].Dtype
			if op == OpMeanReduce && !dt.IsFloat() {
				dt = dtype.F32
			}
			return shape.NewContiguous(out), dt, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			axes := attrInts(node.Attrs, "axes")
			in := parents[0]
			if op == OpMeanReduce && in.Dtype() != dtype.F32 {
				var err error
				in, err = b.Cast(in, dtype.F32)
				if err != nil {
					return nil, err
				}
			}
			return b.Reduce(kernel, in, axes)
		},
		VJP:            reduceVJP(op),
		Differentiable: differentiable,
	})
}

func keepdimShape(sh shape.Shape, axes []int) shape.Shape {
	reduced := make(map[int]bool, len(axes))
	for _, a := range axes {
		reduced[a] = true
	}
	out := make(shape.Shape, len(sh))
	for i, d := range sh {
		if reduced[i] {
			out[i] = 1
		} else {
			out[i] = d
		}
	}
	return out
}

func reduceVJP(op Op) VJPFn {
	return func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
		x := node.Parents[0]
		inShape := g.Node(x).Shape()
		axes := attrInts(node.Attrs, "axes")
		switch op {
		case OpSumReduce:
			contrib, err := g.Build(OpBroadcast, map[string]any{"shape": inShape}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		case OpMeanReduce:
			count := 1
			for _, a := range axes {
				count *= inShape[a]
			}
			scaled, err := scaleBy(g, gradOut, 1.0/float64(count))
			if err != nil {
				return nil, err
			}
			contrib, err := g.Build(OpBroadcast, map[string]any{"shape": inShape}, scaled)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		case OpMaxReduce, OpMinReduce:
			broadcastOut, err := g.Build(OpBroadcast, map[string]any{"shape": inShape}, node.id)
			if err != nil {
				return nil, err
			}
			mask, err := g.Build(OpEq, nil, x, broadcastOut)
			if err != nil {
				return nil, err
			}
			maskF, err := g.Build(OpCast, map[string]any{"dtype": node.Dtype}, mask)
			if err != nil {
				return nil, err
			}
			tieCount, err := g.Build(OpSumReduce, map[string]any{"axes": axes}, maskF)
			if err != nil {
				return nil, err
			}
			tieCountBroadcast, err := g.Build(OpBroadcast, map[string]any{"shape": inShape}, tieCount)
			if err != nil {
				return nil, err
			}
			gradBroadcast, err := g.Build(OpBroadcast, map[string]any{"shape": inShape}, gradOut)
			if err != nil {
				return nil, err
			}
			weighted, err := g.Build(OpMul, nil, gradBroadcast, maskF)
			if err != nil {
				return nil, err
			}
			contrib, err := g.Build(OpDiv, nil, weighted, tieCountBroadcast)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		default:
			return nil, lazyerr.Newf(lazyerr.NonDifferentiable, string(op), "no VJP registered")
		}
	}
}

// scaleBy multiplies node by a float constant, used by mean's VJP.
func scaleBy(g *Graph, id ID, factor float64) (ID, error) {
	n := g.Node(id)
	c, err := constLike(g, n.Shape(), n.Dtype, factor)
	if err != nil {
		return 0, err
	}
	return g.Build(OpMul, nil, id, c)
}

func registerArgReduce(op Op, kernel backend.ReduceOp) {
	register(op, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(op, len(parents), 1); err != nil {
				return shape.View{}, dtype.I32, err
			}
			axes, err := shape.NormalizeAxes(attrInts(attrs, "axes"), parents[0].View.Shape.Rank())
			if err != nil {
				return shape.View{}, dtype.I32, err
			}
			if len(axes) != 1 {
				return shape.View{}, dtype.I32, lazyerr.New(lazyerr.AxisOutOfRange, string(op), "argmax/argmin reduce exactly one axis")
			}
			out := keepdimShape(parents[0].Shape(), axes)
			return shape.NewContiguous(out), dtype.I32, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			axes := attrInts(node.Attrs, "axes")
			return b.Reduce(kernel, parents[0], axes)
		},
		Differentiable: false, // spec §4.2: argmax/argmin never carry gradient
	})
}
