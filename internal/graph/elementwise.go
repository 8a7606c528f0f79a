package graph

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

func init() {
	registerUnary(OpNeg, backend.Neg, false)
	registerUnary(OpRecip, backend.Recip, false)
	registerUnary(OpExp, backend.Exp, true)
	registerUnary(OpLog, backend.Log, true)
	registerUnary(OpSqrt, backend.Sqrt, true)
	registerUnary(OpSq, backend.Sq, false)

	registerBinary(OpAdd, backend.Add)
	registerBinary(OpSub, backend.Sub)
	registerBinary(OpMul, backend.Mul)
	registerBinary(OpDiv, backend.Div)
	registerBinary(OpMin, backend.Minimum)
	registerBinary(OpMax, backend.Maximum)

	registerCompare(OpLt, backend.Lt)
	registerCompare(OpLe, backend.Le)
	registerCompare(OpGt, backend.Gt)
	registerCompare(OpGe, backend.Ge)
	registerCompare(OpEq, backend.Eq)
	registerCompare(OpNe, backend.Ne)

	register(OpDetach, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpDetach, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			return parents[0].View.Clone(), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			return parents[0], nil
		},
		Differentiable: false,
	})
}

func registerUnary(op Op, kernel backend.UnaryOp, requiresFloat bool) {
	register(op, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(op, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			if requiresFloat && !parents[0].Dtype.IsFloat() {
				return shape.View{}, dtype.F32, lazyerr.Newf(lazyerr.DtypeMismatch, string(op),
					"%s requires a floating dtype, got %s", op, parents[0].Dtype)
			}
			return parents[0].View.Clone(), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			return b.ElementwiseUnary(kernel, parents[0])
		},
		VJP:            unaryVJP(op),
		Differentiable: true,
	})
}

func unaryVJP(op Op) VJPFn {
	return func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
		x := node.Parents[0]
		var contrib ID
		var err error
		switch op {
		case OpNeg:
			contrib, err = g.Build(OpNeg, nil, gradOut)
		case OpRecip:
			sq, e := g.Build(OpMul, nil, node.id, node.id)
			if e != nil {
				return nil, e
			}
			m, e := g.Build(OpMul, nil, gradOut, sq)
			if e != nil {
				return nil, e
			}
			contrib, err = g.Build(OpNeg, nil, m)
		case OpExp:
			contrib, err = g.Build(OpMul, nil, gradOut, node.id)
		case OpLog:
			r, e := g.Build(OpRecip, nil, x)
			if e != nil {
				return nil, e
			}
			contrib, err = g.Build(OpMul, nil, gradOut, r)
		case OpSqrt:
			two, e := constLike(g, node.Shape(), node.Dtype, 2)
			if e != nil {
				return nil, e
			}
			denom, e := g.Build(OpMul, nil, two, node.id)
			if e != nil {
				return nil, e
			}
			contrib, err = g.Build(OpDiv, nil, gradOut, denom)
		case OpSq:
			two, e := constLike(g, node.Shape(), node.Dtype, 2)
			if e != nil {
				return nil, e
			}
			twox, e := g.Build(OpMul, nil, two, x)
			if e != nil {
				return nil, e
			}
			contrib, err = g.Build(OpMul, nil, gradOut, twox)
		default:
			return nil, lazyerr.Newf(lazyerr.NonDifferentiable, string(op), "no VJP registered")
		}
		if err != nil {
			return nil, err
		}
		return map[int]ID{0: contrib}, nil
	}
}

func registerBinary(op Op, kernel backend.BinaryOp) {
	register(op, opEntry{
		Shape:          binaryShapeRule(op),
		Forward:        binaryForward(kernel),
		VJP:            binaryVJP(op),
		Differentiable: true,
	})
}

func binaryShapeRule(op Op) ShapeRuleFn {
	return func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
		if err := requireRank(op, len(parents), 2); err != nil {
			return shape.View{}, dtype.F32, err
		}
		out, err := shape.Broadcast(parents[0].Shape(), parents[1].Shape())
		if err != nil {
			return shape.View{}, dtype.F32, err
		}
		dt := dtype.Promote(parents[0].Dtype, parents[1].Dtype)
		return shape.NewContiguous(out), dt, nil
	}
}

func binaryForward(kernel backend.BinaryOp) ForwardFn {
	return func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
		lhs, err := broadcastOperand(b, parents[0], node.View.Shape)
		if err != nil {
			return nil, err
		}
		rhs, err := broadcastOperand(b, parents[1], node.View.Shape)
		if err != nil {
			return nil, err
		}
		lhs, rhs, err = castToCommon(b, lhs, rhs, node.Dtype)
		if err != nil {
			return nil, err
		}
		return b.ElementwiseBinary(kernel, lhs, rhs)
	}
}

// broadcastOperand realizes s (whose logical shape may have fewer dims, or
// size-1 dims, than target) into a dense buffer of exactly target's shape,
// by building a zero-stride broadcast View over s and gathering through
// it — the same "always contiguous" Storage path used for reshape/permute.
func broadcastOperand(b *backend.Backend, s *backend.Storage, target shape.Shape) (*backend.Storage, error) {
	src := shape.Shape(s.Shape())
	if src.Equal(target) {
		return s, nil
	}
	view, err := shape.BroadcastTo(src, target)
	if err != nil {
		return nil, err
	}
	return b.Realize(s, view)
}

func castToCommon(b *backend.Backend, lhs, rhs *backend.Storage, target dtype.Dtype) (*backend.Storage, *backend.Storage, error) {
	var err error
	if lhs.Dtype() != target {
		lhs, err = b.Cast(lhs, target)
		if err != nil {
			return nil, nil, err
		}
	}
	if rhs.Dtype() != target {
		rhs, err = b.Cast(rhs, target)
		if err != nil {
			return nil, nil, err
		}
	}
	return lhs, rhs, nil
}

func binaryVJP(op Op) VJPFn {
	return func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
		lhs, rhs := node.Parents[0], node.Parents[1]
		lShape, rShape := g.Node(lhs).Shape(), g.Node(rhs).Shape()
		contribs := map[int]ID{}
		switch op {
		case OpAdd:
			l, err := unbroadcast(g, gradOut, lShape)
			if err != nil {
				return nil, err
			}
			r, err := unbroadcast(g, gradOut, rShape)
			if err != nil {
				return nil, err
			}
			contribs[0], contribs[1] = l, r
		case OpSub:
			l, err := unbroadcast(g, gradOut, lShape)
			if err != nil {
				return nil, err
			}
			negG, err := g.Build(OpNeg, nil, gradOut)
			if err != nil {
				return nil, err
			}
			r, err := unbroadcast(g, negG, rShape)
			if err != nil {
				return nil, err
			}
			contribs[0], contribs[1] = l, r
		case OpMul:
			gr, err := g.Build(OpMul, nil, gradOut, rhs)
			if err != nil {
				return nil, err
			}
			l, err := unbroadcast(g, gr, lShape)
			if err != nil {
				return nil, err
			}
			gl, err := g.Build(OpMul, nil, gradOut, lhs)
			if err != nil {
				return nil, err
			}
			r, err := unbroadcast(g, gl, rShape)
			if err != nil {
				return nil, err
			}
			contribs[0], contribs[1] = l, r
		case OpDiv:
			gr, err := g.Build(OpDiv, nil, gradOut, rhs)
			if err != nil {
				return nil, err
			}
			l, err := unbroadcast(g, gr, lShape)
			if err != nil {
				return nil, err
			}
			num, err := g.Build(OpMul, nil, gradOut, lhs)
			if err != nil {
				return nil, err
			}
			rsq, err := g.Build(OpMul, nil, rhs, rhs)
			if err != nil {
				return nil, err
			}
			quot, err := g.Build(OpDiv, nil, num, rsq)
			if err != nil {
				return nil, err
			}
			negQuot, err := g.Build(OpNeg, nil, quot)
			if err != nil {
				return nil, err
			}
			r, err := unbroadcast(g, negQuot, rShape)
			if err != nil {
				return nil, err
			}
			contribs[0], contribs[1] = l, r
		case OpMin, OpMax:
			// gradient flows entirely to the strict winner; a tie
			// (lhs==rhs) splits it evenly between both operands, the same
			// tie-count-divisor rule reduce.go's max/min VJP uses.
			var winL ID
			var err error
			if op == OpMin {
				winL, err = g.Build(OpLt, nil, lhs, rhs)
			} else {
				winL, err = g.Build(OpGt, nil, lhs, rhs)
			}
			if err != nil {
				return nil, err
			}
			winLF, err := g.Build(OpCast, map[string]any{"dtype": node.Dtype}, winL)
			if err != nil {
				return nil, err
			}
			tie, err := g.Build(OpEq, nil, lhs, rhs)
			if err != nil {
				return nil, err
			}
			tieF, err := g.Build(OpCast, map[string]any{"dtype": node.Dtype}, tie)
			if err != nil {
				return nil, err
			}
			half, err := constLike(g, node.Shape(), node.Dtype, 0.5)
			if err != nil {
				return nil, err
			}
			tieShare, err := g.Build(OpMul, nil, tieF, half)
			if err != nil {
				return nil, err
			}
			weightL, err := g.Build(OpAdd, nil, winLF, tieShare)
			if err != nil {
				return nil, err
			}
			one, err := constLike(g, node.Shape(), node.Dtype, 1)
			if err != nil {
				return nil, err
			}
			weightR, err := g.Build(OpSub, nil, one, weightL)
			if err != nil {
				return nil, err
			}
			gl, err := g.Build(OpMul, nil, gradOut, weightL)
			if err != nil {
				return nil, err
			}
			l, err := unbroadcast(g, gl, lShape)
			if err != nil {
				return nil, err
			}
			gr, err := g.Build(OpMul, nil, gradOut, weightR)
			if err != nil {
				return nil, err
			}
			r, err := unbroadcast(g, gr, rShape)
			if err != nil {
				return nil, err
			}
			contribs[0], contribs[1] = l, r
		default:
			return nil, lazyerr.Newf(lazyerr.NonDifferentiable, string(op), "no VJP registered")
		}
		return contribs, nil
	}
}

func registerCompare(op Op, kernel backend.CompareOp) {
	register(op, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(op, len(parents), 2); err != nil {
				return shape.View{}, dtype.B8, err
			}
			out, err := shape.Broadcast(parents[0].Shape(), parents[1].Shape())
			if err != nil {
				return shape.View{}, dtype.B8, err
			}
			return shape.NewContiguous(out), dtype.B8, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			lhs, err := broadcastOperand(b, parents[0], node.View.Shape)
			if err != nil {
				return nil, err
			}
			rhs, err := broadcastOperand(b, parents[1], node.View.Shape)
			if err != nil {
				return nil, err
			}
			common := dtype.Promote(lhs.Dtype(), rhs.Dtype())
			lhs, rhs, err = castToCommon(b, lhs, rhs, common)
			if err != nil {
				return nil, err
			}
			return b.Compare(kernel, lhs, rhs)
		},
		Differentiable: false, // comparisons never carry gradient, spec §4.2
	})
}
