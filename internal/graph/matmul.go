package graph

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

func init() {
	register(OpMatMul, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpMatMul, len(parents), 2); err != nil {
				return shape.View{}, dtype.F32, err
			}
			a, c := parents[0].Shape(), parents[1].Shape()
			if a.Rank() < 2 || c.Rank() < 2 {
				return shape.View{}, dtype.F32, lazyerr.Newf(lazyerr.ShapeMismatch, string(OpMatMul),
					"matmul operands need rank >= 2, got %v and %v", a, c)
			}
			m, k1 := a[a.Rank()-2], a[a.Rank()-1]
			k2, n := c[c.Rank()-2], c[c.Rank()-1]
			if k1 != k2 {
				return shape.View{}, dtype.F32, lazyerr.Newf(lazyerr.ShapeMismatch, string(OpMatMul),
					"inner dimensions mismatch: %d vs %d", k1, k2)
			}
			batch, err := shape.Broadcast(a[:a.Rank()-2], c[:c.Rank()-2])
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			out := append(append(shape.Shape{}, batch...), m, n)
			return shape.NewContiguous(out), dtype.Promote(parents[0].Dtype, parents[1].Dtype), nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			lhs, rhs, err := castToCommon(b, parents[0], parents[1], node.Dtype)
			if err != nil {
				return nil, err
			}
			return b.MatMul(lhs, rhs)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			a, c := node.Parents[0], node.Parents[1]
			aRank, cRank := g.Node(a).Shape().Rank(), g.Node(c).Shape().Rank()
			cT, err := transposeLast2(g, c, cRank)
			if err != nil {
				return nil, err
			}
			gradA, err := g.Build(OpMatMul, nil, gradOut, cT)
			if err != nil {
				return nil, err
			}
			gradA, err = unbroadcast(g, gradA, g.Node(a).Shape())
			if err != nil {
				return nil, err
			}
			aT, err := transposeLast2(g, a, aRank)
			if err != nil {
				return nil, err
			}
			gradC, err := g.Build(OpMatMul, nil, aT, gradOut)
			if err != nil {
				return nil, err
			}
			gradC, err = unbroadcast(g, gradC, g.Node(c).Shape())
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: gradA, 1: gradC}, nil
		},
		Differentiable: true,
	})
}

func transposeLast2(g *Graph, id ID, rank int) (ID, error) {
	perm := make([]int, rank)
	for i := range perm {
		perm[i] = i
	}
	perm[rank-2], perm[rank-1] = perm[rank-1], perm[rank-2]
	return g.Build(OpPermute, map[string]any{"perm": perm}, id)
}
