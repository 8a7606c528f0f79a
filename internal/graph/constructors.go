package graph

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

// Leaf constructors never appear as targets of Build (they have no
// parents), so their catalogue entries only need Forward; Shape is still
// registered for uniformity with Graph.Leaf's lookup, even though Leaf
// computes the view itself from caller-supplied arguments rather than by
// calling the Shape rule.

func init() {
	register(OpZeros, opEntry{
		Shape:   noParentShape,
		Forward: fillForward(0),
	})
	register(OpOnes, opEntry{
		Shape:   noParentShape,
		Forward: fillForward(1),
	})
	register(OpFull, opEntry{
		Shape: noParentShape,
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			return fillWith(b, node, attrFloat(node.Attrs, "fill"))
		},
	})
	register(OpArange, opEntry{
		Shape: noParentShape,
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			n := node.View.Shape.NumElements()
			s, err := b.Allocate(node.Dtype, n)
			if err != nil {
				return nil, err
			}
			start := attrFloat(node.Attrs, "start")
			step := attrFloat(node.Attrs, "step")
			if err := b.Iota(s, start, step); err != nil {
				return nil, err
			}
			return s, nil
		},
	})
	register(OpFromHost, opEntry{
		Shape: noParentShape,
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			data := node.Attrs["data"]
			return b.Upload(data, node.Dtype, node.View.Shape)
		},
	})

	register(OpZerosLike, opEntry{
		Shape: likeShapeRule,
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			return fillWith(b, node, 0)
		},
		Differentiable: false,
	})
	register(OpOnesLike, opEntry{
		Shape: likeShapeRule,
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			return fillWith(b, node, 1)
		},
		Differentiable: false,
	})
}

func noParentShape(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
	sh := attrShape(attrs, "shape")
	dt := attrDtype(attrs, "dtype")
	return shape.NewContiguous(sh), dt, nil
}

func likeShapeRule(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
	if err := requireRank("like", len(parents), 1); err != nil {
		return shape.View{}, dtype.F32, err
	}
	return shape.NewContiguous(parents[0].Shape()), parents[0].Dtype, nil
}

func fillForward(value float64) ForwardFn {
	return func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
		return fillWith(b, node, value)
	}
}

func fillWith(b *backend.Backend, node *Node, value float64) (*backend.Storage, error) {
	n := node.View.Shape.NumElements()
	s, err := b.Allocate(node.Dtype, n)
	if err != nil {
		return nil, err
	}
	if err := b.Fill(s, value); err != nil {
		return nil, err
	}
	if !shape.Shape(s.Shape()).Equal(node.View.Shape) {
		reshaped, err := b.Realize(s, shape.NewContiguous(node.View.Shape))
		if err != nil {
			return nil, lazyerr.Wrap(lazyerr.BackendErrorKind, "fill", err)
		}
		return reshaped, nil
	}
	return s, nil
}
