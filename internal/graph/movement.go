package graph

import (
	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

func init() {
	register(OpReshape, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpReshape, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			target := attrShape(attrs, "shape")
			v, _, err := shape.NewContiguous(parents[0].Shape()).Reshape(target)
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			return shape.NewContiguous(v.Shape), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			target := attrShape(node.Attrs, "shape")
			v, _, err := shape.NewContiguous(shape.Shape(parents[0].Shape())).Reshape(target)
			if err != nil {
				return nil, err
			}
			return b.Realize(parents[0], v)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			original := g.Node(node.Parents[0]).Shape()
			contrib, err := g.Build(OpReshape, map[string]any{"shape": original}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})

	register(OpPermute, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpPermute, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			perm := attrInts(attrs, "perm")
			v, err := shape.NewContiguous(parents[0].Shape()).Permute(perm)
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			return shape.NewContiguous(v.Shape), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			perm := attrInts(node.Attrs, "perm")
			v, err := shape.NewContiguous(shape.Shape(parents[0].Shape())).Permute(perm)
			if err != nil {
				return nil, err
			}
			return b.Realize(parents[0], v)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			perm := attrInts(node.Attrs, "perm")
			inv := shape.InversePermutation(perm)
			contrib, err := g.Build(OpPermute, map[string]any{"perm": inv}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})

	register(OpSlice, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpSlice, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			specs := attrSpecs(attrs, "specs")
			v, err := shape.NewContiguous(parents[0].Shape()).Slice(specs)
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			return shape.NewContiguous(v.Shape), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			specs := attrSpecs(node.Attrs, "specs")
			v, err := shape.NewContiguous(shape.Shape(parents[0].Shape())).Slice(specs)
			if err != nil {
				return nil, err
			}
			return b.Realize(parents[0], v)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			specs := attrSpecs(node.Attrs, "specs")
			original := g.Node(node.Parents[0]).Shape()
			contrib, err := g.Build(OpScatterZero, map[string]any{
				"target_shape": original,
				"target_dtype": node.Dtype,
				"specs":        specs,
			}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})

	register(OpSqueeze, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpSqueeze, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			axes := attrInts(attrs, "axes")
			v, err := shape.NewContiguous(parents[0].Shape()).Squeeze(axes)
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			return shape.NewContiguous(v.Shape), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			axes := attrInts(node.Attrs, "axes")
			v, err := shape.NewContiguous(shape.Shape(parents[0].Shape())).Squeeze(axes)
			if err != nil {
				return nil, err
			}
			return b.Realize(parents[0], v)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			original := g.Node(node.Parents[0]).Shape()
			contrib, err := g.Build(OpReshape, map[string]any{"shape": original}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})

	register(OpUnsqueeze, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpUnsqueeze, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			axes := attrInts(attrs, "axes")
			v, err := shape.NewContiguous(parents[0].Shape()).Unsqueeze(axes)
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			return shape.NewContiguous(v.Shape), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			axes := attrInts(node.Attrs, "axes")
			v, err := shape.NewContiguous(shape.Shape(parents[0].Shape())).Unsqueeze(axes)
			if err != nil {
				return nil, err
			}
			return b.Realize(parents[0], v)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			original := g.Node(node.Parents[0]).Shape()
			contrib, err := g.Build(OpReshape, map[string]any{"shape": original}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})

	register(OpFlatten, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpFlatten, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			start, end := attrs["start"].(int), attrs["end"].(int)
			v, err := shape.NewContiguous(parents[0].Shape()).Flatten(start, end)
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			return shape.NewContiguous(v.Shape), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			start, end := node.Attrs["start"].(int), node.Attrs["end"].(int)
			v, err := shape.NewContiguous(shape.Shape(parents[0].Shape())).Flatten(start, end)
			if err != nil {
				return nil, err
			}
			return b.Realize(parents[0], v)
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			original := g.Node(node.Parents[0]).Shape()
			contrib, err := g.Build(OpReshape, map[string]any{"shape": original}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})

	register(OpCast, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpCast, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			return parents[0].View.Clone(), attrDtype(attrs, "dtype"), nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			return b.Cast(parents[0], attrDtype(node.Attrs, "dtype"))
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			parentDtype := g.Node(node.Parents[0]).Dtype
			if !node.Dtype.IsFloat() || !parentDtype.IsFloat() {
				z, err := constLike(g, g.Node(node.Parents[0]).Shape(), parentDtype, 0)
				if err != nil {
					return nil, err
				}
				return map[int]ID{0: z}, nil
			}
			contrib, err := g.Build(OpCast, map[string]any{"dtype": parentDtype}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: contrib}, nil
		},
		Differentiable: true,
	})

	register(OpScatterZero, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpScatterZero, len(parents), 1); err != nil {
				return shape.View{}, dtype.F32, err
			}
			target := attrShape(attrs, "target_shape")
			return shape.NewContiguous(target), attrDtype(attrs, "target_dtype"), nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			target := attrShape(node.Attrs, "target_shape")
			dt := attrDtype(node.Attrs, "target_dtype")
			specs := attrSpecs(node.Attrs, "specs")
			placement, err := shape.NewContiguous(target).Slice(specs)
			if err != nil {
				return nil, err
			}
			return b.ScatterAdd(target, dt, placement, parents[0])
		},
		Differentiable: false,
	})

	register(OpIndexAdd, opEntry{
		Shape: func(parents []*Node, attrs map[string]any) (shape.View, dtype.Dtype, error) {
			if err := requireRank(OpIndexAdd, len(parents), 2); err != nil {
				return shape.View{}, dtype.F32, err
			}
			specs := attrSpecs(attrs, "specs")
			placement, err := shape.NewContiguous(parents[0].Shape()).Slice(specs)
			if err != nil {
				return shape.View{}, dtype.F32, err
			}
			if !placement.Shape.Equal(parents[1].Shape()) {
				return shape.View{}, dtype.F32, lazyerr.Newf(lazyerr.ShapeMismatch, string(OpIndexAdd),
					"placement shape %v does not match source shape %v", placement.Shape, parents[1].Shape())
			}
			return parents[0].View.Clone(), parents[0].Dtype, nil
		},
		Forward: func(b *backend.Backend, parents []*backend.Storage, node *Node) (*backend.Storage, error) {
			specs := attrSpecs(node.Attrs, "specs")
			placement, err := shape.NewContiguous(shape.Shape(parents[0].Shape())).Slice(specs)
			if err != nil {
				return nil, err
			}
			return b.AddAt(parents[0], placement, parents[1])
		},
		VJP: func(g *Graph, node *Node, gradOut ID) (map[int]ID, error) {
			specs := attrSpecs(node.Attrs, "specs")
			srcContrib, err := g.Build(OpSlice, map[string]any{"specs": specs}, gradOut)
			if err != nil {
				return nil, err
			}
			return map[int]ID{0: gradOut, 1: srcContrib}, nil
		},
		Differentiable: true,
	})
}
