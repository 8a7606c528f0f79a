package backend

import (
	"gorgonia.org/tensor"

	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

// Realize materializes a movement-op result: given the parent's realized
// Storage and the *already computed* output shape.View (shape package
// owns that math — reshape/permute/slice/squeeze/unsqueeze/flatten), it
// gathers elements according to the view's strides/offset into a fresh
// contiguous Storage.
//
// This trades the zero-copy view optimization spec §4.1 describes for a
// simpler, always-contiguous Storage invariant: every Storage the engine
// ever hands back to the core is dense row-major, so the evaluator never
// needs to special-case non-contiguous reads on the next op. The shape
// package still computes and validates the true strided view (so
// Contiguous(), the invariant checks, and the VJP inverse-movement rules
// are exact); only the concrete buffer realization is eager. See
// DESIGN.md for the tradeoff.
func (b *Backend) Realize(parent *Storage, v shape.View) (*Storage, error) {
	if err := b.checkInit("realize_view"); err != nil {
		return nil, err
	}
	dt := fromGorgoniaDtype(parent.dense.Dtype())
	n := v.Shape.NumElements()
	out := tensor.New(tensor.WithShape(v.Shape...), tensor.Of(toGorgoniaDtype(dt)), tensor.WithEngine(b.engine))

	idx := make([]int, v.Shape.Rank())
	switch src := parent.dense.Data().(type) {
	case []float32:
		dst := out.Data().([]float32)
		gather(v, idx, 0, func(flat, out_i int) { dst[out_i] = src[flat] })
	case []int32:
		dst := out.Data().([]int32)
		gather(v, idx, 0, func(flat, out_i int) { dst[out_i] = src[flat] })
	case []bool:
		dst := out.Data().([]bool)
		gather(v, idx, 0, func(flat, out_i int) { dst[out_i] = src[flat] })
	default:
		return nil, lazyerr.Newf(lazyerr.DtypeUnsupported, "realize_view", "unsupported backing type %T", src)
	}
	_ = n
	return newStorage(out), nil
}

// gather walks every logical index of v in row-major output order, calling
// visit(flatSourceOffset, flatOutputOffset) for each.
func gather(v shape.View, idx []int, axis int, visit func(flat, outIdx int)) {
	gatherRec(v, idx, 0, &[]int{0}[0], visit)
}

func gatherRec(v shape.View, idx []int, axis int, outCounter *int, visit func(flat, outIdx int)) {
	if axis == len(v.Shape) {
		flat := v.Offset
		for k, s := range v.Strides {
			flat += idx[k] * s
		}
		visit(flat, *outCounter)
		*outCounter++
		return
	}
	for i := 0; i < v.Shape[axis]; i++ {
		idx[axis] = i
		gatherRec(v, idx, axis+1, outCounter, visit)
	}
}

// AddAt clones target and adds src's elements into it at the positions
// given by placement (a View over target's own shape). It implements the
// "target stays as-is outside the slice, gains src inside it" half of the
// a[slice] += b mutation scenario (spec §8 scenario 3), as distinct from
// ScatterAdd below which starts from zero rather than from target.
func (b *Backend) AddAt(target *Storage, placement shape.View, src *Storage) (*Storage, error) {
	if err := b.checkInit("index_add"); err != nil {
		return nil, err
	}
	clone := target.dense.Clone().(*tensor.Dense)
	idx := make([]int, placement.Shape.Rank())
	switch dst := clone.Data().(type) {
	case []float32:
		srcData := src.dense.Data().([]float32)
		gather(placement, idx, 0, func(flat, outIdx int) { dst[flat] += srcData[outIdx] })
	case []int32:
		srcData := src.dense.Data().([]int32)
		gather(placement, idx, 0, func(flat, outIdx int) { dst[flat] += srcData[outIdx] })
	default:
		return nil, lazyerr.Newf(lazyerr.DtypeUnsupported, "index_add", "unsupported backing type %T", dst)
	}
	return newStorage(clone), nil
}

// ScatterAdd builds a Storage of shape target, zero-filled except that
// src (placed through placement, a View relative to target's shape) is
// added in. It implements the slice-gradient VJP rule (spec §4.4: "scatter
// g into a zero tensor of input shape"); the a[slice] += b scenario goes
// through AddAt instead.
func (b *Backend) ScatterAdd(target shape.Shape, targetDtype dtype.Dtype, placement shape.View, src *Storage) (*Storage, error) {
	if err := b.checkInit("scatter_add"); err != nil {
		return nil, err
	}
	out := tensor.New(tensor.WithShape(target...), tensor.Of(toGorgoniaDtype(targetDtype)), tensor.WithEngine(b.engine))
	if err := memset(out, 0); err != nil {
		return nil, err
	}
	idx := make([]int, placement.Shape.Rank())
	switch dst := out.Data().(type) {
	case []float32:
		srcData := src.dense.Data().([]float32)
		gather(placement, idx, 0, func(flat, outIdx int) { dst[flat] += srcData[outIdx] })
	case []int32:
		srcData := src.dense.Data().([]int32)
		gather(placement, idx, 0, func(flat, outIdx int) { dst[flat] += srcData[outIdx] })
	default:
		return nil, lazyerr.Newf(lazyerr.DtypeUnsupported, "scatter_add", "unsupported backing type %T", dst)
	}
	return newStorage(out), nil
}
