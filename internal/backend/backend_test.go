package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/shape"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b := New()
	require.NoError(t, b.Init())
	t.Cleanup(b.Cleanup)
	return b
}

func upload(t *testing.T, b *Backend, data []float32, sh shape.Shape) *Storage {
	t.Helper()
	s, err := b.Upload(data, dtype.F32, sh)
	require.NoError(t, err)
	return s
}

func TestElementwiseBinaryAdd(t *testing.T) {
	b := newBackend(t)
	lhs := upload(t, b, []float32{1, 2, 3}, shape.Shape{3})
	rhs := upload(t, b, []float32{10, 20, 30}, shape.Shape{3})
	out, err := b.ElementwiseBinary(Add, lhs, rhs)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []float32{11, 22, 33}, data)
}

func TestElementwiseBinaryMaximumSelectsLarger(t *testing.T) {
	b := newBackend(t)
	lhs := upload(t, b, []float32{1, 5, 3}, shape.Shape{3})
	rhs := upload(t, b, []float32{4, 2, 3}, shape.Shape{3})
	out, err := b.ElementwiseBinary(Maximum, lhs, rhs)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []float32{4, 5, 3}, data)
}

func TestElementwiseUnaryRecip(t *testing.T) {
	b := newBackend(t)
	x := upload(t, b, []float32{2, 4, 8}, shape.Shape{3})
	out, err := b.ElementwiseUnary(Recip, x)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0.5, 0.25, 0.125}, toF64(data.([]float32)), 1e-6)
}

func TestReduceSumKeepsDims(t *testing.T) {
	b := newBackend(t)
	x := upload(t, b, []float32{1, 2, 3, 4, 5, 6}, shape.Shape{2, 3})
	out, err := b.Reduce(Sum, x, []int{1})
	require.NoError(t, err)
	require.Equal(t, []int{2, 1}, out.Shape())
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []float32{6, 15}, data)
}

func TestMatMulIdentityIsNoOp(t *testing.T) {
	b := newBackend(t)
	a := upload(t, b, []float32{1, 2, 3, 4}, shape.Shape{2, 2})
	ident := upload(t, b, []float32{1, 0, 0, 1}, shape.Shape{2, 2})
	out, err := b.MatMul(a, ident)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, data)
}

func TestCastFloatToIntTruncates(t *testing.T) {
	b := newBackend(t)
	x := upload(t, b, []float32{1.9, -1.9, 3.1}, shape.Shape{3})
	out, err := b.Cast(x, dtype.I32)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []int32{1, -1, 3}, data)
}

func TestRealizePermutedViewGathersInNewOrder(t *testing.T) {
	b := newBackend(t)
	x := upload(t, b, []float32{1, 2, 3, 4, 5, 6}, shape.Shape{2, 3})
	v, err := shape.NewContiguous(shape.Shape{2, 3}).Permute([]int{1, 0})
	require.NoError(t, err)
	out, err := b.Realize(x, v)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 4, 2, 5, 3, 6}, data)
}

func TestAddAtOnlyTouchesPlacedRegion(t *testing.T) {
	b := newBackend(t)
	target := upload(t, b, []float32{10, 20, 30, 40, 50}, shape.Shape{5})
	src := upload(t, b, []float32{1, 1}, shape.Shape{2})
	placement, err := shape.NewContiguous(shape.Shape{5}).Slice([]shape.SliceSpec{{Start: 1, Stop: 3, Step: 1}})
	require.NoError(t, err)
	out, err := b.AddAt(target, placement, src)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []float32{10, 21, 31, 40, 50}, data)
}

func TestScatterAddZeroInitializes(t *testing.T) {
	b := newBackend(t)
	src := upload(t, b, []float32{7, 8}, shape.Shape{2})
	placement, err := shape.NewContiguous(shape.Shape{5}).Slice([]shape.SliceSpec{{Start: 2, Stop: 4, Step: 1}})
	require.NoError(t, err)
	out, err := b.ScatterAdd(shape.Shape{5}, dtype.F32, placement, src)
	require.NoError(t, err)
	data, err := b.Download(out)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, 7, 8, 0}, data)
}

func TestOperationsFailBeforeInit(t *testing.T) {
	b := New()
	_, err := b.Allocate(dtype.F32, 4)
	require.Error(t, err)
}

func toF64(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
