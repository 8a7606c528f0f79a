package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/lazygrad"
)

func TestLinearForwardShapeAndBias(t *testing.T) {
	err := lazygrad.WithBackend(func(s *lazygrad.Scope) error {
		src := rand.NewSource(1)
		lin, err := NewLinear(s, 4, 3, true, src)
		require.NoError(t, err)
		require.Len(t, lin.Parameters(), 2)

		x, err := s.FromSlice(make([]float32, 8), []int{2, 4}, lazygrad.Float32)
		require.NoError(t, err)
		out, err := lin.Forward(x)
		require.NoError(t, err)
		require.Equal(t, []int{2, 3}, out.Shape())
		return nil
	})
	require.NoError(t, err)
}

func TestLinearWithoutBiasOmitsAddition(t *testing.T) {
	err := lazygrad.WithBackend(func(s *lazygrad.Scope) error {
		src := rand.NewSource(2)
		lin, err := NewLinear(s, 2, 2, false, src)
		require.NoError(t, err)
		require.False(t, lin.HasB)
		require.Len(t, lin.Parameters(), 1)
		return nil
	})
	require.NoError(t, err)
}

func TestLinearBackwardPopulatesParamGrads(t *testing.T) {
	err := lazygrad.WithBackend(func(s *lazygrad.Scope) error {
		src := rand.NewSource(3)
		lin, err := NewLinear(s, 3, 2, true, src)
		require.NoError(t, err)

		x, err := s.FromSlice([]float32{1, 2, 3}, []int{1, 3}, lazygrad.Float32)
		require.NoError(t, err)
		out, err := lin.Forward(x)
		require.NoError(t, err)
		loss, err := out.Sum(false)
		require.NoError(t, err)
		require.NoError(t, loss.Backward())

		_, ok := lin.W.Grad()
		require.True(t, ok)
		_, ok = lin.B.Grad()
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestReluZeroesNegatives(t *testing.T) {
	err := lazygrad.WithBackend(func(s *lazygrad.Scope) error {
		x, err := s.FromSlice([]float32{-2, -1, 0, 1, 2}, []int{5}, lazygrad.Float32)
		require.NoError(t, err)
		out, err := Relu(s, x)
		require.NoError(t, err)
		buf, err := out.Download()
		require.NoError(t, err)
		require.Equal(t, []float32{0, 0, 0, 1, 2}, buf)
		return nil
	})
	require.NoError(t, err)
}

func TestOneHotEncodesIndices(t *testing.T) {
	err := lazygrad.WithBackend(func(s *lazygrad.Scope) error {
		idx, err := s.FromSlice([]int32{0, 2}, []int{2}, lazygrad.Int32)
		require.NoError(t, err)
		oh, err := OneHot(s, idx, 3)
		require.NoError(t, err)
		require.Equal(t, []int{2, 3}, oh.Shape())
		buf, err := oh.Download()
		require.NoError(t, err)
		require.Equal(t, []int32{1, 0, 0, 0, 0, 1}, buf)
		return nil
	})
	require.NoError(t, err)
}

func TestCrossEntropyLossMatchesManualComputation(t *testing.T) {
	err := lazygrad.WithBackend(func(s *lazygrad.Scope) error {
		// A single example, 2 classes, perfectly confident in the correct
		// class: logits = [0, 10], target = 1 -> loss should be near 0.
		logits, err := s.FromSlice([]float32{0, 10}, []int{1, 2}, lazygrad.Float32)
		require.NoError(t, err)
		targets, err := s.FromSlice([]int32{1}, []int{1}, lazygrad.Int32)
		require.NoError(t, err)

		loss, err := CrossEntropyLoss(s, logits, targets)
		require.NoError(t, err)
		v, err := loss.Item()
		require.NoError(t, err)
		require.InDelta(t, 0.0, v, 1e-3)
		return nil
	})
	require.NoError(t, err)
}

func TestSGDStepMovesParamsAgainstGradient(t *testing.T) {
	err := lazygrad.WithBackend(func(s *lazygrad.Scope) error {
		w, err := s.FromSlice([]float32{1, 1}, []int{2}, lazygrad.Float32)
		require.NoError(t, err)

		sq, err := w.Mul(w)
		require.NoError(t, err)
		loss, err := sq.Sum(false)
		require.NoError(t, err)
		require.NoError(t, loss.Backward())

		opt := NewSGD(s, []lazygrad.Array{w}, 0.1)
		updated, err := opt.Step()
		require.NoError(t, err)

		buf, err := updated[0].Download()
		require.NoError(t, err)
		// d(sum(w*w))/dw = 2w = [2,2]; w - 0.1*2 = 0.8
		require.InDeltaSlice(t, []float64{0.8, 0.8}, toFloat64Slice(buf.([]float32)), 1e-5)
		return nil
	})
	require.NoError(t, err)
}

func toFloat64Slice(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
