package lazygrad

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/lazygrad/internal/graph"
	"github.com/example/lazygrad/internal/jit"
	"github.com/example/lazygrad/internal/shape"
)

func TestSumWithKeepdimPreservesRank(t *testing.T) {
	err := WithBackend(func(s *Scope) error {
		x, err := s.FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3}, Float32)
		require.NoError(t, err)

		summed, err := x.Sum(true, 1)
		require.NoError(t, err)
		require.Equal(t, []int{2, 1}, summed.Shape())

		reduced, err := x.Sum(false, 1)
		require.NoError(t, err)
		require.Equal(t, []int{2}, reduced.Shape())

		buf, err := reduced.Download()
		require.NoError(t, err)
		require.Equal(t, []float32{6, 15}, buf)
		return nil
	})
	require.NoError(t, err)
}

func TestArangeThenReshape(t *testing.T) {
	err := WithBackend(func(s *Scope) error {
		r, err := s.Arange(0, 6, 1, Int32)
		require.NoError(t, err)
		require.Equal(t, []int{6}, r.Shape())

		reshaped, err := r.Reshape([]int{2, 3})
		require.NoError(t, err)
		buf, err := reshaped.Download()
		require.NoError(t, err)
		require.Equal(t, []int32{0, 1, 2, 3, 4, 5}, buf)
		return nil
	})
	require.NoError(t, err)
}

// Mirrors spec §8 scenario 3: a[1:3] += b, expressed via IndexAdd, must
// leave the untouched region alone and add into the selected region only.
func TestIndexAddMutatesOnlySelectedRegion(t *testing.T) {
	err := WithBackend(func(s *Scope) error {
		a, err := s.FromSlice([]float32{10, 20, 30, 40, 50}, []int{5}, Float32)
		require.NoError(t, err)
		b, err := s.FromSlice([]float32{1, 1}, []int{2}, Float32)
		require.NoError(t, err)

		specs := []shape.SliceSpec{{Start: 1, Stop: 3, Step: 1}}
		out, err := a.IndexAdd(specs, b)
		require.NoError(t, err)

		buf, err := out.Download()
		require.NoError(t, err)
		require.Equal(t, []float32{10, 21, 31, 40, 50}, buf)
		return nil
	})
	require.NoError(t, err)
}

// exp/log/div gradient scenario: f(x) = log(exp(x) / x), d f/dx = 1 - 1/x.
func TestExpLogDivGradientChain(t *testing.T) {
	err := WithBackend(func(s *Scope) error {
		x, err := s.FromSlice([]float32{2}, []int{1}, Float32)
		require.NoError(t, err)

		e, err := x.Exp()
		require.NoError(t, err)
		ratio, err := e.Div(x)
		require.NoError(t, err)
		l, err := ratio.Log()
		require.NoError(t, err)
		scalar, err := l.Reshape([]int{})
		require.NoError(t, err)

		require.NoError(t, scalar.Backward())
		grad, ok := x.Grad()
		require.True(t, ok)
		buf, err := grad.Download()
		require.NoError(t, err)
		got := buf.([]float32)[0]
		require.InDelta(t, float64(1-1.0/2.0), float64(got), 1e-4)
		return nil
	})
	require.NoError(t, err)
}

// Mirrors spec §8's "compiled once, reused on the next two calls" scenario:
// three calls with identical (shape, dtype) signatures should only build
// the underlying graph nodes once, with the later two calls hitting cache.
func TestJITCacheCompilesOnceAcrossRepeatedCalls(t *testing.T) {
	err := WithBackend(func(s *Scope) error {
		x, err := s.FromSlice([]float32{1, 2, 3, 4}, []int{2, 2}, Float32)
		require.NoError(t, err)

		sig := jit.Signature("square_sum", []jit.Arg{
			{IsArray: true, Shape: x.Shape(), Dtype: x.Dtype(), Device: "cpu"},
		}, nil)

		builds := 0
		compile := func() ([]graph.ID, error) {
			builds++
			sq, err := x.Mul(x)
			if err != nil {
				return nil, err
			}
			summed, err := sq.Sum(false)
			if err != nil {
				return nil, err
			}
			return []graph.ID{summed.id}, nil
		}

		for i := 0; i < 3; i++ {
			_, err := jit.Call(s.Cache(), sig, compile)
			require.NoError(t, err)
		}
		require.Equal(t, 1, builds)
		require.Equal(t, 2, s.Cache().Hits(sig))
		return nil
	})
	require.NoError(t, err)
}

func TestArrayFromDifferentScopesCannotBeCombined(t *testing.T) {
	var outer Array
	err := WithBackend(func(s *Scope) error {
		x, err := s.FromSlice([]float32{1}, []int{1}, Float32)
		require.NoError(t, err)
		outer = x
		return nil
	})
	require.NoError(t, err)

	err = WithBackend(func(s *Scope) error {
		y, err := s.FromSlice([]float32{2}, []int{1}, Float32)
		require.NoError(t, err)
		_, err = outer.Add(y)
		require.Error(t, err, "arrays from two different Backend scopes must not combine")
		return nil
	})
	require.NoError(t, err)
}
