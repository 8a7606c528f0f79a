package autograd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/lazygrad/internal/backend"
	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/eval"
	"github.com/example/lazygrad/internal/graph"
	"github.com/example/lazygrad/internal/shape"
)

func newFixture(t *testing.T) (*backend.Backend, *graph.Graph) {
	t.Helper()
	b := backend.New()
	require.NoError(t, b.Init())
	t.Cleanup(b.Cleanup)
	return b, graph.New(b)
}

func leaf(t *testing.T, g *graph.Graph, data []float32, sh shape.Shape) graph.ID {
	t.Helper()
	view := shape.NewContiguous(sh)
	id, err := g.Leaf(graph.OpFromHost, map[string]any{"shape": sh, "dtype": dtype.F32, "data": data}, view, dtype.F32, true)
	require.NoError(t, err)
	return id
}

func downloadOne(t *testing.T, b *backend.Backend, g *graph.Graph, id graph.ID) float32 {
	t.Helper()
	s, err := eval.Materialize(g, b, id)
	require.NoError(t, err)
	buf, err := b.Download(s)
	require.NoError(t, err)
	f, ok := buf.([]float32)
	require.True(t, ok)
	require.Len(t, f, 1)
	return f[0]
}

// f(x) = sum(x * x) over a 2-element vector. d f/dx = 2x.
func TestBackwardScalarRootAccumulatesExpectedGradient(t *testing.T) {
	b, g := newFixture(t)
	x := leaf(t, g, []float32{2, 3}, shape.Shape{2})

	sq, err := g.Build(graph.OpMul, nil, x, x)
	require.NoError(t, err)
	sum, err := g.Build(graph.OpSumReduce, map[string]any{"axes": []int{0}}, sq)
	require.NoError(t, err)
	scalar, err := g.Build(graph.OpReshape, map[string]any{"shape": shape.Shape{}}, sum)
	require.NoError(t, err)

	require.NoError(t, Backward(g, b, scalar))

	gradNode := g.Node(x).Grad
	require.NotZero(t, gradNode)
	s, err := eval.Materialize(g, b, gradNode)
	require.NoError(t, err)
	buf, err := b.Download(s)
	require.NoError(t, err)
	require.Equal(t, []float32{4, 6}, buf)
}

func TestBackwardTwiceAccumulatesRatherThanOverwrites(t *testing.T) {
	b, g := newFixture(t)
	x := leaf(t, g, []float32{5}, shape.Shape{1})
	y, err := g.Build(graph.OpMul, nil, x, x)
	require.NoError(t, err)
	scalar, err := g.Build(graph.OpReshape, map[string]any{"shape": shape.Shape{}}, y)
	require.NoError(t, err)

	require.NoError(t, Backward(g, b, scalar))
	first := downloadOne(t, b, g, g.Node(x).Grad)
	require.Equal(t, float32(10), first)

	require.NoError(t, Backward(g, b, scalar))
	second := downloadOne(t, b, g, g.Node(x).Grad)
	require.Equal(t, float32(20), second, "a second backward() call must accumulate onto the existing gradient")
}

func TestBackwardNonScalarRootErrors(t *testing.T) {
	b, g := newFixture(t)
	x := leaf(t, g, []float32{1, 2, 3}, shape.Shape{3})
	err := Backward(g, b, x)
	require.Error(t, err)
}

func TestBackwardOnNonDifferentiableRootErrors(t *testing.T) {
	b, g := newFixture(t)
	x := leaf(t, g, []float32{1, 2, 3}, shape.Shape{3})
	argmax, err := g.Build(graph.OpArgmaxReduce, map[string]any{"axes": []int{0}}, x)
	require.NoError(t, err)
	scalar, err := g.Build(graph.OpReshape, map[string]any{"shape": shape.Shape{}}, argmax)
	require.NoError(t, err)
	require.Error(t, Backward(g, b, scalar))
}
