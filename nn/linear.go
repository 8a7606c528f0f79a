// Package nn provides the small neural-network building blocks the
// reference implementation ships alongside its array engine: a Linear
// layer, the relu/onehot/cross_entropy_loss functionals, and an SGD
// optimizer that builds a detached update expression per parameter on
// each step.
package nn

import (
	"math/rand"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/example/lazygrad"
	"github.com/example/lazygrad/internal/lazyerr"
)

// Module is the common interface every layer in this package implements:
// a forward pass and the list of parameter Arrays backward should
// differentiate with respect to.
type Module interface {
	Forward(x lazygrad.Array) (lazygrad.Array, error)
	Parameters() []lazygrad.Array
}

// Linear is a fully connected layer: y = x @ W + b, with W of shape
// (in, out) and b of shape (out). Weights are drawn uniformly from
// [-k, k] with k = sqrt(1/in), matching the reference implementation's
// initializer exactly (original_source/python/nn/__init__.py's
// `Linear.__init__`).
type Linear struct {
	W, B lazygrad.Array
	HasB bool
}

// NewLinear constructs a Linear layer in scope s. src seeds the weight
// initializer; pass a freshly-seeded *rand.Rand for reproducible tests,
// or rand.NewSource(time.Now().UnixNano()) for training runs.
func NewLinear(s *lazygrad.Scope, in, out int, bias bool, src rand.Source) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, lazyerr.Newf(lazyerr.ShapeMismatch, "linear", "in/out must be positive, got (%d, %d)", in, out)
	}
	bound := float64(math32.Sqrt(1.0 / float32(in)))
	u := distuv.Uniform{Min: -bound, Max: bound, Src: src}

	wData := make([]float32, in*out)
	for i := range wData {
		wData[i] = float32(u.Rand())
	}
	w, err := s.FromSlice(wData, []int{in, out}, lazygrad.Float32)
	if err != nil {
		return nil, err
	}

	l := &Linear{W: w, HasB: bias}
	if bias {
		bData := make([]float32, out)
		for i := range bData {
			bData[i] = float32(u.Rand())
		}
		b, err := s.FromSlice(bData, []int{out}, lazygrad.Float32)
		if err != nil {
			return nil, err
		}
		l.B = b
	}
	return l, nil
}

// Forward computes x @ W (+ b if present). x's last dimension must equal
// W's input dimension; leading dimensions are the batch.
func (l *Linear) Forward(x lazygrad.Array) (lazygrad.Array, error) {
	out, err := x.MatMul(l.W)
	if err != nil {
		return lazygrad.Array{}, err
	}
	if !l.HasB {
		return out, nil
	}
	return out.Add(l.B)
}

// Parameters returns the layer's trainable arrays (W, and B if present).
func (l *Linear) Parameters() []lazygrad.Array {
	if l.HasB {
		return []lazygrad.Array{l.W, l.B}
	}
	return []lazygrad.Array{l.W}
}
