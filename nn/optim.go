package nn

import (
	"github.com/example/lazygrad"
)

// SGD is a plain (momentum-free) stochastic gradient descent optimizer.
// Each Step builds, for every parameter with a gradient, a fresh update
// expression `(p - lr*grad(p)).detach()` and returns it unevaluated; the
// update graph is rebuilt on every call, nothing is cached between Steps,
// and evaluation happens only when the returned Arrays are next realized.
type SGD struct {
	s      *lazygrad.Scope
	lr     float64
	params []lazygrad.Array
}

// NewSGD constructs an optimizer over params with learning rate lr.
func NewSGD(s *lazygrad.Scope, params []lazygrad.Array, lr float64) *SGD {
	return &SGD{s: s, lr: lr, params: append([]lazygrad.Array(nil), params...)}
}

// Step applies one gradient-descent update to every parameter using its
// currently accumulated Grad(), then detaches the result so the next
// forward pass starts a fresh graph rooted at the updated value.
// Parameters with no accumulated gradient (e.g. unused in the loss) are
// left unchanged. Step returns the updated parameter Arrays in the same
// order as the params given to NewSGD; callers must rebind their model's
// fields to these returned arrays (Arrays are immutable handles, not
// mutable cells).
func (o *SGD) Step() ([]lazygrad.Array, error) {
	updated := make([]lazygrad.Array, len(o.params))
	for i, p := range o.params {
		grad, ok := p.Grad()
		if !ok {
			updated[i] = p
			continue
		}
		lrArr, err := o.s.Full(p.Shape(), lazygrad.Float32, o.lr)
		if err != nil {
			return nil, err
		}
		scaled, err := lrArr.Mul(grad)
		if err != nil {
			return nil, err
		}
		next, err := p.Sub(scaled)
		if err != nil {
			return nil, err
		}
		detached, err := next.Detach()
		if err != nil {
			return nil, err
		}
		updated[i] = detached
	}
	o.params = updated
	return updated, nil
}

// Params returns the optimizer's current view of its parameters (after
// the most recent Step, if any).
func (o *SGD) Params() []lazygrad.Array { return append([]lazygrad.Array(nil), o.params...) }
