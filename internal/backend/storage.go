package backend

import (
	"sync/atomic"

	"gorgonia.org/tensor"

	"github.com/example/lazygrad/internal/dtype"
)

// Storage is the engine's opaque, reference-counted buffer (spec
// component C2). It is exclusively owned and mutated by the Backend; the
// core only ever holds a Storage handle, never its bytes. The concrete
// buffer is a *tensor.Dense from gorgonia.org/tensor, which is itself a
// (shape, strides, offset) view over a shared backing array — exactly the
// View semantics spec §3 asks for, so a Storage doubles as both the
// "Storage" and the realized "View" once a node is evaluated.
type Storage struct {
	dense *tensor.Dense
	refs  int32
}

func newStorage(d *tensor.Dense) *Storage {
	return &Storage{dense: d, refs: 1}
}

// Dense exposes the underlying gorgonia tensor for backend-internal use.
// Core packages never call this directly; only backend's own op
// implementations do.
func (s *Storage) Dense() *tensor.Dense { return s.dense }

// IncRef records an additional owner of this Storage. The engine's
// lifetime model (spec §3) is "longest of the Arrays sharing it"; Go's GC
// performs the actual reclamation. The counter is diagnostic only: it is
// read through RefCount, and Cleanup does not inspect it.
func (s *Storage) IncRef() { atomic.AddInt32(&s.refs, 1) }

// DecRef releases one ownership reference, returning the remaining count.
func (s *Storage) DecRef() int32 { return atomic.AddInt32(&s.refs, -1) }

// RefCount reports the current reference count, for diagnostics.
func (s *Storage) RefCount() int32 { return atomic.LoadInt32(&s.refs) }

// Shape reports the storage's current logical shape.
func (s *Storage) Shape() []int {
	sh := s.dense.Shape()
	out := make([]int, len(sh))
	copy(out, sh)
	return out
}

// Dtype reports the storage's element dtype.
func (s *Storage) Dtype() dtype.Dtype { return fromGorgoniaDtype(s.dense.Dtype()) }
