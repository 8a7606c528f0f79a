package shape

import "github.com/example/lazygrad/internal/lazyerr"

// View is (shape, strides, offset) over an underlying Storage: it fully
// describes element addressing without copying. Address of logical index
// idx is Offset + sum(idx[k]*Strides[k]).
type View struct {
	Shape   Shape
	Strides []int
	Offset  int
}

// NewContiguous builds the row-major view of a shape over a fresh, offset-0
// buffer — the view every constructor (zeros, ones, arange, from_numpy)
// starts from.
func NewContiguous(s Shape) View {
	return View{Shape: s.Clone(), Strides: RowMajorStrides(s), Offset: 0}
}

// Contiguous reports whether v's strides equal the row-major strides of
// its shape, i.e. whether addressing is a plain dense scan.
func (v View) Contiguous() bool {
	want := RowMajorStrides(v.Shape)
	for i := range want {
		if v.Strides[i] != want[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of v.
func (v View) Clone() View {
	strides := make([]int, len(v.Strides))
	copy(strides, v.Strides)
	return View{Shape: v.Shape.Clone(), Strides: strides, Offset: v.Offset}
}

// Reshape requires v.Shape and newShape to have equal element counts. If v
// is contiguous the result is a fresh row-major view (no copy needed); if
// not, the caller must first realize a contiguous copy through the
// backend (spec §4.1) — Reshape signals that case with a true second
// return value (and a zero View, nil error) rather than through an error,
// so callers can route to copy_contiguous without inspecting the error.
func (v View) Reshape(newShape Shape) (View, bool, error) {
	if v.Shape.NumElements() != newShape.NumElements() {
		return View{}, false, lazyerr.Newf(lazyerr.ShapeMismatch, "reshape",
			"cannot reshape %v (%d elements) into %v (%d elements)",
			v.Shape, v.Shape.NumElements(), newShape, newShape.NumElements())
	}
	if !v.Contiguous() {
		return View{}, true, nil
	}
	return NewContiguous(newShape), false, nil
}

// Permute reorders shape and strides according to perm, a permutation of
// 0..rank. The result remains a view (no copy) but may become
// non-contiguous.
func (v View) Permute(perm []int) (View, error) {
	rank := v.Shape.Rank()
	if len(perm) != rank {
		return View{}, lazyerr.Newf(lazyerr.ShapeMismatch, "permute",
			"permutation length %d does not match rank %d", len(perm), rank)
	}
	seen := make([]bool, rank)
	newShape := make(Shape, rank)
	newStrides := make([]int, rank)
	for i, p := range perm {
		n := p
		if n < 0 {
			n += rank
		}
		if n < 0 || n >= rank {
			return View{}, lazyerr.Newf(lazyerr.AxisOutOfRange, "permute", "axis %d out of range for rank %d", p, rank)
		}
		if seen[n] {
			return View{}, lazyerr.Newf(lazyerr.ShapeMismatch, "permute", "axis %d repeated in permutation %v", n, perm)
		}
		seen[n] = true
		newShape[i] = v.Shape[n]
		newStrides[i] = v.Strides[n]
	}
	return View{Shape: newShape, Strides: newStrides, Offset: v.Offset}, nil
}

// InversePermutation computes perm' such that v.Permute(perm).Permute(perm')
// recovers v's original axis order (spec §8 invariant 4).
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// SliceSpec is one axis's (start, stop, step) half-open slice descriptor.
type SliceSpec struct {
	Start, Stop, Step int
}

// Slice applies one SliceSpec per axis. A zero step is an error. For each
// axis the resulting length is ceildiv(max(0,(stop-start)*sign(step)),
// |step|); the new stride is old_stride*step and the offset shifts by
// start*old_stride. A negative step reverses the axis.
func (v View) Slice(specs []SliceSpec) (View, error) {
	rank := v.Shape.Rank()
	if len(specs) != rank {
		return View{}, lazyerr.Newf(lazyerr.ShapeMismatch, "slice",
			"expected %d slice specs, got %d", rank, len(specs))
	}
	newShape := make(Shape, rank)
	newStrides := make([]int, rank)
	offset := v.Offset
	for i, spec := range specs {
		if spec.Step == 0 {
			return View{}, lazyerr.Newf(lazyerr.InvalidSlice, "slice", "zero step on axis %d", i)
		}
		length := sliceLength(spec.Start, spec.Stop, spec.Step)
		newShape[i] = length
		newStrides[i] = v.Strides[i] * spec.Step
		offset += spec.Start * v.Strides[i]
	}
	return View{Shape: newShape, Strides: newStrides, Offset: offset}, nil
}

func sliceLength(start, stop, step int) int {
	diff := (stop - start) * sign(step)
	if diff < 0 {
		diff = 0
	}
	absStep := step
	if absStep < 0 {
		absStep = -absStep
	}
	return ceilDiv(diff, absStep)
}

func sign(x int) int {
	if x < 0 {
		return -1
	}
	return 1
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Squeeze removes size-1 dimensions. If axes is non-nil, only those axes
// are removed (and it is an error if one of them is not size 1);
// otherwise every size-1 dimension is removed.
func (v View) Squeeze(axes []int) (View, error) {
	rank := v.Shape.Rank()
	var drop map[int]bool
	if axes != nil {
		norm, err := NormalizeAxes(axes, rank)
		if err != nil {
			return View{}, err
		}
		drop = make(map[int]bool, len(norm))
		for _, a := range norm {
			if v.Shape[a] != 1 {
				return View{}, lazyerr.Newf(lazyerr.ShapeMismatch, "squeeze",
					"axis %d has size %d, cannot squeeze", a, v.Shape[a])
			}
			drop[a] = true
		}
	} else {
		drop = make(map[int]bool, rank)
		for i, d := range v.Shape {
			if d == 1 {
				drop[i] = true
			}
		}
	}
	newShape := make(Shape, 0, rank)
	newStrides := make([]int, 0, rank)
	for i := 0; i < rank; i++ {
		if drop[i] {
			continue
		}
		newShape = append(newShape, v.Shape[i])
		newStrides = append(newStrides, v.Strides[i])
	}
	return View{Shape: newShape, Strides: newStrides, Offset: v.Offset}, nil
}

// Unsqueeze inserts size-1 dimensions at the given axes (axes are resolved
// against the *output* rank, matching numpy/pytorch semantics).
func (v View) Unsqueeze(axes []int) (View, error) {
	outRank := v.Shape.Rank() + len(axes)
	norm, err := NormalizeAxes(axes, outRank)
	if err != nil {
		return View{}, err
	}
	insert := make(map[int]bool, len(norm))
	for _, a := range norm {
		insert[a] = true
	}
	newShape := make(Shape, 0, outRank)
	newStrides := make([]int, 0, outRank)
	src := 0
	// A newly-inserted size-1 axis gets the row-major stride it would have
	// next to the axis immediately to its right (that axis's stride times
	// its size) so the view remains addressable without a copy; at the
	// tail, it carries stride 1.
	for out := 0; out < outRank; out++ {
		if insert[out] {
			newShape = append(newShape, 1)
			newStrides = append(newStrides, 0)
			continue
		}
		newShape = append(newShape, v.Shape[src])
		newStrides = append(newStrides, v.Strides[src])
		src++
	}
	fixUnsqueezeStrides(newStrides, newShape)
	return View{Shape: newShape, Strides: newStrides, Offset: v.Offset}, nil
}

// fixUnsqueezeStrides assigns a real (non-zero, inert) stride to each
// inserted size-1 axis: since the axis has size 1 its stride value never
// actually contributes to addressing, so any stride is addressing-safe;
// we pick the right-hand neighbor's stride times its size so the view
// still "looks" row-major to Contiguous() when the rest of the view is
// contiguous. Axes are visited right to left so that a run of adjacent
// inserted axes each see an already-assigned neighbor.
func fixUnsqueezeStrides(strides []int, sh Shape) {
	for i := len(sh) - 1; i >= 0; i-- {
		d := sh[i]
		if d != 1 || strides[i] != 0 {
			continue
		}
		switch {
		case i+1 < len(strides):
			strides[i] = strides[i+1] * sh[i+1]
		case i > 0:
			strides[i] = 1
		default:
			strides[i] = 1
		}
	}
}

// Flatten collapses the contiguous axis range [start, end] (inclusive,
// negative indices wrap) into a single axis. Requires the whole of v to
// be contiguous, not only that sub-range; non-contiguous inputs must be
// realized first by the caller.
func (v View) Flatten(start, end int) (View, error) {
	rank := v.Shape.Rank()
	norm, err := NormalizeAxes([]int{start, end}, rank)
	if err != nil {
		return View{}, err
	}
	lo, hi := norm[0], norm[len(norm)-1]
	if !v.Contiguous() {
		return View{}, lazyerr.New(lazyerr.ShapeMismatch, "flatten", "flatten requires a contiguous view; realize first")
	}
	collapsed := 1
	for i := lo; i <= hi; i++ {
		collapsed *= v.Shape[i]
	}
	newShape := make(Shape, 0, rank-(hi-lo))
	newShape = append(newShape, v.Shape[:lo]...)
	newShape = append(newShape, collapsed)
	newShape = append(newShape, v.Shape[hi+1:]...)
	return View{Shape: newShape, Strides: RowMajorStrides(newShape), Offset: v.Offset}, nil
}

// UnbroadcastAxes returns the axes along which a gradient of shape grown
// (broadcast from original) must be summed to regain original's shape,
// per the VJP unbroadcasting rule in spec §4.4. original may have fewer
// leading dims than grown (they are implicitly size-1).
func UnbroadcastAxes(original, grown Shape) []int {
	pad := len(grown) - len(original)
	axes := make([]int, 0, len(grown))
	for i := 0; i < len(grown); i++ {
		if i < pad {
			axes = append(axes, i)
			continue
		}
		if original[i-pad] == 1 && grown[i] != 1 {
			axes = append(axes, i)
		}
	}
	return axes
}
