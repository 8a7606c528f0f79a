package shape

import "testing"

func TestReshapeContiguousNoCopy(t *testing.T) {
	v := NewContiguous(Shape{2, 3})
	out, needsCopy, err := v.Reshape(Shape{3, 2})
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}
	if needsCopy {
		t.Fatalf("contiguous reshape should not need a copy")
	}
	if !out.Shape.Equal(Shape{3, 2}) {
		t.Fatalf("got shape %v", out.Shape)
	}
}

func TestReshapeMismatchedElementCount(t *testing.T) {
	v := NewContiguous(Shape{2, 3})
	if _, _, err := v.Reshape(Shape{4, 2}); err == nil {
		t.Fatal("expected error for mismatched element counts")
	}
}

func TestPermuteThenInverseRecoversOriginal(t *testing.T) {
	v := NewContiguous(Shape{2, 3, 4})
	perm := []int{2, 0, 1}
	permuted, err := v.Permute(perm)
	if err != nil {
		t.Fatalf("permute: %v", err)
	}
	back, err := permuted.Permute(InversePermutation(perm))
	if err != nil {
		t.Fatalf("inverse permute: %v", err)
	}
	if !back.Shape.Equal(v.Shape) {
		t.Fatalf("got %v, want %v", back.Shape, v.Shape)
	}
	for i := range back.Strides {
		if back.Strides[i] != v.Strides[i] {
			t.Fatalf("stride %d: got %d want %d", i, back.Strides[i], v.Strides[i])
		}
	}
}

func TestSliceNegativeStepReverses(t *testing.T) {
	v := NewContiguous(Shape{5})
	out, err := v.Slice([]SliceSpec{{Start: 4, Stop: -1, Step: -1}})
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if out.Shape[0] != 5 {
		t.Fatalf("expected length 5, got %d", out.Shape[0])
	}
	if out.Strides[0] != -1 {
		t.Fatalf("expected stride -1, got %d", out.Strides[0])
	}
}

func TestSliceZeroStepIsError(t *testing.T) {
	v := NewContiguous(Shape{5})
	if _, err := v.Slice([]SliceSpec{{Start: 0, Stop: 5, Step: 0}}); err == nil {
		t.Fatal("expected error for zero step")
	}
}

func TestSqueezeUnsqueezeRoundTrip(t *testing.T) {
	v := NewContiguous(Shape{2, 1, 3})
	squeezed, err := v.Squeeze([]int{1})
	if err != nil {
		t.Fatalf("squeeze: %v", err)
	}
	if !squeezed.Shape.Equal(Shape{2, 3}) {
		t.Fatalf("got %v", squeezed.Shape)
	}
	back, err := squeezed.Unsqueeze([]int{1})
	if err != nil {
		t.Fatalf("unsqueeze: %v", err)
	}
	if !back.Shape.Equal(Shape{2, 1, 3}) {
		t.Fatalf("got %v", back.Shape)
	}
}

func TestFlattenRequiresContiguous(t *testing.T) {
	v := NewContiguous(Shape{2, 3, 4})
	permuted, err := v.Permute([]int{1, 0, 2})
	if err != nil {
		t.Fatalf("permute: %v", err)
	}
	if _, err := permuted.Flatten(0, 1); err == nil {
		t.Fatal("expected error flattening a non-contiguous view")
	}
}

func TestUnbroadcastAxesPadsLeadingDims(t *testing.T) {
	original := Shape{1, 3}
	grown := Shape{2, 4, 3}
	axes := UnbroadcastAxes(original, grown)
	if len(axes) != 2 || axes[0] != 0 || axes[1] != 1 {
		t.Fatalf("got axes %v", axes)
	}
}

func TestBroadcastToZeroStridesExpandedAxes(t *testing.T) {
	v, err := BroadcastTo(Shape{1, 3}, Shape{2, 4, 3})
	if err != nil {
		t.Fatalf("broadcast_to: %v", err)
	}
	if v.Strides[0] != 0 || v.Strides[1] != 0 {
		t.Fatalf("expected zero strides on grown axes, got %v", v.Strides)
	}
	if v.Strides[2] != 1 {
		t.Fatalf("expected stride 1 on the matching trailing axis, got %d", v.Strides[2])
	}
}

func TestBroadcastToIncompatibleIsError(t *testing.T) {
	if _, err := BroadcastTo(Shape{2, 3}, Shape{2, 4}); err == nil {
		t.Fatal("expected incompatible broadcast to error")
	}
}
