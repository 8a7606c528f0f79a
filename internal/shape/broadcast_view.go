package shape

import "github.com/example/lazygrad/internal/lazyerr"

// BroadcastTo builds the View that reads original (assumed contiguous, the
// engine's Storage invariant) as if it had shape target: grown axes get
// stride 0 so every logical position along them reads the same underlying
// element. It never copies; the caller (internal/backend) realizes the
// broadcast view into a dense buffer via the same gather machinery used
// for every other movement op.
func BroadcastTo(original, target Shape) (View, error) {
	rankDiff := target.Rank() - original.Rank()
	if rankDiff < 0 {
		return View{}, lazyerr.Newf(lazyerr.ShapeMismatch, "broadcast_to",
			"cannot broadcast %v to lower rank %v", original, target)
	}
	origStrides := RowMajorStrides(original)
	strides := make([]int, target.Rank())
	for i := 0; i < target.Rank(); i++ {
		oi := i - rankDiff
		switch {
		case oi < 0:
			strides[i] = 0
		case original[oi] == target[i]:
			strides[i] = origStrides[oi]
		case original[oi] == 1:
			strides[i] = 0
		default:
			return View{}, lazyerr.Newf(lazyerr.ShapeMismatch, "broadcast_to",
				"axis %d: cannot broadcast size %d to %d", i, original[oi], target[i])
		}
	}
	return View{Shape: target.Clone(), Strides: strides, Offset: 0}, nil
}
