package rescale

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"txmconvert/pkg/volume"
)

var ErrEmptyVolume = errors.New("rescale: volume has no finite voxels")

// Bounds returns the lower and upper percentile bounds of every voxel in v.
// Both are actual voxel values: the order statistic at or below the lower
// percentile's rank and the one at or above the upper percentile's rank, so
// a volume rescaled through its own bounds has the full output range as its
// bounds again. NaN voxels are ignored.
func Bounds(v *volume.Volume, lower, upper float64) (float64, float64, error) {
	if lower < 0 || upper > 100 || lower > upper {
		return 0, 0, fmt.Errorf("%w: percentiles %g/%g", ErrInvalidParams, lower, upper)
	}
	if v.Type.Integer() {
		h := newHistogram(v)
		if h.total == 0 {
			return 0, 0, ErrEmptyVolume
		}
		lo, _ := ranks(lower, h.total)
		_, hi := ranks(upper, h.total)
		return h.nth(lo), h.nth(hi), nil
	}

	sorted := make([]float64, 0, v.Voxels())
	v.Each(func(x float64) {
		if !math.IsNaN(x) {
			sorted = append(sorted, x)
		}
	})
	if len(sorted) == 0 {
		return 0, 0, ErrEmptyVolume
	}
	sort.Float64s(sorted)
	lo, _ := ranks(lower, int64(len(sorted)))
	_, hi := ranks(upper, int64(len(sorted)))
	return sorted[lo], sorted[hi], nil
}

// rankEpsilon absorbs floating point noise in p/100*(n-1) so an integral
// rank selects a single order statistic.
const rankEpsilon = 1e-9

// ranks returns the 0-based order statistics just below and just above
// percentile p over n values. They are equal when the rank is integral.
func ranks(p float64, n int64) (lo, hi int64) {
	pos := p / 100 * float64(n-1)
	lo = int64(math.Floor(pos + rankEpsilon))
	hi = int64(math.Ceil(pos - rankEpsilon))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// histogram counts integer voxels; it avoids copying and sorting volumes of
// hundreds of millions of pixels.
type histogram struct {
	counts []int64
	total  int64
}

func newHistogram(v *volume.Volume) *histogram {
	h := &histogram{counts: make([]int64, 1<<(8*v.Type.Size()))}
	v.Each(func(x float64) {
		h.counts[int(x)]++
	})
	h.total = int64(v.Voxels())
	return h
}

// nth returns the k-th smallest value (0-based).
func (h *histogram) nth(k int64) float64 {
	var seen int64
	for value, c := range h.counts {
		seen += c
		if seen > k {
			return float64(value)
		}
	}
	return float64(len(h.counts) - 1)
}
