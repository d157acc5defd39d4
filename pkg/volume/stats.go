package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the intensities of a volume.
type Stats struct {
	Min, Max  float64
	Mean, Std float64
	// Count is the number of finite pixels summarised.
	Count int
	// NaN counts float pixels excluded from the summary.
	NaN int
}

func (s Stats) String() string {
	return fmt.Sprintf("min %g, max %g, mean %.4g, std %.4g over %d voxels", s.Min, s.Max, s.Mean, s.Std, s.Count)
}

// Stats computes intensity statistics over the whole volume. NaN pixels are
// skipped. Slices are summarised one at a time and merged, so only one
// slice is ever copied.
func (v *Volume) Stats() Stats {
	var s Stats
	var m2 float64 // sum of squared deviations from the running mean
	buf := make([]float64, 0, v.Width*v.Height)
	n := v.Width * v.Height

	for z := range v.Slices {
		buf = buf[:0]
		for i := 0; i < n; i++ {
			x := v.Value(z, i)
			if math.IsNaN(x) {
				s.NaN++
				continue
			}
			buf = append(buf, x)
		}
		if len(buf) == 0 {
			continue
		}

		lo, hi := floats.Min(buf), floats.Max(buf)
		mean, variance := stat.MeanVariance(buf, nil)
		nb := float64(len(buf))
		sliceM2 := 0.0
		if len(buf) > 1 {
			sliceM2 = variance * (nb - 1)
		}

		if s.Count == 0 {
			s.Min, s.Max, s.Mean, m2 = lo, hi, mean, sliceM2
			s.Count = len(buf)
			continue
		}
		s.Min = math.Min(s.Min, lo)
		s.Max = math.Max(s.Max, hi)
		na := float64(s.Count)
		total := na + nb
		delta := mean - s.Mean
		s.Mean += delta * nb / total
		m2 += sliceM2 + delta*delta*na*nb/total
		s.Count += len(buf)
	}

	if s.Count > 1 {
		s.Std = math.Sqrt(m2 / float64(s.Count-1))
	}
	return s
}
