// Package rescale maps volume intensities onto a narrower output range using
// percentile clip bounds computed over the whole volume.
package rescale

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"txmconvert/pkg/volume"
)

var ErrInvalidParams = errors.New("rescale: invalid parameters")

// Params controls a percentile clip rescale.
type Params struct {
	// Lower and Upper are percentiles in [0, 100].
	Lower float64 `yaml:"lower" toml:"lower"`
	Upper float64 `yaml:"upper" toml:"upper"`

	// Bits is the output depth, 1 to 16.
	Bits int `yaml:"bits" toml:"bits"`
}

// DefaultParams clips the outer 0.1% at both ends into 16 bits.
func DefaultParams() Params {
	return Params{Lower: 0.1, Upper: 99.9, Bits: 16}
}

// Validate checks 0 <= Lower < Upper <= 100 and 1 <= Bits <= 16.
func (p Params) Validate() error {
	if math.IsNaN(p.Lower) || math.IsNaN(p.Upper) || p.Lower < 0 || p.Upper > 100 || p.Lower >= p.Upper {
		return fmt.Errorf("%w: percentiles %g/%g", ErrInvalidParams, p.Lower, p.Upper)
	}
	if p.Bits < 1 || p.Bits > 16 {
		return fmt.Errorf("%w: %d output bits", ErrInvalidParams, p.Bits)
	}
	return nil
}

// OutputType returns the element type produced for p.Bits.
func (p Params) OutputType() volume.ElementType {
	if p.Bits <= 8 {
		return volume.Uint8
	}
	return volume.Uint16
}

// MaxValue returns 2^Bits - 1.
func (p Params) MaxValue() float64 {
	return float64(uint32(1)<<uint(p.Bits) - 1)
}

// Midpoint is the value every voxel of a constant volume maps to.
func (p Params) Midpoint() float64 {
	return float64(uint32(1) << uint(p.Bits-1))
}

// Rescale clips v to its [Lower, Upper] percentile bounds and maps that
// range linearly onto [0, 2^Bits-1], rounding to nearest. v is not
// modified; the result keeps its shape and slice ordinals.
func Rescale(v *volume.Volume, p Params) (*volume.Volume, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	low, high, err := Bounds(v, p.Lower, p.Upper)
	if err != nil {
		return nil, err
	}
	return Apply(v, low, high, p), nil
}

// Apply maps v through fixed bounds. NaN voxels map to 0.
func Apply(v *volume.Volume, low, high float64, p Params) *volume.Volume {
	out := &volume.Volume{
		Width:     v.Width,
		Height:    v.Height,
		Type:      p.OutputType(),
		VoxelSize: v.VoxelSize,
		Slices:    make([]volume.Slice, len(v.Slices)),
	}
	n := v.Width * v.Height
	size := out.Type.Size()
	maxOut := p.MaxValue()
	degenerate := high <= low
	mid := p.Midpoint()
	scale := 0.0
	if !degenerate {
		scale = maxOut / (high - low)
	}

	mapValue := func(x float64) float64 {
		switch {
		case degenerate:
			return mid
		case math.IsNaN(x):
			return 0
		}
		x = math.Min(math.Max(x, low), high)
		y := math.Round((x - low) * scale)
		return math.Min(math.Max(y, 0), maxOut)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.NumCPU())
	for z := range v.Slices {
		wg.Add(1)
		sem <- struct{}{}
		go func(z int) {
			defer wg.Done()
			defer func() { <-sem }()

			data := make([]byte, n*size)
			for i := 0; i < n; i++ {
				y := mapValue(v.Value(z, i))
				if size == 1 {
					data[i] = uint8(y)
				} else {
					binary.LittleEndian.PutUint16(data[2*i:], uint16(y))
				}
			}
			out.Slices[z] = volume.Slice{Ordinal: v.Slices[z].Ordinal, Data: data}
		}(z)
	}
	wg.Wait()
	return out
}
