// Package volume reassembles the per-slice image streams of a container into
// an ordered 3D volume.
//
// Slices are stored as raw little-endian pixel buffers, one stream per
// slice, named with a common prefix and a decimal ordinal ("Image1",
// "Image2", ... "Image10"). The image geometry (width, height, element type)
// comes from the ImageInfo streams, never from the slice sizes.
package volume

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
)

// ElementType is the primitive type of one pixel.
type ElementType int

const (
	Uint8 ElementType = iota + 1
	Uint16
	Float32
)

// Data type codes stored in ImageInfo/DataType.
const (
	CodeUint8   = 3
	CodeUint16  = 5
	CodeFloat32 = 10
)

// ElementTypeFromCode maps an ImageInfo/DataType code to an ElementType.
func ElementTypeFromCode(code uint32) (ElementType, error) {
	switch code {
	case CodeUint8:
		return Uint8, nil
	case CodeUint16:
		return Uint16, nil
	case CodeFloat32:
		return Float32, nil
	}
	return 0, fmt.Errorf("%w: data type code %d", ErrUnsupportedType, code)
}

// Size returns the number of bytes per pixel.
func (t ElementType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	}
	return 0
}

// Integer reports whether the type holds integer intensities.
func (t ElementType) Integer() bool {
	return t == Uint8 || t == Uint16
}

func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("element(%d)", int(t))
}

// Slice is one 2D plane of a volume.
type Slice struct {
	// Ordinal is the index parsed from the stream name.
	Ordinal int

	// Data holds Width*Height pixels, x fastest, little-endian.
	Data []byte
}

// Volume is an ordered stack of equally shaped slices.
type Volume struct {
	Width  int
	Height int
	Type   ElementType

	// VoxelSize is the pixel size in micrometres, 0 when unknown.
	VoxelSize float64

	// Slices are ordered by ascending ordinal.
	Slices []Slice
}

// Depth returns the number of slices.
func (v *Volume) Depth() int {
	return len(v.Slices)
}

// SliceBytes returns the byte size of one slice.
func (v *Volume) SliceBytes() int {
	return v.Width * v.Height * v.Type.Size()
}

// Voxels returns the total pixel count.
func (v *Volume) Voxels() int {
	return v.Width * v.Height * v.Depth()
}

// Bytes returns the total size of the pixel data.
func (v *Volume) Bytes() int64 {
	return int64(v.SliceBytes()) * int64(v.Depth())
}

// Value returns pixel i of slice z as float64.
func (v *Volume) Value(z, i int) float64 {
	b := v.Slices[z].Data
	switch v.Type {
	case Uint8:
		return float64(b[i])
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b[2*i:]))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return 0
}

// Each calls fn for every pixel of the volume in slice order.
func (v *Volume) Each(fn func(value float64)) {
	n := v.Width * v.Height
	for z := range v.Slices {
		for i := 0; i < n; i++ {
			fn(v.Value(z, i))
		}
	}
}

// SliceImage returns slice z as a grayscale image. Float slices are not
// representable and return an error; rescale them first.
func (v *Volume) SliceImage(z int) (image.Image, error) {
	if z < 0 || z >= len(v.Slices) {
		return nil, fmt.Errorf("slice %d out of range [0,%d)", z, len(v.Slices))
	}
	rect := image.Rect(0, 0, v.Width, v.Height)
	data := v.Slices[z].Data

	switch v.Type {
	case Uint8:
		img := image.NewGray(rect)
		copy(img.Pix, data)
		return img, nil
	case Uint16:
		img := image.NewGray16(rect)
		// image.Gray16 is big-endian.
		for i := 0; i < v.Width*v.Height; i++ {
			img.Pix[2*i] = data[2*i+1]
			img.Pix[2*i+1] = data[2*i]
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: cannot render %s slices as images", ErrUnsupportedType, v.Type)
}
