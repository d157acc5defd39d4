package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"txmconvert/pkg/container"
)

// Streams holding the image geometry.
const (
	WidthStream     = "ImageInfo/ImageWidth"
	HeightStream    = "ImageInfo/ImageHeight"
	DataTypeStream  = "ImageInfo/DataType"
	PixelSizeStream = "ImageInfo/PixelSize"
)

// Geometry is the declared shape of every slice.
type Geometry struct {
	Width  int
	Height int
	Type   ElementType
	// VoxelSize in micrometres, 0 when the container does not record it.
	VoxelSize float64
}

// SliceBytes returns the byte size one slice must have.
func (g Geometry) SliceBytes() int64 {
	return int64(g.Width) * int64(g.Height) * int64(g.Type.Size())
}

// Validate checks that the geometry describes a non-empty image.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadGeometry, g.Width, g.Height)
	}
	if g.Type.Size() == 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedType, g.Type)
	}
	return nil
}

// ReadGeometry reads width, height and data type from the ImageInfo
// streams. The pixel size is optional.
func ReadGeometry(c container.Catalog) (Geometry, error) {
	var g Geometry
	w, err := readUint32(c, WidthStream)
	if err != nil {
		return g, err
	}
	h, err := readUint32(c, HeightStream)
	if err != nil {
		return g, err
	}
	code, err := readUint32(c, DataTypeStream)
	if err != nil {
		return g, err
	}
	t, err := ElementTypeFromCode(code)
	if err != nil {
		return g, err
	}
	g = Geometry{Width: int(w), Height: int(h), Type: t}

	if bits, err := readUint32(c, PixelSizeStream); err == nil {
		g.VoxelSize = float64(math.Float32frombits(bits))
	}
	return g, g.Validate()
}

func readUint32(c container.Catalog, path string) (uint32, error) {
	b, err := c.Read(path, 0, 4)
	if err != nil {
		return 0, fmt.Errorf("reading geometry: %w", err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Assemble discovers the slices named prefix<N> and reads them into a
// Volume shaped by the container's ImageInfo geometry.
func Assemble(c container.Catalog, prefix string) (*Volume, error) {
	g, err := ReadGeometry(c)
	if err != nil {
		return nil, err
	}
	return AssembleWith(c, prefix, g)
}

// AssembleWith assembles a volume using an explicit geometry.
func AssembleWith(c container.Catalog, prefix string, g Geometry) (*Volume, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	slices, err := Discover(c, prefix)
	if err != nil {
		return nil, err
	}

	want := g.SliceBytes()
	v := &Volume{
		Width:     g.Width,
		Height:    g.Height,
		Type:      g.Type,
		VoxelSize: g.VoxelSize,
		Slices:    make([]Slice, 0, len(slices)),
	}
	for _, d := range slices {
		if d.Size != want {
			return nil, &SliceSizeMismatch{Ordinal: d.Ordinal, Path: d.Path, Want: want, Have: d.Size}
		}
		data, err := c.Read(d.Path, 0, want)
		if err != nil {
			return nil, fmt.Errorf("reading slice %d: %w", d.Ordinal, err)
		}
		v.Slices = append(v.Slices, Slice{Ordinal: d.Ordinal, Data: data})
	}
	return v, nil
}

// AssembleFile opens path, assembles its volume and closes it again.
func AssembleFile(path, prefix string) (*Volume, error) {
	f, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := Assemble(f, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// IsStructural reports whether err is a volume layout violation (gap,
// duplicate or size mismatch) rather than an I/O or geometry problem.
func IsStructural(err error) bool {
	var gap *GapError
	var size *SliceSizeMismatch
	return errors.As(err, &gap) || errors.As(err, &size) || errors.Is(err, ErrDuplicateSlice)
}
