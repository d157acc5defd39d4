package volume

import (
	"errors"
	"fmt"
	"image"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"txmconvert/pkg/container"
)

// newContainer creates a container with uint16 geometry w x h and one slice
// per ordinal. Slice pixels are ordinal*1000 + index.
func newContainer(t *testing.T, w, h int, ordinals ...int) *container.Memory {
	t.Helper()
	m := container.NewMemory()
	for path, v := range map[string]uint32{
		WidthStream:    uint32(w),
		HeightStream:   uint32(h),
		DataTypeStream: CodeUint16,
	} {
		if err := m.PutValues(path, v); err != nil {
			t.Fatalf("PutValues: %v", err)
		}
	}
	if err := m.PutValues(PixelSizeStream, float32(1.25)); err != nil {
		t.Fatalf("PutValues: %v", err)
	}
	for _, ord := range ordinals {
		pix := make([]uint16, w*h)
		for i := range pix {
			pix[i] = uint16(ord*1000 + i)
		}
		path := fmt.Sprintf("ImageData%d/Image%d", (ord-1)/100+1, ord)
		if err := m.PutValues(path, pix); err != nil {
			t.Fatalf("PutValues: %v", err)
		}
	}
	return m
}

func TestElementTypeFromCode(t *testing.T) {
	tests := []struct {
		code uint32
		want ElementType
		size int
	}{
		{CodeUint8, Uint8, 1},
		{CodeUint16, Uint16, 2},
		{CodeFloat32, Float32, 4},
	}
	for _, tt := range tests {
		got, err := ElementTypeFromCode(tt.code)
		if err != nil || got != tt.want || got.Size() != tt.size {
			t.Errorf("ElementTypeFromCode(%d) = %v (%d bytes), %v", tt.code, got, got.Size(), err)
		}
	}
	if _, err := ElementTypeFromCode(7); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("code 7 error = %v, want ErrUnsupportedType", err)
	}
}

func TestListNumericOrder(t *testing.T) {
	m := container.NewMemory()
	for _, name := range []string{"ImageData1/Image10", "ImageData1/Image2", "ImageData1/Image1", "ImageInfo/ImageWidth"} {
		m.Put(name, []byte{0})
	}

	got, err := List(m, "Image")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, d := range got {
		paths = append(paths, d.Path)
	}
	want := []string{"ImageData1/Image1", "ImageData1/Image2", "ImageData1/Image10"}
	if fmt.Sprint(paths) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", paths, want)
	}
}

func TestAssembleOrdersNumerically(t *testing.T) {
	m := newContainer(t, 3, 2, 1, 2)
	v, err := Assemble(m, "Image")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if v.Depth() != 2 || v.Slices[0].Ordinal != 1 || v.Slices[1].Ordinal != 2 {
		t.Errorf("unexpected slices: %+v", v.Slices)
	}
	if v.Width != 3 || v.Height != 2 || v.Type != Uint16 || v.VoxelSize != 1.25 {
		t.Errorf("geometry = %dx%d %v %g", v.Width, v.Height, v.Type, v.VoxelSize)
	}
	if got := v.Value(1, 4); got != 2004 {
		t.Errorf("Value(1,4) = %v, want 2004", got)
	}
	if v.Bytes() != 2*3*2*2 {
		t.Errorf("Bytes = %d", v.Bytes())
	}
}

func TestGapError(t *testing.T) {
	m := newContainer(t, 2, 2, 1, 3)
	_, err := Assemble(m, "Image")
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("error = %v, want *GapError", err)
	}
	if gap.Missing != 2 || gap.After != 1 {
		t.Errorf("gap = %+v, want Missing 2 after 1", gap)
	}
	if !IsStructural(err) {
		t.Error("gap should be structural")
	}

	// {1, 2, 10}: first hole is 3.
	m = newContainer(t, 2, 2, 1, 2, 10)
	_, err = Discover(m, "Image")
	if !errors.As(err, &gap) || gap.Missing != 3 {
		t.Errorf("error = %v, want gap at 3", err)
	}
}

func TestSliceSizeMismatch(t *testing.T) {
	m := newContainer(t, 4, 4, 1, 2, 3)
	m.Put("ImageData1/Image2", make([]byte, 30))

	_, err := Assemble(m, "Image")
	var mismatch *SliceSizeMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want *SliceSizeMismatch", err)
	}
	if mismatch.Ordinal != 2 || mismatch.Want != 32 || mismatch.Have != 30 {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestDiscoverErrors(t *testing.T) {
	m := container.NewMemory()
	m.Put("ImageInfo/ImageWidth", []byte{1, 0, 0, 0})
	if _, err := Discover(m, "Image"); !errors.Is(err, ErrNoSlices) {
		t.Errorf("error = %v, want ErrNoSlices", err)
	}

	m.Put("ImageData1/Image1", []byte{0})
	m.Put("ImageData2/Image1", []byte{0})
	if _, err := Discover(m, "Image"); !errors.Is(err, ErrDuplicateSlice) {
		t.Errorf("error = %v, want ErrDuplicateSlice", err)
	}

	// Full-path prefixes disambiguate.
	got, err := Discover(m, "ImageData2/Image")
	if err != nil || len(got) != 1 || got[0].Path != "ImageData2/Image1" {
		t.Errorf("Discover full path = %+v, %v", got, err)
	}
}

func TestReadGeometryErrors(t *testing.T) {
	m := newContainer(t, 2, 2, 1)
	if err := m.PutValues(DataTypeStream, uint32(99)); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadGeometry(m); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("error = %v, want ErrUnsupportedType", err)
	}

	m = newContainer(t, 0, 2, 1)
	if _, err := ReadGeometry(m); !errors.Is(err, ErrBadGeometry) {
		t.Errorf("error = %v, want ErrBadGeometry", err)
	}

	m = container.NewMemory()
	if _, err := ReadGeometry(m); !errors.Is(err, container.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSliceImage(t *testing.T) {
	m := newContainer(t, 3, 2, 1)
	v, err := Assemble(m, "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	img, err := v.SliceImage(0)
	if err != nil {
		t.Fatalf("SliceImage: %v", err)
	}
	g, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("image type %T, want *image.Gray16", img)
	}
	// Pixel (1,1) is index 4: 1000 + 4.
	if got := g.Gray16At(1, 1).Y; got != 1004 {
		t.Errorf("pixel (1,1) = %d, want 1004", got)
	}
	if _, err := v.SliceImage(5); err == nil {
		t.Error("expected out of range error")
	}

	f := &Volume{Width: 1, Height: 1, Type: Float32, Slices: []Slice{{Ordinal: 1, Data: make([]byte, 4)}}}
	if _, err := f.SliceImage(0); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("float slice error = %v", err)
	}
}

func TestStats(t *testing.T) {
	nan := math.Float32bits(float32(math.NaN()))
	data := make([]byte, 0, 16)
	for _, bits := range []uint32{math.Float32bits(1), math.Float32bits(3), nan, math.Float32bits(5)} {
		data = append(data, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	v := &Volume{Width: 2, Height: 2, Type: Float32, Slices: []Slice{{Ordinal: 1, Data: data}}}

	s := v.Stats()
	if s.Min != 1 || s.Max != 5 || s.Mean != 3 || s.NaN != 1 {
		t.Errorf("stats = %+v", s)
	}
	if math.Abs(s.Std-2) > 1e-12 {
		t.Errorf("std = %v, want 2", s.Std)
	}
}

func TestStatsAcrossSlices(t *testing.T) {
	// 12 voxels per slice, ordinal k pixel i = k*1000+i: the merged result must
	// match a single pass over all 36 values.
	v, err := Assemble(newContainer(t, 4, 3, 1, 2, 3), "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var all []float64
	v.Each(func(x float64) { all = append(all, x) })
	mean, std := stat.MeanStdDev(all, nil)

	s := v.Stats()
	if s.Count != 36 || s.Min != all[0] || s.Max != all[len(all)-1] {
		t.Errorf("stats = %+v", s)
	}
	if math.Abs(s.Mean-mean) > 1e-9 || math.Abs(s.Std-std) > 1e-9 {
		t.Errorf("mean/std = %v/%v, want %v/%v", s.Mean, s.Std, mean, std)
	}

	if one := (&Volume{Width: 1, Height: 1, Type: Uint8, Slices: []Slice{{Ordinal: 1, Data: []byte{7}}}}).Stats(); one.Std != 0 || one.Mean != 7 {
		t.Errorf("single voxel stats = %+v", one)
	}
}

func TestAssembleFile(t *testing.T) {
	v, err := AssembleFile("testdata/sample.txm", "")
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if v.Width != 4 || v.Height != 3 || v.Depth() != 3 || v.Type != Uint16 {
		t.Fatalf("volume = %dx%dx%d %v", v.Width, v.Height, v.Depth(), v.Type)
	}
	if v.VoxelSize != 2.25 {
		t.Errorf("voxel size = %v, want 2.25", v.VoxelSize)
	}
	for z := 0; z < v.Depth(); z++ {
		if v.Slices[z].Ordinal != z+1 {
			t.Errorf("slice %d ordinal = %d", z, v.Slices[z].Ordinal)
		}
		for i := 0; i < 12; i++ {
			if got := v.Value(z, i); got != float64(z*100+i) {
				t.Errorf("voxel (%d, %d) = %v, want %d", z, i, got, z*100+i)
			}
		}
	}

	if _, err := AssembleFile("testdata/sample.txm", "Frame"); !errors.Is(err, ErrNoSlices) {
		t.Errorf("unknown prefix error = %v, want ErrNoSlices", err)
	}
}
