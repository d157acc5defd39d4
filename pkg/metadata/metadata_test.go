package metadata

import (
	"errors"
	"math"
	"sync"
	"testing"

	"txmconvert/pkg/container"
)

// countingCatalog records every path that is statted or read.
type countingCatalog struct {
	container.Catalog

	mu    sync.Mutex
	stats map[string]int
	reads map[string]int
}

func newCountingCatalog(c container.Catalog) *countingCatalog {
	return &countingCatalog{Catalog: c, stats: map[string]int{}, reads: map[string]int{}}
}

func (c *countingCatalog) Stat(path string) (container.Entry, error) {
	c.mu.Lock()
	c.stats[path]++
	c.mu.Unlock()
	return c.Catalog.Stat(path)
}

func (c *countingCatalog) Read(path string, offset, length int64) ([]byte, error) {
	c.mu.Lock()
	c.reads[path]++
	c.mu.Unlock()
	return c.Catalog.Read(path, offset, length)
}

func put(t *testing.T, m *container.Memory, path string, values ...any) {
	t.Helper()
	if err := m.PutValues(path, values...); err != nil {
		t.Fatalf("PutValues(%q): %v", path, err)
	}
}

// txmFixture builds a minimal TXM container.
func txmFixture(t *testing.T, code int32, stitched bool) *container.Memory {
	m := container.NewMemory()
	put(t, m, "ImageInfo/Date", "03/14/2023 09:26:53")
	put(t, m, "ImageInfo/Voltage", float32(80))
	put(t, m, "ImageInfo/Current", float32(87.5))
	put(t, m, "AutoRecon/NumOfProjects", int32(1601))
	put(t, m, "AutoRecon/AngleSpan", float32(360))
	put(t, m, "ImageInfo/ExpTimes", float32(0), float32(1.5), float32(1.5))
	put(t, m, "ImageInfo/ObjectiveName", "4X Macro")
	put(t, m, "ImageInfo/PixelSize", float32(2.25))
	put(t, m, "ImageInfo/StoRADistance", float32(-25000))
	put(t, m, "ImageInfo/DtoRADistance", float32(75000))
	put(t, m, "ImageInfo/ImageWidth", uint32(4))
	put(t, m, "ImageInfo/ImageHeight", uint32(3))
	put(t, m, "ImageInfo/DataType", uint32(5))
	put(t, m, "ImageInfo/AcquisitionMode", code)
	var flag byte
	if stitched {
		flag = 1
	}
	put(t, m, pathStitchEnabled, []byte{flag})
	put(t, m, pathStitchSegments, int32(3))
	return m
}

func TestSchemasValidate(t *testing.T) {
	for _, kind := range []Kind{KindTXM, KindTXRM, KindRCP, KindXRM} {
		s, err := SchemaFor(kind)
		if err != nil {
			t.Fatalf("SchemaFor(%v): %v", kind, err)
		}
		if s.Kind != kind {
			t.Errorf("SchemaFor(%v).Kind = %v", kind, s.Kind)
		}
		if err := s.validate(); err != nil {
			t.Errorf("%v schema invalid: %v", kind, err)
		}
	}
	if _, err := SchemaFor(Kind(42)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("SchemaFor(42) error = %v, want ErrUnknownKind", err)
	}
}

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Kind
		wantErr bool
	}{
		{"scan.txm", KindTXM, false},
		{"/data/Scan.TXRM", KindTXRM, false},
		{"recipe.rcp", KindRCP, false},
		{"radiograph.Xrm", KindXRM, false},
		{"notes.txt", 0, true},
		{"noext", 0, true},
	}
	for _, tt := range tests {
		got, err := KindFromPath(tt.path)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownKind) {
				t.Errorf("KindFromPath(%q) error = %v, want ErrUnknownKind", tt.path, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("KindFromPath(%q) = %v, %v; want %v", tt.path, got, err, tt.want)
		}
	}
}

func TestDecodeMatchesHandComputedBytes(t *testing.T) {
	m := container.NewMemory()
	// int32 -2 at offset 0, uint32 0xDEADBEEF at offset 4.
	m.Put("Raw/Ints", []byte{0xFE, 0xFF, 0xFF, 0xFF, 0xEF, 0xBE, 0xAD, 0xDE})
	// float32 1.5 = 0x3FC00000, float64 -0.25 = 0xBFD0000000000000.
	m.Put("Raw/F32", []byte{0x00, 0x00, 0xC0, 0x3F})
	m.Put("Raw/F64", []byte{0, 0, 0, 0, 0, 0, 0xD0, 0xBF})
	m.Put("Raw/Str", []byte("Tomography\x00garbage"))

	schema := &Schema{Kind: KindTXM, Fields: []FieldSpec{
		stream("i", "", "", Int32, "Raw/Ints"),
		stream("u", "", "", Uint32, "Raw/Ints").at(4),
		stream("pair", "", "", Int32, "Raw/Ints").n(2),
		stream("f32", "", "", Float32, "Raw/F32"),
		stream("f64", "", "", Float64, "Raw/F64"),
		text("s", "", "Raw/Str"),
	}}
	if err := schema.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	rec := extractSchema(m, schema, "", -1)

	if v, _ := rec.Value("i"); mustInt(t, v, 0) != -2 {
		t.Errorf("i = %v, want -2", v)
	}
	if v, _ := rec.Value("u"); mustInt(t, v, 0) != 0xDEADBEEF {
		t.Errorf("u = %v, want 0xDEADBEEF", v)
	}
	if v, _ := rec.Value("pair"); v.Len() != 2 || mustInt(t, v, 1) != int64(int32(-559038737)) {
		t.Errorf("pair = %v", v)
	}
	if v, _ := rec.Value("f32"); mustFloat(t, v, 0) != 1.5 {
		t.Errorf("f32 = %v, want 1.5", v)
	}
	if v, _ := rec.Value("f64"); mustFloat(t, v, 0) != -0.25 {
		t.Errorf("f64 = %v, want -0.25", v)
	}
	if v, _ := rec.Value("s"); v.Str() != "Tomography" {
		t.Errorf("s = %q, want Tomography", v.Str())
	}
}

func mustInt(t *testing.T, v Value, i int) int64 {
	t.Helper()
	n, ok := v.Int(i)
	if !ok {
		t.Fatalf("value %v has no int element %d", v, i)
	}
	return n
}

func mustFloat(t *testing.T, v Value, i int) float64 {
	t.Helper()
	f, ok := v.Float(i)
	if !ok {
		t.Fatalf("value %v has no float element %d", v, i)
	}
	return f
}

func TestExtractTXM(t *testing.T) {
	rec, err := Extract(txmFixture(t, 2, false), KindTXM)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	texts := map[string]string{
		FieldDate:             "2023-03-14",
		FieldTime:             "09:26:53",
		FieldVoltage:          "80",
		FieldPower:            "7.0",
		FieldProjections:      "1601",
		FieldRotation:         "360",
		FieldExposure:         "1.50",
		FieldObjective:        "4X",
		FieldSourceDistance:   "-25.00",
		FieldDetectorDistance: "75.00",
		FieldImageWidth:       "4",
		FieldDataType:         "5",
		FieldAcquisitionMode:  "single-scan",
	}
	for name, want := range texts {
		f, ok := rec.Field(name)
		if !ok {
			t.Errorf("field %s missing from record", name)
			continue
		}
		if got := f.Text(); got != want {
			t.Errorf("%s = %q, want %q (status %v)", name, got, want, f.Status)
		}
	}

	if st := rec.Status(FieldFilter); st != Absent {
		t.Errorf("filter status = %v, want absent", st)
	}
	if len(rec.Errors()) != 0 {
		t.Errorf("unexpected field errors: %v", rec.Errors())
	}
	if f, _ := rec.Field(FieldExposure); f.Path != "ImageInfo/ExpTimes" {
		t.Errorf("exposure path = %q", f.Path)
	}
}

func TestAcquisitionModeDerivation(t *testing.T) {
	tests := []struct {
		code     int32
		stitched bool
		want     Mode
	}{
		{2, true, ModeStitched},
		{2, false, ModeSingle},
		{10, false, ModeSingle},
		{17, false, ModeWide},
		{17, true, ModeWideStitched},
		{5, true, ModeUnknown},
	}
	for _, tt := range tests {
		rec, err := Extract(txmFixture(t, tt.code, tt.stitched), KindTXM)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if got := rec.Mode(); got != tt.want {
			t.Errorf("code %d stitched %v: mode = %q, want %q", tt.code, tt.stitched, got, tt.want)
		}
	}
}

func TestConditionalFieldNeverRead(t *testing.T) {
	c := newCountingCatalog(txmFixture(t, 2, false))
	rec, err := Extract(c, KindTXM)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if st := rec.Status(FieldSegments); st != Absent {
		t.Errorf("segments status = %v, want absent", st)
	}
	if c.stats[pathStitchSegments] != 0 || c.reads[pathStitchSegments] != 0 {
		t.Errorf("segments stream touched: %d stats, %d reads",
			c.stats[pathStitchSegments], c.reads[pathStitchSegments])
	}

	// Stitched: the same stream is now read.
	c = newCountingCatalog(txmFixture(t, 2, true))
	rec, _ = Extract(c, KindTXM)
	if v, ok := rec.Value(FieldSegments); !ok || mustInt(t, v, 0) != 3 {
		t.Errorf("segments = %v, %v; want 3", v, ok)
	}
	if c.reads[pathStitchSegments] != 1 {
		t.Errorf("segments reads = %d, want 1", c.reads[pathStitchSegments])
	}
}

func TestCandidatePathFallback(t *testing.T) {
	m := txmFixture(t, 2, false)
	m.Delete("ImageInfo/ExpTimes")
	m.Delete("AutoRecon/NumOfProjects")
	put(t, m, "Imageinfo/ExpTimes", float32(0), float32(4))
	put(t, m, "ImageInfo/ImagesTaken", uint32(900))

	rec, err := Extract(m, KindTXM)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	f, _ := rec.Field(FieldExposure)
	if f.Path != "Imageinfo/ExpTimes" || f.Text() != "4.00" {
		t.Errorf("exposure = %q from %q", f.Text(), f.Path)
	}
	f, _ = rec.Field(FieldProjections)
	if f.Path != "ImageInfo/ImagesTaken" || f.Text() != "900" {
		t.Errorf("projections = %q from %q", f.Text(), f.Path)
	}
}

func TestFieldDecodeErrorIsolated(t *testing.T) {
	m := txmFixture(t, 2, false)
	// Two bytes where four are declared.
	m.Put("ImageInfo/Voltage", []byte{0x01, 0x02})

	rec, err := Extract(m, KindTXM)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if st := rec.Status(FieldVoltage); st != Errored {
		t.Fatalf("voltage status = %v, want errored", st)
	}
	errs := rec.Errors()
	if len(errs) != 1 {
		t.Fatalf("got %d field errors, want 1", len(errs))
	}
	fde := errs[0]
	if fde.Field != FieldVoltage || fde.Need != 4 || fde.Have != 2 {
		t.Errorf("unexpected error detail: %+v", fde)
	}
	if !errors.Is(fde, container.ErrOutOfRange) {
		t.Errorf("error %v does not wrap ErrOutOfRange", fde)
	}
	// Dependent derived field is absent, everything else still resolves.
	if st := rec.Status(FieldPower); st != Absent {
		t.Errorf("power status = %v, want absent", st)
	}
	if st := rec.Status(FieldCurrent); st != Present {
		t.Errorf("current status = %v, want present", st)
	}
	if rec.Mode() != ModeSingle {
		t.Errorf("mode = %v", rec.Mode())
	}
}

func TestExtractTXRMModeString(t *testing.T) {
	m := container.NewMemory()
	put(t, m, "AcquisitionSettings/AcqModeString", "Tomography Wide")
	put(t, m, pathStitchEnabled, []byte{1})
	put(t, m, pathStitchSegments, int32(2))
	put(t, m, "AcquisitionSettings/StartAngle", float32(-90))
	put(t, m, "AcquisitionSettings/EndAngle", float32(90))
	put(t, m, "ImageInfo/StoRADistance", float32(-12.5))
	put(t, m, "AcquisitionSettings/VariableAngleMode", int32(1))

	rec, err := Extract(m, KindTXRM)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Mode() != ModeWideStitched {
		t.Errorf("mode = %q, want %q", rec.Mode(), ModeWideStitched)
	}
	checks := map[string]string{
		FieldRotation:         "180",
		FieldSourceDistance:   "12.50",
		FieldSegments:         "2",
		FieldHART:             "Enabled",
		FieldVariableExposure: "",
	}
	for name, want := range checks {
		f, _ := rec.Field(name)
		if got := f.Text(); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

// recipeFixture writes n recipe sub-trees.
func recipeFixture(t *testing.T, n int) *container.Memory {
	m := container.NewMemory()
	put(t, m, "NoOfTomoDataSets", int32(n))
	put(t, m, "TimeStamp", "2024-05-02 131500")
	for i := 0; i < n; i++ {
		p := RecipePrefix(i) + "/"
		put(t, m, p+"PointName", "Point"+string(rune('A'+i)))
		put(t, m, p+"AcquisitionSettings/SrcVoltage", float32(60))
		put(t, m, p+"AcquisitionSettings/SrcPower", float32(6))
		put(t, m, p+"AcquisitionSettings/Binning", int32(2))
		put(t, m, p+"AcquisitionSettings/CCDPixelSize", float32(13.5))
		put(t, m, p+"AcquisitionSettings/InitialPositions",
			float32(1), float32(2), float32(3), float32(0), float32(-20), float32(60))
		put(t, m, p+"AcquisitionSettings/AcqModeString", "Tomography")
		put(t, m, p+"MagStr", "4X")
	}
	return m
}

func TestRecipeDiscovery(t *testing.T) {
	m := recipeFixture(t, 3)
	if n := CountRecipes(m); n != 3 {
		t.Fatalf("CountRecipes = %d, want 3", n)
	}
	recs, err := ExtractAny(m, KindRCP)
	if err != nil {
		t.Fatalf("ExtractAny: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, r := range recs {
		if r.Recipe != i {
			t.Errorf("record %d has recipe index %d", i, r.Recipe)
		}
		name, _ := r.Value(FieldRecipeName)
		if want := "Point" + string(rune('A'+i)); name.Str() != want {
			t.Errorf("recipe %d name = %q, want %q", i, name.Str(), want)
		}
		// Shared stream resolves at the root for every recipe.
		if f, _ := r.Field(FieldRecipeCount); f.Text() != "3" || f.Path != "NoOfTomoDataSets" {
			t.Errorf("recipe %d count = %q from %q", i, f.Text(), f.Path)
		}
		if f, _ := r.Field(FieldDate); f.Text() != "2024-05-02" {
			t.Errorf("recipe %d date = %q", i, f.Text())
		}
		if f, _ := r.Field(FieldTime); f.Text() != "13:15:00" {
			t.Errorf("recipe %d time = %q", i, f.Text())
		}
	}
}

func TestRecipeDerivedGeometry(t *testing.T) {
	recs, err := ExtractRecipes(recipeFixture(t, 1))
	if err != nil {
		t.Fatalf("ExtractRecipes: %v", err)
	}
	r := recs[0]

	if f, _ := r.Field(FieldCurrent); f.Text() != "100.0" {
		t.Errorf("current = %q, want 100.0", f.Text())
	}
	if f, _ := r.Field(FieldSourceDistance); f.Text() != "20.00" {
		t.Errorf("source distance = %q, want 20.00", f.Text())
	}

	// 13.5 / 4 / ((20+60)/20) * 2 = 1.6875
	v, ok := r.Value(FieldVoxelSize)
	if !ok || math.Abs(mustFloat(t, v, 0)-1.6875) > 1e-9 {
		t.Errorf("voxel size = %v, want 1.6875", v)
	}

	radius := 1.6875 * (detectorPixels / 2.0)
	want := 2 * math.Asin(radius/math.Sqrt(80*80+radius*radius)) * 180 / math.Pi
	v, ok = r.Value(FieldConeAngle)
	if !ok || math.Abs(mustFloat(t, v, 0)-want) > 1e-9 {
		t.Errorf("cone angle = %v, want %v", v, want)
	}
	if r.Mode() != ModeSingle {
		t.Errorf("mode = %v, want single-scan", r.Mode())
	}
}

func TestNoRecipes(t *testing.T) {
	m := container.NewMemory()
	put(t, m, "NoOfTomoDataSets", int32(0))
	if _, err := ExtractRecipes(m); !errors.Is(err, ErrNoRecipes) {
		t.Errorf("ExtractRecipes error = %v, want ErrNoRecipes", err)
	}
	if _, err := Extract(m, KindRCP); err == nil {
		t.Error("Extract on RCP should point callers at ExtractRecipes")
	}
	if _, err := Extract(nil, KindTXM); !errors.Is(err, ErrNilCatalog) {
		t.Errorf("Extract(nil) error = %v", err)
	}
}

func TestDeriveModeTable(t *testing.T) {
	if DeriveMode(true, CodeTomography) != ModeStitched {
		t.Error("code 2 stitched should be stitched-scan")
	}
	if DeriveMode(false, CodeTomography) != ModeSingle {
		t.Error("code 2 unstitched should be single-scan")
	}
	if DeriveMode(false, 99) != ModeUnknown {
		t.Error("unmapped code should be unknown")
	}
	if !ModeWideStitched.Stitched() || ModeWide.Stitched() {
		t.Error("Stitched() mismatch")
	}
}

func TestExtractFile(t *testing.T) {
	const path = "testdata/sample.txm"
	recs, err := ExtractFile(path, KindTXM)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Source != path || rec.Recipe != -1 || rec.Kind != KindTXM {
		t.Errorf("record header = %q/%d/%v", rec.Source, rec.Recipe, rec.Kind)
	}

	texts := map[string]string{
		FieldDate:            "2023-03-14",
		FieldTime:            "09:26:53",
		FieldVoltage:         "80",
		FieldImageWidth:      "4",
		FieldImageHeight:     "3",
		FieldDataType:        "5",
		FieldAcquisitionMode: "wide-scan",
	}
	for name, want := range texts {
		f, _ := rec.Field(name)
		if got := f.Text(); got != want {
			t.Errorf("%s = %q, want %q (status %v)", name, got, want, f.Status)
		}
	}

	// The flag stream is present and false, so the segment count is never
	// looked up.
	if f, _ := rec.Field(FieldStitched); f.Status != Present || f.Path != pathStitchEnabled {
		t.Errorf("stitched = %+v", f)
	}
	if st := rec.Status(FieldSegments); st != Absent {
		t.Errorf("segments status = %v, want absent", st)
	}
	if len(rec.Errors()) != 0 {
		t.Errorf("unexpected field errors: %v", rec.Errors())
	}

	if _, err := ExtractFile("testdata/missing.txm", KindTXM); !errors.Is(err, container.ErrUnknownSource) {
		t.Errorf("missing file error = %v, want ErrUnknownSource", err)
	}
}

func TestContextSeenByPredicateIsStable(t *testing.T) {
	m := container.NewMemory()
	put(t, m, "A", int32(1))
	put(t, m, "B", int32(2))

	var seen Context
	schema := &Schema{Kind: KindXRM, Fields: []FieldSpec{
		{Name: "a", Paths: []string{"A"}, Type: Int32, Count: 1, Precision: -1},
		{Name: "b", Paths: []string{"B"}, Type: Int32, Count: 1, Precision: -1,
			When: func(ctx Context) bool { seen = ctx; return true }},
		{Name: "sum", Derive: func(ctx Context) (Value, bool) {
			a, _ := ctx.Int("a")
			b, ok := ctx.Int("b")
			return IntValue(Int32, a+b), ok
		}},
	}}
	rec := extractSchema(m, schema, "", -1)

	if v, ok := rec.Value("sum"); !ok || v.Str() != "3" {
		t.Errorf("sum = %v, %v", v, ok)
	}
	if _, ok := seen.Value("a"); !ok {
		t.Error("predicate context lacks the earlier field")
	}
	if _, ok := seen.Value("b"); ok {
		t.Error("predicate context changed after the predicate ran")
	}
}
