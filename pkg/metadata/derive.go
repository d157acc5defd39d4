package metadata

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// detectorPixels is the detector width in pixels at binning 1, used for the
// cone angle of recipe files.
const detectorPixels = 2042

// dateFrom parses the first len(layout) characters of a timestamp field and
// renders the date as YYYY-MM-DD.
func dateFrom(raw, layout string) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		s, ok := ctx.Str(raw)
		if !ok || len(s) < len(layout) {
			return Value{}, false
		}
		t, err := time.Parse(layout, s[:len(layout)])
		if err != nil {
			return Value{}, false
		}
		return StringValue(t.Format("2006-01-02")), true
	}
}

// timeFrom parses characters [start, start+len(layout)) of a timestamp
// field and renders them as HH:MM:SS.
func timeFrom(raw string, start int, layout string) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		s, ok := ctx.Str(raw)
		end := start + len(layout)
		if !ok || len(s) < end {
			return Value{}, false
		}
		t, err := time.Parse(layout, s[start:end])
		if err != nil {
			return Value{}, false
		}
		return StringValue(t.Format("15:04:05")), true
	}
}

// product returns a*b*scale.
func product(a, b string, scale float64) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		x, ok1 := ctx.Float(a)
		y, ok2 := ctx.Float(b)
		if !ok1 || !ok2 {
			return Value{}, false
		}
		return FloatValue(Float64, x*y*scale), true
	}
}

// quotient returns num*scale/den, or 0 when either input is zero.
func quotient(num, den string, scale float64) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		n, ok1 := ctx.Float(num)
		d, ok2 := ctx.Float(den)
		if !ok1 || !ok2 {
			return Value{}, false
		}
		if n == 0 || d == 0 {
			return FloatValue(Float64, 0), true
		}
		return FloatValue(Float64, n*scale/d), true
	}
}

// absSum returns |a|+|b|.
func absSum(a, b string) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		x, ok1 := ctx.Float(a)
		y, ok2 := ctx.Float(b)
		if !ok1 || !ok2 {
			return Value{}, false
		}
		return FloatValue(Float64, math.Abs(x)+math.Abs(y)), true
	}
}

// element returns element i of a field, scaled, optionally as |v|.
func element(name string, i int, scale float64, abs bool) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		v, ok := ctx.FloatAt(name, i)
		if !ok {
			return Value{}, false
		}
		v *= scale
		if abs {
			v = math.Abs(v)
		}
		return FloatValue(Float64, v), true
	}
}

// enabled renders an integer flag as "Enabled" (== 1) or "Disabled".
func enabled(name string) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		v, ok := ctx.Int(name)
		if !ok {
			return Value{}, false
		}
		if v == 1 {
			return StringValue("Enabled"), true
		}
		return StringValue("Disabled"), true
	}
}

// objective keeps the objective name up to and including the first 'X'
// ("4X Macro" -> "4X").
func objective(name string) DeriveFunc {
	return func(ctx Context) (Value, bool) {
		s, ok := ctx.Str(name)
		if !ok || s == "" {
			return Value{}, false
		}
		if i := strings.IndexByte(s, 'X'); i >= 0 {
			s = s[:i+1]
		}
		return StringValue(s), true
	}
}

// magnification parses the numeric part of a "20X" style objective label.
func magnification(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	m, err := strconv.ParseFloat(s, 64)
	if err != nil || m == 0 {
		return 0, false
	}
	return m, true
}

// recipeGeometry collects the inputs shared by voxel size and cone angle.
type recipeGeometry struct {
	source, detector float64
	ccd, mag         float64
	binning          float64
}

func recipeInputs(ctx Context) (recipeGeometry, bool) {
	var g recipeGeometry
	var ok [4]bool
	g.source, ok[0] = ctx.FloatAt(fieldInitialPositions, 4)
	g.detector, ok[1] = ctx.FloatAt(fieldInitialPositions, 5)
	g.ccd, ok[2] = ctx.Float(fieldCCDPixelSize)
	g.binning, ok[3] = ctx.Float(FieldBinning)
	for _, o := range ok {
		if !o {
			return g, false
		}
	}
	s, found := ctx.Str(FieldObjective)
	if !found {
		return g, false
	}
	m, valid := magnification(s)
	if !valid || g.source == 0 || g.binning == 0 {
		return g, false
	}
	g.mag = m
	g.source = math.Abs(g.source)
	return g, true
}

// voxelSize is the CCD pixel size divided by optical and geometric
// magnification, times binning.
func (g recipeGeometry) voxelSize() float64 {
	geometric := (g.source + g.detector) / g.source
	return g.ccd / g.mag / geometric * g.binning
}

func deriveRecipeVoxelSize(ctx Context) (Value, bool) {
	g, ok := recipeInputs(ctx)
	if !ok {
		return Value{}, false
	}
	return FloatValue(Float64, g.voxelSize()), true
}

// deriveRecipeConeAngle returns the full cone angle in degrees.
func deriveRecipeConeAngle(ctx Context) (Value, bool) {
	g, ok := recipeInputs(ctx)
	if !ok {
		return Value{}, false
	}
	radius := g.voxelSize() * (detectorPixels / g.binning)
	span := g.source + g.detector
	slant := math.Sqrt(span*span + radius*radius)
	if slant == 0 {
		return Value{}, false
	}
	angle := 2 * math.Asin(radius/slant)
	return FloatValue(Float64, angle*180/math.Pi), true
}
