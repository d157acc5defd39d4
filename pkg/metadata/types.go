package metadata

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind identifies the container flavour. Each kind has its own schema table.
type Kind int

const (
	KindTXM Kind = iota
	KindTXRM
	KindRCP
	KindXRM
)

var kindNames = map[Kind]string{
	KindTXM:  "txm",
	KindTXRM: "txrm",
	KindRCP:  "rcp",
	KindXRM:  "xrm",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Extension returns the file extension for the kind, including the dot.
func (k Kind) Extension() string {
	return "." + k.String()
}

// MultiRecipe reports whether containers of this kind hold recipe sub-trees
// rather than a single acquisition.
func (k Kind) MultiRecipe() bool {
	return k == KindRCP
}

// HasImages reports whether containers of this kind carry image streams.
func (k Kind) HasImages() bool {
	return k != KindRCP
}

// ParseKind maps a kind name or extension ("txm", ".TXRM") to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// KindFromPath derives the Kind from a file name's extension.
func KindFromPath(path string) (Kind, error) {
	return ParseKind(filepath.Ext(path))
}

// Type is the primitive stored in a stream.
type Type int

const (
	Int32 Type = iota
	Uint32
	Float32
	Float64
	String
	Bool
)

func (t Type) String() string {
	switch t {
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Size returns the encoded size of one element in bytes.
func (t Type) Size() int {
	switch t {
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	case String, Bool:
		return 1
	}
	return 0
}

// Value is a decoded field value. Numeric and bool values may hold several
// elements; strings hold one.
type Value struct {
	Type Type

	ints   []int64
	floats []float64
	str    string
	bools  []bool
}

// IntValue builds an integer value.
func IntValue(t Type, v ...int64) Value {
	return Value{Type: t, ints: v}
}

// FloatValue builds a floating point value.
func FloatValue(t Type, v ...float64) Value {
	return Value{Type: t, floats: v}
}

// StringValue builds a string value.
func StringValue(s string) Value {
	return Value{Type: String, str: s}
}

// BoolValue builds a bool value.
func BoolValue(v ...bool) Value {
	return Value{Type: Bool, bools: v}
}

// Len returns the number of elements.
func (v Value) Len() int {
	switch v.Type {
	case Int32, Uint32:
		return len(v.ints)
	case Float32, Float64:
		return len(v.floats)
	case Bool:
		return len(v.bools)
	case String:
		return 1
	}
	return 0
}

// Float returns element i as float64. Bools convert to 0/1, strings parse.
func (v Value) Float(i int) (float64, bool) {
	switch v.Type {
	case Int32, Uint32:
		if i < len(v.ints) {
			return float64(v.ints[i]), true
		}
	case Float32, Float64:
		if i < len(v.floats) {
			return v.floats[i], true
		}
	case Bool:
		if i < len(v.bools) {
			if v.bools[i] {
				return 1, true
			}
			return 0, true
		}
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return f, err == nil
	}
	return 0, false
}

// Int returns element i as int64.
func (v Value) Int(i int) (int64, bool) {
	switch v.Type {
	case Int32, Uint32:
		if i < len(v.ints) {
			return v.ints[i], true
		}
		return 0, false
	}
	f, ok := v.Float(i)
	if !ok {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// Bool returns element i as a bool; non-zero numbers are true.
func (v Value) Bool(i int) (bool, bool) {
	if v.Type == Bool {
		if i < len(v.bools) {
			return v.bools[i], true
		}
		return false, false
	}
	f, ok := v.Float(i)
	return f != 0, ok
}

// Str returns the string payload, or the formatted value for other types.
func (v Value) Str() string {
	if v.Type == String {
		return v.str
	}
	return v.Format(-1)
}

// Format renders the value. A non-negative precision rounds floats to that
// many decimals; multi-element values are space separated.
func (v Value) Format(precision int) string {
	if v.Type == String {
		return v.str
	}
	parts := make([]string, v.Len())
	for i := range parts {
		switch v.Type {
		case Int32, Uint32:
			parts[i] = strconv.FormatInt(v.ints[i], 10)
		case Float32, Float64:
			bits := 64
			if v.Type == Float32 {
				bits = 32
			}
			if precision >= 0 {
				parts[i] = strconv.FormatFloat(v.floats[i], 'f', precision, 64)
			} else {
				parts[i] = strconv.FormatFloat(v.floats[i], 'g', -1, bits)
			}
		case Bool:
			parts[i] = strconv.FormatBool(v.bools[i])
		}
	}
	return strings.Join(parts, " ")
}

func (v Value) String() string {
	return v.Format(-1)
}

// decode interprets count elements of t at offset in buf, little-endian.
// The caller guarantees buf is long enough.
func decode(buf []byte, offset int, t Type, count int) Value {
	le := binary.LittleEndian
	b := buf[offset:]
	switch t {
	case Int32:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(int32(le.Uint32(b[i*4:])))
		}
		return IntValue(t, out...)
	case Uint32:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(le.Uint32(b[i*4:]))
		}
		return IntValue(t, out...)
	case Float32:
		out := make([]float64, count)
		for i := range out {
			out[i] = float64(math.Float32frombits(le.Uint32(b[i*4:])))
		}
		return FloatValue(t, out...)
	case Float64:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(b[i*8:]))
		}
		return FloatValue(t, out...)
	case Bool:
		out := make([]bool, count)
		for i := range out {
			out[i] = b[i] != 0
		}
		return BoolValue(out...)
	case String:
		s := b[:count]
		if i := strings.IndexByte(string(s), 0); i >= 0 {
			s = s[:i]
		}
		return StringValue(strings.TrimSpace(string(s)))
	}
	return Value{Type: t}
}
