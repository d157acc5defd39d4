package metadata

import "fmt"

// Predicate decides whether a field applies given everything decoded so far.
type Predicate func(ctx Context) bool

// DeriveFunc computes a field from earlier fields. ok=false marks the field
// absent (an input was missing).
type DeriveFunc func(ctx Context) (v Value, ok bool)

// FieldSpec declares one metadata field.
//
// A stream field is read from the first of Paths that exists in the
// container: Offset+Count*Type.Size() bytes are read from the start of the
// stream and Count elements decoded at Offset. String fields with Count == 0
// take the rest of the stream up to the first NUL.
//
// A derived field (Derive != nil) never touches the container.
type FieldSpec struct {
	Name  string
	Paths []string

	Offset int
	Type   Type
	Count  int

	Unit string
	// Label is the human readable name used by writers.
	Label string
	// Precision is the number of decimals writers round to; -1 keeps full
	// precision.
	Precision int

	// When gates the field; nil means always.
	When Predicate
	// Derive computes the field from the context instead of reading it.
	Derive DeriveFunc

	// Shared fields live at the container root even inside a recipe
	// sub-tree.
	Shared bool
	// Internal fields feed derivations and are hidden by writers.
	Internal bool
}

// need returns the number of bytes a stream read requires.
func (s FieldSpec) need() int64 {
	return int64(s.Offset) + int64(s.Count)*int64(s.Type.Size())
}

// DisplayLabel returns Label, falling back to Name.
func (s FieldSpec) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Name
}

// Schema is the ordered field table for one file kind.
type Schema struct {
	Kind   Kind
	Fields []FieldSpec
}

// validate checks that names are unique and stream specs are well formed.
func (s *Schema) validate() error {
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s schema: field with empty name", s.Kind)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s schema: duplicate field %q", s.Kind, f.Name)
		}
		seen[f.Name] = true
		if f.Derive != nil {
			continue
		}
		if len(f.Paths) == 0 {
			return fmt.Errorf("%s schema: field %q has no stream path", s.Kind, f.Name)
		}
		if f.Offset < 0 || f.Count < 0 || (f.Count == 0 && f.Type != String) {
			return fmt.Errorf("%s schema: field %q has invalid layout", s.Kind, f.Name)
		}
	}
	return nil
}

// Context is the accumulator threaded through extraction. Predicates and
// derivations see the kind, the recipe index (-1 outside recipes) and every
// field decoded before them.
type Context struct {
	Kind   Kind
	Recipe int

	values map[string]Value
}

func newContext(kind Kind, recipe int) Context {
	return Context{Kind: kind, Recipe: recipe, values: make(map[string]Value)}
}

// with returns a copy of the context extended with one more decoded field.
// c itself is unchanged, so a context handed to a predicate or derivation
// keeps showing exactly the fields decoded before it.
func (c Context) with(name string, v Value) Context {
	values := make(map[string]Value, len(c.values)+1)
	for k, x := range c.values {
		values[k] = x
	}
	values[name] = v
	c.values = values
	return c
}

// Value returns a decoded field.
func (c Context) Value(name string) (Value, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Float returns element 0 of a field as float64.
func (c Context) Float(name string) (float64, bool) {
	return c.FloatAt(name, 0)
}

// FloatAt returns element i of a field as float64.
func (c Context) FloatAt(name string, i int) (float64, bool) {
	v, ok := c.values[name]
	if !ok {
		return 0, false
	}
	return v.Float(i)
}

// Int returns element 0 of a field as int64.
func (c Context) Int(name string) (int64, bool) {
	v, ok := c.values[name]
	if !ok {
		return 0, false
	}
	return v.Int(0)
}

// Bool returns element 0 of a field as bool.
func (c Context) Bool(name string) (bool, bool) {
	v, ok := c.values[name]
	if !ok {
		return false, false
	}
	return v.Bool(0)
}

// Str returns a string field.
func (c Context) Str(name string) (string, bool) {
	v, ok := c.values[name]
	if !ok {
		return "", false
	}
	return v.Str(), true
}

// Mode returns the derived acquisition mode, or ModeUnknown.
func (c Context) Mode() Mode {
	s, ok := c.Str(FieldAcquisitionMode)
	if !ok {
		return ModeUnknown
	}
	return Mode(s)
}

// Stitched reports whether the acquisition mode decoded so far is a
// stitched one. Use as a FieldSpec.When predicate.
func Stitched(ctx Context) bool {
	return ctx.Mode().Stitched()
}
