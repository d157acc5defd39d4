package metadata

import "errors"

// Status describes how a field was resolved.
type Status int

const (
	// Absent: inapplicable, or no candidate stream exists.
	Absent Status = iota
	// Present: decoded successfully.
	Present
	// Errored: the stream exists but the declared layout does not fit it.
	Errored
)

func (s Status) String() string {
	switch s {
	case Present:
		return "present"
	case Errored:
		return "errored"
	}
	return "absent"
}

// Field is one resolved entry of a Record.
type Field struct {
	Spec   FieldSpec
	Status Status
	Value  Value
	// Path is the stream the value was read from; empty for derived and
	// absent fields.
	Path string
	Err  error
}

// Name returns the field name.
func (f Field) Name() string { return f.Spec.Name }

// Text renders the value with its FieldSpec precision.
func (f Field) Text() string {
	if f.Status != Present {
		return ""
	}
	return f.Value.Format(f.Spec.Precision)
}

// Record holds the metadata extracted from one container, or from one recipe
// of a multi-recipe container. It keeps no reference to the container.
type Record struct {
	Kind Kind
	// Recipe is the recipe index, or -1 for single-acquisition files.
	Recipe int
	// Source is the file path when known.
	Source string

	fields []Field
	index  map[string]int
}

func newRecord(kind Kind, recipe int, n int) *Record {
	return &Record{
		Kind:   kind,
		Recipe: recipe,
		fields: make([]Field, 0, n),
		index:  make(map[string]int, n),
	}
}

func (r *Record) add(f Field) {
	r.index[f.Spec.Name] = len(r.fields)
	r.fields = append(r.fields, f)
}

// Fields returns every field in schema order.
func (r *Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Field returns the named field.
func (r *Record) Field(name string) (Field, bool) {
	i, ok := r.index[name]
	if !ok {
		return Field{}, false
	}
	return r.fields[i], true
}

// Value returns the value of a present field.
func (r *Record) Value(name string) (Value, bool) {
	f, ok := r.Field(name)
	if !ok || f.Status != Present {
		return Value{}, false
	}
	return f.Value, true
}

// Status returns the status of a field; unknown names are Absent.
func (r *Record) Status(name string) Status {
	f, ok := r.Field(name)
	if !ok {
		return Absent
	}
	return f.Status
}

// Mode returns the derived acquisition mode.
func (r *Record) Mode() Mode {
	v, ok := r.Value(FieldAcquisitionMode)
	if !ok {
		return ModeUnknown
	}
	return Mode(v.Str())
}

// Errors returns the decode errors of all errored fields.
func (r *Record) Errors() []*FieldDecodeError {
	var out []*FieldDecodeError
	for _, f := range r.fields {
		if f.Status != Errored {
			continue
		}
		var fde *FieldDecodeError
		if errors.As(f.Err, &fde) {
			out = append(out, fde)
		}
	}
	return out
}

// Count returns how many fields have the given status.
func (r *Record) Count(s Status) int {
	n := 0
	for _, f := range r.fields {
		if f.Status == s {
			n++
		}
	}
	return n
}
