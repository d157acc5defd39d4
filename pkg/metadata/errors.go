package metadata

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind = errors.New("metadata: unknown file kind")
	ErrNoRecipes   = errors.New("metadata: no recipe sub-trees found")
	ErrNilCatalog  = errors.New("metadata: nil catalog")
)

// FieldDecodeError reports that a field's declared layout does not fit the
// stream it resolved to. It only affects that field.
type FieldDecodeError struct {
	Field  string
	Path   string
	Offset int
	Type   Type
	Count  int
	// Need is the number of bytes the layout requires, Have the stream size.
	Need int64
	Have int64
	Err  error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("field %s: %d x %s at offset %d from %q needs %d bytes, stream has %d: %v",
		e.Field, e.Count, e.Type, e.Offset, e.Path, e.Need, e.Have, e.Err)
}

func (e *FieldDecodeError) Unwrap() error { return e.Err }
