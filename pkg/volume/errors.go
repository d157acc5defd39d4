package volume

import (
	"errors"
	"fmt"
)

var (
	ErrNoSlices        = errors.New("volume: no slice streams found")
	ErrDuplicateSlice  = errors.New("volume: duplicate slice ordinal")
	ErrUnsupportedType = errors.New("volume: unsupported element type")
	ErrBadGeometry     = errors.New("volume: invalid image geometry")
)

// GapError reports a missing slice ordinal. A volume with a hole cannot be
// represented as a rectangular stack.
type GapError struct {
	// Missing is the first absent ordinal, After the ordinal preceding it.
	Missing int
	After   int
	Prefix  string
}

func (e *GapError) Error() string {
	return fmt.Sprintf("volume: slice %s%d missing (after %s%d)", e.Prefix, e.Missing, e.Prefix, e.After)
}

// SliceSizeMismatch reports a slice whose byte length does not match the
// declared geometry.
type SliceSizeMismatch struct {
	Ordinal int
	Path    string
	Want    int64
	Have    int64
}

func (e *SliceSizeMismatch) Error() string {
	return fmt.Sprintf("volume: slice %d (%s) has %d bytes, geometry requires %d",
		e.Ordinal, e.Path, e.Have, e.Want)
}
