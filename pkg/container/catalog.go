// Package container exposes the named byte streams held inside a compound
// document container (the OLE/CFB files written by X-ray microscopes as
// TXM, TXRM, RCP and XRM).
//
// The rest of the module only depends on the Catalog interface: list the
// streams, stat one by exact path, and read a byte range of it. File is the
// on-disk implementation backed by mscfb; Memory is an in-memory catalog used
// for synthetic containers and tests.
package container

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins path segments into a stream name.
const Separator = "/"

var (
	ErrNotFound      = errors.New("container: stream not found")
	ErrOutOfRange    = errors.New("container: read out of range")
	ErrUnknownSource = errors.New("container: unrecognised source")
	ErrClosed        = errors.New("container: closed")
)

// Entry describes a single stream inside a container.
type Entry struct {
	// Path holds the storage names leading to the stream followed by the
	// stream's own name.
	Path []string

	// Size is the stream length in bytes.
	Size int64
}

// Name returns the slash-joined stream path, e.g. "ImageInfo/ImageWidth".
func (e Entry) Name() string {
	return strings.Join(e.Path, Separator)
}

// Leaf returns the last path segment.
func (e Entry) Leaf() string {
	if len(e.Path) == 0 {
		return ""
	}
	return e.Path[len(e.Path)-1]
}

// Catalog is the read-only view of a container needed by the extractors.
type Catalog interface {
	// Streams lists every stream. Order is implementation defined and must
	// not be relied upon.
	Streams() []Entry

	// Stat returns the entry for an exact path or ErrNotFound.
	Stat(path string) (Entry, error)

	// Read returns length bytes of the stream starting at offset. It fails
	// with ErrNotFound or ErrOutOfRange.
	Read(path string, offset, length int64) ([]byte, error)
}

// StreamError records a failed catalog operation on one stream.
type StreamError struct {
	Op     string
	Path   string
	Offset int64
	Length int64
	Size   int64
	Err    error
}

func (e *StreamError) Error() string {
	if errors.Is(e.Err, ErrOutOfRange) {
		return fmt.Sprintf("%s %q: range [%d, %d) exceeds stream size %d: %v",
			e.Op, e.Path, e.Offset, e.Offset+e.Length, e.Size, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// SplitPath splits a stream name into its segments, dropping empty ones.
func SplitPath(path string) []string {
	path = strings.Trim(path, Separator)
	if path == "" {
		return []string{}
	}
	parts := strings.Split(path, Separator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath joins segments into a stream name.
func JoinPath(segments ...string) string {
	return strings.Join(SplitPath(strings.Join(segments, Separator)), Separator)
}

// HasPrefix reports whether any stream of c lives under the storage prefix.
// The prefix is matched on whole segments: "RecipePoint1" does not match
// "RecipePoint10/Name".
func HasPrefix(c Catalog, prefix string) bool {
	want := SplitPath(prefix)
	if len(want) == 0 {
		return len(c.Streams()) > 0
	}
	for _, e := range c.Streams() {
		if len(e.Path) <= len(want) {
			continue
		}
		match := true
		for i, seg := range want {
			if e.Path[i] != seg {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// checkRange validates a read against a stream entry.
func checkRange(op string, e Entry, offset, length int64) error {
	if offset < 0 || length < 0 || offset > e.Size || length > e.Size-offset {
		return &StreamError{
			Op:     op,
			Path:   e.Name(),
			Offset: offset,
			Length: length,
			Size:   e.Size,
			Err:    ErrOutOfRange,
		}
	}
	return nil
}

func notFound(op, path string) error {
	return &StreamError{Op: op, Path: path, Err: ErrNotFound}
}
