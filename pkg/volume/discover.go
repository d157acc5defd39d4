package volume

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"txmconvert/pkg/container"
)

// DefaultPrefix names the slice streams of TXM, TXRM and XRM files
// (ImageData1/Image1, ImageData1/Image2, ...).
const DefaultPrefix = "Image"

// SliceDescriptor locates one slice stream.
type SliceDescriptor struct {
	Ordinal int
	Path    string
	Size    int64
}

// List returns the streams named prefix followed by decimal digits, sorted
// by the numeric suffix ("Image2" before "Image10"). A prefix without "/" is
// matched against the stream's leaf name, otherwise against the full path.
// Duplicate ordinals fail with ErrDuplicateSlice; gaps are not checked.
func List(c container.Catalog, prefix string) ([]SliceDescriptor, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + `(\d+)$`)
	if err != nil {
		return nil, err
	}
	fullPath := strings.Contains(prefix, container.Separator)

	seen := make(map[int]string)
	var out []SliceDescriptor
	for _, e := range c.Streams() {
		name := e.Leaf()
		if fullPath {
			name = e.Name()
		}
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		ord, err := strconv.Atoi(m[1])
		if err != nil {
			// Suffix too long for an int.
			continue
		}
		if prev, dup := seen[ord]; dup {
			return nil, fmt.Errorf("%w: %d in %q and %q", ErrDuplicateSlice, ord, prev, e.Name())
		}
		seen[ord] = e.Name()
		out = append(out, SliceDescriptor{Ordinal: ord, Path: e.Name(), Size: e.Size})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: prefix %q", ErrNoSlices, prefix)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// Discover is List plus a contiguity check: the first missing ordinal is
// reported as a *GapError.
func Discover(c container.Catalog, prefix string) ([]SliceDescriptor, error) {
	out, err := List(c, prefix)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(out); i++ {
		if out[i].Ordinal != out[i-1].Ordinal+1 {
			if prefix == "" {
				prefix = DefaultPrefix
			}
			return nil, &GapError{Missing: out[i-1].Ordinal + 1, After: out[i-1].Ordinal, Prefix: prefix}
		}
	}
	return out, nil
}
