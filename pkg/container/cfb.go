package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/richardlehane/mscfb"
)

// Source is a Catalog that owns an underlying resource.
type Source interface {
	Catalog
	io.Closer
}

// File is a compound document opened from disk. A File is not safe for
// concurrent reads; open one per goroutine.
type File struct {
	path    string
	file    *os.File
	entries []Entry
	streams map[string]*mscfb.File
	index   map[string]int
	closed  bool
}

// Open opens a compound document and indexes its streams. Any failure to
// recognise the file as a compound document is reported as ErrUnknownSource.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnknownSource, path, err)
	}

	cf, err := newFile(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return cf, nil
}

// OpenSource is Open returning the Source interface, suitable as a batch
// opener.
func OpenSource(path string) (Source, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func newFile(path string, f *os.File) (*File, error) {
	doc, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownSource, path, err)
	}

	cf := &File{
		path:    path,
		file:    f,
		streams: make(map[string]*mscfb.File),
		index:   make(map[string]int),
	}

	// Walk the directory tree once; storages are skipped, only streams are
	// addressable.
	for entry, err := doc.Next(); ; entry, err = doc.Next() {
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: reading directory: %v", ErrUnknownSource, path, err)
		}
		if entry.FileInfo().IsDir() {
			continue
		}
		segs := make([]string, 0, len(entry.Path)+1)
		segs = append(segs, entry.Path...)
		segs = append(segs, entry.Name)
		e := Entry{Path: segs, Size: entry.Size}
		name := e.Name()
		if _, dup := cf.streams[name]; dup {
			continue
		}
		cf.streams[name] = entry
		cf.entries = append(cf.entries, e)
	}

	sort.Slice(cf.entries, func(i, j int) bool {
		return cf.entries[i].Name() < cf.entries[j].Name()
	})
	for i, e := range cf.entries {
		cf.index[e.Name()] = i
	}
	return cf, nil
}

// Path returns the file path the container was opened from.
func (f *File) Path() string {
	return f.path
}

// Streams lists every stream sorted by name.
func (f *File) Streams() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Stat returns the entry for path.
func (f *File) Stat(path string) (Entry, error) {
	if f.closed {
		return Entry{}, &StreamError{Op: "stat", Path: path, Err: ErrClosed}
	}
	i, ok := f.index[path]
	if !ok {
		return Entry{}, notFound("stat", path)
	}
	return f.entries[i], nil
}

// Read reads a byte range of the named stream.
func (f *File) Read(path string, offset, length int64) ([]byte, error) {
	if f.closed {
		return nil, &StreamError{Op: "read", Path: path, Err: ErrClosed}
	}
	i, ok := f.index[path]
	if !ok {
		return nil, notFound("read", path)
	}
	e := f.entries[i]
	if err := checkRange("read", e, offset, length); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, length)
	n, err := f.streams[path].ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, &StreamError{Op: "read", Path: path, Offset: offset, Length: length, Size: e.Size, Err: err}
	}
	if int64(n) != length {
		return nil, &StreamError{Op: "read", Path: path, Offset: offset, Length: length, Size: e.Size, Err: io.ErrUnexpectedEOF}
	}
	return buf, nil
}

// Close releases the underlying file.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.streams = nil
	return f.file.Close()
}
