package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Catalog. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	streams map[string][]byte
	paths   map[string][]string
}

// NewMemory returns an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		streams: make(map[string][]byte),
		paths:   make(map[string][]string),
	}
}

// Put stores data under path, replacing any existing stream.
func (m *Memory) Put(path string, data []byte) {
	segs := SplitPath(path)
	name := JoinPath(segs...)

	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.streams[name] = buf
	m.paths[name] = segs
}

// PutValues encodes values little-endian with encoding/binary and stores the
// result under path. Strings are written as raw bytes followed by a NUL.
func (m *Memory) PutValues(path string, values ...any) error {
	var buf bytes.Buffer
	for _, v := range values {
		switch s := v.(type) {
		case string:
			buf.WriteString(s)
			buf.WriteByte(0)
		case []byte:
			buf.Write(s)
		default:
			if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
				return fmt.Errorf("encoding %T for %q: %w", v, path, err)
			}
		}
	}
	m.Put(path, buf.Bytes())
	return nil
}

// Delete removes a stream.
func (m *Memory) Delete(path string) {
	name := JoinPath(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, name)
	delete(m.paths, name)
}

// Streams lists the streams sorted by name.
func (m *Memory) Streams() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.streams))
	for name, data := range m.streams {
		entries = append(entries, Entry{
			Path: append([]string(nil), m.paths[name]...),
			Size: int64(len(data)),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

// Stat returns the entry stored under path.
func (m *Memory) Stat(path string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.streams[path]
	if !ok {
		return Entry{}, notFound("stat", path)
	}
	return Entry{Path: append([]string(nil), m.paths[path]...), Size: int64(len(data))}, nil
}

// Read returns a copy of the requested byte range.
func (m *Memory) Read(path string, offset, length int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.streams[path]
	if !ok {
		return nil, notFound("read", path)
	}
	e := Entry{Path: m.paths[path], Size: int64(len(data))}
	if err := checkRange("read", e, offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out, nil
}

// Close is a no-op so Memory satisfies Source.
func (m *Memory) Close() error { return nil }
