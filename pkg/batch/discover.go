package batch

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Discover walks root and returns the files whose extension is in exts
// (case-insensitive, with or without the dot), sorted by path. A root that
// is itself a matching file is returned alone.
func Discover(root string, exts []string) ([]string, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if want[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
