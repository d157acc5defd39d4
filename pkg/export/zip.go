package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
)

// ZipFiles writes the given files into a new archive at dest, stored
// flat under their base names in the order given.
func ZipFiles(dest string, files []string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	for _, path := range files {
		if err := addFile(zw, path); err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("zipping %s: %w", path, err)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// ZipDir archives the files in dir matching pattern (filepath.Match
// syntax, "" for all) into dest and returns how many were added.
func ZipDir(dir, pattern, dest string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if pattern != "" {
			ok, err := filepath.Match(pattern, e.Name())
			if err != nil {
				return 0, err
			}
			if !ok {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return len(files), ZipFiles(dest, files)
}
