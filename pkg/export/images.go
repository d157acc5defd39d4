// Package export writes converter results: slice images, metadata tables
// and zip archives of a file's outputs.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"txmconvert/pkg/volume"
)

var ErrUnknownFormat = errors.New("export: unknown format")

// Extension returns the file extension used for an image format.
func Extension(format string) (string, error) {
	switch strings.ToLower(format) {
	case "tiff", "tif":
		return "tiff", nil
	case "png":
		return "png", nil
	case "bmp":
		return "bmp", nil
	}
	return "", fmt.Errorf("%w: image format %q", ErrUnknownFormat, format)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// "z" returns stored slice position; "x" and "y" reslice orthogonally.
func ExtractSlice(v *volume.Volume, axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if !v.Type.Integer() {
		return nil, fmt.Errorf("%w: rescale %s volumes before export", volume.ErrUnsupportedType, v.Type)
	}

	var w, h int
	var at func(i, j int) (z, idx int)

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= v.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.Width)
		}
		w, h = v.Depth(), v.Height
		at = func(i, j int) (int, int) { return i, j*v.Width + position }

	case "y", "Y":
		// XZ plane
		if position >= v.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.Height)
		}
		w, h = v.Width, v.Depth()
		at = func(i, j int) (int, int) { return j, position*v.Width + i }

	case "z", "Z":
		if position >= v.Depth() {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.Depth())
		}
		return v.SliceImage(position)

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	rect := image.Rect(0, 0, w, h)
	if v.Type == volume.Uint8 {
		img := image.NewGray(rect)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				img.SetGray(i, j, color.Gray{Y: uint8(v.Value(at(i, j)))})
			}
		}
		return img, nil
	}
	img := image.NewGray16(rect)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			img.SetGray16(i, j, color.Gray16{Y: uint16(v.Value(at(i, j)))})
		}
	}
	return img, nil
}

// SaveSlice encodes img to filename as tiff, png or bmp.
func SaveSlice(img image.Image, filename, format string) error {
	if _, err := Extension(format); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "tiff", "tif":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	case "png":
		err = png.Encode(file, img)
	case "bmp":
		err = bmp.Encode(file, toBMP(img))
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// toBMP narrows 16-bit images to 8 bits; BMP has no 16-bit grayscale.
func toBMP(img image.Image) image.Image {
	g, ok := img.(*image.Gray16)
	if !ok {
		return img
	}
	out := image.NewGray(g.Rect)
	for i := 0; i < len(out.Pix); i++ {
		out.Pix[i] = g.Pix[2*i]
	}
	return out
}

// StackName returns the file name of slice index within a stack.
func StackName(stem string, index int, ext string) string {
	return fmt.Sprintf("%s_%04d.%s", stem, index, ext)
}

// SaveStack writes every slice of v to dir as <stem>_0000.<ext>, ... and
// returns the written paths.
func SaveStack(v *volume.Volume, dir, stem, format string) ([]string, error) {
	ext, err := Extension(format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, v.Depth())
	for z := 0; z < v.Depth(); z++ {
		img, err := ExtractSlice(v, "z", z)
		if err != nil {
			return paths, err
		}
		filename := filepath.Join(dir, StackName(stem, z, ext))
		if err := SaveSlice(img, filename, format); err != nil {
			return paths, fmt.Errorf("writing slice %d: %w", z, err)
		}
		paths = append(paths, filename)
	}
	return paths, nil
}
