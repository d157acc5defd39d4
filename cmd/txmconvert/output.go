package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"txmconvert/internal/logging"
	"txmconvert/pkg/batch"
	"txmconvert/pkg/config"
	"txmconvert/pkg/export"
	"txmconvert/pkg/metadata"
	"txmconvert/pkg/volume"
)

// outputWriter lays results out as <dir>/<stem>/<stem>_metadata.<ext> and
// <dir>/<stem>/<format>/<stem>_0000.<format>.
type outputWriter struct {
	cfg     *config.Config
	preview bool

	bytes atomic.Int64
}

func (o *outputWriter) written() int64 {
	return o.bytes.Load()
}

func (o *outputWriter) handle(ctx context.Context, res *batch.Result) error {
	stem := strings.TrimSuffix(filepath.Base(res.Job.Path), filepath.Ext(res.Job.Path))
	dir := filepath.Join(o.cfg.Output.Dir, stem)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if len(res.Records) > 0 {
		if err := o.writeMetadata(dir, stem, res.Records); err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}
	}
	if res.Volume != nil {
		if err := o.writeImages(dir, stem, res.Volume); err != nil {
			return fmt.Errorf("writing images: %w", err)
		}
	}
	return nil
}

func (o *outputWriter) writeMetadata(dir, stem string, recs []*metadata.Record) error {
	format := o.cfg.Output.MetadataFormat
	if format == config.MetadataNone {
		return nil
	}
	path := filepath.Join(dir, stem+"_metadata."+format)
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if format == config.MetadataArrow {
		err = export.WriteArrow(f, recs)
	} else {
		err = writeText(f, recs, format)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		o.account(path)
	}
	return err
}

// writeText writes one record in the requested text layout, or several as
// a CSV table or as tab blocks separated by blank lines.
func writeText(w io.Writer, recs []*metadata.Record, format string) error {
	tf, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if tf == export.CSV && len(recs) > 1 {
		return export.WriteTable(w, recs)
	}
	for i, rec := range recs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := export.WriteText(w, rec, tf); err != nil {
			return err
		}
	}
	return nil
}

func (o *outputWriter) writeImages(dir, stem string, v *volume.Volume) error {
	if !v.Type.Integer() {
		logging.Warningf("%s: %s volume not rescaled, skipping images\n", stem, v.Type)
		return nil
	}
	format := o.cfg.Output.ImageFormat
	if format != config.ImageNone {
		ext, err := export.Extension(format)
		if err != nil {
			return err
		}
		imgDir := filepath.Join(dir, ext)
		paths, err := export.SaveStack(v, imgDir, stem, format)
		if err != nil {
			return err
		}
		for _, p := range paths {
			o.account(p)
		}
		logging.Infof("%s: %d slices written to %s\n", stem, len(paths), imgDir)

		if o.cfg.Output.Zip {
			dest := filepath.Join(dir, stem+".zip")
			n, err := export.ZipDir(imgDir, stem+"_*."+ext, dest)
			if err != nil {
				return fmt.Errorf("zipping: %w", err)
			}
			o.account(dest)
			logging.Infof("%s: %d images zipped\n", stem, n)
		}
	}

	if o.preview {
		return o.writePreview(dir, stem, v)
	}
	return nil
}

// writePreview saves the middle slice along each axis.
func (o *outputWriter) writePreview(dir, stem string, v *volume.Volume) error {
	mid := map[string]int{"x": v.Width / 2, "y": v.Height / 2, "z": v.Depth() / 2}
	for _, axis := range []string{"x", "y", "z"} {
		img, err := export.ExtractSlice(v, axis, mid[axis])
		if err != nil {
			logging.Warningf("%s: no %s preview: %v\n", stem, axis, err)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_preview_%s.png", stem, axis))
		if err := export.SaveSlice(img, path, "png"); err != nil {
			return err
		}
		o.account(path)
	}
	return nil
}

func (o *outputWriter) account(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	o.bytes.Add(info.Size())
	logging.Debugf("wrote %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
}
