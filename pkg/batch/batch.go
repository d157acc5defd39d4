// Package batch converts many container files concurrently. Each file is an
// independent task: it opens its own container, extracts metadata, assembles
// and optionally rescales the volume, closes the container and hands the
// result to an optional export Handler. One file's failure never affects
// another's.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"txmconvert/internal/logging"
	"txmconvert/pkg/container"
	"txmconvert/pkg/metadata"
	"txmconvert/pkg/rescale"
	"txmconvert/pkg/volume"
)

// Job is one file to convert.
type Job struct {
	Path string
	Kind metadata.Kind
}

// NewJobs builds jobs from paths, deriving each kind from the extension.
func NewJobs(paths []string) ([]Job, error) {
	jobs := make([]Job, 0, len(paths))
	for _, p := range paths {
		k, err := metadata.KindFromPath(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		jobs = append(jobs, Job{Path: p, Kind: k})
	}
	return jobs, nil
}

// Opener opens the container for a job.
type Opener func(path string) (container.Source, error)

// Handler receives each finished result, after its container has been
// closed. It typically writes the outputs.
type Handler func(ctx context.Context, res *Result) error

// Options configures Run.
type Options struct {
	// Workers bounds concurrent files; <= 0 uses runtime.NumCPU.
	Workers int

	// Prefix names the slice streams; "" uses volume.DefaultPrefix.
	Prefix string

	// Rescale, when set, is applied to every assembled volume.
	Rescale *rescale.Params

	// SkipVolume extracts metadata only.
	SkipVolume bool

	// Opener defaults to container.OpenSource.
	Opener Opener

	Handler Handler
}

// Run processes jobs with a bounded worker pool and returns one Result per
// job, in job order. Cancelling ctx stops new files from starting; files
// already running complete. Run never returns an error: failures are
// recorded per Result.
func Run(ctx context.Context, jobs []Job, opts Options) *Report {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Opener == nil {
		opts.Opener = container.OpenSource
	}

	report := &Report{
		RunID:   uuid.New(),
		Started: time.Now(),
		Results: make([]*Result, len(jobs)),
	}
	logging.Infof("run %s: converting %d files with %d workers\n", report.RunID, len(jobs), opts.Workers)

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	var mu sync.Mutex
	done := 0

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res := process(ctx, job, opts)
			report.Results[i] = res

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			logging.Infof("[%d/%d] %s: %s\n", n, len(jobs), job.Path, res.Outcome())
			return nil
		})
	}
	g.Wait()

	report.Elapsed = time.Since(report.Started)
	logging.Infof("run %s finished in %s: %s\n", report.RunID, report.Elapsed, report.Summary())
	return report
}

// process runs one job. Panics are recovered into the stage that raised
// them.
func process(ctx context.Context, job Job, opts Options) (res *Result) {
	res = &Result{Job: job}
	if err := ctx.Err(); err != nil {
		res.Skipped = true
		res.SkipErr = err
		return res
	}

	start := time.Now()
	stage := &res.OpenErr
	defer func() {
		if r := recover(); r != nil {
			*stage = &PanicError{Value: r, Stack: debug.Stack()}
			logging.Errorf("%s: recovered panic: %v\n", job.Path, r)
		}
		res.Elapsed = time.Since(start)
	}()

	src, err := opts.Opener(job.Path)
	if err != nil {
		res.OpenErr = err
		return res
	}
	closed := false
	defer func() {
		if !closed {
			src.Close()
		}
	}()

	stage = &res.MetadataErr
	recs, err := metadata.ExtractAny(src, job.Kind)
	if err != nil {
		res.MetadataErr = err
	} else {
		for _, r := range recs {
			r.Source = job.Path
			for _, fe := range r.Errors() {
				logging.Warningf("%s: %v\n", job.Path, fe)
			}
		}
		res.Records = recs
	}

	if job.Kind.HasImages() && !opts.SkipVolume {
		stage = &res.VolumeErr
		res.VolumeAttempted = true
		res.Volume, res.Stats, res.VolumeErr = assemble(src, job.Path, opts)
	}

	closed = true
	if err := src.Close(); err != nil {
		logging.Warningf("%s: closing container: %v\n", job.Path, err)
	}

	if opts.Handler != nil && (res.MetadataErr == nil || res.Volume != nil) {
		stage = &res.HandlerErr
		res.HandlerErr = opts.Handler(ctx, res)
	}
	return res
}

// assemble builds the volume and summarises its raw intensities before any
// rescaling.
func assemble(src container.Catalog, path string, opts Options) (*volume.Volume, *volume.Stats, error) {
	tlog := logging.NewTimeLog()
	v, err := volume.Assemble(src, opts.Prefix)
	if err != nil {
		return nil, nil, err
	}
	tlog.Debugf("assembled %d slices of %dx%d %s (%s)",
		v.Depth(), v.Width, v.Height, v.Type, humanize.Bytes(uint64(v.Bytes())))

	stats := v.Stats()
	if v.VoxelSize > 0 {
		logging.Infof("%s: %dx%dx%d %s at %g um, %s\n", path, v.Width, v.Height, v.Depth(), v.Type, v.VoxelSize, stats)
	} else {
		logging.Infof("%s: %dx%dx%d %s, %s\n", path, v.Width, v.Height, v.Depth(), v.Type, stats)
	}
	if stats.NaN > 0 {
		logging.Warningf("%s: %d NaN voxels excluded from intensity range\n", path, stats.NaN)
	}

	if opts.Rescale == nil {
		return v, &stats, nil
	}
	out, err := rescale.Rescale(v, *opts.Rescale)
	if err != nil {
		return nil, &stats, fmt.Errorf("rescaling: %w", err)
	}
	return out, &stats, nil
}

// PanicError wraps a panic recovered from a task.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic reports whether err came from a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
