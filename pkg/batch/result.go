package batch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"txmconvert/pkg/metadata"
	"txmconvert/pkg/volume"
)

// Outcome summarises a Result without collapsing partial success.
type Outcome int

const (
	Complete Outcome = iota
	MetadataOnly
	VolumeOnly
	Failed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case MetadataOnly:
		return "metadata only"
	case VolumeOnly:
		return "volume only"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is the outcome of one file. Each stage keeps its own error.
type Result struct {
	Job Job

	Records []*metadata.Record
	Volume  *volume.Volume
	// Stats summarises the assembled volume's intensities before rescaling.
	Stats *volume.Stats

	// VolumeAttempted is false for kinds without images and metadata-only
	// runs.
	VolumeAttempted bool

	OpenErr     error
	MetadataErr error
	VolumeErr   error
	HandlerErr  error

	Skipped bool
	SkipErr error

	Elapsed time.Duration
}

// Outcome classifies the result. A handler failure marks the file Failed
// even when extraction succeeded.
func (r *Result) Outcome() Outcome {
	switch {
	case r.Skipped:
		return Skipped
	case r.OpenErr != nil, r.HandlerErr != nil:
		return Failed
	}
	metaOK := r.MetadataErr == nil
	volOK := !r.VolumeAttempted || r.VolumeErr == nil
	switch {
	case metaOK && volOK:
		return Complete
	case metaOK:
		return MetadataOnly
	case volOK && r.VolumeAttempted:
		return VolumeOnly
	}
	return Failed
}

// Err joins every stage error, or returns nil.
func (r *Result) Err() error {
	var errs []error
	for _, e := range []struct {
		stage string
		err   error
	}{
		{"open", r.OpenErr},
		{"metadata", r.MetadataErr},
		{"volume", r.VolumeErr},
		{"export", r.HandlerErr},
		{"skipped", r.SkipErr},
	} {
		if e.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.stage, e.err))
		}
	}
	return errors.Join(errs...)
}

// Report aggregates the results of one Run.
type Report struct {
	RunID   uuid.UUID
	Started time.Time
	Elapsed time.Duration
	Results []*Result
}

// Count returns the number of results with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res != nil && res.Outcome() == o {
			n++
		}
	}
	return n
}

// Incomplete returns every result that is not Complete.
func (r *Report) Incomplete() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if res != nil && res.Outcome() != Complete {
			out = append(out, res)
		}
	}
	return out
}

// VolumeBytes is the total size of the volumes produced.
func (r *Report) VolumeBytes() int64 {
	var n int64
	for _, res := range r.Results {
		if res != nil && res.Volume != nil {
			n += res.Volume.Bytes()
		}
	}
	return n
}

// Summary returns a one-line count of each outcome.
func (r *Report) Summary() string {
	var parts []string
	for _, o := range []Outcome{Complete, MetadataOnly, VolumeOnly, Failed, Skipped} {
		if n := r.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no files")
	}
	return fmt.Sprintf("%s, %s of image data", strings.Join(parts, ", "), humanize.Bytes(uint64(r.VolumeBytes())))
}
