package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"txmconvert/pkg/metadata"
)

// Format selects the metadata text layout.
type Format int

const (
	// Tab writes "Label:\tvalue unit" lines.
	Tab Format = iota
	// CSV writes label,value,unit,status rows.
	CSV
)

// ParseFormat maps the "txt"/"tab" and "csv" metadata format names to a
// Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "txt", "tab", "text":
		return Tab, nil
	case "csv":
		return CSV, nil
	}
	return 0, fmt.Errorf("%w: metadata format %q", ErrUnknownFormat, s)
}

// Marker text for fields that could not be rendered.
const (
	absentText  = "N/A"
	erroredText = "ERROR"
)

func cell(f metadata.Field) string {
	switch f.Status {
	case metadata.Present:
		return f.Text()
	case metadata.Errored:
		return erroredText
	}
	return absentText
}

// visible returns the fields a writer shows: everything but internal
// fields, in schema order.
func visible(rec *metadata.Record) []metadata.Field {
	var out []metadata.Field
	for _, f := range rec.Fields() {
		if !f.Spec.Internal {
			out = append(out, f)
		}
	}
	return out
}

// WriteText writes one record. Recipe records are prefixed with the recipe
// index.
func WriteText(w io.Writer, rec *metadata.Record, format Format) error {
	switch format {
	case CSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"field", "value", "unit", "status"}); err != nil {
			return err
		}
		for _, f := range visible(rec) {
			row := []string{f.Spec.DisplayLabel(), cell(f), f.Spec.Unit, f.Status.String()}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case Tab:
		bw := bufio.NewWriter(w)
		if rec.Source != "" {
			fmt.Fprintf(bw, "File:\t%s\n", rec.Source)
		}
		if rec.Recipe >= 0 {
			fmt.Fprintf(bw, "Recipe index:\t%d\n", rec.Recipe)
		}
		for _, f := range visible(rec) {
			value := cell(f)
			if f.Status == metadata.Present && f.Spec.Unit != "" {
				value += " " + f.Spec.Unit
			}
			if f.Status == metadata.Present && f.Spec.Name == metadata.FieldAcquisitionMode {
				// Also show the acquisition software's wording.
				value += " (" + metadata.Mode(f.Text()).Label() + ")"
			}
			fmt.Fprintf(bw, "%s:\t%s\n", f.Spec.DisplayLabel(), value)
		}
		return bw.Flush()
	}
	return fmt.Errorf("%w: %d", ErrUnknownFormat, format)
}

// WriteTable writes several records as CSV, one row per record and one
// column per field of the first record's schema. It is the spreadsheet
// layout used for multi-recipe files and batch summaries.
func WriteTable(w io.Writer, recs []*metadata.Record) error {
	if len(recs) == 0 {
		return nil
	}
	cols := visible(recs[0])

	cw := csv.NewWriter(w)
	header := []string{"source", "recipe"}
	for _, f := range cols {
		label := f.Spec.DisplayLabel()
		if f.Spec.Unit != "" {
			label += " (" + f.Spec.Unit + ")"
		}
		header = append(header, label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, rec := range recs {
		row := []string{rec.Source, strconv.Itoa(rec.Recipe)}
		for _, c := range cols {
			f, ok := rec.Field(c.Name())
			if !ok {
				row = append(row, absentText)
				continue
			}
			row = append(row, cell(f))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
