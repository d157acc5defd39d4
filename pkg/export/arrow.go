package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"txmconvert/pkg/metadata"
)

// arrowSchema builds one nullable UTF-8 column per visible field of rec,
// after the source, kind and recipe columns.
func arrowSchema(rec *metadata.Record) (*arrow.Schema, []string) {
	fields := []arrow.Field{
		{Name: "source", Type: arrow.BinaryTypes.String},
		{Name: "kind", Type: arrow.BinaryTypes.String},
		{Name: "recipe", Type: arrow.PrimitiveTypes.Int32},
	}
	var names []string
	for _, f := range visible(rec) {
		md := arrow.NewMetadata([]string{"label", "unit"}, []string{f.Spec.DisplayLabel(), f.Spec.Unit})
		fields = append(fields, arrow.Field{
			Name:     f.Name(),
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
			Metadata: md,
		})
		names = append(names, f.Name())
	}
	return arrow.NewSchema(fields, nil), names
}

// WriteArrow writes records as an Arrow IPC stream with one row per record.
// Columns follow the first record's schema; fields that are not present
// are null.
func WriteArrow(w io.Writer, recs []*metadata.Record) error {
	if len(recs) == 0 {
		return fmt.Errorf("export: no records to write")
	}
	schema, names := arrowSchema(recs[0])
	pool := memory.NewGoAllocator()

	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	source := b.Field(0).(*array.StringBuilder)
	kind := b.Field(1).(*array.StringBuilder)
	recipe := b.Field(2).(*array.Int32Builder)
	for _, rec := range recs {
		source.Append(rec.Source)
		kind.Append(rec.Kind.String())
		recipe.Append(int32(rec.Recipe))
		for i, name := range names {
			col := b.Field(3 + i).(*array.StringBuilder)
			f, ok := rec.Field(name)
			if !ok || f.Status != metadata.Present {
				col.AppendNull()
				continue
			}
			col.Append(f.Text())
		}
	}

	record := b.NewRecord()
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	return writer.Close()
}
