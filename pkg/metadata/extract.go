// Package metadata resolves per-kind schemas of named streams into typed
// acquisition metadata.
//
// Each file kind (TXM, TXRM, RCP, XRM) has a declarative table of FieldSpecs.
// Extraction walks the table in order, threading a Context of already
// decoded values through every predicate and derivation, so a field can be
// conditional on an earlier one (the number of segments is only read for
// stitched acquisitions). Missing streams and malformed layouts are recorded
// per field and never abort the record.
package metadata

import (
	"errors"
	"fmt"

	"txmconvert/pkg/container"
)

// Extract resolves the schema for kind against c. RCP containers hold
// several recipes; use ExtractRecipes or ExtractAny for them.
func Extract(c container.Catalog, kind Kind) (*Record, error) {
	if c == nil {
		return nil, ErrNilCatalog
	}
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	if kind.MultiRecipe() {
		return nil, fmt.Errorf("%s containers hold recipes: use ExtractRecipes", kind)
	}
	return extractSchema(c, schema, "", -1), nil
}

// ExtractAny returns one record for single-acquisition kinds and one record
// per recipe for multi-recipe kinds.
func ExtractAny(c container.Catalog, kind Kind) ([]*Record, error) {
	if kind.MultiRecipe() {
		return ExtractRecipes(c)
	}
	rec, err := Extract(c, kind)
	if err != nil {
		return nil, err
	}
	return []*Record{rec}, nil
}

// ExtractFile opens path, extracts its metadata and closes it again.
func ExtractFile(path string, kind Kind) ([]*Record, error) {
	f, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recs, err := ExtractAny(f, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, r := range recs {
		r.Source = path
	}
	return recs, nil
}

// extractSchema runs the field resolution algorithm. prefix is prepended to
// every non-shared path (the recipe sub-tree), recipe is recorded on the
// context and the record.
func extractSchema(c container.Catalog, schema *Schema, prefix string, recipe int) *Record {
	rec := newRecord(schema.Kind, recipe, len(schema.Fields))
	ctx := newContext(schema.Kind, recipe)

	for _, spec := range schema.Fields {
		field := Field{Spec: spec, Status: Absent}

		switch {
		case spec.When != nil && !spec.When(ctx):
			// Inapplicable: never resolved.

		case spec.Derive != nil:
			if v, ok := spec.Derive(ctx); ok {
				field.Status = Present
				field.Value = v
			}

		default:
			field = resolveField(c, spec, prefix)
		}

		if field.Status == Present {
			ctx = ctx.with(spec.Name, field.Value)
		}
		rec.add(field)
	}
	return rec
}

// resolveField tries each candidate path in order and decodes the first one
// that exists.
func resolveField(c container.Catalog, spec FieldSpec, prefix string) Field {
	field := Field{Spec: spec, Status: Absent}

	for _, candidate := range spec.Paths {
		path := candidate
		if prefix != "" && !spec.Shared {
			path = container.JoinPath(prefix, candidate)
		}

		entry, err := c.Stat(path)
		if errors.Is(err, container.ErrNotFound) {
			continue
		}
		field.Path = path
		if err != nil {
			field.Status = Errored
			field.Err = &FieldDecodeError{
				Field:  spec.Name,
				Path:   path,
				Offset: spec.Offset,
				Type:   spec.Type,
				Count:  spec.Count,
				Need:   spec.need(),
				Err:    err,
			}
			return field
		}

		count := spec.Count
		need := spec.need()
		if spec.Type == String && count == 0 {
			// Rest of the stream after the offset.
			count = int(entry.Size) - spec.Offset
			if count < 0 {
				count = 0
			}
			need = int64(spec.Offset + count)
		}

		if need > entry.Size {
			field.Status = Errored
			field.Err = &FieldDecodeError{
				Field:  spec.Name,
				Path:   path,
				Offset: spec.Offset,
				Type:   spec.Type,
				Count:  count,
				Need:   need,
				Have:   entry.Size,
				Err:    container.ErrOutOfRange,
			}
			return field
		}

		buf, err := c.Read(path, 0, need)
		if err != nil {
			field.Status = Errored
			field.Err = &FieldDecodeError{
				Field:  spec.Name,
				Path:   path,
				Offset: spec.Offset,
				Type:   spec.Type,
				Count:  count,
				Need:   need,
				Have:   entry.Size,
				Err:    err,
			}
			return field
		}

		field.Status = Present
		field.Value = decode(buf, spec.Offset, spec.Type, count)
		return field
	}
	return field
}
