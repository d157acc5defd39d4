package metadata

import (
	"fmt"

	"txmconvert/pkg/container"
)

// MaxRecipes bounds recipe probing.
const MaxRecipes = 4096

// RecipePrefix returns the storage name of recipe i.
func RecipePrefix(i int) string {
	return fmt.Sprintf("RecipePoint%d", i)
}

// CountRecipes probes RecipePoint0, RecipePoint1, ... and returns the index
// of the first prefix with no streams.
func CountRecipes(c container.Catalog) int {
	n := 0
	for n < MaxRecipes && container.HasPrefix(c, RecipePrefix(n)) {
		n++
	}
	return n
}

// ExtractRecipes extracts every recipe sub-tree of a multi-recipe container,
// in index order.
func ExtractRecipes(c container.Catalog) ([]*Record, error) {
	if c == nil {
		return nil, ErrNilCatalog
	}
	schema, err := SchemaFor(KindRCP)
	if err != nil {
		return nil, err
	}

	n := CountRecipes(c)
	if n == 0 {
		return nil, ErrNoRecipes
	}

	recs := make([]*Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, extractSchema(c, schema, RecipePrefix(i), i))
	}
	return recs, nil
}
