// namemap.go translates between the physical identifiers the planner's SQL
// references and the logical field names the rest of the runtime (hooks,
// result processor, client) works with. The planner already compiles
// physical column/table names into its SQL, so the direction this package
// needs is the reverse one: given a driver row, recover which logical field
// each returned column belongs to.
package executor

import (
	"database/sql"
	"fmt"

	"github.com/arbordb/arbor/schema"
)

// columnIndex maps a model's physical column names back to their logical
// field names, built once per model and reused across every row of a result
// set.
type columnIndex struct {
	byColumn map[string]string
}

func newColumnIndex(model *schema.Model) *columnIndex {
	idx := &columnIndex{byColumn: make(map[string]string, len(model.FieldOrder))}
	for _, f := range model.OrderedFields() {
		if f.Relational() || f.Virtual {
			continue
		}
		idx.byColumn[f.Column] = f.Name
	}
	return idx
}

// fieldFor returns the logical field name for physical column col, falling
// back to col itself for a computed/synthetic column (e.g. a relation's
// aggregated JSON projection) the index has no entry for.
func (idx *columnIndex) fieldFor(col string) string {
	if name, ok := idx.byColumn[col]; ok {
		return name
	}
	return col
}

// scanRows drains rows into one map[string]any per row, keyed by logical
// field name via idx. Column values are scanned into `any` (database/sql's
// driver.Value already yields the right concrete Go type for every column
// type this module supports: int64, float64, bool, []byte, time.Time, nil),
// so no per-type Scan destination needs to be constructed.
func scanRows(rows *sql.Rows, idx *columnIndex) ([]map[string]any, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("executor: reading result columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("executor: scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[idx.fieldFor(col)] = normalizeScanned(dest[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("executor: iterating rows: %w", err)
	}
	return out, nil
}

// normalizeScanned unwraps the []byte a driver sometimes returns for a
// textual column (e.g. modernc.org/sqlite for TEXT/NUMERIC affinities) into a
// string, so result-processor type coercion downstream never has to special-
// case the driver in use.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// singleRow is a convenience for a Step.Single result: returns the one row,
// or nil if the result set was empty.
func singleRow(rows []map[string]any) map[string]any {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}
