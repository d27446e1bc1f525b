package database

import (
	"database/sql"
	"fmt"

	"github.com/GoogleCloudPlatform/db-query-compiler/internal/relation"
)

// scanRows drains a result set into rows keyed by column name. Byte slices
// are copied to strings because drivers reuse their buffers between Next
// calls.
func scanRows(rows *sql.Rows) ([]relation.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	var out []relation.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(relation.Row, len(cols))
		for i, name := range cols {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
