package store

import (
	"context"
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// Materialize runs a query and scans every result row into a Record of
// table. Result columns are matched to table columns by name; a result
// column the table does not declare is decoded from its SQLite type.
//
// Returns an empty slice (not nil) if the query yields no rows.
func (s *Store) Materialize(ctx context.Context, table *ir.TableSpec, query string, params []any) ([]*ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", table.QualifiedName(), err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("materialize %s: columns: %w", table.QualifiedName(), err)
	}
	types := make([]string, len(names))
	for i, name := range names {
		if col, ok := table.Column(name); ok {
			types[i] = col.Type
		}
	}

	records := []*ir.Record{}
	raw := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("materialize %s: scan: %w", table.QualifiedName(), err)
		}
		values := make(ir.IRObject, len(names))
		for i, name := range names {
			v, err := unmarshalColumn(types[i], raw[i])
			if err != nil {
				return nil, fmt.Errorf("materialize %s.%s: %w", table.QualifiedName(), name, err)
			}
			values[name] = v
		}
		records = append(records, ir.NewRecord(table, values))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("materialize %s: iterate: %w", table.QualifiedName(), err)
	}

	return records, nil
}
