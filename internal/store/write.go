package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// Put upserts records into their tables in one transaction. A record
// whose primary key already exists replaces the stored row's values.
//
// Records must belong to tables created with EnsureTable.
func (s *Store) Put(ctx context.Context, records ...*ir.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put: begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		params, err := marshalRecord(r)
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsertSQL(r.Table), params...); err != nil {
			return fmt.Errorf("put %s: %w", r.EntityType(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put: commit: %w", err)
	}
	return nil
}

// upsertSQL renders INSERT ... ON CONFLICT (pk) DO UPDATE for spec's
// stored columns. Tables whose columns are all key columns do nothing on
// conflict.
func upsertSQL(spec *ir.TableSpec) string {
	names := spec.StoredColumnNames()
	key := make(map[string]bool, len(spec.PrimaryKey))
	for _, k := range spec.PrimaryKey {
		key[k] = true
	}

	quoted := make([]string, len(names))
	var updates []string
	for i, name := range names {
		quoted[i] = quoteIdent(name)
		if !key[name] {
			updates = append(updates, quoted[i]+" = excluded."+quoted[i])
		}
	}
	pk := make([]string, len(spec.PrimaryKey))
	for i, name := range spec.PrimaryKey {
		pk[i] = quoteIdent(name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO ",
		tableRef(spec),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "),
		strings.Join(pk, ", "),
	)
	if len(updates) == 0 {
		b.WriteString("NOTHING")
	} else {
		b.WriteString("UPDATE SET ")
		b.WriteString(strings.Join(updates, ", "))
	}
	return b.String()
}
