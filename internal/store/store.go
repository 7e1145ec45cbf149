package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/relq/internal/ir"
)

// Store is the SQLite row source relation caches are materialized from.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db   *sql.DB
	path string

	mu       sync.Mutex
	attached map[string]bool
}

// Open creates or opens a SQLite database at the given path. The path
// ":memory:" opens a private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - Case-sensitive LIKE, matching local LIKE evaluation
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool for SQLite
	// Pragmas and attached schemas are per connection, and an in-memory
	// database exists only on its connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Apply required pragmas
	if err := applyPragmas(db, path == ":memory:"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{db: db, path: path, attached: make(map[string]bool)}, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// Exec executes a statement and returns the number of rows it affected.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// EnsureTable creates the table for spec if it does not exist. Only
// stored columns are created. A table with a Schema lives in an attached
// database of that name, which is attached on first use.
func (s *Store) EnsureTable(ctx context.Context, spec *ir.TableSpec) error {
	if spec.Schema != "" {
		if err := s.attach(ctx, spec.Schema); err != nil {
			return err
		}
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL(spec)); err != nil {
		return fmt.Errorf("create table %s: %w", spec.QualifiedName(), err)
	}
	return nil
}

// attach attaches the database backing schema. File databases keep each
// schema in a sibling file named <db>.<schema>.db.
func (s *Store) attach(ctx context.Context, schema string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached[schema] {
		return nil
	}

	target := ":memory:"
	if s.path != ":memory:" {
		ext := filepath.Ext(s.path)
		target = strings.TrimSuffix(s.path, ext) + "." + schema + ".db"
	}
	if _, err := s.db.ExecContext(ctx, "ATTACH DATABASE ? AS "+quoteIdent(schema), target); err != nil {
		return fmt.Errorf("attach schema %s: %w", schema, err)
	}
	s.attached[schema] = true
	return nil
}

// applyPragmas sets required SQLite configuration.
// In-memory databases have no WAL.
func applyPragmas(db *sql.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// createTableSQL renders the DDL for spec's stored columns.
func createTableSQL(spec *ir.TableSpec) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(tableRef(spec))
	b.WriteString(" (")
	for _, col := range spec.Columns {
		if col.Generated != "" {
			continue
		}
		b.WriteString(quoteIdent(col.Name))
		b.WriteString(" ")
		b.WriteString(sqliteType(col.Type))
		b.WriteString(", ")
	}
	b.WriteString("PRIMARY KEY (")
	for i, name := range spec.PrimaryKey {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(name))
	}
	b.WriteString("))")
	return b.String()
}

func sqliteType(colType string) string {
	switch colType {
	case "int":
		return "INTEGER"
	case "bool":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func tableRef(spec *ir.TableSpec) string {
	if spec.Schema == "" {
		return quoteIdent(spec.Name)
	}
	return quoteIdent(spec.Schema) + "." + quoteIdent(spec.Name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
