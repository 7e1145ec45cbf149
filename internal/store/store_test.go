package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/testutil"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_ReopenKeepsTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() round %d failed: %v", i, err)
		}
		if err := s.EnsureTable(context.Background(), testutil.UsersTable()); err != nil {
			t.Fatalf("EnsureTable() round %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='users'`).Scan(&name)
	if err != nil {
		t.Errorf("users table lost across reopen: %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/dir/test.db"); err == nil {
		t.Error("expected error for a directory that does not exist")
	}
}

func TestClose(t *testing.T) {
	if err := (&Store{}).Close(); err != nil {
		t.Errorf("Close() without a connection: %v", err)
	}

	s := createTestStore(t)
	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	_ = s.Close()
}

func TestOpen_Pragmas(t *testing.T) {
	file := createTestStore(t)
	mem, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer mem.Close()

	tests := []struct {
		store  *Store
		pragma string
		want   string
	}{
		{file, "journal_mode", "wal"},
		{file, "synchronous", "1"},
		{file, "busy_timeout", "5000"},
		{file, "foreign_keys", "1"},
		{mem, "journal_mode", "memory"},
		{mem, "foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := tt.store.verifyPragma(tt.pragma, tt.want); err != nil {
			t.Errorf("%s: %v", tt.store.path, err)
		}
	}
}

func TestPragma_CaseSensitiveLike(t *testing.T) {
	s := createTestStore(t)

	// case_sensitive_like cannot be read back; check its effect
	var matched bool
	if err := s.db.QueryRow("SELECT 'apple' LIKE 'A%'").Scan(&matched); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if matched {
		t.Error("LIKE matched across case; case_sensitive_like is not on")
	}
}

// Table tests

func TestCreateTableSQL(t *testing.T) {
	spec := testutil.MembershipsTable()
	spec.Schema = "app"
	spec.Columns = append(spec.Columns,
		ir.ColumnSpec{Name: "active", Type: "bool"},
		ir.ColumnSpec{Name: "label", Type: "string", Generated: "role"},
	)

	got := createTableSQL(spec)
	want := `CREATE TABLE IF NOT EXISTS "app"."memberships" (` +
		`"user_id" INTEGER, "group_id" INTEGER, "role" TEXT, "active" BOOLEAN, ` +
		`PRIMARY KEY ("user_id", "group_id"))`
	if got != want {
		t.Errorf("createTableSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestEnsureTable_Schema(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	spec := testutil.UsersTable()
	spec.Schema = "app"

	// Twice: the schema is attached once
	for i := 0; i < 2; i++ {
		if err := s.EnsureTable(ctx, spec); err != nil {
			t.Fatalf("EnsureTable() call %d failed: %v", i, err)
		}
	}

	var name string
	err := s.db.QueryRow(`SELECT name FROM "app".sqlite_master WHERE type='table'`).Scan(&name)
	if err != nil {
		t.Fatalf("attached schema has no table: %v", err)
	}
	if name != "users" {
		t.Errorf("table name = %q, want users", name)
	}

	// The schema file sits next to the main database
	if _, err := os.Stat(strings.TrimSuffix(s.path, ".db") + ".app.db"); err != nil {
		t.Errorf("schema database file missing: %v", err)
	}
}

func TestEnsureTable_MemorySchema(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	spec := testutil.OrdersTable()
	spec.Schema = "shop"
	if err := s.EnsureTable(context.Background(), spec); err != nil {
		t.Fatalf("EnsureTable() failed: %v", err)
	}
	if _, err := s.Exec(context.Background(), `INSERT INTO "shop"."orders" (id, user_id, sku) VALUES (1, 1, 'A-1')`); err != nil {
		t.Fatalf("insert into attached table failed: %v", err)
	}
}

func TestExec_RowsAffected(t *testing.T) {
	s, _ := createUsersStore(t,
		testutil.User(nil, 1, "Ann", ""),
		testutil.User(nil, 2, "Bob", ""),
	)

	n, err := s.Exec(context.Background(), `UPDATE "users" SET "email" = ? WHERE "id" > ?`, "x@example.com", 0)
	if err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows affected = %d, want 2", n)
	}

	if _, err := s.Exec(context.Background(), `UPDATE "nope" SET "x" = 1`); err == nil {
		t.Error("expected error for unknown table")
	}
}
