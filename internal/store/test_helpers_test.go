package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createUsersStore creates a store with the users table and the given rows.
func createUsersStore(t *testing.T, users ...*ir.Record) (*Store, *ir.TableSpec) {
	t.Helper()
	s := createTestStore(t)
	spec := testutil.UsersTable()
	if err := s.EnsureTable(context.Background(), spec); err != nil {
		t.Fatalf("EnsureTable() failed: %v", err)
	}
	for _, u := range users {
		u.Table = spec
	}
	if err := s.Put(context.Background(), users...); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	return s, spec
}
