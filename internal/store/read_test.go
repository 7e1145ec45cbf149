package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/testutil"
)

func TestMaterialize_ScansRecords(t *testing.T) {
	s, spec := createUsersStore(t,
		testutil.User(nil, 2, "Bob", "bob@example.com"),
		testutil.User(nil, 1, "Ann", ""),
	)

	records, err := s.Materialize(context.Background(), spec,
		`SELECT "id", "name", "email", "manager_id" FROM "users" ORDER BY "id" ASC`, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Same(t, spec, records[0].Table)
	assert.Equal(t, ir.IRObject{
		"id":         ir.IRInt(1),
		"name":       ir.IRString("Ann"),
		"email":      ir.IRNull{},
		"manager_id": ir.IRNull{},
	}, records[0].Values)
	assert.Equal(t, ir.IRString("bob@example.com"), records[1].Values["email"])
	assert.Equal(t, ir.IRArray{ir.IRInt(2)}, records[1].PrimaryKey())
}

func TestMaterialize_Params(t *testing.T) {
	s, spec := createUsersStore(t,
		testutil.User(nil, 1, "Ann", ""),
		testutil.User(nil, 2, "Bob", ""),
	)

	records, err := s.Materialize(context.Background(), spec,
		`SELECT * FROM "users" WHERE "name" LIKE ?`, []any{"B%"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ir.IRString("Bob"), records[0].Values["name"])
}

func TestMaterialize_EmptyIsNotNil(t *testing.T) {
	s, spec := createUsersStore(t)

	records, err := s.Materialize(context.Background(), spec, `SELECT * FROM "users"`, nil)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestMaterialize_UndeclaredColumnsUseSQLiteType(t *testing.T) {
	s, spec := createUsersStore(t, testutil.User(nil, 7, "Ann", ""))

	records, err := s.Materialize(context.Background(), spec,
		`SELECT "id", "name" AS "label", 40 + 2 AS "answer" FROM "users"`, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ir.IRObject{
		"id":     ir.IRInt(7),
		"label":  ir.IRString("Ann"),
		"answer": ir.IRInt(42),
	}, records[0].Values)
}

func TestMaterialize_Bools(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	spec := &ir.TableSpec{
		Name:        "flags",
		Columns:     []ir.ColumnSpec{{Name: "id", Type: "int"}, {Name: "on", Type: "bool"}},
		PrimaryKey:  []string{"id"},
		Cardinality: ir.SingleOwner,
	}
	require.NoError(t, s.EnsureTable(ctx, spec))
	require.NoError(t, s.Put(ctx,
		ir.NewRecord(spec, ir.IRObject{"id": ir.IRInt(1), "on": ir.IRBool(true)}),
		ir.NewRecord(spec, ir.IRObject{"id": ir.IRInt(2), "on": ir.IRBool(false)}),
	))

	records, err := s.Materialize(ctx, spec, `SELECT * FROM "flags" ORDER BY "id"`, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ir.IRBool(true), records[0].Values["on"])
	assert.Equal(t, ir.IRBool(false), records[1].Values["on"])
}

func TestMaterialize_Errors(t *testing.T) {
	s, spec := createUsersStore(t, testutil.User(nil, 1, "Ann", ""))
	ctx := context.Background()

	_, err := s.Materialize(ctx, spec, `SELECT * FROM "nope"`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "materialize users")

	// A string stored in an int column cannot be decoded
	_, err = s.Exec(ctx, `INSERT INTO "users" ("id", "name", "manager_id") VALUES (2, 'Bob', 'boss')`)
	require.NoError(t, err)
	_, err = s.Materialize(ctx, spec, `SELECT * FROM "users"`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.manager_id")
}

func TestMaterialize_ContextCanceled(t *testing.T) {
	s, spec := createUsersStore(t, testutil.User(nil, 1, "Ann", ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Materialize(ctx, spec, `SELECT * FROM "users"`, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnmarshalColumn(t *testing.T) {
	tests := []struct {
		name    string
		colType string
		raw     any
		want    ir.IRValue
		wantErr bool
	}{
		{"null", "int", nil, ir.IRNull{}, false},
		{"int", "int", int64(3), ir.IRInt(3), false},
		{"string", "string", "x", ir.IRString("x"), false},
		{"bytes", "string", []byte("x"), ir.IRString("x"), false},
		{"bool", "bool", true, ir.IRBool(true), false},
		{"bool from int", "bool", int64(0), ir.IRBool(false), false},
		{"untyped float", "", float64(2), ir.IRInt(2), false},
		{"untyped fraction", "", 2.5, nil, true},
		{"int mismatch", "int", "3", nil, true},
		{"string mismatch", "string", int64(3), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unmarshalColumn(tt.colType, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
