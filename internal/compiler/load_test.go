package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
)

func writeSchema(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	}
	return dir
}

const usersCUE = `
package test

table: users: {
	primary_key: ["id"]
	columns: {
		id:         int
		name:       string
		email:      string
		manager_id: int
	}
	generated: label: "name"
}
`

const ordersCUE = `
package test

table: orders: {
	schema:      "shop"
	primary_key: ["id"]
	columns: {
		id:      int
		user_id: int
		sku:     string
	}
}
`

func TestLoadSchema(t *testing.T) {
	dir := writeSchema(t, map[string]string{
		"users.cue":  usersCUE,
		"orders.cue": ordersCUE,
	})

	schema, errs := LoadSchema(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, schema)

	assert.Equal(t, 2, schema.FileCount)
	assert.Len(t, schema.Tables, 2)
	assert.Empty(t, schema.Warnings)

	users, ok := schema.Table("users")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "email", "manager_id"}, users.StoredColumnNames())
	label, _ := users.Column("label")
	assert.Equal(t, ir.ColumnSpec{Name: "label", Type: "string", Generated: "name"}, label)

	orders, ok := schema.Table("shop.orders")
	require.True(t, ok)
	assert.Equal(t, "shop", orders.Schema)

	_, ok = schema.Table("orders")
	assert.False(t, ok, "schema-qualified tables are looked up by qualified name")
}

func TestLoadSchema_CycleWarnings(t *testing.T) {
	dir := writeSchema(t, map[string]string{"loops.cue": `
package test

table: loops: {
	primary_key: ["id"]
	columns: id: int
	generated: {
		ping: "pong"
		pong: "ping"
	}
}
`})

	schema, errs := LoadSchema(dir, LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, schema.Warnings, 1)
	assert.Equal(t, []string{"loops.ping", "loops.pong", "loops.ping"}, schema.Warnings[0].Path)
}

func TestLoadSchema_Errors(t *testing.T) {
	t.Run("missing dir", func(t *testing.T) {
		_, errs := LoadSchema(filepath.Join(t.TempDir(), "nope"), LoadModeFailFast)
		require.Len(t, errs, 1)
		assertLoadCode(t, errs[0], ErrCodeNotFound)
	})

	t.Run("file instead of dir", func(t *testing.T) {
		dir := writeSchema(t, map[string]string{"users.cue": usersCUE})
		_, errs := LoadSchema(filepath.Join(dir, "users.cue"), LoadModeFailFast)
		require.Len(t, errs, 1)
		assertLoadCode(t, errs[0], ErrCodeNotFound)
	})

	t.Run("no cue files", func(t *testing.T) {
		dir := writeSchema(t, map[string]string{"README.md": "# nothing"})
		_, errs := LoadSchema(dir, LoadModeFailFast)
		require.Len(t, errs, 1)
		assertLoadCode(t, errs[0], ErrCodeNoFiles)
	})

	t.Run("no tables", func(t *testing.T) {
		dir := writeSchema(t, map[string]string{"empty.cue": "package test\n\nother: 1\n"})
		_, errs := LoadSchema(dir, LoadModeFailFast)
		require.Len(t, errs, 1)
		assertLoadCode(t, errs[0], ErrCodeNoTables)
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := writeSchema(t, map[string]string{"bad.cue": "package test\n\ntable: {\n"})
		_, errs := LoadSchema(dir, LoadModeFailFast)
		require.Len(t, errs, 1)
		var loadErr *LoadError
		require.True(t, errors.As(errs[0], &loadErr))
		assert.Contains(t, []string{ErrCodeLoadFailed, ErrCodeBuildFailed}, loadErr.Code)
	})
}

func TestLoadSchema_Modes(t *testing.T) {
	dir := writeSchema(t, map[string]string{
		"users.cue": usersCUE,
		"bad.cue": `
package test

table: a_nokey: columns: id: int
table: b_badkey: {
	primary_key: ["uuid"]
	columns: id: int
}
`,
	})

	schema, errs := LoadSchema(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assertLoadCode(t, errs[0], ErrTableNoPrimaryKey)
	assert.Contains(t, errs[0].Error(), "table.a_nokey")
	assert.Empty(t, schema.Tables)

	schema, errs = LoadSchema(dir, LoadModeCollectAll)
	require.Len(t, errs, 2)
	assertLoadCode(t, errs[0], ErrTableNoPrimaryKey)
	assertLoadCode(t, errs[1], ErrUnknownKeyColumn)

	// Invalid tables are skipped; valid ones still load
	_, ok := schema.Table("users")
	assert.True(t, ok)
	_, ok = schema.Table("a_nokey")
	assert.False(t, ok)
}

func TestFindCUEFiles(t *testing.T) {
	dir := writeSchema(t, map[string]string{
		"root.cue":          "package test",
		"notcue.txt":        "not a cue file",
		"nested/deeper.cue": "package test",
	})

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "root.cue"),
		filepath.Join(dir, "nested", "deeper.cue"),
	}, files)
}

func assertLoadCode(t *testing.T, err error, code string) {
	t.Helper()
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr), "want LoadError, got %T: %v", err, err)
	assert.Equal(t, code, loadErr.Code, loadErr.Error())
}
