package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statementsDir = filepath.Join("..", "..", "testdata", "statements")

func statementPath(name string) string {
	return filepath.Join(statementsDir, name)
}

// writeStatement writes a statement document into a fresh directory.
func writeStatement(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCompileSelect(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", schemaDir, statementPath("find_a.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, `("users"."name") AS "label"`)
	assert.Contains(t, output, `("users"."name") LIKE ?`)
	assert.Contains(t, output, "Params:")
	assert.Contains(t, output, `1: "A%"`)
}

func TestCompileUpdateJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", schemaDir, statementPath("rename.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "update", resp.Data.Kind)
	assert.Equal(t, "sqlite", resp.Data.Dialect)
	assert.Contains(t, resp.Data.SQL, `UPDATE "users"`)
	// JSON numbers decode as float64
	assert.Equal(t, []any{"Anne", float64(1)}, resp.Data.Params)
}

func TestCompilePostgresPlaceholders(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", schemaDir, "--dialect", "postgres", statementPath("rename.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "$1")
	assert.Contains(t, output, "$2")
	assert.NotContains(t, output, "?")
}

func TestCompileWithoutParams(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", schemaDir, statementPath("purge.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Data CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, `DELETE FROM "orders"`, resp.Data.SQL)
	assert.NotNil(t, resp.Data.Params)
	assert.Empty(t, resp.Data.Params)
}

func TestCompileInvalidDialect(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", schemaDir, "--dialect", "oracle", statementPath("find_a.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --dialect")
}

func TestCompileMissingSchemaFlag(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{statementPath("find_a.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestCompileUnknownTable(t *testing.T) {
	path := writeStatement(t, `select:
  from: invoices
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", schemaDir, path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStatement, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invoices")
}

func TestCompileMalformedStatement(t *testing.T) {
	path := writeStatement(t, `select:
  from: users
  wher: {eq: [{col: id}, 1]}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", schemaDir, path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeStatement)
	assert.Contains(t, err.Error(), "wher")
}

func TestFormatParam(t *testing.T) {
	assert.Equal(t, "NULL", formatParam(nil))
	assert.Equal(t, `"Ann"`, formatParam("Ann"))
	assert.Equal(t, "42", formatParam(int64(42)))
	assert.Equal(t, "true", formatParam(true))
}
