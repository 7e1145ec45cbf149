package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
)

func tableWithGenerated(name string, generated map[string]string) *ir.TableSpec {
	spec := &ir.TableSpec{
		Name:        name,
		Columns:     []ir.ColumnSpec{{Name: "id", Type: "int"}, {Name: "name", Type: "string"}},
		PrimaryKey:  []string{"id"},
		Cardinality: ir.SingleOwner,
	}
	for col, src := range generated {
		spec.Columns = append(spec.Columns, ir.ColumnSpec{Name: col, Generated: src})
	}
	return spec
}

// TestAnalyzeCycles_Empty tests that empty input produces no warnings.
func TestAnalyzeCycles_Empty(t *testing.T) {
	warnings := AnalyzeCycles(nil)
	assert.Empty(t, warnings, "no tables should produce no warnings")
	assert.NotNil(t, warnings)
}

// TestAnalyzeCycles_DAG tests that chains ending at stored columns produce no warnings.
func TestAnalyzeCycles_DAG(t *testing.T) {
	spec := tableWithGenerated("users", map[string]string{
		"label": "name",
		"title": "label",
		"shout": "title",
	})

	warnings := AnalyzeCycles([]*ir.TableSpec{spec})
	assert.Empty(t, warnings, "DAG should produce no cycle warnings")
}

// TestAnalyzeCycles_SelfLoop tests detection of a column naming itself.
func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	spec := tableWithGenerated("users", map[string]string{"me": "me"})

	warnings := AnalyzeCycles([]*ir.TableSpec{spec})
	require.Len(t, warnings, 1)

	warning := warnings[0]
	assert.Equal(t, []string{"users.me", "users.me"}, warning.Path)
	assert.Contains(t, warning.Message, "references itself")
	assert.Equal(t, "warning", warning.Level)
}

// TestAnalyzeCycles_TwoNodeCycle tests detection of A → B → A.
func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	spec := tableWithGenerated("users", map[string]string{"ping": "pong", "pong": "ping"})

	warnings := AnalyzeCycles([]*ir.TableSpec{spec})
	require.Len(t, warnings, 1)

	warning := warnings[0]
	assert.Equal(t, []string{"users.ping", "users.pong", "users.ping"}, warning.Path)
	assert.Contains(t, warning.Message, "users.ping → users.pong → users.ping")
}

// TestAnalyzeCycles_ThreeNodeCycleWithTail tests that a column leading
// into a cycle is not part of it.
func TestAnalyzeCycles_ThreeNodeCycleWithTail(t *testing.T) {
	spec := tableWithGenerated("users", map[string]string{
		"a":    "b",
		"b":    "c",
		"c":    "a",
		"tail": "a",
	})

	warnings := AnalyzeCycles([]*ir.TableSpec{spec})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"users.a", "users.b", "users.c", "users.a"}, warnings[0].Path)
	assert.NotContains(t, warnings[0].Path, "users.tail")
}

// TestAnalyzeCycles_PerTable tests that same-named columns in different
// tables stay separate and warnings are ordered.
func TestAnalyzeCycles_PerTable(t *testing.T) {
	users := tableWithGenerated("users", map[string]string{"x": "x"})
	orders := tableWithGenerated("orders", map[string]string{"x": "name"})
	audit := tableWithGenerated("events", map[string]string{"x": "x"})
	audit.Schema = "audit"

	warnings := AnalyzeCycles([]*ir.TableSpec{users, orders, audit})
	require.Len(t, warnings, 2)
	assert.Equal(t, "audit.events.x", warnings[0].Path[0])
	assert.Equal(t, "users.x", warnings[1].Path[0])
}
