package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CacheRoundtrip(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/cache_roundtrip.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 4)

	assert.Equal(t, EventLoad, result.Trace[0].Type)
	assert.Equal(t, "cache", result.Trace[1].Source)
	assert.Equal(t, EventExec, result.Trace[2].Type)
	assert.Equal(t, "database", result.Trace[3].Source)

	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq, "event %d", i)
	}
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s, err := writeScenario(t, `
name: wrong
description: every expectation is off
seed:
  - table: users
    rows: [{id: 1, name: Ann, email: a@x}]
load: [users]
steps:
  - name: q
    statement:
      select: {from: users, columns: [name]}
    expect:
      source: database
      count: 2
      rows: [{name: Bob}]
  - name: r
    statement:
      select: {from: users, columns: [name]}
    expect:
      rows: [{name: Ann}, {name: Bob}]
  - name: d
    statement:
      delete: {from: users, where: {eq: [{col: id}, 9]}}
    expect:
      rows_affected: 1
`)
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "q: expected source database, got cache")
	assert.Contains(t, result.Errors, "q: expected 2 rows, got 1")
	assert.Contains(t, result.Errors, `q: row 0: column name: expected "Bob", got "Ann"`)
	assert.Contains(t, result.Errors, `r: expected rows [map[name:Ann] map[name:Bob]], got 1 rows`)
	assert.Contains(t, result.Errors, "d: expected 1 rows affected, got 0")
}

func TestRun_RowMismatch(t *testing.T) {
	s, err := writeScenario(t, `
name: mismatch
description: row values differ
seed:
  - table: users
    rows: [{id: 1, name: Ann}]
steps:
  - name: q
    statement:
      select: {from: users}
    expect:
      rows: [{name: Ann, email: ann@example.com}]
`)
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, `q: row 0: column email: expected "ann@example.com", got null`, result.Errors[0])
}

func TestRun_ExpectedErrors(t *testing.T) {
	s, err := writeScenario(t, `
name: errors
description: failing steps that are expected to fail
steps:
  - name: unknown_table
    statement:
      select: {from: nope}
    expect:
      error: unknown table
  - name: unknown_load
    load: nope
    expect:
      error: unknown table
`)
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnexpectedErrorAndMissingError(t *testing.T) {
	s, err := writeScenario(t, `
name: errors
description: error expectations that do not hold
steps:
  - name: boom
    statement:
      select: {from: users, columns: [nope]}
  - name: fine
    statement:
      select: {from: users}
    expect:
      error: something
`)
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `boom: unexpected error: select: unknown column "nope"`)
	assert.Equal(t, `fine: expected error containing "something", got success`, result.Errors[1])
}

func TestRun_LoadStepMakesSelectsLocal(t *testing.T) {
	s, err := writeScenario(t, `
name: late_load
description: a select before and after loading
seed:
  - table: orders
    rows: [{id: 1, user_id: 1, sku: pen}, {id: 2, user_id: 1, sku: ink}]
steps:
  - name: before
    statement:
      select: {from: orders, order_by: [{col: sku}]}
    expect: {source: database, rows: [{sku: ink}, {sku: pen}]}
  - name: load
    load: orders
  - name: after
    statement:
      select: {from: orders, order_by: [{col: sku}], limit: 1}
    expect: {source: cache, rows: [{id: 2}]}
assertions:
  - {type: trace_count, event: load, count: 1}
  - {type: trace_contains, event: select, table: orders, source: cache}
  - {type: cache_state, table: orders, where: {id: 1}, expect: {sku: pen}}
`)
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(2), result.Trace[1].RowsAffected)
}

func TestRun_SchemaError(t *testing.T) {
	_, err := Run(&Scenario{Name: "x", Schema: t.TempDir()})
	assert.ErrorContains(t, err, "failed to load schema")
}

func TestRun_SeedUnknownTable(t *testing.T) {
	s, err := writeScenario(t, `
name: bad_seed
description: seeds a table the schema lacks
seed:
  - table: nope
    rows: [{id: 1}]
steps:
  - load: users
`)
	require.NoError(t, err)

	_, err = Run(s)
	assert.ErrorContains(t, err, `failed to seed: unknown table "nope"`)
}
