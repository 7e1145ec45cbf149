package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/relcache"
	"github.com/roach88/relq/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Type: EventLoad, Table: "users"},
		{Seq: 2, Step: "a", Type: EventSelect, Table: "users", Source: "cache"},
		{Seq: 3, Step: "b", Type: EventExec, Table: "orders"},
		{Seq: 4, Step: "c", Type: EventSelect, Table: "orders", Source: "database"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Event: EventSelect}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Event: EventSelect, Table: "orders", Source: "database"}))

	err := assertTraceContains(trace, Assertion{Event: EventSelect, Table: "users", Source: "database"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "event select on users from database", ae.Expected)
	assert.Contains(t, err.Error(), "[2] select users (a) from cache")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Steps: []string{"a", "c"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Steps: []string{"a", "b", "c"}}))

	err := assertTraceOrder(trace, Assertion{Steps: []string{"c", "a"}})
	assert.ErrorContains(t, err, `step "a" ran out of order`)

	err = assertTraceOrder(trace, Assertion{Steps: []string{"a", "z"}})
	assert.ErrorContains(t, err, `step "z" not found in trace`)
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: EventSelect, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: EventSelect, Source: "cache", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: EventExec, Table: "users", Count: 0}))

	err := assertTraceCount(trace, Assertion{Event: EventLoad, Count: 2})
	assert.ErrorContains(t, err, "Actual: 1 load events")
}

// stateFixture builds an assertion context over a store holding users 1
// and 2, with only user 1 cached.
func stateFixture(t *testing.T) *AssertionContext {
	t.Helper()
	schema, errs := compiler.LoadSchema(schemaDir, compiler.LoadModeFailFast)
	require.Empty(t, errs)

	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	users, ok := schema.Table("users")
	require.True(t, ok)
	require.NoError(t, st.EnsureTable(ctx, users))

	ann := ir.NewRecord(users, ir.IRObject{"id": ir.IRInt(1), "name": ir.IRString("Ann"), "email": ir.IRString("ann@example.com")})
	bob := ir.NewRecord(users, ir.IRObject{"id": ir.IRInt(2), "name": ir.IRString("Bob"), "email": ir.IRNull{}})
	require.NoError(t, st.Put(ctx, ann, bob))

	reg := relcache.NewRegistry()
	reg.Relation(users)
	require.NoError(t, reg.Replace(nil, ann))

	return &AssertionContext{
		Store:    st,
		Schema:   schema,
		Registry: reg,
		Compiler: querysql.NewSQLCompiler(querysql.SQLite),
		Ctx:      ctx,
	}
}

func TestAssertFinalState(t *testing.T) {
	actx := stateFixture(t)

	assert.NoError(t, assertFinalState(actx, Assertion{
		Table:  "users",
		Where:  map[string]any{"id": 2},
		Expect: map[string]any{"name": "Bob", "email": nil},
	}))

	err := assertFinalState(actx, Assertion{
		Table:  "users",
		Where:  map[string]any{"id": 1},
		Expect: map[string]any{"name": "Bob"},
	})
	assert.ErrorContains(t, err, `column name: expected "Bob", got "Ann"`)

	err = assertFinalState(actx, Assertion{Table: "users", Expect: map[string]any{"name": "Ann"}})
	assert.ErrorContains(t, err, "Actual: 2 rows")

	err = assertFinalState(actx, Assertion{Table: "users", Where: map[string]any{"nope": 1}, Expect: map[string]any{"id": 1}})
	assert.ErrorContains(t, err, `has no column "nope"`)

	err = assertFinalState(actx, Assertion{Table: "nope", Expect: map[string]any{"id": 1}})
	assert.ErrorContains(t, err, `unknown table "nope"`)
}

func TestAssertCacheState(t *testing.T) {
	actx := stateFixture(t)

	assert.NoError(t, assertCacheState(actx, Assertion{
		Table:  "users",
		Where:  map[string]any{"id": 1},
		Expect: map[string]any{"email": "ann@example.com"},
	}))
	assert.NoError(t, assertCacheState(actx, Assertion{Table: "users", Where: map[string]any{"id": 2}, Absent: true}))

	err := assertCacheState(actx, Assertion{Table: "users", Where: map[string]any{"id": 1}, Absent: true})
	assert.ErrorContains(t, err, "row is cached")

	err = assertCacheState(actx, Assertion{Table: "users", Where: map[string]any{"id": 2}, Expect: map[string]any{"name": "Bob"}})
	assert.ErrorContains(t, err, "not cached")

	err = assertCacheState(actx, Assertion{Table: "users", Where: map[string]any{"name": "Ann"}, Expect: map[string]any{"id": 1}})
	assert.ErrorContains(t, err, `missing primary-key column "id"`)

	// orders has no relation yet
	assert.NoError(t, assertCacheState(actx, Assertion{Table: "orders", Where: map[string]any{"id": 1}, Absent: true}))
}

func TestEvaluateAssertions(t *testing.T) {
	actx := stateFixture(t)
	result := &Result{Trace: sampleTrace()}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Event: EventSelect, Count: 2},
		{Type: AssertTraceOrder, Steps: []string{"c", "a"}},
		{Type: AssertCacheState, Table: "users", Where: map[string]any{"id": 1}, Expect: map[string]any{"name": "Ann"}},
		{Type: "bogus"},
	}, actx)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 1:")
	assert.Equal(t, `assertion 3: unknown assertion type "bogus"`, errs[1])

	assert.Empty(t, EvaluateAssertions(result, nil, actx))
}
