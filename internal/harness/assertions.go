package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/relcache"
	"github.com/roach88/relq/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", i+1, event.Type, event.Table)
			if event.Step != "" {
				fmt.Fprintf(&buf, " (%s)", event.Step)
			}
			if event.Source != "" {
				fmt.Fprintf(&buf, " from %s", event.Source)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// AssertionContext carries what state assertions read.
type AssertionContext struct {
	Store    *store.Store
	Schema   *compiler.Schema
	Registry *relcache.Registry
	Compiler *querysql.SQLCompiler
	Ctx      context.Context
}

// assertTraceContains checks for an event of the given type, optionally
// restricted to a table and a select source.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, assertion) {
			return nil
		}
	}

	expected := "event " + assertion.Event
	if assertion.Table != "" {
		expected += " on " + assertion.Table
	}
	if assertion.Source != "" {
		expected += " from " + assertion.Source
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that named steps ran in the specified order.
// Steps don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Step]; event.Step != "" && !seen {
			positions[event.Step] = i
		}
	}

	last := -1
	for _, step := range assertion.Steps {
		pos, ok := positions[step]
		if !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order %v", assertion.Steps),
				Actual:   fmt.Sprintf("step %q not found in trace", step),
				Trace:    trace,
			}
		}
		if pos < last {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order %v", assertion.Steps),
				Actual:   fmt.Sprintf("step %q ran out of order", step),
				Trace:    trace,
			}
		}
		last = pos
	}
	return nil
}

// assertTraceCount checks the number of events matching type, table and
// source.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d %s events", count, assertion.Event),
			Trace:    trace,
		}
	}
	return nil
}

func matchEvent(event TraceEvent, a Assertion) bool {
	if event.Type != a.Event {
		return false
	}
	if a.Table != "" && event.Table != a.Table {
		return false
	}
	return a.Source == "" || event.Source == a.Source
}

// assertFinalState queries the store for the single row matching Where
// and checks Expect against it (subset match).
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	spec, ok := actx.Schema.Table(assertion.Table)
	if !ok {
		return fmt.Errorf("final_state: unknown table %q", assertion.Table)
	}
	cmd, err := query(spec, assertion.Where)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	sqlText, params, err := cmd.CompileString(actx.Compiler)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	records, err := actx.Store.Materialize(actx.Ctx, spec, sqlText, params)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	if len(records) != 1 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one %s row where %v", assertion.Table, assertion.Where),
			Actual:   fmt.Sprintf("%d rows", len(records)),
		}
	}
	if err := matchRow(records[0].Values, assertion.Expect); err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s row where %v to hold %v", assertion.Table, assertion.Where, assertion.Expect),
			Actual:   err.Error(),
		}
	}
	return nil
}

// assertCacheState looks up the cached row whose primary key is given by
// Where and checks Expect against it, or checks that it is missing.
func assertCacheState(actx *AssertionContext, assertion Assertion) error {
	spec, ok := actx.Schema.Table(assertion.Table)
	if !ok {
		return fmt.Errorf("cache_state: unknown table %q", assertion.Table)
	}

	values := make([]ir.IRValue, len(spec.PrimaryKey))
	for i, col := range spec.PrimaryKey {
		raw, ok := assertion.Where[col]
		if !ok {
			return fmt.Errorf("cache_state: where is missing primary-key column %q", col)
		}
		v, err := ir.FromGo(raw)
		if err != nil {
			return fmt.Errorf("cache_state: column %s: %w", col, err)
		}
		values[i] = v
	}
	key, err := relcache.NewKey(spec.QualifiedName(), values...)
	if err != nil {
		return fmt.Errorf("cache_state: %w", err)
	}

	var (
		row   relcache.Row
		found bool
	)
	if rel, ok := actx.Registry.Lookup(spec.QualifiedName()); ok {
		row, found = rel.Load().Get(key)
	}

	if assertion.Absent {
		if found {
			return &AssertionError{
				Type:     AssertCacheState,
				Expected: fmt.Sprintf("no cached row %s", key),
				Actual:   "row is cached",
			}
		}
		return nil
	}
	if !found {
		return &AssertionError{
			Type:     AssertCacheState,
			Expected: fmt.Sprintf("cached row %s", key),
			Actual:   "not cached",
		}
	}

	record, ok := row.(*ir.Record)
	if !ok {
		return fmt.Errorf("cache_state: cached row %s is %T, not a record", key, row)
	}
	if err := matchRow(record.Values, assertion.Expect); err != nil {
		return &AssertionError{
			Type:     AssertCacheState,
			Expected: fmt.Sprintf("cached row %s to hold %v", key, assertion.Expect),
			Actual:   err.Error(),
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions and collects their failure
// messages. A nil or empty list yields no failures.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(actx, a)
		case AssertCacheState:
			err = assertCacheState(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
