package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/engine"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keyword"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/stmtdoc"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a real engine with a fixed query id and a
// logical clock starting at zero.
type Harness struct {
	store    *store.Store
	schema   *compiler.Schema
	engine   *engine.Engine
	clock    *engine.Clock
	compiler *querysql.SQLCompiler
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load the CUE schema and create its tables
// 2. Write seed rows
// 3. Load the listed tables into relation caches
// 4. Run steps, checking each expect clause
// 5. Evaluate assertions against the trace, store and caches
//
// An error is returned only when the scenario cannot be set up. Failing
// steps and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	schema, errs := compiler.LoadSchema(scenario.Schema, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema: %w", errs[0])
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	for _, t := range schema.Tables {
		if err := st.EnsureTable(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to create table %s: %w", t.QualifiedName(), err)
		}
	}

	clock := engine.NewClock()
	h := &Harness{
		store:  st,
		schema: schema,
		engine: engine.New(st,
			engine.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.QueryID)),
			engine.WithClock(clock),
		),
		clock:    clock,
		compiler: querysql.NewSQLCompiler(querysql.SQLite),
	}

	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	result := NewResult()
	for _, name := range scenario.Load {
		if err := h.load(ctx, "", name, result); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
	}

	for i, step := range scenario.Steps {
		h.runStep(ctx, i, step, result)
	}

	actx := &AssertionContext{
		Store:    st,
		Schema:   schema,
		Registry: h.engine.Registry(),
		Compiler: h.compiler,
		Ctx:      ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// seed writes seed rows straight to the store.
func (h *Harness) seed(ctx context.Context, seeds []SeedTable) error {
	for _, s := range seeds {
		spec, ok := h.schema.Table(s.Table)
		if !ok {
			return fmt.Errorf("unknown table %q", s.Table)
		}
		records := make([]*ir.Record, 0, len(s.Rows))
		for i, row := range s.Rows {
			values, err := toIRObject(row)
			if err != nil {
				return fmt.Errorf("%s row %d: %w", s.Table, i, err)
			}
			records = append(records, ir.NewRecord(spec, values))
		}
		if err := h.store.Put(ctx, records...); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) load(ctx context.Context, step, name string, result *Result) error {
	spec, ok := h.schema.Table(name)
	if !ok {
		return fmt.Errorf("unknown table %q", name)
	}
	n, err := h.engine.Load(ctx, spec)
	ev := TraceEvent{
		Seq:          h.clock.Current(),
		Step:         step,
		Type:         EventLoad,
		Table:        name,
		RowsAffected: int64(n),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	result.AddTrace(ev)
	return err
}

// runStep executes one step and records its trace event. Failures are
// added to result unless the step expects them.
func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) {
	label := step.Name
	if label == "" {
		label = fmt.Sprintf("steps[%d]", index)
	}

	if step.Load != "" {
		err := h.load(ctx, step.Name, step.Load, result)
		h.checkError(label, err, step.Expect, result)
		return
	}

	cmd, err := stmtdoc.Build(step.Statement, h.schema)
	if err != nil {
		h.checkError(label, err, step.Expect, result)
		return
	}

	ev := TraceEvent{
		Step:  step.Name,
		Table: statementTable(cmd.Statement()),
	}
	ev.SQL, ev.Params, err = cmd.CompileString(h.compiler)
	if err != nil {
		h.checkError(label, err, step.Expect, result)
		return
	}

	var records []*ir.Record
	if step.Statement.Kind() == stmtdoc.KindSelect {
		ev.Type = EventSelect
		var res *engine.Result
		res, err = h.engine.Select(ctx, cmd)
		if err == nil {
			ev.Source = string(res.Source)
			records = res.Records
			ev.Rows = rowValues(records)
		}
	} else {
		ev.Type = EventExec
		ev.RowsAffected, err = h.engine.Exec(ctx, cmd)
	}
	ev.Seq = h.clock.Current()
	if err != nil {
		ev.Error = err.Error()
	}
	result.AddTrace(ev)

	if !h.checkError(label, err, step.Expect, result) || err != nil {
		return
	}
	if step.Expect != nil {
		for _, msg := range checkExpect(label, step.Expect, ev, records) {
			result.AddError(msg)
		}
	}
}

// checkError reconciles err with the step's expected error. It reports
// whether the step outcome matched so far.
func (h *Harness) checkError(label string, err error, expect *ExpectClause, result *Result) bool {
	want := ""
	if expect != nil {
		want = expect.Error
	}
	switch {
	case err == nil && want == "":
		return true
	case err == nil:
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got success", label, want))
	case want == "":
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, err))
	case !strings.Contains(err.Error(), want):
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got %v", label, want, err))
	default:
		return true
	}
	return false
}

func checkExpect(label string, e *ExpectClause, ev TraceEvent, records []*ir.Record) []string {
	var errs []string
	if e.Source != "" && e.Source != ev.Source {
		errs = append(errs, fmt.Sprintf("%s: expected source %s, got %s", label, e.Source, ev.Source))
	}
	if e.Count != nil && *e.Count != len(records) {
		errs = append(errs, fmt.Sprintf("%s: expected %d rows, got %d", label, *e.Count, len(records)))
	}
	if e.RowsAffected != nil && *e.RowsAffected != ev.RowsAffected {
		errs = append(errs, fmt.Sprintf("%s: expected %d rows affected, got %d", label, *e.RowsAffected, ev.RowsAffected))
	}
	if e.Rows == nil {
		return errs
	}
	if len(e.Rows) != len(records) {
		return append(errs, fmt.Sprintf("%s: expected rows %v, got %d rows", label, e.Rows, len(records)))
	}
	for i, want := range e.Rows {
		if err := matchRow(records[i].Values, want); err != nil {
			errs = append(errs, fmt.Sprintf("%s: row %d: %v", label, i, err))
		}
	}
	return errs
}

// matchRow checks that actual holds every column of expected.
func matchRow(actual ir.IRObject, expected map[string]any) error {
	for _, col := range slices.Sorted(maps.Keys(expected)) {
		want, err := ir.FromGo(expected[col])
		if err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
		got, ok := actual[col]
		if !ok {
			return fmt.Errorf("column %s missing", col)
		}
		if got == nil {
			got = ir.IRNull{}
		}
		if !ir.Equal(got, want) {
			return fmt.Errorf("column %s: expected %s, got %s", col, formatValue(want), formatValue(got))
		}
	}
	return nil
}

func formatValue(v ir.IRValue) string {
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func rowValues(records []*ir.Record) []ir.IRObject {
	rows := make([]ir.IRObject, len(records))
	for i, r := range records {
		rows[i] = r.Values
	}
	return rows
}

func statementTable(stmt queryir.Statement) string {
	switch s := stmt.(type) {
	case *queryir.Select:
		return s.From.Spec.QualifiedName()
	case *queryir.Insert:
		return s.Table.Spec.QualifiedName()
	case *queryir.Update:
		return s.Table.Spec.QualifiedName()
	case *queryir.Delete:
		return s.From.Spec.QualifiedName()
	}
	return ""
}

func toIRObject(m map[string]any) (ir.IRObject, error) {
	obj := make(ir.IRObject, len(m))
	for k, v := range m {
		irv, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		obj[k] = irv
	}
	return obj, nil
}

// query builds "SELECT * FROM table WHERE col = v AND ..." for the
// final_state assertion.
func query(spec *ir.TableSpec, where map[string]any) (*keyword.Command, error) {
	t := queryir.NewTable(spec)
	kw := keyword.SelectFrom(t)
	if len(where) == 0 {
		return kw.Normalize()
	}
	preds := make([]queryir.Predicate, 0, len(where))
	for _, col := range slices.Sorted(maps.Keys(where)) {
		if _, ok := spec.Column(col); !ok {
			return nil, fmt.Errorf("table %s has no column %q", spec.QualifiedName(), col)
		}
		v, err := ir.FromGo(where[col])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		preds = append(preds, queryir.Eq(t.Field(col), queryir.Lit(v)))
	}
	return kw.Where(queryir.All(preds...)).Normalize()
}
