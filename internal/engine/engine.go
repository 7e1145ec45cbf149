package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keyword"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/relcache"
	"github.com/roach88/relq/internal/store"
)

// Source tells where a result's rows came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
)

// Result is the outcome of Select.
type Result struct {
	QueryID string
	Seq     int64
	Source  Source
	Records []*ir.Record
}

// Engine answers commands from relation caches when it can and from the
// store when it must.
//
// A table is answered locally only after Load has materialized all of
// it. Commands the expression tree cannot decide in memory fall back to
// the store, and the rows fetched are written back to the cache.
//
// Thread-safety model:
//   - Select, Load, Exec: safe from any goroutine
//   - Cache reads are lock-free snapshots; writes go through the
//     registry's compare-and-swap Update
type Engine struct {
	store    *store.Store
	registry *relcache.Registry
	compiler *querysql.SQLCompiler
	ids      IDGenerator
	clock    *Clock
	maxRows  int

	mu     sync.Mutex
	loaded map[string]bool
	loads  singleflight.Group
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithRegistry shares an existing registry instead of a private one.
func WithRegistry(r *relcache.Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithIDGenerator sets the query id generator.
//
// Default: UUIDv7Generator
// Use testutil.NewFixedIDGenerator for deterministic logs in tests.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the logical clock results are stamped with.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMaxRows caps the rows one materialization may return.
// Zero, the default, means no limit.
func WithMaxRows(n int) EngineOption {
	return func(e *Engine) {
		e.maxRows = n
	}
}

// New creates an Engine reading from s.
//
// Options can be passed to configure the engine (e.g., WithMaxRows).
func New(s *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		registry: relcache.NewRegistry(),
		compiler: querysql.NewSQLCompiler(querysql.SQLite),
		ids:      UUIDv7Generator{},
		clock:    NewClock(),
		loaded:   make(map[string]bool),
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Registry returns the engine's relation caches.
func (e *Engine) Registry() *relcache.Registry {
	return e.registry
}

// Loaded reports whether table has been fully materialized by Load.
func (e *Engine) Loaded(table *ir.TableSpec) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded[table.QualifiedName()]
}

// Load materializes all of table into its relation cache, replacing the
// cached contents. Later selects on the table may be answered locally.
// Concurrent loads of one table share a single materialization. Returns
// the number of rows loaded.
func (e *Engine) Load(ctx context.Context, table *ir.TableSpec) (int, error) {
	n, err, shared := e.loads.Do(table.QualifiedName(), func() (any, error) {
		return e.load(ctx, table)
	})
	if err != nil {
		return 0, err
	}
	if shared {
		slog.Debug("load shared with a concurrent caller", "table", table.QualifiedName())
	}
	return n.(int), nil
}

func (e *Engine) load(ctx context.Context, table *ir.TableSpec) (int, error) {
	st := e.stamp()

	records, err := e.materializeTable(ctx, st.QueryID, table)
	if err != nil {
		return 0, err
	}

	rel := e.registry.Relation(table)
	_, err = rel.Update(func(*relcache.Cache) (*relcache.Cache, error) {
		c := relcache.Empty(table.Cardinality)
		for _, r := range records {
			next, err := c.PutRow(r)
			if err != nil {
				return nil, err
			}
			c = next
		}
		return c, nil
	})
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", table.QualifiedName(), err)
	}

	e.mu.Lock()
	e.loaded[table.QualifiedName()] = true
	e.mu.Unlock()

	slog.Info("table loaded", st.attrs(
		"table", table.QualifiedName(),
		"rows", len(records),
	)...)
	return len(records), nil
}

// Select runs a SELECT command.
//
// The command is answered from the cache when its table is loaded and
// every node it needs is locally evaluable. Otherwise the compiled SQL
// runs against the store; rows of a full projection are then written
// back to the cache.
func (e *Engine) Select(ctx context.Context, cmd *keyword.Command) (*Result, error) {
	st := e.stamp()

	sel, ok := cmd.Statement().(*queryir.Select)
	if !ok {
		return nil, NewUnsupportedStatementError(st.QueryID, "Select", queryir.Kind(cmd.Statement()))
	}

	records, err := e.selectLocal(sel)
	if err == nil {
		slog.Debug("select answered from cache", st.attrs(
			"table", sel.From.Spec.QualifiedName(),
			"rows", len(records),
		)...)
		return &Result{QueryID: st.QueryID, Seq: st.Seq, Source: SourceCache, Records: records}, nil
	}
	if !queryir.IsNotLocallyEvaluable(err) {
		return nil, fmt.Errorf("select %s: %w", sel.From.Spec.QualifiedName(), err)
	}

	slog.Info("local evaluation fell back to database", st.attrs(
		"table", sel.From.Spec.QualifiedName(),
		"reason", err.Error(),
	)...)

	records, err = e.materialize(ctx, st.QueryID, sel.From.Spec, sel)
	if err != nil {
		return nil, err
	}
	if len(sel.Columns) == 0 {
		if err := e.writeBack(records); err != nil {
			return nil, err
		}
	}
	return &Result{QueryID: st.QueryID, Seq: st.Seq, Source: SourceDatabase, Records: records}, nil
}

// Exec runs an INSERT, UPDATE or DELETE command against the store and
// returns the number of rows affected. A loaded table is refreshed so
// its cache reflects the change.
func (e *Engine) Exec(ctx context.Context, cmd *keyword.Command) (int64, error) {
	st := e.stamp()

	var table *ir.TableSpec
	switch s := cmd.Statement().(type) {
	case *queryir.Insert:
		table = s.Table.Spec
	case *queryir.Update:
		table = s.Table.Spec
	case *queryir.Delete:
		table = s.From.Spec
	default:
		return 0, NewUnsupportedStatementError(st.QueryID, "Exec", queryir.Kind(cmd.Statement()))
	}

	for _, w := range queryir.Validate(cmd.Statement()).Warnings {
		slog.Warn("statement validation warning", st.attrs(
			"table", table.QualifiedName(),
			"warning", w,
		)...)
	}

	sqlText, params, err := cmd.CompileString(e.compiler)
	if err != nil {
		return 0, err
	}
	n, err := e.store.Exec(ctx, sqlText, params...)
	if err != nil {
		return 0, fmt.Errorf("exec %s: %w", table.QualifiedName(), err)
	}

	slog.Info("statement executed", st.attrs(
		"table", table.QualifiedName(),
		"rows_affected", n,
	)...)

	if e.Loaded(table) {
		if err := e.refresh(ctx, st.QueryID, table); err != nil {
			return n, err
		}
	}
	return n, nil
}

// selectLocal answers sel from a loaded cache, or returns an error
// matching queryir.ErrNotLocallyEvaluable.
func (e *Engine) selectLocal(sel *queryir.Select) ([]*ir.Record, error) {
	spec := sel.From.Spec
	if !e.Loaded(spec) {
		return nil, notLocal("relation " + spec.QualifiedName() + " is not loaded")
	}
	if len(sel.Joins) > 0 {
		return nil, notLocal("joins require the database")
	}

	type match struct {
		record *ir.Record
		order  []ir.IRValue
	}
	var (
		matches []match
		evalErr error
	)

	snapshot := e.registry.Relation(spec).Load()
	snapshot.Ascend(func(_ relcache.Key, row relcache.Row) bool {
		record := row.(*ir.Record)
		ev := queryir.NewEvaluation().Bind(sel.From, record)

		if sel.Where != nil {
			v, err := queryir.Evaluate(sel.Where, ev)
			if err != nil {
				evalErr = err
				return false
			}
			if !queryir.Truthy(v) {
				return true
			}
		}

		m := match{record: record}
		for _, o := range sel.OrderBy {
			v, err := queryir.Evaluate(o, ev)
			if err != nil {
				evalErr = err
				return false
			}
			m.order = append(m.order, v)
		}
		if len(sel.Columns) > 0 {
			projected, err := project(sel, record, ev)
			if err != nil {
				evalErr = err
				return false
			}
			m.record = projected
		}
		matches = append(matches, m)
		return true
	})
	if evalErr != nil {
		return nil, evalErr
	}

	if len(sel.OrderBy) > 0 {
		slices.SortStableFunc(matches, func(a, b match) int {
			return queryir.CompareOrdering(sel.OrderBy, a.order, b.order)
		})
	}
	if sel.Limit > 0 && len(matches) > sel.Limit {
		matches = matches[:sel.Limit]
	}

	records := make([]*ir.Record, len(matches))
	for i, m := range matches {
		records[i] = m.record
	}
	return records, nil
}

// project builds the record holding sel's select list for one row.
// Only column references can be projected locally.
func project(sel *queryir.Select, record *ir.Record, ev *queryir.Evaluation) (*ir.Record, error) {
	values := make(ir.IRObject, len(sel.Columns))
	for _, n := range sel.Columns {
		var name string
		switch col := n.(type) {
		case *queryir.Column:
			name = col.Name
		case *queryir.Computed:
			name = col.Name
		default:
			return nil, notLocal("cannot project " + queryir.Kind(n) + " locally")
		}
		v, err := queryir.Evaluate(n, ev)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	return ir.NewRecord(record.Table, values), nil
}

func notLocal(reason string) error {
	return &queryir.OpError{
		Op:      "evaluate",
		Code:    queryir.ErrCodeNotLocallyEvaluable,
		Node:    "Select",
		Message: reason,
	}
}

// materialize compiles stmt and scans its rows as records of table.
func (e *Engine) materialize(ctx context.Context, queryID string, table *ir.TableSpec, stmt queryir.Statement) ([]*ir.Record, error) {
	sqlText, params, err := e.compiler.CompileStatement(stmt)
	if err != nil {
		return nil, err
	}
	records, err := e.store.Materialize(ctx, table, sqlText, params)
	if err != nil {
		return nil, err
	}
	if e.maxRows > 0 && len(records) > e.maxRows {
		return nil, NewRowLimitError(queryID, table.QualifiedName(), len(records), e.maxRows)
	}
	return records, nil
}

func (e *Engine) materializeTable(ctx context.Context, queryID string, table *ir.TableSpec) ([]*ir.Record, error) {
	cmd, err := keyword.SelectFrom(queryir.NewTable(table)).Normalize()
	if err != nil {
		return nil, err
	}
	return e.materialize(ctx, queryID, table, cmd.Statement())
}

// writeBack stores fetched rows in their relation caches through change
// tracking: each replaces whatever the cache held under its key.
func (e *Engine) writeBack(records []*ir.Record) error {
	for _, r := range records {
		rel := e.registry.Relation(r.Table)
		key, err := relcache.KeyOf(r)
		if err != nil {
			return fmt.Errorf("write back %s: %w", r.EntityType(), err)
		}
		old, _ := rel.Load().Get(key)
		if err := e.registry.Replace(old, r); err != nil {
			return fmt.Errorf("write back %s: %w", r.EntityType(), err)
		}
	}
	return nil
}

// refresh re-reads a loaded table and publishes the differences to its
// cache: changed and new rows replace the cached ones, and rows gone
// from the store are retired.
func (e *Engine) refresh(ctx context.Context, queryID string, table *ir.TableSpec) error {
	fresh, err := e.materializeTable(ctx, queryID, table)
	if err != nil {
		return err
	}

	rel := e.registry.Relation(table)
	snapshot := rel.Load()
	seen := make(map[string]bool, len(fresh))
	changed := 0

	for _, r := range fresh {
		key, err := relcache.KeyOf(r)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", table.QualifiedName(), err)
		}
		seen[key.Encoding()] = true

		old, ok := snapshot.Get(key)
		if ok && ir.Equal(old.(*ir.Record).Values, r.Values) {
			continue
		}
		if err := e.registry.Replace(old, r); err != nil {
			return fmt.Errorf("refresh %s: %w", table.QualifiedName(), err)
		}
		changed++
	}

	for _, key := range snapshot.Keys() {
		if seen[key.Encoding()] {
			continue
		}
		old, _ := snapshot.Get(key)
		if err := e.registry.Replace(old, nil); err != nil {
			return fmt.Errorf("refresh %s: %w", table.QualifiedName(), err)
		}
		changed++
	}

	slog.Debug("relation cache refreshed",
		"query_id", queryID,
		"table", table.QualifiedName(),
		"changed", changed,
	)
	return nil
}
