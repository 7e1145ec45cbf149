// Package querysql compiles queryir nodes to parameterized SQL for SQLite,
// PostgreSQL and MySQL.
package querysql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
)

// Dialect selects identifier quoting, placeholder style and LIKE escaping.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case SQLite, Postgres, MySQL:
		return d, nil
	}
	return "", fmt.Errorf("unknown dialect %q (want sqlite, postgres or mysql)", s)
}

// CompileError reports a node the compiler cannot render.
type CompileError struct {
	// Node is the node kind (see queryir.Kind).
	Node string

	// Dialect is the target dialect.
	Dialect Dialect

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	msg := fmt.Sprintf("compile %s for %s: %s", e.Node, e.Dialect, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// IsCompileError returns true if err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// SQLCompiler renders queryir nodes as SQL for one dialect.
//
// CRITICAL: All values are parameterized (never interpolated). Only LIMIT
// counts, which are ints, are written inline.
//
// Thread-safety: stateless apart from its dialect; safe for concurrent
// use. Per-compilation state lives in queryir.Context.
type SQLCompiler struct {
	dialect Dialect
}

var _ queryir.Compiler = (*SQLCompiler)(nil)

// NewSQLCompiler creates a compiler for d.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{dialect: d}
}

// Dialect returns the target dialect.
func (c *SQLCompiler) Dialect() Dialect {
	return c.dialect
}

// CompileStatement converts a statement to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) CompileStatement(stmt queryir.Statement) (string, []any, error) {
	if stmt == nil {
		return "", nil, c.fail(nil, "cannot compile nil statement", nil)
	}
	return queryir.CompileString(c, stmt)
}

// CompileNode implements queryir.Compiler.
func (c *SQLCompiler) CompileNode(ctx *queryir.Context, n queryir.Node) error {
	switch node := n.(type) {
	case *queryir.Table:
		c.writeTable(ctx, node)
		return nil
	case *queryir.Column:
		c.writeColumn(ctx, node)
		return nil
	case *queryir.Literal:
		return c.compileLiteral(ctx, node)
	case *queryir.Computed:
		return c.compileComputed(ctx, node)
	case *queryir.Equals:
		return c.compileEquals(ctx, node)
	case *queryir.And:
		return c.compileAnd(ctx, node)
	case *queryir.LikePredicate:
		return c.compileLike(ctx, node)
	case *queryir.NotPredicate:
		return c.compileNot(ctx, node)
	case *queryir.ExistsPredicate:
		return c.compileExists(ctx, node)
	case *queryir.OrderingSpec:
		return c.compileOrdering(ctx, node)
	case *queryir.Join:
		return c.compileJoin(ctx, node)
	case *queryir.Select:
		return c.compileSelect(ctx, node)
	case *queryir.Delete:
		return c.compileDelete(ctx, node)
	case *queryir.Update:
		return c.compileUpdate(ctx, node)
	case *queryir.Insert:
		return c.compileInsert(ctx, node)
	default:
		return c.fail(n, "unsupported node", nil)
	}
}

func (c *SQLCompiler) fail(n queryir.Node, msg string, err error) *CompileError {
	return &CompileError{Node: queryir.Kind(n), Dialect: c.dialect, Message: msg, Err: err}
}

// quote quotes an identifier, doubling embedded quote characters.
func (c *SQLCompiler) quote(name string) string {
	q := `"`
	if c.dialect == MySQL {
		q = "`"
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}

func (c *SQLCompiler) placeholder(ordinal int) string {
	if c.dialect == Postgres {
		return "$" + strconv.Itoa(ordinal)
	}
	return "?"
}

func (c *SQLCompiler) bind(ctx *queryir.Context, n queryir.Node, v ir.IRValue) error {
	param, err := ir.ToParam(v)
	if err != nil {
		return c.fail(n, "convert value", err)
	}
	ctx.WriteString(c.placeholder(ctx.AddParam(param)))
	return nil
}

// writeTable writes "schema"."name" [AS "alias"].
func (c *SQLCompiler) writeTable(ctx *queryir.Context, t *queryir.Table) {
	if t.Spec.Schema != "" {
		ctx.WriteString(c.quote(t.Spec.Schema) + ".")
	}
	ctx.WriteString(c.quote(t.Spec.Name))
	if t.Alias != nil {
		ctx.WriteString(" AS " + c.quote(t.Alias.Name()))
	}
}

// writeColumn writes "ref"."column"; ref is the alias when aliased.
func (c *SQLCompiler) writeColumn(ctx *queryir.Context, col *queryir.Column) {
	if col.Table.Alias == nil && col.Table.Spec.Schema != "" {
		ctx.WriteString(c.quote(col.Table.Spec.Schema) + ".")
	}
	ctx.WriteString(c.quote(col.Table.Ref()) + "." + c.quote(col.Name))
}

func (c *SQLCompiler) compileLiteral(ctx *queryir.Context, l *queryir.Literal) error {
	return c.bind(ctx, l, l.Value)
}

// compileComputed inlines the generated column's expression.
// A column whose expression reaches itself has no SQL form.
func (c *SQLCompiler) compileComputed(ctx *queryir.Context, comp *queryir.Computed) error {
	expr := comp.Expr()
	if expr == nil {
		return c.fail(comp, fmt.Sprintf("computed column %q is undefined", comp.Name), nil)
	}
	if !ctx.Enter(comp) {
		return c.fail(comp, fmt.Sprintf("computed column %q references itself", comp.Name), nil)
	}
	defer ctx.Leave(comp)

	ctx.WriteString("(")
	if err := queryir.Compile(c, ctx, expr, true); err != nil {
		return err
	}
	ctx.WriteString(")")
	return nil
}

func (c *SQLCompiler) compileEquals(ctx *queryir.Context, eq *queryir.Equals) error {
	if err := queryir.Compile(c, ctx, eq.Left, true); err != nil {
		return err
	}
	ctx.WriteString(" = ")
	return queryir.Compile(c, ctx, eq.Right, true)
}

// compileAnd compiles an And predicate to a parenthesized conjunction.
func (c *SQLCompiler) compileAnd(ctx *queryir.Context, and *queryir.And) error {
	if len(and.Predicates) == 0 {
		ctx.WriteString("1 = 1") // Always true (vacuous truth)
		return nil
	}
	ctx.WriteString("(")
	for i, p := range and.Predicates {
		if i > 0 {
			ctx.WriteString(" AND ")
		}
		if err := queryir.Compile(c, ctx, p, true); err != nil {
			return err
		}
	}
	ctx.WriteString(")")
	return nil
}

// compileLike writes operand [NOT] LIKE <pattern>.
//
// % and _ stay wildcards. PostgreSQL and MySQL treat backslash as the
// default LIKE escape, so literal backslashes are doubled there to match
// the pattern's plain meaning.
func (c *SQLCompiler) compileLike(ctx *queryir.Context, l *queryir.LikePredicate) error {
	if err := queryir.Compile(c, ctx, l.Operand, true); err != nil {
		return err
	}
	if l.Negated {
		ctx.WriteString(" NOT LIKE ")
	} else {
		ctx.WriteString(" LIKE ")
	}

	pattern := l.Pattern
	if c.dialect != SQLite {
		pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	}
	return c.bind(ctx, l, ir.IRString(pattern))
}

// compileNot writes NOT (column) or NOT EXISTS (subquery).
func (c *SQLCompiler) compileNot(ctx *queryir.Context, not *queryir.NotPredicate) error {
	switch op := not.Operand.(type) {
	case *queryir.Select:
		ctx.WriteString("NOT EXISTS ")
		return queryir.Compile(c, ctx, op, true)
	case *queryir.Column, *queryir.Computed, queryir.Predicate:
		ctx.WriteString("NOT (")
		if err := queryir.Compile(c, ctx, op, true); err != nil {
			return err
		}
		ctx.WriteString(")")
		return nil
	default:
		return c.fail(not, "NOT operand must be a column, predicate or subquery, got "+queryir.Kind(not.Operand), nil)
	}
}

func (c *SQLCompiler) compileExists(ctx *queryir.Context, ex *queryir.ExistsPredicate) error {
	if ex.Subquery == nil {
		return c.fail(ex, "EXISTS without subquery", nil)
	}
	if ex.Negated {
		ctx.WriteString("NOT ")
	}
	ctx.WriteString("EXISTS ")
	return queryir.Compile(c, ctx, ex.Subquery, true)
}

// compileOrdering writes expr ASC|DESC. NULLs sort first ascending and
// last descending in every dialect, matching local evaluation;
// PostgreSQL needs that spelled out.
func (c *SQLCompiler) compileOrdering(ctx *queryir.Context, o *queryir.OrderingSpec) error {
	if err := queryir.Compile(c, ctx, o.Expr, true); err != nil {
		return err
	}
	switch {
	case o.Descending && c.dialect == Postgres:
		ctx.WriteString(" DESC NULLS LAST")
	case o.Descending:
		ctx.WriteString(" DESC")
	case c.dialect == Postgres:
		ctx.WriteString(" ASC NULLS FIRST")
	default:
		ctx.WriteString(" ASC")
	}
	return nil
}

func (c *SQLCompiler) compileJoin(ctx *queryir.Context, j *queryir.Join) error {
	if j.Table == nil {
		return c.fail(j, "JOIN without table", nil)
	}
	if j.On == nil {
		return c.fail(j, "JOIN without ON", nil)
	}
	switch j.Kind {
	case queryir.LeftJoin:
		ctx.WriteString("LEFT JOIN ")
	case queryir.InnerJoin, "":
		ctx.WriteString("INNER JOIN ")
	default:
		return c.fail(j, fmt.Sprintf("unknown join kind %q", j.Kind), nil)
	}
	c.writeTable(ctx, j.Table)
	ctx.WriteString(" ON ")
	return queryir.Compile(c, ctx, j.On, true)
}

// compileSelect writes a SELECT. In expression position (subqueries) the
// statement is parenthesized.
func (c *SQLCompiler) compileSelect(ctx *queryir.Context, s *queryir.Select) error {
	if s.From == nil {
		return c.fail(s, "SELECT without FROM", nil)
	}
	if s.Limit < 0 {
		return c.fail(s, fmt.Sprintf("negative LIMIT %d", s.Limit), nil)
	}

	nested := ctx.Expression
	if nested {
		ctx.WriteString("(")
	}

	ctx.WriteString("SELECT ")
	if err := c.compileSelectList(ctx, s); err != nil {
		return err
	}
	ctx.WriteString(" FROM ")
	c.writeTable(ctx, s.From)

	for _, j := range s.Joins {
		ctx.WriteString(" ")
		if err := queryir.Compile(c, ctx, j, true); err != nil {
			return err
		}
	}
	if err := c.compileWhere(ctx, s.Where); err != nil {
		return err
	}
	if len(s.OrderBy) > 0 {
		ctx.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				ctx.WriteString(", ")
			}
			if err := queryir.Compile(c, ctx, o, true); err != nil {
				return err
			}
		}
	}
	if s.Limit > 0 {
		ctx.WriteString(" LIMIT " + strconv.Itoa(s.Limit))
	}

	if nested {
		ctx.WriteString(")")
	}
	return nil
}

// compileSelectList writes the projected columns. An empty list expands
// to every stored column of FROM in declaration order, so that result columns
// are always known. Computed columns are labelled with their name.
func (c *SQLCompiler) compileSelectList(ctx *queryir.Context, s *queryir.Select) error {
	if len(s.Columns) == 0 {
		for i, name := range s.From.Spec.StoredColumnNames() {
			if i > 0 {
				ctx.WriteString(", ")
			}
			c.writeColumn(ctx, s.From.Col(name))
		}
		return nil
	}
	for i, col := range s.Columns {
		if i > 0 {
			ctx.WriteString(", ")
		}
		if err := queryir.Compile(c, ctx, col, true); err != nil {
			return err
		}
		if comp, ok := col.(*queryir.Computed); ok {
			ctx.WriteString(" AS " + c.quote(comp.Name))
		}
	}
	return nil
}

func (c *SQLCompiler) compileWhere(ctx *queryir.Context, p queryir.Predicate) error {
	if p == nil {
		return nil
	}
	ctx.WriteString(" WHERE ")
	return queryir.Compile(c, ctx, p, true)
}

func (c *SQLCompiler) compileDelete(ctx *queryir.Context, d *queryir.Delete) error {
	if d.From == nil {
		return c.fail(d, "DELETE without table", nil)
	}
	ctx.WriteString("DELETE FROM ")
	c.writeTable(ctx, d.From)
	return c.compileWhere(ctx, d.Where)
}

func (c *SQLCompiler) compileUpdate(ctx *queryir.Context, u *queryir.Update) error {
	if u.Table == nil {
		return c.fail(u, "UPDATE without table", nil)
	}
	if len(u.Set) == 0 {
		return c.fail(u, "UPDATE without SET", nil)
	}
	ctx.WriteString("UPDATE ")
	c.writeTable(ctx, u.Table)
	ctx.WriteString(" SET ")
	for i, a := range u.Set {
		if i > 0 {
			ctx.WriteString(", ")
		}
		ctx.WriteString(c.quote(a.Column) + " = ")
		if err := queryir.Compile(c, ctx, a.Value, true); err != nil {
			return err
		}
	}
	return c.compileWhere(ctx, u.Where)
}

func (c *SQLCompiler) compileInsert(ctx *queryir.Context, ins *queryir.Insert) error {
	if ins.Table == nil {
		return c.fail(ins, "INSERT without table", nil)
	}
	if len(ins.Rows) == 0 {
		return c.fail(ins, "INSERT without rows", nil)
	}
	ctx.WriteString("INSERT INTO ")
	c.writeTable(ctx, ins.Table)
	ctx.WriteString(" (")
	for i, col := range ins.Columns {
		if i > 0 {
			ctx.WriteString(", ")
		}
		ctx.WriteString(c.quote(col))
	}
	ctx.WriteString(") VALUES ")
	for r, row := range ins.Rows {
		if len(row) != len(ins.Columns) {
			return c.fail(ins, fmt.Sprintf("row %d has %d values for %d columns", r, len(row), len(ins.Columns)), nil)
		}
		if r > 0 {
			ctx.WriteString(", ")
		}
		ctx.WriteString("(")
		for i, v := range row {
			if i > 0 {
				ctx.WriteString(", ")
			}
			if err := queryir.Compile(c, ctx, v, true); err != nil {
				return err
			}
		}
		ctx.WriteString(")")
	}
	return nil
}
