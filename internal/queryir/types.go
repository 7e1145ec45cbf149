package queryir

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/relq/internal/alias"
	"github.com/roach88/relq/internal/ir"
)

// Node is any element of the expression tree.
//
// This is a sealed interface - only pointers to types in this package
// implement it.
type Node interface {
	node() // Marker method - seals interface to this package
}

// Predicate is a node usable as a WHERE or ON condition.
type Predicate interface {
	Node
	predicate()
}

// Statement is a complete SQL statement.
type Statement interface {
	Node
	statement()
}

// Row is a materialized row a Column reads its value from.
// *ir.Record implements Row.
type Row interface {
	Lookup(column string) (ir.IRValue, bool)
}

// Table is a statement source: a table, optionally under an alias.
//
// Two references to the same table in one statement (self-join,
// correlated subquery) must use distinct aliases.
type Table struct {
	Spec  *ir.TableSpec
	Alias *alias.Alias

	once     sync.Once
	computed map[string]*Computed
}

// NewTable references spec by its own name.
func NewTable(spec *ir.TableSpec) *Table {
	return &Table{Spec: spec}
}

// NewAliasedTable references spec under the next alias of scope.
func NewAliasedTable(spec *ir.TableSpec, scope *alias.Scope) *Table {
	a := scope.Next(spec)
	return &Table{Spec: spec, Alias: &a}
}

// Ref returns the name columns are qualified with: the alias name when
// aliased, the table name otherwise.
func (t *Table) Ref() string {
	if t.Alias != nil {
		return t.Alias.Name()
	}
	return t.Spec.Name
}

// Col returns a column reference on t.
func (t *Table) Col(name string) *Column {
	return &Column{Table: t, Name: name}
}

// Field returns a reference to the named column: a Computed node for a
// generated column, a Column otherwise.
//
// The Computed nodes of one Table are built once and shared, so that
// generated columns referencing each other resolve to the same nodes.
// A reference chain that loops back on itself is not rejected here;
// evaluation yields NULL and SQL compilation fails.
func (t *Table) Field(name string) Node {
	t.once.Do(t.buildComputed)
	if c, ok := t.computed[name]; ok {
		return c
	}
	return t.Col(name)
}

func (t *Table) buildComputed() {
	t.computed = make(map[string]*Computed)
	for _, col := range t.Spec.Columns {
		if col.Generated != "" {
			t.computed[col.Name] = NewComputed(col.Name)
		}
	}
	for _, col := range t.Spec.Columns {
		if col.Generated == "" {
			continue
		}
		var expr Node = t.Col(col.Generated)
		if src, ok := t.computed[col.Generated]; ok {
			expr = src
		}
		t.computed[col.Name].Define(expr)
	}
}

func (*Table) node() {}

// Column references a column of a Table.
//
// Row, when set, pins the column to one materialized row. Otherwise the
// row is taken from the Evaluation binding for Table.
type Column struct {
	Table *Table
	Name  string
	Row   Row
}

// Bind returns a copy of c pinned to row.
func (c *Column) Bind(row Row) *Column {
	return &Column{Table: c.Table, Name: c.Name, Row: row}
}

func (*Column) node() {}

// Literal is a constant value. Compilers bind it as a parameter.
type Literal struct {
	Value ir.IRValue
}

// Lit creates a Literal.
func Lit(v ir.IRValue) *Literal {
	if v == nil {
		v = ir.IRNull{}
	}
	return &Literal{Value: v}
}

func (*Literal) node() {}

// Computed is a generated column: a named expression that may reference
// other columns, including other Computed columns.
//
// The expression is set once with Define, after construction, so that
// mutually referencing columns can be built.
type Computed struct {
	Name string
	expr atomic.Pointer[Node]
}

// NewComputed creates an undefined generated column.
func NewComputed(name string) *Computed {
	return &Computed{Name: name}
}

// Define sets the expression. Panics if called twice.
func (c *Computed) Define(expr Node) *Computed {
	if !c.expr.CompareAndSwap(nil, &expr) {
		panic(fmt.Sprintf("queryir: computed column %q defined twice", c.Name))
	}
	return c
}

// Expr returns the expression, or nil while undefined.
func (c *Computed) Expr() Node {
	if p := c.expr.Load(); p != nil {
		return *p
	}
	return nil
}

func (*Computed) node() {}

// Equals is <left> = <right>.
type Equals struct {
	Left  Node
	Right Node
}

// Eq creates an Equals predicate.
func Eq(left, right Node) *Equals {
	return &Equals{Left: left, Right: right}
}

func (*Equals) node()      {}
func (*Equals) predicate() {}

// And is a conjunction. An empty And is true.
type And struct {
	Predicates []Predicate
}

// All creates an And predicate.
func All(preds ...Predicate) *And {
	return &And{Predicates: preds}
}

func (*And) node()      {}
func (*And) predicate() {}

// BasePredicate is the abstract predicate kind. It exists so that code
// handed an unspecialized predicate fails loudly: compiling or evaluating
// it is rejected with ABSTRACT_NODE.
type BasePredicate struct{}

func (*BasePredicate) node()      {}
func (*BasePredicate) predicate() {}

// LikePredicate is <operand> [NOT] LIKE <pattern>.
type LikePredicate struct {
	Operand Node
	Pattern string
	Negated bool

	re *regexp.Regexp
}

// Like creates a positive LIKE predicate.
func Like(operand Node, pattern string) *LikePredicate {
	return newLike(operand, pattern, false)
}

// NotLike creates a negated LIKE predicate.
func NotLike(operand Node, pattern string) *LikePredicate {
	return newLike(operand, pattern, true)
}

func newLike(operand Node, pattern string, negated bool) *LikePredicate {
	return &LikePredicate{
		Operand: operand,
		Pattern: pattern,
		Negated: negated,
		re:      likeRegexp(pattern),
	}
}

// likeRegexp translates a LIKE pattern to an anchored regular expression:
// % becomes .*, _ becomes ., every other character matches literally.
// Matching is case-sensitive and byte-exact: no Unicode normalization.
func likeRegexp(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString(`(?s)^`)
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(`.*`)
		case '_':
			sb.WriteString(`.`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString(`$`)
	return regexp.MustCompile(sb.String())
}

func (*LikePredicate) node()      {}
func (*LikePredicate) predicate() {}

// NotPredicate is NOT (<column>) or NOT EXISTS (<subquery>).
// It is compile-only.
type NotPredicate struct {
	Operand Node // *Column or *Select
}

// Not creates a NotPredicate.
func Not(operand Node) *NotPredicate {
	return &NotPredicate{Operand: operand}
}

func (*NotPredicate) node()      {}
func (*NotPredicate) predicate() {}

// ExistsPredicate is [NOT] EXISTS (<subquery>). It is compile-only.
type ExistsPredicate struct {
	Subquery *Select
	Negated  bool
}

// Exists creates an EXISTS predicate.
func Exists(sub *Select) *ExistsPredicate {
	return &ExistsPredicate{Subquery: sub}
}

// NotExists creates a NOT EXISTS predicate.
func NotExists(sub *Select) *ExistsPredicate {
	return &ExistsPredicate{Subquery: sub, Negated: true}
}

func (*ExistsPredicate) node()      {}
func (*ExistsPredicate) predicate() {}

// OrderingSpec is one ORDER BY term.
type OrderingSpec struct {
	Expr       Node
	Descending bool
}

// Asc creates an ascending ordering.
func Asc(expr Node) *OrderingSpec {
	return &OrderingSpec{Expr: expr}
}

// Desc creates a descending ordering.
func Desc(expr Node) *OrderingSpec {
	return &OrderingSpec{Expr: expr, Descending: true}
}

func (*OrderingSpec) node() {}

// JoinKind is the join flavour.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER"
	LeftJoin  JoinKind = "LEFT"
)

// Join is one JOIN clause of a Select.
type Join struct {
	Kind  JoinKind
	Table *Table
	On    Predicate
}

func (*Join) node() {}

// Select is SELECT <columns> FROM <from> [JOIN ...] [WHERE] [ORDER BY] [LIMIT].
// Empty Columns selects every column of From in declaration order.
// Limit 0 means no limit.
type Select struct {
	Columns []Node
	From    *Table
	Joins   []*Join
	Where   Predicate
	OrderBy []*OrderingSpec
	Limit   int
}

func (*Select) node()      {}
func (*Select) statement() {}

// Delete is DELETE FROM <from> [WHERE].
type Delete struct {
	From  *Table
	Where Predicate
}

func (*Delete) node()      {}
func (*Delete) statement() {}

// Assignment is one SET term of an Update.
type Assignment struct {
	Column string
	Value  Node
}

// Update is UPDATE <table> SET ... [WHERE].
type Update struct {
	Table *Table
	Set   []Assignment
	Where Predicate
}

func (*Update) node()      {}
func (*Update) statement() {}

// Insert is INSERT INTO <table> (<columns>) VALUES (...), (...).
type Insert struct {
	Table   *Table
	Columns []string
	Rows    [][]Node
}

func (*Insert) node()      {}
func (*Insert) statement() {}

// Kind returns a short, stable name for a node's kind, used in errors.
func Kind(n Node) string {
	switch n.(type) {
	case *Table:
		return "Table"
	case *Column:
		return "Column"
	case *Literal:
		return "Literal"
	case *Computed:
		return "Computed"
	case *Equals:
		return "Equals"
	case *And:
		return "And"
	case *BasePredicate:
		return "Predicate"
	case *LikePredicate:
		return "LikePredicate"
	case *NotPredicate:
		return "NotPredicate"
	case *ExistsPredicate:
		return "ExistsPredicate"
	case *OrderingSpec:
		return "OrderingSpec"
	case *Join:
		return "Join"
	case *Select:
		return "Select"
	case *Delete:
		return "Delete"
	case *Update:
		return "Update"
	case *Insert:
		return "Insert"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", n)
	}
}
