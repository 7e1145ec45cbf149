package queryir

import (
	"github.com/roach88/relq/internal/ir"
)

// Evaluable is implemented by node kinds that can compute their value from
// in-memory rows. Compile-only kinds deliberately do not implement it.
type Evaluable interface {
	Node
	Evaluate(ev *Evaluation) (ir.IRValue, error)
}

var (
	_ Evaluable = (*Column)(nil)
	_ Evaluable = (*Literal)(nil)
	_ Evaluable = (*Computed)(nil)
	_ Evaluable = (*Equals)(nil)
	_ Evaluable = (*And)(nil)
	_ Evaluable = (*LikePredicate)(nil)
	_ Evaluable = (*OrderingSpec)(nil)
)

// Evaluation is the state threaded through one evaluation: the visited set
// and the rows bound to each Table.
//
// Thread-safety: NOT safe for concurrent use. Create one per evaluation.
type Evaluation struct {
	visited map[Node]struct{}
	rows    map[*Table]Row
}

// NewEvaluation creates an empty evaluation.
func NewEvaluation() *Evaluation {
	return &Evaluation{
		visited: make(map[Node]struct{}),
		rows:    make(map[*Table]Row),
	}
}

// Bind makes row the current row of t and returns ev.
func (ev *Evaluation) Bind(t *Table, row Row) *Evaluation {
	ev.rows[t] = row
	return ev
}

// Visited reports whether n is on the current evaluation path.
func (ev *Evaluation) Visited(n Node) bool {
	_, ok := ev.visited[n]
	return ok
}

// IsEvaluable reports whether n's kind supports local evaluation.
func IsEvaluable(n Node) bool {
	_, ok := n.(Evaluable)
	return ok
}

// Evaluate computes n's value from in-memory rows.
//
// Compile-only kinds fail with NOT_LOCALLY_EVALUABLE and the abstract
// predicate with ABSTRACT_NODE, whatever the input. For evaluable kinds,
// a node already on the current path evaluates to NULL instead of
// recursing. A nil ev starts a fresh evaluation.
func Evaluate(n Node, ev *Evaluation) (ir.IRValue, error) {
	if n == nil {
		return ir.IRNull{}, nil
	}
	if _, ok := n.(*BasePredicate); ok {
		return nil, abstractNode("evaluate")
	}
	e, ok := n.(Evaluable)
	if !ok {
		return nil, notLocallyEvaluable(n, "requires the database")
	}

	if ev == nil {
		ev = NewEvaluation()
	}
	if ev.Visited(n) {
		return ir.IRNull{}, nil
	}
	ev.visited[n] = struct{}{}
	defer delete(ev.visited, n)

	return e.Evaluate(ev)
}

// Truthy reports whether an evaluated predicate value selects a row:
// anything but NULL and false.
func Truthy(v ir.IRValue) bool {
	if ir.IsNull(v) {
		return false
	}
	if b, ok := v.(ir.IRBool); ok {
		return bool(b)
	}
	return true
}

// Evaluate returns the value of the column in its pinned or bound row.
// A column missing from the row is NULL.
func (c *Column) Evaluate(ev *Evaluation) (ir.IRValue, error) {
	row := c.Row
	if row == nil && ev != nil {
		row = ev.rows[c.Table]
	}
	if row == nil {
		return nil, &OpError{
			Op:      "evaluate",
			Code:    ErrCodeUnboundRow,
			Node:    Kind(c),
			Message: "no row bound for " + c.Table.Ref() + "." + c.Name,
		}
	}
	v, _ := row.Lookup(c.Name)
	if v == nil {
		return ir.IRNull{}, nil
	}
	return v, nil
}

// Evaluate returns the literal value.
func (l *Literal) Evaluate(*Evaluation) (ir.IRValue, error) {
	return l.Value, nil
}

// Evaluate evaluates the column's expression. Undefined columns are NULL.
func (c *Computed) Evaluate(ev *Evaluation) (ir.IRValue, error) {
	return Evaluate(c.Expr(), ev)
}

// Evaluate compares both sides. NULL on either side yields NULL.
func (e *Equals) Evaluate(ev *Evaluation) (ir.IRValue, error) {
	l, err := Evaluate(e.Left, ev)
	if err != nil {
		return nil, err
	}
	r, err := Evaluate(e.Right, ev)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(l) || ir.IsNull(r) {
		return ir.IRNull{}, nil
	}
	return ir.IRBool(ir.Equal(l, r)), nil
}

// Evaluate applies three-valued AND: any false operand gives false, else
// any NULL operand gives NULL, else true. Every operand is evaluated so
// that a compile-only operand always surfaces.
func (a *And) Evaluate(ev *Evaluation) (ir.IRValue, error) {
	sawNull := false
	sawFalse := false
	for _, p := range a.Predicates {
		v, err := Evaluate(p, ev)
		if err != nil {
			return nil, err
		}
		switch {
		case ir.IsNull(v):
			sawNull = true
		case !Truthy(v):
			sawFalse = true
		}
	}
	switch {
	case sawFalse:
		return ir.IRBool(false), nil
	case sawNull:
		return ir.IRNull{}, nil
	}
	return ir.IRBool(true), nil
}

// Evaluate matches the operand's current value against the pattern.
//
// A NULL operand yields NULL without matching. Otherwise the operand value
// is returned when the match result equals the polarity (match for LIKE,
// no match for NOT LIKE), and NULL when it does not.
func (l *LikePredicate) Evaluate(ev *Evaluation) (ir.IRValue, error) {
	v, err := Evaluate(l.Operand, ev)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(v) {
		return ir.IRNull{}, nil
	}

	text, ok := ir.Text(v)
	if !ok {
		return nil, &OpError{
			Op:      "evaluate",
			Code:    ErrCodeTypeMismatch,
			Node:    Kind(l),
			Message: "LIKE operand is not a scalar",
		}
	}

	matched := l.re.MatchString(text)
	if matched != l.Negated {
		return v, nil
	}
	return ir.IRNull{}, nil
}

// Evaluate returns the ordering expression's current value.
func (o *OrderingSpec) Evaluate(ev *Evaluation) (ir.IRValue, error) {
	return Evaluate(o.Expr, ev)
}

// CompareOrdering compares two evaluated rows under specs, for in-memory
// sorting. NULLs sort first ascending, last descending.
func CompareOrdering(specs []*OrderingSpec, a, b []ir.IRValue) int {
	for i, s := range specs {
		c := ir.Compare(a[i], b[i])
		if c == 0 {
			continue
		}
		if s.Descending {
			return -c
		}
		return c
	}
	return 0
}
