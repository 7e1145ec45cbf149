package queryir

import (
	"fmt"
)

// ValidationResult contains the structural analysis of a statement.
//
// Warnings do not prevent compilation; they flag statements that are
// almost certainly mistakes (an unconditional DELETE, a column that names
// a table outside the statement).
type ValidationResult struct {
	// Valid is true when no warnings were produced.
	Valid bool

	// Warnings lists problems found, in traversal order.
	Warnings []string

	// LocallyEvaluable is true when the statement's WHERE (and ORDER BY)
	// contain only evaluable nodes.
	LocallyEvaluable bool
}

// Validate checks a statement for structural problems.
//
// Rules:
//  1. DELETE and UPDATE without WHERE affect every row
//  2. The abstract predicate kind cannot appear anywhere
//  3. Columns must reference a table in scope (FROM, JOIN, or an
//     enclosing statement for correlated subqueries)
//  4. Columns must exist in their table's spec
//  5. INSERT rows must match the column list width
//
// Validate is a pure function with no side effects.
func Validate(stmt Statement) ValidationResult {
	v := &validator{
		warnings:  []string{},
		evaluable: true,
	}
	v.validateStatement(stmt, nil)

	return ValidationResult{
		Valid:            len(v.warnings) == 0,
		Warnings:         v.warnings,
		LocallyEvaluable: v.evaluable,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings  []string
	evaluable bool
}

// addWarning appends a warning message.
func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// scope is the set of tables columns may reference.
type scope map[*Table]bool

func (s scope) with(tables ...*Table) scope {
	out := make(scope, len(s)+len(tables))
	for t := range s {
		out[t] = true
	}
	for _, t := range tables {
		if t != nil {
			out[t] = true
		}
	}
	return out
}

// validateStatement recursively validates a statement node.
func (v *validator) validateStatement(stmt Statement, outer scope) {
	if stmt == nil {
		v.addWarning("nil statement")
		return
	}

	switch s := stmt.(type) {
	case *Select:
		v.validateSelect(s, outer)
	case *Delete:
		if s.From == nil {
			v.addWarning("DELETE without table")
			return
		}
		if s.Where == nil {
			v.addWarning("DELETE FROM %s has no WHERE and affects every row", s.From.Spec.Name)
		}
		v.validateCondition(s.Where, outer.with(s.From))
	case *Update:
		if s.Table == nil {
			v.addWarning("UPDATE without table")
			return
		}
		if len(s.Set) == 0 {
			v.addWarning("UPDATE %s has no SET terms", s.Table.Spec.Name)
		}
		in := outer.with(s.Table)
		for _, a := range s.Set {
			if _, ok := s.Table.Spec.Column(a.Column); !ok {
				v.addWarning("UPDATE %s sets unknown column %q", s.Table.Spec.Name, a.Column)
			}
			v.validateExpr(a.Value, in)
		}
		if s.Where == nil {
			v.addWarning("UPDATE %s has no WHERE and affects every row", s.Table.Spec.Name)
		}
		v.validateCondition(s.Where, in)
	case *Insert:
		v.validateInsert(s, outer)
	default:
		v.addWarning("unknown statement type: %s", Kind(stmt))
	}
}

// validateSelect validates a Select and its subqueries.
func (v *validator) validateSelect(s *Select, outer scope) {
	if s.From == nil {
		v.addWarning("SELECT without FROM")
		return
	}

	in := outer.with(s.From)
	for _, j := range s.Joins {
		in = in.with(j.Table)
	}
	for _, j := range s.Joins {
		if j.On == nil {
			v.addWarning("JOIN %s has no ON condition", j.Table.Spec.Name)
			continue
		}
		v.validatePredicate(j.On, in)
	}
	for _, c := range s.Columns {
		v.validateExpr(c, in)
	}
	v.validateCondition(s.Where, in)
	for _, o := range s.OrderBy {
		v.validateExpr(o.Expr, in)
	}
	if s.Limit < 0 {
		v.addWarning("negative LIMIT %d", s.Limit)
	}
}

// validateInsert validates an Insert.
func (v *validator) validateInsert(s *Insert, outer scope) {
	if s.Table == nil {
		v.addWarning("INSERT without table")
		return
	}
	if len(s.Rows) == 0 {
		v.addWarning("INSERT INTO %s has no rows", s.Table.Spec.Name)
	}
	for _, c := range s.Columns {
		if _, ok := s.Table.Spec.Column(c); !ok {
			v.addWarning("INSERT INTO %s names unknown column %q", s.Table.Spec.Name, c)
		}
	}
	for i, row := range s.Rows {
		if len(row) != len(s.Columns) {
			v.addWarning("INSERT row %d has %d values for %d columns", i, len(row), len(s.Columns))
		}
		for _, e := range row {
			v.validateExpr(e, outer)
		}
	}
}

// validateCondition validates a WHERE clause and tracks local evaluability.
func (v *validator) validateCondition(p Predicate, in scope) {
	if p == nil {
		return
	}
	v.validatePredicate(p, in)
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate, in scope) {
	switch pred := p.(type) {
	case *BasePredicate:
		v.addWarning("abstract predicate cannot be compiled or evaluated")
		v.evaluable = false
	case *Equals:
		v.validateExpr(pred.Left, in)
		v.validateExpr(pred.Right, in)
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, in)
		}
	case *LikePredicate:
		v.validateExpr(pred.Operand, in)
	case *NotPredicate:
		v.evaluable = false
		switch op := pred.Operand.(type) {
		case *Select:
			v.validateSelect(op, in)
		case *Column:
			v.validateExpr(op, in)
		default:
			v.addWarning("NOT operand must be a column or subquery, got %s", Kind(pred.Operand))
		}
	case *ExistsPredicate:
		v.evaluable = false
		if pred.Subquery == nil {
			v.addWarning("EXISTS without subquery")
			return
		}
		v.validateSelect(pred.Subquery, in)
	default:
		v.addWarning("unknown predicate type: %s", Kind(p))
	}
}

// validateExpr validates a value expression.
func (v *validator) validateExpr(n Node, in scope) {
	switch e := n.(type) {
	case nil:
		v.addWarning("nil expression")
	case *Column:
		if e.Table == nil {
			v.addWarning("column %q has no table", e.Name)
			return
		}
		if !in[e.Table] && e.Row == nil {
			v.addWarning("column %s.%s references a table not in scope", e.Table.Ref(), e.Name)
		}
		if _, ok := e.Table.Spec.Column(e.Name); !ok {
			v.addWarning("table %s has no column %q", e.Table.Spec.Name, e.Name)
		}
	case *Literal:
	case *Computed:
		// Generated columns may be cyclic; evaluation handles that.
	case *Select:
		v.validateSelect(e, in)
		v.evaluable = false
	case Predicate:
		v.validatePredicate(e, in)
	default:
		v.addWarning("unexpected node in expression position: %s", Kind(n))
	}
}
