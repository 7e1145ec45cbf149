package keyword

import (
	"fmt"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
)

// Command is the frozen form of a keyword chain. It is built once per
// chain and reused by every compile and evaluate call.
type Command struct {
	stmt queryir.Statement
}

// Statement returns the frozen statement.
func (c *Command) Statement() queryir.Statement {
	return c.stmt
}

// Compile hands the statement to the compiler at statement position.
func (c *Command) Compile(comp queryir.Compiler, ctx *queryir.Context) error {
	return queryir.Compile(comp, ctx, c.stmt, false)
}

// CompileString compiles the statement into SQL text and parameters.
func (c *Command) CompileString(comp queryir.Compiler) (string, []any, error) {
	return queryir.CompileString(comp, c.stmt)
}

// Condition returns the statement's WHERE predicate, or nil.
func (c *Command) Condition() queryir.Predicate {
	switch s := c.stmt.(type) {
	case *queryir.Select:
		return s.Where
	case *queryir.Delete:
		return s.Where
	case *queryir.Update:
		return s.Where
	}
	return nil
}

// Evaluate evaluates the WHERE predicate against the rows bound in ev.
// Statements without one fail with NOT_LOCALLY_EVALUABLE.
func (c *Command) Evaluate(ev *queryir.Evaluation) (ir.IRValue, error) {
	if p := c.Condition(); p != nil {
		return queryir.Evaluate(p, ev)
	}
	return queryir.Evaluate(c.stmt, ev)
}

// buildStatement is the build step of the standard roots.
func buildStatement(clauses []Clause) (queryir.Statement, error) {
	root := clauses[0]
	if root.Table == nil {
		return nil, fmt.Errorf("%s without table", root.Kind)
	}

	var (
		conds   []queryir.Predicate
		where   bool
		order   []*queryir.OrderingSpec
		limit   int
		sets    []queryir.Assignment
		rows    [][]queryir.Node
		joins   []*queryir.Join
		allowed = allowedClauses[root.Kind]
	)

	for _, c := range clauses[1:] {
		if !allowed[c.Kind] {
			return nil, fmt.Errorf("%s does not accept %s", root.Kind, c.Kind)
		}
		if (c.Kind == KindWhere || c.Kind == KindAnd) && c.Predicate == nil {
			return nil, fmt.Errorf("%s without predicate", c.Kind)
		}
		switch c.Kind {
		case KindWhere:
			if where {
				return nil, fmt.Errorf("WHERE given twice, use And")
			}
			where = true
			conds = append(conds, c.Predicate)
		case KindAnd:
			if !where {
				return nil, fmt.Errorf("AND without WHERE")
			}
			conds = append(conds, c.Predicate)
		case KindOrderBy:
			order = append(order, c.Order...)
		case KindLimit:
			if c.Limit < 0 {
				return nil, fmt.Errorf("negative LIMIT %d", c.Limit)
			}
			limit = c.Limit
		case KindSet:
			sets = append(sets, c.Set)
		case KindValues:
			rows = append(rows, c.Values)
		case KindJoin:
			joins = append(joins, c.Join)
		}
	}

	var cond queryir.Predicate
	switch len(conds) {
	case 0:
	case 1:
		cond = conds[0]
	default:
		cond = queryir.All(conds...)
	}

	switch root.Kind {
	case KindSelect:
		return &queryir.Select{
			Columns: root.Columns,
			From:    root.Table,
			Joins:   joins,
			Where:   cond,
			OrderBy: order,
			Limit:   limit,
		}, nil
	case KindDelete:
		return &queryir.Delete{From: root.Table, Where: cond}, nil
	case KindUpdate:
		if len(sets) == 0 {
			return nil, fmt.Errorf("UPDATE without SET")
		}
		return &queryir.Update{Table: root.Table, Set: sets, Where: cond}, nil
	case KindInsert:
		if len(rows) == 0 {
			return nil, fmt.Errorf("INSERT without VALUES")
		}
		return &queryir.Insert{Table: root.Table, Columns: root.Names, Rows: rows}, nil
	}
	return nil, fmt.Errorf("unknown root %s", root.Kind)
}

var allowedClauses = map[Kind]map[Kind]bool{
	KindSelect: {KindWhere: true, KindAnd: true, KindOrderBy: true, KindLimit: true, KindJoin: true},
	KindDelete: {KindWhere: true, KindAnd: true},
	KindUpdate: {KindSet: true, KindWhere: true, KindAnd: true},
	KindInsert: {KindValues: true},
}
