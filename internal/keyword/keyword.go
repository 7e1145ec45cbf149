// Package keyword builds statements as chains of clause nodes that freeze
// into a reusable Command on first use.
//
// A chain starts at a root (SelectFrom, DeleteFrom, Update, InsertInto)
// and grows one clause per call:
//
//	cmd, err := keyword.DeleteFrom(users).
//		Where(queryir.Eq(users.Col("id"), queryir.Lit(ir.IRInt(1)))).
//		Normalize()
//
// Every node of a chain shares one chain state. The first Normalize or
// Compile on any node runs the root's build step once, over the clauses
// from the root down to that node, and memoizes the Command. Every later
// call on any node of the chain returns the same *Command.
//
// HAZARD: chains are not templates. A clause appended after the freeze is
// accepted but ignored by the Command, and a warning is logged. Branching
// a chain before the freeze is just as unsafe: whichever branch compiles
// first decides the Command for all of them.
package keyword

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/relq/internal/queryir"
)

// Kind names a clause.
type Kind string

const (
	KindSelect  Kind = "SELECT"
	KindDelete  Kind = "DELETE"
	KindUpdate  Kind = "UPDATE"
	KindInsert  Kind = "INSERT"
	KindWhere   Kind = "WHERE"
	KindAnd     Kind = "AND"
	KindOrderBy Kind = "ORDER BY"
	KindLimit   Kind = "LIMIT"
	KindSet     Kind = "SET"
	KindValues  Kind = "VALUES"
	KindJoin    Kind = "JOIN"
)

// Clause is the payload of one chain node. Only the fields relevant to
// Kind are set.
type Clause struct {
	Kind      Kind
	Table     *queryir.Table
	Columns   []queryir.Node
	Names     []string
	Predicate queryir.Predicate
	Order     []*queryir.OrderingSpec
	Limit     int
	Set       queryir.Assignment
	Values    []queryir.Node
	Join      *queryir.Join
}

// BuildFunc turns a chain's clauses, root first, into a statement.
// It is the overridable build step of a root; see Root.
type BuildFunc func(clauses []Clause) (queryir.Statement, error)

// chain is the state shared by every node of one chain.
type chain struct {
	root  Kind
	build BuildFunc

	// Unbuilt while nil, Built once set. Only CompareAndSwap from nil
	// writes it.
	cmd atomic.Pointer[Command]
}

// Keyword is one clause node. It is immutable; appending returns a new
// node whose parent is the receiver.
//
// Thread-safety: safe for concurrent use, including concurrent first
// compiles on the same chain.
type Keyword struct {
	parent *Keyword
	chain  *chain
	clause Clause
}

// Root starts a chain with a custom build step.
func Root(root Clause, build BuildFunc) *Keyword {
	return &Keyword{
		chain:  &chain{root: root.Kind, build: build},
		clause: root,
	}
}

// SelectFrom starts a SELECT. No columns selects every column of t.
func SelectFrom(t *queryir.Table, columns ...queryir.Node) *Keyword {
	return Root(Clause{Kind: KindSelect, Table: t, Columns: columns}, buildStatement)
}

// DeleteFrom starts a DELETE.
func DeleteFrom(t *queryir.Table) *Keyword {
	return Root(Clause{Kind: KindDelete, Table: t}, buildStatement)
}

// Update starts an UPDATE.
func Update(t *queryir.Table) *Keyword {
	return Root(Clause{Kind: KindUpdate, Table: t}, buildStatement)
}

// InsertInto starts an INSERT with the given column list.
func InsertInto(t *queryir.Table, columns ...string) *Keyword {
	return Root(Clause{Kind: KindInsert, Table: t, Names: columns}, buildStatement)
}

// Where sets the statement condition.
func (k *Keyword) Where(p queryir.Predicate) *Keyword {
	return k.extend(Clause{Kind: KindWhere, Predicate: p})
}

// And adds a conjunct to the condition set by Where.
func (k *Keyword) And(p queryir.Predicate) *Keyword {
	return k.extend(Clause{Kind: KindAnd, Predicate: p})
}

// OrderBy appends ordering terms.
func (k *Keyword) OrderBy(specs ...*queryir.OrderingSpec) *Keyword {
	return k.extend(Clause{Kind: KindOrderBy, Order: specs})
}

// Limit caps the number of rows.
func (k *Keyword) Limit(n int) *Keyword {
	return k.extend(Clause{Kind: KindLimit, Limit: n})
}

// Set appends an assignment to an UPDATE.
func (k *Keyword) Set(column string, value queryir.Node) *Keyword {
	return k.extend(Clause{Kind: KindSet, Set: queryir.Assignment{Column: column, Value: value}})
}

// Values appends one row to an INSERT.
func (k *Keyword) Values(values ...queryir.Node) *Keyword {
	return k.extend(Clause{Kind: KindValues, Values: values})
}

// Join appends an inner join.
func (k *Keyword) Join(t *queryir.Table, on queryir.Predicate) *Keyword {
	return k.extend(Clause{Kind: KindJoin, Join: &queryir.Join{Kind: queryir.InnerJoin, Table: t, On: on}})
}

// LeftJoin appends a left join.
func (k *Keyword) LeftJoin(t *queryir.Table, on queryir.Predicate) *Keyword {
	return k.extend(Clause{Kind: KindJoin, Join: &queryir.Join{Kind: queryir.LeftJoin, Table: t, On: on}})
}

func (k *Keyword) extend(c Clause) *Keyword {
	if k.Frozen() {
		slog.Warn("clause appended to frozen keyword chain is ignored",
			"root", k.chain.root,
			"clause", c.Kind,
		)
	}
	return &Keyword{parent: k, chain: k.chain, clause: c}
}

// Kind returns the node's clause kind.
func (k *Keyword) Kind() Kind {
	return k.clause.Kind
}

// Parent returns the previous clause, or nil at the root.
func (k *Keyword) Parent() *Keyword {
	return k.parent
}

// Clauses returns the clauses from the root down to k.
func (k *Keyword) Clauses() []Clause {
	n := 0
	for p := k; p != nil; p = p.parent {
		n++
	}
	out := make([]Clause, n)
	for p := k; p != nil; p = p.parent {
		n--
		out[n] = p.clause
	}
	return out
}

// Frozen reports whether the chain has been built.
func (k *Keyword) Frozen() bool {
	return k.chain.cmd.Load() != nil
}

// Normalize freezes the chain, if needed, and returns its Command.
//
// Concurrent first calls may each run the build step, but exactly one
// result is published and every caller receives it. A failed build
// publishes nothing, so a later call builds again.
func (k *Keyword) Normalize() (*Command, error) {
	if cmd := k.chain.cmd.Load(); cmd != nil {
		return cmd, nil
	}

	stmt, err := k.chain.build(k.Clauses())
	if err != nil {
		return nil, fmt.Errorf("build %s command: %w", k.chain.root, err)
	}
	if stmt == nil {
		return nil, fmt.Errorf("build %s command: no statement", k.chain.root)
	}

	cmd := &Command{stmt: stmt}
	if k.chain.cmd.CompareAndSwap(nil, cmd) {
		slog.Debug("keyword chain frozen",
			"root", k.chain.root,
			"clauses", len(k.Clauses()),
		)
		return cmd, nil
	}
	return k.chain.cmd.Load(), nil
}

// Compile freezes the chain and compiles its Command. The keyword itself
// never writes SQL.
func (k *Keyword) Compile(c queryir.Compiler, ctx *queryir.Context) error {
	cmd, err := k.Normalize()
	if err != nil {
		return err
	}
	return cmd.Compile(c, ctx)
}

// CompileString freezes the chain and returns the Command's SQL text and
// parameters.
func (k *Keyword) CompileString(c queryir.Compiler) (string, []any, error) {
	cmd, err := k.Normalize()
	if err != nil {
		return "", nil, err
	}
	return cmd.CompileString(c)
}
