// Package queryir provides the expression tree of relq: typed statement and
// predicate nodes that can be compiled to SQL and, for a subset of kinds,
// evaluated directly against materialized rows.
//
// ARCHITECTURE:
//
// Dual compile/evaluate:
// Every node can be handed to a Compiler, which appends dialect SQL to a
// Context. Nodes implementing Evaluable can also compute their own value
// from in-memory rows:
//
//	[keyword chain] → [Command] → [queryir nodes] → Compiler → SQL text
//	                                              → Evaluate → ir.IRValue
//
// The compiler is a consumed capability (see package querysql for the
// SQLite/PostgreSQL/MySQL implementation). This package never escapes or
// quotes SQL itself.
//
// SEALED INTERFACES:
//
// Node, Predicate and Statement are sealed with marker methods on pointer
// receivers. Only pointers to types in this package implement them, which
// gives two guarantees:
//   - exhaustive type switches in compilers
//   - node identity is pointer identity, which the visited set relies on
//
// EVALUATION POLICY:
//
//	Node              Evaluate
//	----              --------
//	Column            value of the bound row, absent column is NULL
//	Literal           its value
//	Computed          its expression
//	Equals            bool, NULL if either side is NULL
//	And               three-valued AND
//	LikePredicate     column value on match (per polarity), else NULL
//	OrderingSpec      its expression's value, for in-memory sorting
//	NotPredicate      NOT_LOCALLY_EVALUABLE
//	ExistsPredicate   NOT_LOCALLY_EVALUABLE
//	BasePredicate     ABSTRACT_NODE
//	statements        NOT_LOCALLY_EVALUABLE
//
// Compile-only nodes never return a default value when asked to evaluate:
// callers doing local pre-checks must be able to tell "known locally" from
// "ask the database".
//
// CYCLES:
//
// An Evaluation carries the identities of nodes on the current evaluation
// path. Evaluate checks membership before recursing; a node met again on
// the same path evaluates to NULL instead of recursing. Generated columns
// that reference each other therefore terminate.
//
// Nodes are immutable after construction (Computed is defined exactly once)
// and safe for concurrent compile and evaluate. An Evaluation is per call
// and must not be shared between goroutines.
package queryir
