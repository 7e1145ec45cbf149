package queryir

import (
	"errors"
	"fmt"
)

// ErrNotLocallyEvaluable matches, via errors.Is, every error meaning
// "this cannot be decided in memory; consult the database".
var ErrNotLocallyEvaluable = errors.New("not locally evaluable")

// ErrAbstractNode matches, via errors.Is, attempts to compile or evaluate
// the abstract predicate kind.
var ErrAbstractNode = errors.New("abstract node")

// OpErrorCode categorizes expression tree failures.
type OpErrorCode string

const (
	// ErrCodeNotLocallyEvaluable indicates a compile-only node was asked to
	// evaluate.
	ErrCodeNotLocallyEvaluable OpErrorCode = "NOT_LOCALLY_EVALUABLE"

	// ErrCodeAbstractNode indicates the abstract predicate kind was compiled
	// or evaluated directly.
	ErrCodeAbstractNode OpErrorCode = "ABSTRACT_NODE"

	// ErrCodeUnboundRow indicates a column had no row to read from.
	ErrCodeUnboundRow OpErrorCode = "UNBOUND_ROW"

	// ErrCodeTypeMismatch indicates an operand of the wrong kind, e.g. an
	// array under LIKE.
	ErrCodeTypeMismatch OpErrorCode = "TYPE_MISMATCH"
)

// OpError is an unsupported-operation failure of the expression tree.
// These are contract violations and must reach the caller.
type OpError struct {
	// Op is "evaluate" or "compile".
	Op string

	// Code identifies the error category.
	Code OpErrorCode

	// Node is the node kind (see Kind).
	Node string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Node, e.Code)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Node, e.Code, e.Message)
}

// Is lets errors.Is match the package sentinels. An unbound row is also
// "not locally evaluable": the database can still answer.
func (e *OpError) Is(target error) bool {
	switch target {
	case ErrNotLocallyEvaluable:
		return e.Code == ErrCodeNotLocallyEvaluable || e.Code == ErrCodeUnboundRow
	case ErrAbstractNode:
		return e.Code == ErrCodeAbstractNode
	}
	return false
}

// IsNotLocallyEvaluable returns true if err means the database must be
// consulted. Uses errors.Is to handle wrapped errors.
func IsNotLocallyEvaluable(err error) bool {
	return errors.Is(err, ErrNotLocallyEvaluable)
}

// IsAbstractNode returns true if err is an ABSTRACT_NODE failure.
func IsAbstractNode(err error) bool {
	return errors.Is(err, ErrAbstractNode)
}

func notLocallyEvaluable(n Node, reason string) *OpError {
	return &OpError{
		Op:      "evaluate",
		Code:    ErrCodeNotLocallyEvaluable,
		Node:    Kind(n),
		Message: reason,
	}
}

func abstractNode(op string) *OpError {
	return &OpError{
		Op:      op,
		Code:    ErrCodeAbstractNode,
		Node:    Kind(&BasePredicate{}),
		Message: "abstract predicate must be specialized",
	}
}
