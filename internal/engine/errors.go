package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while the engine runs a
// command.
//
// Runtime errors include:
//   - Unsupported statement: Select given a mutation, Exec given a SELECT
//   - Row limit: a materialization returned more rows than allowed
//
// Evaluation and compilation failures are returned as the queryir,
// querysql and store errors they are; RuntimeError only covers the
// engine's own checks.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// QueryID identifies the affected query.
	QueryID string

	// Table is the entity type involved, when known.
	Table string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnsupportedStatement indicates the command's statement kind
	// does not fit the operation.
	ErrCodeUnsupportedStatement RuntimeErrorCode = "UNSUPPORTED_STATEMENT"

	// ErrCodeRowLimit indicates a materialization exceeded the row limit.
	ErrCodeRowLimit RuntimeErrorCode = "ROW_LIMIT_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.QueryID != "" && e.Table != "" {
		return fmt.Sprintf("%s: %s (query=%s, table=%s)", e.Code, e.Message, e.QueryID, e.Table)
	}
	if e.QueryID != "" {
		return fmt.Sprintf("%s: %s (query=%s)", e.Code, e.Message, e.QueryID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnsupportedStatement returns true if the error is an unsupported
// statement error. Uses errors.As to handle wrapped errors.
func IsUnsupportedStatement(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnsupportedStatement
	}
	return false
}

// IsRowLimitError returns true if the error is a row limit error.
// Uses errors.As to handle wrapped errors.
func IsRowLimitError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRowLimit
	}
	return false
}

// NewUnsupportedStatementError creates a RuntimeError for a statement of
// the wrong kind.
func NewUnsupportedStatementError(queryID, op, kind string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnsupportedStatement,
		Message: fmt.Sprintf("%s does not run %s statements", op, kind),
		QueryID: queryID,
	}
}

// NewRowLimitError creates a RuntimeError for an exceeded row limit.
func NewRowLimitError(queryID, table string, rows, maxRows int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRowLimit,
		Message: fmt.Sprintf("materialized too many rows (%d > %d)", rows, maxRows),
		QueryID: queryID,
		Table:   table,
		Details: map[string]string{
			"rows":     fmt.Sprintf("%d", rows),
			"max_rows": fmt.Sprintf("%d", maxRows),
		},
	}
}
