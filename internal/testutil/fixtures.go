// Package testutil provides shared fixtures for relq tests.
package testutil

import (
	"errors"

	"github.com/roach88/relq/internal/ir"
)

// UsersTable returns a fresh single-owner users table:
// users(id int PK, name string, email string, manager_id int).
func UsersTable() *ir.TableSpec {
	return &ir.TableSpec{
		Name: "users",
		Columns: []ir.ColumnSpec{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "string"},
			{Name: "email", Type: "string"},
			{Name: "manager_id", Type: "int"},
		},
		PrimaryKey:  []string{"id"},
		Cardinality: ir.SingleOwner,
	}
}

// OrdersTable returns a fresh single-owner orders table:
// orders(id int PK, user_id int, sku string).
func OrdersTable() *ir.TableSpec {
	return &ir.TableSpec{
		Name: "orders",
		Columns: []ir.ColumnSpec{
			{Name: "id", Type: "int"},
			{Name: "user_id", Type: "int"},
			{Name: "sku", Type: "string"},
		},
		PrimaryKey:  []string{"id"},
		Cardinality: ir.SingleOwner,
	}
}

// MembershipsTable returns a fresh multi-owner table with a composite key:
// memberships(user_id int, group_id int, role string), PK (user_id, group_id).
func MembershipsTable() *ir.TableSpec {
	return &ir.TableSpec{
		Name: "memberships",
		Columns: []ir.ColumnSpec{
			{Name: "user_id", Type: "int"},
			{Name: "group_id", Type: "int"},
			{Name: "role", Type: "string"},
		},
		PrimaryKey:  []string{"user_id", "group_id"},
		Cardinality: ir.MultiOwner,
	}
}

// User builds a users record. An empty email is stored as NULL.
func User(t *ir.TableSpec, id int64, name, email string) *ir.Record {
	var e ir.IRValue = ir.IRNull{}
	if email != "" {
		e = ir.IRString(email)
	}
	return ir.NewRecord(t, ir.IRObject{
		"id":         ir.IRInt(id),
		"name":       ir.IRString(name),
		"email":      e,
		"manager_id": ir.IRNull{},
	})
}

// Order builds an orders record.
func Order(t *ir.TableSpec, id, userID int64, sku string) *ir.Record {
	return ir.NewRecord(t, ir.IRObject{
		"id":      ir.IRInt(id),
		"user_id": ir.IRInt(userID),
		"sku":     ir.IRString(sku),
	})
}

// ErrWriteFailed is returned by FailingWriter.
var ErrWriteFailed = errors.New("write failed")

// FailingWriter is an io.Writer that accepts Limit bytes and then fails.
type FailingWriter struct {
	Limit   int
	written int
}

// Write implements io.Writer.
func (w *FailingWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.Limit {
		n := w.Limit - w.written
		w.written = w.Limit
		return n, ErrWriteFailed
	}
	w.written += len(p)
	return len(p), nil
}

// FixedIDGenerator returns the same id every time, for deterministic logs.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator. An empty id defaults to
// "test-id-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-id-default"
	}
	return &FixedIDGenerator{id: id}
}

// NewID returns the fixed id.
func (g *FixedIDGenerator) NewID() string {
	return g.id
}
