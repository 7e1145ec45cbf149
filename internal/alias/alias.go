// Package alias generates short, deterministic names for repeated
// occurrences of the same table or column within one statement.
//
// Names follow bijective base-26: index 0 is "a", 25 is "z", 26 is "aa",
// 27 is "ab", and so on. Names are injective over indices and, within one
// length class, lexicographically increasing with the index.
package alias

import (
	"fmt"
	"sync"

	"github.com/roach88/relq/internal/ir"
)

// Subject is anything an Alias can stand in for: *ir.TableSpec and
// ir.ColumnSpec both qualify.
type Subject interface {
	SubjectName() string
}

// columnLookup is implemented by table-like subjects.
type columnLookup interface {
	Column(name string) (ir.ColumnSpec, bool)
}

// Name returns the alias name for a zero-based occurrence index.
// Panics on a negative index.
func Name(index int) string {
	if index < 0 {
		panic(fmt.Sprintf("alias: negative index %d", index))
	}

	var buf []byte
	for n := index + 1; n > 0; n /= 26 {
		n--
		buf = append(buf, byte('a'+n%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// Index is the inverse of Name. Returns false for strings that are not
// alias names.
func Index(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 'a' || c > 'z' {
			return 0, false
		}
		n = n*26 + int(c-'a') + 1
	}
	return n - 1, true
}

// Alias wraps a subject under a generated name.
//
// Identity lookups (SubjectName, Column) delegate to the wrapped subject;
// the compiler emits Name in its place. Equality and hashing use the name
// only, so two Aliases with the same name are equal whatever they wrap.
// Callers generate at most one Alias per name within a statement.
type Alias struct {
	subject Subject
	name    string
}

// New wraps subject under the name for index.
func New(subject Subject, index int) Alias {
	return Alias{subject: subject, name: Name(index)}
}

// Name returns the generated name.
func (a Alias) Name() string {
	return a.name
}

// Subject returns the wrapped subject.
func (a Alias) Subject() Subject {
	return a.subject
}

// SubjectName returns the wrapped subject's name, so an Alias can itself be
// wrapped.
func (a Alias) SubjectName() string {
	if a.subject == nil {
		return ""
	}
	return a.subject.SubjectName()
}

// Column delegates column lookup to the wrapped subject.
func (a Alias) Column(name string) (ir.ColumnSpec, bool) {
	if cl, ok := a.subject.(columnLookup); ok {
		return cl.Column(name)
	}
	return ir.ColumnSpec{}, false
}

// Equal reports whether a and b carry the same generated name.
func (a Alias) Equal(b Alias) bool {
	return a.name == b.name
}

// Hash returns a hash of the generated name.
func (a Alias) Hash() uint32 {
	return ir.HashWithDomain(ir.DomainAlias, []byte(a.name))
}

// String returns the generated name.
func (a Alias) String() string {
	return a.name
}

// Scope hands out aliases for one statement.
//
// Thread-safety: Next may be called concurrently.
type Scope struct {
	mu   sync.Mutex
	next int
}

// NewScope creates a scope whose first alias is "a".
func NewScope() *Scope {
	return &Scope{}
}

// Next wraps subject under the next unused name.
func (s *Scope) Next(subject Subject) Alias {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := New(subject, s.next)
	s.next++
	return a
}

// Len returns how many aliases have been issued.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
