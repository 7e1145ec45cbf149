package queryir

import (
	"fmt"
	"io"
	"strings"
)

// Compiler is the SQL-generation capability this package consumes.
//
// CompileNode appends the SQL for n to ctx. Implementations recurse into
// children through Compile, never by calling CompileNode directly, so that
// node-kind validation applies at every level. Identifier quoting, LIKE
// wildcard escaping and placeholder binding are the compiler's contract.
type Compiler interface {
	CompileNode(ctx *Context, n Node) error
}

// Context is the state of one compilation: the output buffer, bound
// parameters, and whether the current node sits in expression position
// (e.g. inside a WHERE) rather than statement position.
//
// Writes are sticky: after the first write error every later write is a
// no-op and Err reports the failure.
//
// Thread-safety: NOT safe for concurrent use. Create one per compilation.
type Context struct {
	w          io.Writer
	err        error
	params     []any
	active     map[Node]struct{}
	Expression bool
}

// NewContext creates a context writing to w.
func NewContext(w io.Writer) *Context {
	return &Context{w: w, active: make(map[Node]struct{})}
}

// Enter marks n as being compiled. It returns false when n is already on
// the compile path, which means the node graph is cyclic and n cannot be
// rendered as SQL. Every successful Enter must be paired with Leave.
func (c *Context) Enter(n Node) bool {
	if _, ok := c.active[n]; ok {
		return false
	}
	c.active[n] = struct{}{}
	return true
}

// Leave removes n from the compile path.
func (c *Context) Leave(n Node) {
	delete(c.active, n)
}

// WriteString appends s to the output.
func (c *Context) WriteString(s string) {
	if c.err != nil {
		return
	}
	if _, err := io.WriteString(c.w, s); err != nil {
		c.err = fmt.Errorf("write sql: %w", err)
	}
}

// Writef appends formatted text to the output.
func (c *Context) Writef(format string, args ...any) {
	c.WriteString(fmt.Sprintf(format, args...))
}

// Err returns the first write error.
func (c *Context) Err() error {
	return c.err
}

// AddParam binds a parameter and returns its 1-based ordinal.
func (c *Context) AddParam(v any) int {
	c.params = append(c.params, v)
	return len(c.params)
}

// Params returns the bound parameters in order.
func (c *Context) Params() []any {
	return c.params
}

// Compile validates n's kind and hands it to c.
//
// expression is the is-expression-position flag: true for nodes nested in
// another expression (subqueries get parenthesized), false at statement
// level. The abstract predicate is rejected with ABSTRACT_NODE. Compiler
// failures are returned unchanged.
func Compile(c Compiler, ctx *Context, n Node, expression bool) error {
	if n == nil {
		return fmt.Errorf("cannot compile nil node")
	}
	if _, ok := n.(*BasePredicate); ok {
		return abstractNode("compile")
	}

	prev := ctx.Expression
	ctx.Expression = expression
	defer func() { ctx.Expression = prev }()

	if err := c.CompileNode(ctx, n); err != nil {
		return err
	}
	return ctx.Err()
}

// CompileString compiles n at statement level and returns the SQL text and
// bound parameters.
func CompileString(c Compiler, n Node) (string, []any, error) {
	var sb strings.Builder
	ctx := NewContext(&sb)
	if err := Compile(c, ctx, n, false); err != nil {
		return "", nil, err
	}
	return sb.String(), ctx.Params(), nil
}
