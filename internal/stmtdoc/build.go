package stmtdoc

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/alias"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keyword"
	"github.com/roach88/relq/internal/queryir"
)

// Resolver looks table specs up by qualified name.
// *compiler.Schema implements it.
type Resolver interface {
	Table(name string) (*ir.TableSpec, bool)
}

// binding is one table visible to column references, under its label:
// the alias given with `as`, else the qualified table name.
type binding struct {
	label string
	table *queryir.Table
}

// builder resolves one document. Aliased tables share a single scope so
// their generated names are unique across the whole statement.
type builder struct {
	tables  Resolver
	aliases *alias.Scope
	scopes  [][]binding
}

// Build resolves a document's names against tables and returns the
// frozen command.
func Build(doc *Document, tables Resolver) (*keyword.Command, error) {
	if err := doc.Check(); err != nil {
		return nil, err
	}
	b := &builder{tables: tables, aliases: alias.NewScope()}

	var (
		kw  *keyword.Keyword
		err error
	)
	switch doc.Kind() {
	case KindSelect:
		kw, err = b.selectKeyword(doc.Select)
	case KindInsert:
		kw, err = b.insertKeyword(doc.Insert)
	case KindUpdate:
		kw, err = b.updateKeyword(doc.Update)
	case KindDelete:
		kw, err = b.deleteKeyword(doc.Delete)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", doc.Kind(), err)
	}
	return kw.Normalize()
}

func (b *builder) push() {
	b.scopes = append(b.scopes, nil)
}

func (b *builder) pop() {
	b.scopes = b.scopes[:len(b.scopes)-1]
}

// bind resolves ref and makes it visible in the innermost scope.
func (b *builder) bind(ref TableRef) (*queryir.Table, error) {
	spec, ok := b.tables.Table(ref.Name)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", ref.Name)
	}

	label := spec.QualifiedName()
	t := queryir.NewTable(spec)
	if ref.As != "" {
		label = ref.As
		t = queryir.NewAliasedTable(spec, b.aliases)
	}

	inner := len(b.scopes) - 1
	for _, existing := range b.scopes[inner] {
		if ir.SameIdentifier(existing.label, label) {
			return nil, fmt.Errorf("table %q appears twice; alias one of them with `as`", label)
		}
	}
	b.scopes[inner] = append(b.scopes[inner], binding{label: label, table: t})
	return t, nil
}

// column resolves a possibly qualified column name, innermost scope
// first. Generated columns resolve to their shared Computed node.
func (b *builder) column(name string) (queryir.Node, error) {
	qualifier, col := "", name
	if i := strings.LastIndex(name, "."); i >= 0 {
		qualifier, col = name[:i], name[i+1:]
	}

	for s := len(b.scopes) - 1; s >= 0; s-- {
		var found *queryir.Table
		var declared string
		for _, bnd := range b.scopes[s] {
			if qualifier != "" && !ir.SameIdentifier(bnd.label, qualifier) {
				continue
			}
			spec, ok := bnd.table.Spec.Column(col)
			if !ok {
				if qualifier != "" {
					return nil, fmt.Errorf("table %q has no column %q", qualifier, col)
				}
				continue
			}
			if found != nil {
				return nil, fmt.Errorf("column %q is ambiguous; qualify it with a table name", name)
			}
			found, declared = bnd.table, spec.Name
		}
		if found != nil {
			return found.Field(declared), nil
		}
	}

	if qualifier != "" {
		return nil, fmt.Errorf("unknown table %q in column %q", qualifier, name)
	}
	return nil, fmt.Errorf("unknown column %q", name)
}

func (b *builder) expr(e Expr) (queryir.Node, error) {
	switch e.Op {
	case OpCol:
		return b.column(e.Col)
	case OpValue:
		return queryir.Lit(e.Value), nil
	case OpEq:
		left, err := b.expr(e.Args[0])
		if err != nil {
			return nil, err
		}
		right, err := b.expr(e.Args[1])
		if err != nil {
			return nil, err
		}
		return queryir.Eq(left, right), nil
	case OpAnd:
		preds := make([]queryir.Predicate, 0, len(e.Args))
		for _, arg := range e.Args {
			p, err := b.predicate(arg)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		return queryir.All(preds...), nil
	case OpLike, OpNotLike:
		operand, err := b.expr(e.Args[0])
		if err != nil {
			return nil, err
		}
		if e.Op == OpNotLike {
			return queryir.NotLike(operand, e.Pattern), nil
		}
		return queryir.Like(operand, e.Pattern), nil
	case OpNot:
		operand, err := b.expr(e.Args[0])
		if err != nil {
			return nil, err
		}
		return queryir.Not(operand), nil
	case OpExists, OpNotExists:
		kw, err := b.selectKeyword(e.Sub)
		if err != nil {
			return nil, err
		}
		cmd, err := kw.Normalize()
		if err != nil {
			return nil, err
		}
		sub := cmd.Statement().(*queryir.Select)
		if e.Op == OpNotExists {
			return queryir.NotExists(sub), nil
		}
		return queryir.Exists(sub), nil
	}
	return nil, fmt.Errorf("line %d: empty expression", e.Line)
}

func (b *builder) predicate(e Expr) (queryir.Predicate, error) {
	n, err := b.expr(e)
	if err != nil {
		return nil, err
	}
	p, ok := n.(queryir.Predicate)
	if !ok {
		return nil, fmt.Errorf("line %d: %s is not a condition", e.Line, queryir.Kind(n))
	}
	return p, nil
}

func (b *builder) selectKeyword(d *SelectDoc) (*keyword.Keyword, error) {
	b.push()
	defer b.pop()

	from, err := b.bind(d.From)
	if err != nil {
		return nil, err
	}
	joined := make([]*queryir.Table, len(d.Joins))
	for i, j := range d.Joins {
		if joined[i], err = b.bind(j.Table); err != nil {
			return nil, err
		}
	}

	columns := make([]queryir.Node, 0, len(d.Columns))
	for _, name := range d.Columns {
		col, err := b.column(name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	kw := keyword.SelectFrom(from, columns...)
	for i, j := range d.Joins {
		on, err := b.predicate(j.On)
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", j.Table.Name, err)
		}
		if j.Left {
			kw = kw.LeftJoin(joined[i], on)
		} else {
			kw = kw.Join(joined[i], on)
		}
	}

	if kw, err = b.where(kw, d.Where); err != nil {
		return nil, err
	}

	if len(d.OrderBy) > 0 {
		specs := make([]*queryir.OrderingSpec, 0, len(d.OrderBy))
		for _, o := range d.OrderBy {
			col, err := b.column(o.Col)
			if err != nil {
				return nil, err
			}
			if o.Desc {
				specs = append(specs, queryir.Desc(col))
			} else {
				specs = append(specs, queryir.Asc(col))
			}
		}
		kw = kw.OrderBy(specs...)
	}
	if d.Limit != 0 {
		kw = kw.Limit(d.Limit)
	}
	return kw, nil
}

func (b *builder) insertKeyword(d *InsertDoc) (*keyword.Keyword, error) {
	b.push()
	defer b.pop()

	t, err := b.bind(d.Into)
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		columns[i] = declaredName(t.Spec, c)
	}
	kw := keyword.InsertInto(t, columns...)
	for i, row := range d.Values {
		values := make([]queryir.Node, 0, len(row))
		for _, e := range row {
			v, err := b.expr(e)
			if err != nil {
				return nil, fmt.Errorf("values[%d]: %w", i, err)
			}
			values = append(values, v)
		}
		kw = kw.Values(values...)
	}
	return kw, nil
}

func (b *builder) updateKeyword(d *UpdateDoc) (*keyword.Keyword, error) {
	b.push()
	defer b.pop()

	t, err := b.bind(d.Table)
	if err != nil {
		return nil, err
	}
	kw := keyword.Update(t)
	for _, s := range d.Set {
		v, err := b.expr(s.To)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", s.Column, err)
		}
		kw = kw.Set(declaredName(t.Spec, s.Column), v)
	}
	return b.where(kw, d.Where)
}

func (b *builder) deleteKeyword(d *DeleteDoc) (*keyword.Keyword, error) {
	b.push()
	defer b.pop()

	t, err := b.bind(d.From)
	if err != nil {
		return nil, err
	}
	return b.where(keyword.DeleteFrom(t), d.Where)
}

func (b *builder) where(kw *keyword.Keyword, e *Expr) (*keyword.Keyword, error) {
	if e == nil {
		return kw, nil
	}
	p, err := b.predicate(*e)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	return kw.Where(p), nil
}

// declaredName returns the schema spelling of column, or column itself
// when the table does not declare it; the database then rejects it.
func declaredName(spec *ir.TableSpec, column string) string {
	if c, ok := spec.Column(column); ok {
		return c.Name
	}
	return column
}
