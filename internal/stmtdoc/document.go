// Package stmtdoc reads relq statements written as YAML documents and
// turns them into keyword commands.
//
// # Document Format
//
// A document holds exactly one statement:
//
//	select:
//	  from: users
//	  columns: [id, label]
//	  joins:
//	    - table: {name: orders, as: o}
//	      on: {eq: [{col: o.user_id}, {col: users.id}]}
//	  where:
//	    and:
//	      - like: [{col: name}, "A%"]
//	      - not_exists:
//	          from: bans
//	          where: {eq: [{col: bans.user_id}, {col: users.id}]}
//	  order_by:
//	    - {col: name, desc: true}
//	  limit: 10
//
//	insert: {into: users, columns: [id, name], values: [[1, Ann]]}
//	update: {table: users, set: [{column: name, to: Bo}], where: {eq: [{col: id}, 1]}}
//	delete: {from: users, where: {like: [{col: email}, "%@old.example"]}}
//
// # Expressions
//
// A bare scalar is a literal. A mapping with one key is an operator:
// col, value, eq, and, like, not_like, not, exists and not_exists.
// Column names may be qualified with a table name or alias; unqualified
// names resolve against the innermost statement first, then enclosing
// ones, so a subquery can correlate with its outer table.
package stmtdoc

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/ir"
)

// Statement kinds.
const (
	KindSelect = "select"
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

// Document is one statement in YAML form. Exactly one field is set.
type Document struct {
	Select *SelectDoc `yaml:"select,omitempty"`
	Insert *InsertDoc `yaml:"insert,omitempty"`
	Update *UpdateDoc `yaml:"update,omitempty"`
	Delete *DeleteDoc `yaml:"delete,omitempty"`
}

// TableRef names a table, optionally under an alias. In YAML it is either
// the qualified table name or {name, as}.
type TableRef struct {
	Name string `yaml:"name"`
	As   string `yaml:"as,omitempty"`
}

// SelectDoc is a SELECT statement.
type SelectDoc struct {
	From    TableRef   `yaml:"from"`
	Columns []string   `yaml:"columns,omitempty"`
	Joins   []JoinDoc  `yaml:"joins,omitempty"`
	Where   *Expr      `yaml:"where,omitempty"`
	OrderBy []OrderDoc `yaml:"order_by,omitempty"`
	Limit   int        `yaml:"limit,omitempty"`
}

// JoinDoc is one JOIN of a select.
type JoinDoc struct {
	Table TableRef `yaml:"table"`
	Left  bool     `yaml:"left,omitempty"`
	On    Expr     `yaml:"on"`
}

// OrderDoc is one ORDER BY term.
type OrderDoc struct {
	Col  string `yaml:"col"`
	Desc bool   `yaml:"desc,omitempty"`
}

// InsertDoc is an INSERT statement. Each values row matches Columns.
type InsertDoc struct {
	Into    TableRef   `yaml:"into"`
	Columns []string   `yaml:"columns"`
	Values  []ValueRow `yaml:"values"`
}

// ValueRow is one row of INSERT values. A ~ element is the NULL literal.
type ValueRow []Expr

// UnmarshalYAML decodes the row element by element so null elements are
// kept as NULL literals.
func (r *ValueRow) UnmarshalYAML(node *yaml.Node) error {
	exprs, err := decodeExprs(node)
	if err != nil {
		return err
	}
	*r = exprs
	return nil
}

// UpdateDoc is an UPDATE statement.
type UpdateDoc struct {
	Table TableRef `yaml:"table"`
	Set   []SetDoc `yaml:"set"`
	Where *Expr    `yaml:"where,omitempty"`
}

// SetDoc is one SET assignment. `to: ~` assigns NULL.
type SetDoc struct {
	Column string `yaml:"column"`
	To     Expr   `yaml:"to"`
}

// UnmarshalYAML decodes {column, to}, keeping a null `to` as NULL.
func (s *SetDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: set entry must be {column, to}", node.Line)
	}
	var to *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "column":
			if err := val.Decode(&s.Column); err != nil {
				return err
			}
		case "to":
			to = val
		default:
			return fmt.Errorf("line %d: field %s not found in set entry", key.Line, key.Value)
		}
	}
	if s.Column == "" {
		return fmt.Errorf("line %d: set entry needs a column", node.Line)
	}
	if to == nil {
		return fmt.Errorf("line %d: set %s needs a `to` value", node.Line, s.Column)
	}
	e, err := decodeExpr(to)
	if err != nil {
		return err
	}
	s.To = e
	return nil
}

// DeleteDoc is a DELETE statement.
type DeleteDoc struct {
	From  TableRef `yaml:"from"`
	Where *Expr    `yaml:"where,omitempty"`
}

// Expression operators.
const (
	OpCol       = "col"
	OpValue     = "value"
	OpEq        = "eq"
	OpAnd       = "and"
	OpLike      = "like"
	OpNotLike   = "not_like"
	OpNot       = "not"
	OpExists    = "exists"
	OpNotExists = "not_exists"
)

// Expr is a decoded expression. Op selects which of the other fields
// are meaningful.
type Expr struct {
	Op      string
	Col     string
	Value   ir.IRValue
	Args    []Expr
	Pattern string
	Sub     *SelectDoc
	Line    int
}

// UnmarshalYAML decodes a scalar literal or a single-key operator mapping.
func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	e.Line = node.Line

	switch node.Kind {
	case yaml.ScalarNode:
		return e.decodeValue(node)
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: expression must be a scalar or a single-key mapping", node.Line)
	}

	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: expression mapping must have exactly one operator, got %d", node.Line, len(node.Content)/2)
	}
	e.Op = node.Content[0].Value
	arg := node.Content[1]

	switch e.Op {
	case OpCol:
		if arg.Kind != yaml.ScalarNode || arg.Value == "" {
			return fmt.Errorf("line %d: col must name a column", arg.Line)
		}
		e.Col = arg.Value
	case OpValue:
		err := e.decodeValue(arg)
		e.Op = OpValue
		return err
	case OpEq:
		args, err := decodeExprs(arg)
		if err != nil {
			return err
		}
		if len(args) != 2 {
			return fmt.Errorf("line %d: eq takes 2 operands, got %d", arg.Line, len(args))
		}
		e.Args = args
	case OpAnd:
		args, err := decodeExprs(arg)
		if err != nil {
			return err
		}
		e.Args = args
	case OpLike, OpNotLike:
		if arg.Kind != yaml.SequenceNode || len(arg.Content) != 2 {
			return fmt.Errorf("line %d: %s takes [operand, pattern]", arg.Line, e.Op)
		}
		operand, err := decodeExpr(arg.Content[0])
		if err != nil {
			return err
		}
		if arg.Content[1].Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: %s pattern must be a string", arg.Content[1].Line, e.Op)
		}
		e.Args = []Expr{operand}
		e.Pattern = arg.Content[1].Value
	case OpNot:
		operand, err := decodeExpr(arg)
		if err != nil {
			return err
		}
		e.Args = []Expr{operand}
	case OpExists, OpNotExists:
		e.Sub = &SelectDoc{}
		if err := arg.Decode(e.Sub); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: unknown operator %q", node.Content[0].Line, e.Op)
	}
	return nil
}

// decodeExpr decodes one expression node. yaml.v3 never passes null nodes
// to UnmarshalYAML, so a null node is turned into the NULL literal here.
func decodeExpr(node *yaml.Node) (Expr, error) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		return Expr{Op: OpValue, Value: ir.IRNull{}, Line: node.Line}, nil
	}
	var e Expr
	if err := e.UnmarshalYAML(node); err != nil {
		return Expr{}, err
	}
	return e, nil
}

// decodeExprs decodes a sequence of expressions, nulls included.
func decodeExprs(node *yaml.Node) ([]Expr, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of expressions", node.Line)
	}
	exprs := make([]Expr, 0, len(node.Content))
	for _, n := range node.Content {
		e, err := decodeExpr(n)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func (e *Expr) decodeValue(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	e.Op = OpValue
	e.Value = v
	return nil
}

// UnmarshalYAML accepts a bare table name or {name, as}.
func (t *TableRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Name = node.Value
		return nil
	}
	type plain TableRef
	return node.Decode((*plain)(t))
}

// Kind returns the statement kind, or "" when no statement is set.
func (d *Document) Kind() string {
	switch {
	case d.Select != nil:
		return KindSelect
	case d.Insert != nil:
		return KindInsert
	case d.Update != nil:
		return KindUpdate
	case d.Delete != nil:
		return KindDelete
	}
	return ""
}

// Check reports a document that holds no statement or more than one.
func (d *Document) Check() error {
	n := 0
	for _, set := range []bool{d.Select != nil, d.Insert != nil, d.Update != nil, d.Delete != nil} {
		if set {
			n++
		}
	}
	switch n {
	case 0:
		return fmt.Errorf("document has no statement (select, insert, update or delete)")
	case 1:
		return nil
	}
	return fmt.Errorf("document has %d statements, want exactly one", n)
}

// Parse decodes a document. Unknown fields are rejected so that typos
// surface instead of silently dropping a clause.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}
	if err := doc.Check(); err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}
	return &doc, nil
}

// Load reads and parses a document file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statement file: %w", err)
	}
	return Parse(data)
}
