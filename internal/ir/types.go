package ir

import "golang.org/x/text/unicode/norm"

// Cardinality fixes how many keys may share one cached value, and with it
// which removals a relation cache accepts.
type Cardinality string

const (
	// SingleOwner allows at most one value per key; values are superseded by
	// put or retired through change tracking, never removed ad hoc.
	SingleOwner Cardinality = "single"

	// MultiOwner allows the same value to be reachable under several keys.
	MultiOwner Cardinality = "multi"
)

// ValidCardinalities defines allowed cardinality names.
var ValidCardinalities = map[Cardinality]bool{
	SingleOwner: true,
	MultiOwner:  true,
}

// TableSpec represents a compiled table definition.
type TableSpec struct {
	Name        string       `json:"name"`
	Schema      string       `json:"schema,omitempty"`
	Columns     []ColumnSpec `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	Cardinality Cardinality  `json:"cardinality"`
}

// ColumnSpec represents a column definition.
//
// A generated column is not stored. Generated names the column whose
// value it takes, which may itself be generated.
type ColumnSpec struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"` // "string", "int", "bool"
	Generated string `json:"generated,omitempty"`
}

// ValidColumnTypes defines allowed column type names.
var ValidColumnTypes = map[string]bool{
	"string": true,
	"int":    true,
	"bool":   true,
}

// SubjectName returns the table name. Aliases delegate to it.
func (t *TableSpec) SubjectName() string {
	return t.Name
}

// QualifiedName returns schema.name, or name when no schema is set.
// It is the entity type identity used by cache keys.
func (t *TableSpec) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// IdentifierKey returns the form identifiers are compared in: NFC. A
// column or table name typed in decomposed form still resolves to its
// declaration. Row values are never normalized.
func IdentifierKey(name string) string {
	return norm.NFC.String(name)
}

// SameIdentifier reports whether a and b name the same table or column.
func SameIdentifier(a, b string) bool {
	return a == b || IdentifierKey(a) == IdentifierKey(b)
}

// Column looks up a column by name. The returned spec carries the
// declared spelling.
func (t *TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if SameIdentifier(c.Name, name) {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// ColumnNames returns column names in declaration order.
func (t *TableSpec) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// StoredColumnNames returns the names of the non-generated columns in
// declaration order. These are the columns a SELECT * reads.
func (t *TableSpec) StoredColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Generated == "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// SubjectName returns the column name. Aliases delegate to it.
func (c ColumnSpec) SubjectName() string {
	return c.Name
}
