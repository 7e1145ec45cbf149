package ir

import "maps"

// Record is a materialized row of one table.
//
// Records are held by reference in relation caches. They are treated as
// immutable once cached: With returns a modified copy, and the change is
// published by replacing the old record in the cache.
type Record struct {
	Table  *TableSpec
	Values IRObject
}

// NewRecord creates a record for table t.
func NewRecord(t *TableSpec, values IRObject) *Record {
	if values == nil {
		values = IRObject{}
	}
	return &Record{Table: t, Values: values}
}

// Lookup returns the value of column, and false when the record has no
// such column.
func (r *Record) Lookup(column string) (IRValue, bool) {
	v, ok := r.Values[column]
	if !ok {
		return IRNull{}, false
	}
	if v == nil {
		return IRNull{}, true
	}
	return v, true
}

// EntityType returns the qualified table name.
func (r *Record) EntityType() string {
	return r.Table.QualifiedName()
}

// PrimaryKey returns the declared primary-key column values in order.
// Missing columns read as IRNull, which key construction rejects.
func (r *Record) PrimaryKey() IRArray {
	pk := make(IRArray, len(r.Table.PrimaryKey))
	for i, col := range r.Table.PrimaryKey {
		pk[i], _ = r.Lookup(col)
	}
	return pk
}

// With returns a copy of r with column set to value.
func (r *Record) With(column string, value IRValue) *Record {
	values := maps.Clone(r.Values)
	if values == nil {
		values = IRObject{}
	}
	values[column] = value
	return &Record{Table: r.Table, Values: values}
}
