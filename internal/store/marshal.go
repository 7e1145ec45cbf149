package store

import (
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// unmarshalColumn converts a scanned SQLite value to the IRValue of a
// column of type colType. SQLite has no boolean storage class: bool
// columns come back as 0/1 integers unless declared BOOLEAN.
// An empty colType falls back to the scanned Go type.
func unmarshalColumn(colType string, raw any) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}

	switch colType {
	case "bool":
		switch v := raw.(type) {
		case bool:
			return ir.IRBool(v), nil
		case int64:
			return ir.IRBool(v != 0), nil
		}
	case "int":
		if v, ok := raw.(int64); ok {
			return ir.IRInt(v), nil
		}
	case "string":
		switch v := raw.(type) {
		case string:
			return ir.IRString(v), nil
		case []byte:
			return ir.IRString(v), nil
		}
	case "":
		v, err := ir.FromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("unmarshal column: %w", err)
		}
		return v, nil
	}

	return nil, fmt.Errorf("unmarshal column: %T is not a %s", raw, colType)
}

// marshalRecord returns the parameters for r's stored columns, in spec
// order. Missing columns are NULL.
func marshalRecord(r *ir.Record) ([]any, error) {
	names := r.Table.StoredColumnNames()
	params := make([]any, len(names))
	for i, name := range names {
		v, _ := r.Lookup(name)
		p, err := ir.ToParam(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s.%s: %w", r.EntityType(), name, err)
		}
		params[i] = p
	}
	return params, nil
}
