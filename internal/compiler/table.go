package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/relq/internal/ir"
)

// CompileTable parses a CUE value into a TableSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the table struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`table: users: { ... }`)
//	spec, err := CompileTable(v.LookupPath(cue.ParsePath("table.users")))
//
// A table declares its columns in order, a primary key, an optional
// schema, a cardinality ("single" when omitted) and optional generated
// columns mapping a name to the column whose value they take:
//
//	table: users: {
//		schema:      "app"
//		cardinality: "single"
//		primary_key: ["id"]
//		columns: {
//			id:   int
//			name: string
//		}
//		generated: label: "name"
//	}
func CompileTable(v cue.Value) (*ir.TableSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.TableSpec{Cardinality: ir.SingleOwner}

	// Table name comes from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	schemaVal := v.LookupPath(cue.ParsePath("schema"))
	if schemaVal.Exists() {
		schema, err := schemaVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Schema = schema
	}

	cardVal := v.LookupPath(cue.ParsePath("cardinality"))
	if cardVal.Exists() {
		card, err := cardVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if !ir.ValidCardinalities[ir.Cardinality(card)] {
			return nil, &CompileError{
				Field:   "cardinality",
				Message: fmt.Sprintf("invalid cardinality %q (must be \"single\" or \"multi\")", card),
				Pos:     cardVal.Pos(),
			}
		}
		spec.Cardinality = ir.Cardinality(card)
	}

	var err error
	spec.Columns, err = parseColumns(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Columns) == 0 {
		return nil, &CompileError{
			Field:   "columns",
			Message: "at least one column is required",
			Pos:     v.Pos(),
		}
	}

	generated, err := parseGenerated(v, spec)
	if err != nil {
		return nil, err
	}
	spec.Columns = append(spec.Columns, generated...)

	spec.PrimaryKey, err = parsePrimaryKey(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// parseColumns extracts stored columns in declaration order.
func parseColumns(v cue.Value) ([]ir.ColumnSpec, error) {
	var columns []ir.ColumnSpec

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return columns, nil
	}

	iter, err := colsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		colType, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		columns = append(columns, ir.ColumnSpec{
			Name: iter.Label(),
			Type: colType,
		})
	}

	return columns, nil
}

// parseGenerated extracts generated columns. Their type is the type of
// the stored column at the end of their reference chain, and stays empty
// when the chain does not end at a stored column.
func parseGenerated(v cue.Value, spec *ir.TableSpec) ([]ir.ColumnSpec, error) {
	var generated []ir.ColumnSpec

	genVal := v.LookupPath(cue.ParsePath("generated"))
	if !genVal.Exists() {
		return generated, nil
	}

	iter, err := genVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		if _, dup := spec.Column(name); dup {
			return nil, &CompileError{
				Field:   "generated." + name,
				Message: "generated column shadows a stored column",
				Pos:     iter.Value().Pos(),
			}
		}
		source, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "generated." + name,
				Message: "generated column must name its source column",
				Pos:     iter.Value().Pos(),
			}
		}
		generated = append(generated, ir.ColumnSpec{Name: name, Generated: source})
	}

	refs := make(map[string]string, len(generated))
	for _, g := range generated {
		refs[g.Name] = g.Generated
	}
	for i := range generated {
		generated[i].Type = resolveType(generated[i].Name, refs, spec)
	}

	return generated, nil
}

// resolveType follows a generated column's references to a stored column.
func resolveType(name string, refs map[string]string, spec *ir.TableSpec) string {
	seen := make(map[string]bool)
	for {
		if seen[name] {
			return ""
		}
		seen[name] = true
		source, ok := refs[name]
		if !ok {
			col, found := spec.Column(name)
			if !found {
				return ""
			}
			return col.Type
		}
		name = source
	}
}

// parsePrimaryKey extracts the primary-key column list.
func parsePrimaryKey(v cue.Value) ([]string, error) {
	pkVal := v.LookupPath(cue.ParsePath("primary_key"))
	if !pkVal.Exists() {
		return nil, &CompileError{
			Field:   "primary_key",
			Message: "primary_key is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := pkVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var pk []string
	for iter.Next() {
		col, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		pk = append(pk, col)
	}
	if len(pk) == 0 {
		return nil, &CompileError{
			Field:   "primary_key",
			Message: "primary_key must name at least one column",
			Pos:     pkVal.Pos(),
		}
	}

	return pk, nil
}

// extractTypeName converts a CUE type to a column type name.
// Floats are forbidden: IR values carry no floating point.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported column type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
