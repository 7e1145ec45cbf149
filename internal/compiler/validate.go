package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// TableSpec errors (E101-E109)
	ErrTableNameInvalid    = "E101" // table or schema name is not an identifier
	ErrTableNoColumns      = "E102" // at least one column required
	ErrTableNoPrimaryKey   = "E103" // primary key required
	ErrInvalidColumnType   = "E104" // invalid type string
	ErrDuplicateName       = "E105" // duplicate column name
	ErrFloatTypeForbidden  = "E106" // float types not allowed
	ErrInvalidCardinality  = "E107" // cardinality not single or multi
	ErrUnknownKeyColumn    = "E108" // primary key names a missing column
	ErrGeneratedKeyColumn  = "E109" // primary key names a generated column
	ErrUnknownSourceColumn = "E110" // generated column names a missing column
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.TableSpec:
		return validateTableSpec(spec)
	case ir.TableSpec:
		return validateTableSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateTableSpec validates a table definition.
func validateTableSpec(spec *ir.TableSpec) []ValidationError {
	var errs []ValidationError

	// E101: names must be plain identifiers
	if !identifierPattern.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("table name %q is not an identifier", spec.Name),
			Code:    ErrTableNameInvalid,
		})
	}
	if spec.Schema != "" && !identifierPattern.MatchString(spec.Schema) {
		errs = append(errs, ValidationError{
			Field:   "schema",
			Message: fmt.Sprintf("schema name %q is not an identifier", spec.Schema),
			Code:    ErrTableNameInvalid,
		})
	}

	// E107: cardinality
	if !ir.ValidCardinalities[spec.Cardinality] {
		errs = append(errs, ValidationError{
			Field:   "cardinality",
			Message: fmt.Sprintf("invalid cardinality %q, must be \"single\" or \"multi\"", spec.Cardinality),
			Code:    ErrInvalidCardinality,
		})
	}

	// E102: at least one stored column
	if len(spec.StoredColumnNames()) == 0 {
		errs = append(errs, ValidationError{
			Field:   "columns",
			Message: "at least one stored column is required",
			Code:    ErrTableNoColumns,
		})
	}

	seen := make(map[string]bool)
	for i, col := range spec.Columns {
		field := fmt.Sprintf("columns[%d]", i)

		// E105: duplicate column name
		if seen[ir.IdentifierKey(col.Name)] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate column name: %q", col.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[ir.IdentifierKey(col.Name)] = true

		if col.Generated != "" {
			// E110: the source must exist; an unresolved type means the
			// reference chain never reaches a stored column
			if _, ok := spec.Column(col.Generated); !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".generated",
					Message: fmt.Sprintf("generated column %q names unknown column %q", col.Name, col.Generated),
					Code:    ErrUnknownSourceColumn,
				})
			}
			if col.Type == "" {
				continue
			}
		}

		errs = append(errs, validateColumnType(col.Type, field+".type", col.Name)...)
	}

	// E103: primary key required
	if len(spec.PrimaryKey) == 0 {
		errs = append(errs, ValidationError{
			Field:   "primary_key",
			Message: "primary key must name at least one column",
			Code:    ErrTableNoPrimaryKey,
		})
	}

	for i, name := range spec.PrimaryKey {
		field := fmt.Sprintf("primary_key[%d]", i)
		col, ok := spec.Column(name)
		switch {
		case !ok:
			// E108
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("primary key column %q is not declared", name),
				Code:    ErrUnknownKeyColumn,
			})
		case col.Generated != "":
			// E109
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("primary key column %q is generated", name),
				Code:    ErrGeneratedKeyColumn,
			})
		}
	}

	return errs
}

// validateColumnType validates a type string, returning errors for invalid types and floats.
func validateColumnType(colType, fieldPath, colName string) []ValidationError {
	var errs []ValidationError

	// E104: check for valid type
	if !ir.ValidColumnTypes[colType] {
		errs = append(errs, ValidationError{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for column %q", colType, colName),
			Code:    ErrInvalidColumnType,
		})
	}

	// E106: float forbidden (explicit check even if not in valid types)
	if isFloatType(colType) {
		errs = append(errs, ValidationError{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for column %q, use int instead", colName),
			Code:    ErrFloatTypeForbidden,
		})
	}

	return errs
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	lower := strings.ToLower(t)
	return lower == "float" || lower == "float32" || lower == "float64" ||
		lower == "double" || lower == "number" || lower == "decimal"
}
