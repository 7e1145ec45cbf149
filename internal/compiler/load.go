package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/relq/internal/ir"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Schema contains the tables loaded from a directory.
type Schema struct {
	Tables    []*ir.TableSpec
	Warnings  []CycleWarning
	FileCount int // Number of CUE files found
}

// Table looks up a table by qualified name ("users", "app.users").
func (s *Schema) Table(name string) (*ir.TableSpec, bool) {
	for _, t := range s.Tables {
		if ir.SameIdentifier(t.QualifiedName(), name) {
			return t, true
		}
	}
	return nil, false
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoTables    = "E007" // No table definitions
	ErrCodeDuplicate   = "E008" // Two tables share a qualified name
)

// LoadSchema loads and compiles the `table: <name>: {...}` definitions of
// the CUE package in dir, then validates every table.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadSchema(dir string, mode LoadMode) (*Schema, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	// Find CUE files
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	// Load CUE instances
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	schema := &Schema{FileCount: len(cueFiles)}

	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return schema, []error{&LoadError{Code: ErrCodeNoTables, Message: "no tables found in schema"}}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return schema, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating tables: %v", err)}}
	}

	for iter.Next() {
		spec, compileErr := CompileTable(iter.Value())
		if compileErr == nil {
			if _, dup := schema.Table(spec.QualifiedName()); dup {
				compileErr = &LoadError{
					Code:    ErrCodeDuplicate,
					Message: fmt.Sprintf("table %s declared twice", spec.QualifiedName()),
					Pos:     iter.Value().Pos(),
				}
			}
		}
		if compileErr != nil {
			errs = append(errs, convertCompileError(compileErr, "table."+iter.Label()))
			if mode == LoadModeFailFast {
				return schema, errs
			}
			continue
		}

		for _, verr := range Validate(spec) {
			errs = append(errs, &LoadError{
				Code:    verr.Code,
				Message: fmt.Sprintf("table.%s: %s: %s", iter.Label(), verr.Field, verr.Message),
				Pos:     iter.Value().Pos(),
			})
			if mode == LoadModeFailFast {
				return schema, errs
			}
		}

		schema.Tables = append(schema.Tables, spec)
	}

	schema.Warnings = AnalyzeCycles(schema.Tables)
	return schema, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    mapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// mapFieldToErrorCode maps a compiler error field to a validation code.
func mapFieldToErrorCode(field string) string {
	switch field {
	case "columns":
		return ErrTableNoColumns
	case "primary_key":
		return ErrTableNoPrimaryKey
	case "type":
		return ErrInvalidColumnType
	case "cardinality":
		return ErrInvalidCardinality
	default:
		return ErrCodeGeneric
	}
}
