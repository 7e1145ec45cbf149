package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/keyword"
	"github.com/roach88/relq/internal/stmtdoc"
)

// CLI error codes not produced by the schema loader.
const (
	ErrCodeWriteFailed = "E009"        // File write error
	ErrCodeStatement   = "E_STATEMENT" // Statement file unreadable or unresolvable
	ErrCodeDatabase    = "E_DATABASE"  // Store open, table creation or query failure
)

// loadSchema loads a schema directory in fail-fast mode. Load errors are
// written through formatter and returned as command errors.
func loadSchema(formatter *OutputFormatter, dir string) (*compiler.Schema, error) {
	schema, errs := compiler.LoadSchema(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		code, message := parseLoadError(errs[0])
		return nil, outputCommandError(formatter, code, message, nil)
	}
	formatter.VerboseLog("Loaded %d table(s) from %d CUE file(s) in %s", len(schema.Tables), schema.FileCount, dir)
	for _, w := range schema.Warnings {
		formatter.VerboseLog("Warning: %s", w.Message)
	}
	return schema, nil
}

// loadStatement reads a statement document and resolves it against
// schema.
func loadStatement(formatter *OutputFormatter, path string, schema *compiler.Schema) (*stmtdoc.Document, *keyword.Command, error) {
	doc, err := stmtdoc.Load(path)
	if err != nil {
		return nil, nil, outputCommandError(formatter, ErrCodeStatement, err.Error(), nil)
	}
	cmd, err := stmtdoc.Build(doc, schema)
	if err != nil {
		return nil, nil, outputCommandError(formatter, ErrCodeStatement, err.Error(), nil)
	}
	formatter.VerboseLog("Resolved %s statement from %s", doc.Kind(), path)
	return doc, cmd, nil
}

// parseLoadError extracts error code and message from a schema load error.
func parseLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Pos.IsValid() {
			return loadErr.Code, fmt.Sprintf("%s:%d:%d: %s",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), loadErr.Message)
		}
		return loadErr.Code, loadErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// outputCommandError writes one error and returns it with exit code 2.
func outputCommandError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}
