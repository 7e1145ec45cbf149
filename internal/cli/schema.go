package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/ir"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Output string // output file path
}

// SchemaResult holds the compiled tables and cycle warnings.
type SchemaResult struct {
	Tables   []*ir.TableSpec         `json:"tables"`
	Warnings []compiler.CycleWarning `json:"warnings"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema <schema-dir>",
		Short: "Compile CUE table definitions",
		Long: `Compile the CUE table definitions in a directory and report them.

Every table is compiled and validated; all errors are reported, not just
the first. Cycles among generated columns are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled tables as JSON to this file")

	return cmd
}

func runSchema(opts *SchemaOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	schema, loadErrors := compiler.LoadSchema(dir, compiler.LoadModeCollectAll)

	// Directory-level failures return no schema at all.
	if schema == nil {
		code, message := parseLoadError(loadErrors[0])
		return outputCommandError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", schema.FileCount, dir)
	for _, t := range schema.Tables {
		formatter.VerboseLog("Compiled table: %s", t.QualifiedName())
	}

	if len(loadErrors) > 0 {
		return outputSchemaErrors(formatter, loadErrors)
	}

	result := &SchemaResult{Tables: schema.Tables, Warnings: schema.Warnings}

	if opts.Output != "" {
		if err := writeSchemaToFile(result, opts.Output); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputSchemaSuccess(formatter, result, opts.Output)
}

// outputSchemaSuccess outputs the compiled tables.
func outputSchemaSuccess(formatter *OutputFormatter, result *SchemaResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d table(s)\n\n", len(result.Tables))

	fmt.Fprintln(w, "Tables:")
	for _, t := range result.Tables {
		generated := 0
		for _, c := range t.Columns {
			if c.Generated != "" {
				generated++
			}
		}
		fmt.Fprintf(w, "  %s: %d column(s), %d generated, key (%s), %s\n",
			t.QualifiedName(), len(t.Columns), generated, strings.Join(t.PrimaryKey, ", "), t.Cardinality)
	}
	fmt.Fprintln(w)

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "  %s\n", warn.Message)
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote tables to %s\n", outputFile)
	}

	return nil
}

// outputSchemaErrors outputs every schema error.
func outputSchemaErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		if err := formatter.Fail(cliErrors, cliErrors[0]); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("schema failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Schema failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseLoadError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			message = loadErr.Message
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", code, message)
		if loadErr != nil && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "    at %s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
	}
	fmt.Fprintln(formatter.Writer)

	return NewExitError(ExitCommandError, fmt.Sprintf("schema failed with %d error(s)", len(errs)))
}

// writeSchemaToFile writes the compiled tables as indented JSON.
func writeSchemaToFile(result *SchemaResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tables: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
