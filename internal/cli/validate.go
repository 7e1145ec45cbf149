package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/queryir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
}

// ValidationResult holds statement validation results.
type ValidationResult struct {
	Valid            bool     `json:"valid"`
	Kind             string   `json:"kind"`
	LocallyEvaluable bool     `json:"locally_evaluable"`
	Warnings         []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <statement.yaml>",
		Short: "Check a statement without running it",
		Long: `Check a YAML statement document for structural problems without running it.

Reports statements that are almost certainly mistakes: DELETE or UPDATE
without WHERE, columns of tables outside the statement, and INSERT rows
that do not match the column list. Also reports whether the statement's
conditions can be decided from relation caches.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema directory (required)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	schema, err := loadSchema(formatter, opts.Schema)
	if err != nil {
		return err
	}
	doc, stmt, err := loadStatement(formatter, path, schema)
	if err != nil {
		return err
	}

	v := queryir.Validate(stmt.Statement())
	result := ValidationResult{
		Valid:            v.Valid,
		Kind:             doc.Kind(),
		LocallyEvaluable: v.LocallyEvaluable,
		Warnings:         v.Warnings,
	}

	if !result.Valid {
		return outputValidationWarnings(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s statement valid\n", result.Kind)
	if result.LocallyEvaluable {
		fmt.Fprintln(formatter.Writer, "  conditions can be evaluated from relation caches")
	} else {
		fmt.Fprintln(formatter.Writer, "  conditions need the database")
	}
	return nil
}

// outputValidationWarnings outputs every warning.
func outputValidationWarnings(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		err := formatter.Fail(result, CLIError{Code: "E_VALIDATION", Message: result.Warnings[0]})
		if err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d warning(s)", len(result.Warnings)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  %s\n", w)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d warning(s)", len(result.Warnings)))
}
