package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Schema  string // schema directory
	Dialect string // sqlite, postgres or mysql
}

// CompilationResult is a statement rendered for one dialect.
type CompilationResult struct {
	Kind    string `json:"kind"`
	Dialect string `json:"dialect"`
	SQL     string `json:"sql"`
	Params  []any  `json:"params"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <statement.yaml>",
		Short: "Compile a statement to parameterized SQL",
		Long: `Compile a YAML statement document to parameterized SQL.

Table and column names are resolved against the schema directory. Values
are never interpolated: the SQL carries placeholders and the parameters
are printed alongside it.

Example:
  relq compile --schema ./schema ./statements/find_ann.yaml
  relq compile --schema ./schema --dialect postgres ./statements/find_ann.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema directory (required)")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", string(querysql.SQLite), "SQL dialect (sqlite|postgres|mysql)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	dialect, err := querysql.ParseDialect(opts.Dialect)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --dialect", err)
	}

	schema, err := loadSchema(formatter, opts.Schema)
	if err != nil {
		return err
	}
	doc, stmt, err := loadStatement(formatter, path, schema)
	if err != nil {
		return err
	}

	sql, params, err := stmt.CompileString(querysql.NewSQLCompiler(dialect))
	if err != nil {
		return outputCommandError(formatter, ErrCodeStatement, err.Error(), nil)
	}

	result := CompilationResult{
		Kind:    doc.Kind(),
		Dialect: string(dialect),
		SQL:     sql,
		Params:  params,
	}
	if result.Params == nil {
		result.Params = []any{}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, result.SQL)
	if len(result.Params) > 0 {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, "Params:")
		for i, p := range result.Params {
			fmt.Fprintf(formatter.Writer, "  %d: %s\n", i+1, formatParam(p))
		}
	}
	return nil
}

// formatParam renders a parameter the way it would read in SQL.
func formatParam(p any) string {
	switch v := p.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
