package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/engine"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/stmtdoc"
	"github.com/roach88/relq/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Schema   string
	Database string
	Load     []string
	MaxRows  int

	// IDGenerator allows overriding the query id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// RunResult is the outcome of one statement.
type RunResult struct {
	Kind         string        `json:"kind"`
	QueryID      string        `json:"query_id,omitempty"`
	Seq          int64         `json:"seq"`
	Source       string        `json:"source,omitempty"`
	Rows         []ir.IRObject `json:"rows,omitempty"`
	RowsAffected int64         `json:"rows_affected"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <statement.yaml>",
		Short: "Run a statement against a database",
		Long: `Run a YAML statement document against a SQLite database.

Tables of the schema are created if they do not exist. Tables named with
--load are materialized into relation caches first; a SELECT on a loaded
table is answered from its cache when its conditions allow, and from the
database otherwise.

Example:
  relq run --schema ./schema --db ./relq.db ./statements/find_ann.yaml
  relq run --schema ./schema --db ./relq.db --load users ./statements/find_ann.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatement(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema directory (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringSliceVar(&opts.Load, "load", nil, "tables to load into relation caches first")
	cmd.Flags().IntVar(&opts.MaxRows, "max-rows", 0, "fail when one read returns more rows (0 = no limit)")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatement(opts *RunOptions, path string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
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

	// Cancel in-flight queries on Ctrl-C.
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeDatabase, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	for _, t := range schema.Tables {
		if err := st.EnsureTable(ctx, t); err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, err.Error(), nil)
		}
	}

	engineOpts := []engine.EngineOption{engine.WithMaxRows(opts.MaxRows)}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng := engine.New(st, engineOpts...)

	for _, name := range opts.Load {
		spec, ok := schema.Table(name)
		if !ok {
			return outputCommandError(formatter, ErrCodeStatement, fmt.Sprintf("unknown table %q in --load", name), nil)
		}
		n, err := eng.Load(ctx, spec)
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase, err.Error(), nil)
		}
		formatter.VerboseLog("Loaded %d row(s) of %s", n, name)
	}

	result := RunResult{Kind: doc.Kind()}
	if doc.Kind() == stmtdoc.KindSelect {
		res, err := eng.Select(ctx, stmt)
		if err != nil {
			return outputRunError(formatter, err)
		}
		result.QueryID = res.QueryID
		result.Seq = res.Seq
		result.Source = string(res.Source)
		result.Rows = make([]ir.IRObject, len(res.Records))
		for i, r := range res.Records {
			result.Rows[i] = r.Values
		}
	} else {
		n, err := eng.Exec(ctx, stmt)
		if err != nil {
			return outputRunError(formatter, err)
		}
		result.RowsAffected = n
	}

	return outputRunSuccess(formatter, result)
}

// outputRunError reports a failed statement. Row limit overruns keep
// their own code.
func outputRunError(formatter *OutputFormatter, err error) error {
	code := ErrCodeDatabase
	var details any
	var rtErr *engine.RuntimeError
	if errors.As(err, &rtErr) {
		code = string(rtErr.Code)
		if len(rtErr.Details) > 0 {
			details = rtErr.Details
		}
		if formatter.Format == "json" {
			_ = formatter.respond(CLIResponse{
				Status:  "error",
				Error:   &CLIError{Code: code, Message: err.Error(), Details: details},
				QueryID: rtErr.QueryID,
			})
			return WrapExitError(ExitFailure, "statement failed", err)
		}
	}
	_ = formatter.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, "statement failed", err)
}

func outputRunSuccess(formatter *OutputFormatter, result RunResult) error {
	if formatter.Format == "json" {
		return formatter.respond(CLIResponse{Status: "ok", Data: result, QueryID: result.QueryID})
	}

	w := formatter.Writer
	if result.Kind != stmtdoc.KindSelect {
		fmt.Fprintf(w, "✓ %s affected %d row(s)\n", result.Kind, result.RowsAffected)
		return nil
	}

	fmt.Fprintf(w, "✓ %d row(s) from %s\n", len(result.Rows), result.Source)
	for _, row := range result.Rows {
		data, err := row.MarshalJSON()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", data)
	}
	return nil
}
