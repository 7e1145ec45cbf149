package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden files from this run
	Filter string // glob over scenario file names, without extension
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult is the outcome of a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <schema-dir> <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every scenario file under a directory through the harness.

A scenario seeds a fresh in-memory database built from the schema
directory, loads relation caches, runs its statements through the engine
and checks step expectations and assertions. Scenarios that name their own
schema resolve it against the schema directory. When
<scenarios-dir>/golden/<name>.golden exists the recorded trace must match
it byte for byte; --update rewrites it instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directories, bad filter)

Examples:
  relq test ./schema ./scenarios
  relq test ./schema ./scenarios --filter "cache_*"
  relq test ./schema ./scenarios --update
  relq test ./schema ./scenarios --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

// suite runs scenario files against one schema directory.
type suite struct {
	opts      *TestOptions
	schemaDir string
	out       *OutputFormatter
}

func runTests(opts *TestOptions, schemaDir, scenariosDir string, cmd *cobra.Command) error {
	for _, dir := range []struct{ what, path string }{
		{"schema", schemaDir},
		{"scenarios", scenariosDir},
	} {
		if _, err := os.Stat(dir.path); os.IsNotExist(err) {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s directory not found: %s", dir.what, dir.path))
		}
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	s := &suite{
		opts:      opts,
		schemaDir: schemaDir,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		r := s.run(file)
		result.Scenarios = append(result.Scenarios, r)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	return s.summarize(result)
}

// findScenarioFiles returns the .yaml and .yml files under dir whose base
// name, without extension, matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}

		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// run executes one scenario file. Step and assertion failures are
// reported together with a golden mismatch.
func (s *suite) run(file string) ScenarioResult {
	scenario, err := harness.LoadScenarioWithBasePath(file, s.schemaDir)
	if err != nil {
		return s.report(filepath.Base(file), "", fmt.Sprintf("failed to load scenario: %v", err))
	}
	s.out.VerboseLog("Running %s from %s", scenario.Name, file)

	result, err := harness.Run(scenario)
	if err != nil {
		return s.report(scenario.Name, "", fmt.Sprintf("execution failed: %v", err))
	}

	got, err := harness.NewTraceSnapshot(scenario, result).Marshal()
	if err != nil {
		return s.report(scenario.Name, "", fmt.Sprintf("failed to marshal trace: %v", err))
	}

	goldenPath := goldenFilePath(file)
	errs := result.Errors

	if s.opts.Update {
		if err := writeGolden(goldenPath, got); err != nil {
			return s.report(scenario.Name, "", fmt.Sprintf("failed to update golden file: %v", err))
		}
		return s.report(scenario.Name, " (golden updated)", errs...)
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		errs = append(errs, fmt.Sprintf("golden comparison failed: %v", err))
	case !bytes.Equal(want, got):
		errs = append(errs, "trace does not match golden file (run with --update to regenerate)")
	}

	return s.report(scenario.Name, "", errs...)
}

// report prints one scenario line in text mode and returns its result.
// The scenario passed when errs is empty.
func (s *suite) report(name, note string, errs ...string) ScenarioResult {
	if s.out.Format != "json" {
		w := s.out.Writer
		if len(errs) == 0 {
			fmt.Fprintf(w, "✓ %s%s\n", name, note)
		} else {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
	}
	return ScenarioResult{Name: name, Pass: len(errs) == 0, Errors: errs}
}

// summarize writes the run totals. Any failed scenario is exit code 1.
func (s *suite) summarize(result TestResult) error {
	var failure error
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	if s.out.Format == "json" {
		if failure == nil {
			return s.out.Success(result)
		}
		if err := s.out.Fail(result, CLIError{Code: "E_TEST_FAILED", Message: failure.Error()}); err != nil {
			return err
		}
		return failure
	}

	w := s.out.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure != nil {
		return failure
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
