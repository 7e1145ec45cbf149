package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/stmtdoc"
)

// Scenario defines a conformance test scenario: a schema, seed rows, the
// tables to load into relation caches, and statements whose results are
// checked step by step and in the final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the directory of CUE table definitions. Relative paths
	// are resolved against the scenario file's directory, or the base
	// path when one is given.
	Schema string `yaml:"schema"`

	// Seed rows are written to the store before anything runs.
	Seed []SeedTable `yaml:"seed,omitempty"`

	// Load lists tables materialized into relation caches after seeding.
	Load []string `yaml:"load,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace, store and caches.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// QueryID is the fixed query id stamped on every statement.
	// Defaults to "test-id-default".
	QueryID string `yaml:"query_id,omitempty"`
}

// SeedTable holds rows for one table. Missing columns are NULL.
type SeedTable struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// Step is either a statement to run or a table to (re)load.
type Step struct {
	// Name labels the step in traces and trace_order assertions.
	Name string `yaml:"name,omitempty"`

	// Statement is the statement document to run.
	Statement *stmtdoc.Document `yaml:"statement,omitempty"`

	// Load names a table to materialize instead of running a statement.
	Load string `yaml:"load,omitempty"`

	// Expect checks the step's outcome. If nil, the step must not fail.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies a step's expected outcome.
type ExpectClause struct {
	// Source is "cache" or "database" for selects.
	Source string `yaml:"source,omitempty"`

	// Rows are the expected rows in order. Only listed columns are
	// compared.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Count is the expected number of rows returned.
	Count *int `yaml:"count,omitempty"`

	// RowsAffected is the expected count for insert, update and delete.
	RowsAffected *int64 `yaml:"rows_affected,omitempty"`

	// Error is a substring the step's error must contain. The step is
	// expected to fail when set.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Event type on Table (and Source) exists
	// - "trace_order": named steps ran in the given order
	// - "trace_count": exactly Count events of Event type ran
	// - "final_state": one store row matches Where and holds Expect
	// - "cache_state": the cached row keyed by Where holds Expect,
	//   or is missing when Absent
	Type string `yaml:"type"`

	// Event is a trace event type (load, select or exec).
	Event string `yaml:"event,omitempty"`

	// Table is a qualified table name.
	Table string `yaml:"table,omitempty"`

	// Source restricts trace_contains to cache or database selects.
	Source string `yaml:"source,omitempty"`

	// Steps is the expected step order (trace_order).
	Steps []string `yaml:"steps,omitempty"`

	// Count is the expected number of events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Where selects the row (final_state, cache_state). For cache_state
	// it must hold every primary-key column.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent expects no cached row (cache_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertCacheState    = "cache_state"
)

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative schema path against basePath. A scenario without
// a schema uses basePath itself.
//
// Unknown fields are rejected (catches typos like "assertion:" vs
// "assertions:").
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	switch {
	case scenario.Schema == "":
		scenario.Schema = basePath
	case !filepath.IsAbs(scenario.Schema):
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if info, err := os.Stat(s.Schema); err != nil || !info.IsDir() {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, seed := range s.Seed {
		if seed.Table == "" {
			return fmt.Errorf("seed[%d]: table is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	switch {
	case step.Statement == nil && step.Load == "":
		return fmt.Errorf("steps[%d]: statement or load is required", index)
	case step.Statement != nil && step.Load != "":
		return fmt.Errorf("steps[%d]: statement and load are mutually exclusive", index)
	case step.Statement != nil:
		if err := step.Statement.Check(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}

	if e := step.Expect; e != nil {
		if e.Source != "" && e.Source != "cache" && e.Source != "database" {
			return fmt.Errorf("steps[%d].expect: source must be cache or database, got %q", index, e.Source)
		}
		if e.Count != nil && *e.Count < 0 {
			return fmt.Errorf("steps[%d].expect: count must be non-negative", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertCacheState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for cache_state", index)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for cache_state", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for cache_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
