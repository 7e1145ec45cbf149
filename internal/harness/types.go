package harness

import "github.com/roach88/relq/internal/ir"

// Trace event types.
const (
	EventLoad   = "load"
	EventSelect = "select"
	EventExec   = "exec"
)

// TraceEvent records one executed step: what ran, the SQLite text it
// compiles to, and what came back.
type TraceEvent struct {
	Seq          int64         `json:"seq"`
	Step         string        `json:"step,omitempty"`
	Type         string        `json:"type"`
	Table        string        `json:"table"`
	SQL          string        `json:"sql,omitempty"`
	Params       []any         `json:"params,omitempty"`
	Source       string        `json:"source,omitempty"`
	Rows         []ir.IRObject `json:"rows,omitempty"`
	RowsAffected int64         `json:"rows_affected,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per load and step, in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
