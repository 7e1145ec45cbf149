package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// CycleWarning represents a generated column whose reference chain loops
// back on itself.
//
// Cycles are warnings, not errors: the table still loads. Such a column
// evaluates to NULL locally and fails SQL compilation.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["users.a", "users.b", "users.a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles reports every generated column cycle across specs,
// ordered by the first column of each path. Column names in paths are
// qualified with the table's entity type.
func AnalyzeCycles(specs []*ir.TableSpec) []CycleWarning {
	warnings := []CycleWarning{}
	for _, spec := range specs {
		warnings = append(warnings, tableCycles(spec)...)
	}

	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// walk states for tableCycles.
const (
	unvisited = iota
	onChain
	finished
)

// tableCycles follows the reference chain of every generated column of
// spec. A generated column has exactly one source, so a chain either ends
// at a stored column or enters exactly one cycle. Each cycle is reported
// once, no matter how many chains lead into it.
func tableCycles(spec *ir.TableSpec) []CycleWarning {
	next := make(map[string]string)
	for _, col := range spec.Columns {
		if col.Generated == "" {
			continue
		}
		if src, ok := spec.Column(col.Generated); ok && src.Generated != "" {
			next[col.Name] = src.Name
		}
	}

	starts := make([]string, 0, len(next))
	for name := range next {
		starts = append(starts, name)
	}
	slices.Sort(starts)

	state := make(map[string]int, len(next))
	var warnings []CycleWarning
	for _, start := range starts {
		var chain []string
		for col := start; ; {
			if state[col] == finished {
				break
			}
			if state[col] == onChain {
				loop := chain[slices.Index(chain, col):]
				warnings = append(warnings, cycleWarning(spec, loop))
				break
			}
			state[col] = onChain
			chain = append(chain, col)

			src, ok := next[col]
			if !ok {
				break
			}
			col = src
		}
		for _, col := range chain {
			state[col] = finished
		}
	}
	return warnings
}

// cycleWarning renders loop, given in reference order, starting from its
// smallest column and closing back on it.
func cycleWarning(spec *ir.TableSpec, loop []string) CycleWarning {
	first := slices.Index(loop, slices.Min(loop))
	rotated := append(slices.Clone(loop[first:]), loop[:first]...)

	path := make([]string, 0, len(rotated)+1)
	for _, col := range rotated {
		path = append(path, spec.QualifiedName()+"."+col)
	}
	path = append(path, path[0])

	message := fmt.Sprintf("Generated column cycle detected: %s", strings.Join(path, " → "))
	if len(loop) == 1 {
		message = fmt.Sprintf("Generated column references itself: %s → %s", path[0], path[0])
	}

	return CycleWarning{
		Path:    path,
		Message: message,
		Level:   "warning",
	}
}
