// Package harness provides conformance testing for relq schemas and
// statements.
//
// The harness loads a CUE schema into a fresh in-memory store, seeds it,
// runs statements through the engine, and validates each step's result
// along with assertions over the trace, the store and the relation caches.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: ../schema
//	seed:
//	  - table: users
//	    rows:
//	      - {id: 1, name: Ann}
//	load: [users]
//	steps:
//	  - name: find_ann
//	    statement:
//	      select: {from: users, where: {like: [{col: name}, "A%"]}}
//	    expect:
//	      source: cache
//	      rows: [{id: 1}]
//	  - name: rename
//	    statement:
//	      update: {table: users, set: [{column: name, to: Anne}], where: {eq: [{col: id}, 1]}}
//	    expect:
//	      rows_affected: 1
//	assertions:
//	  - type: cache_state
//	    table: users
//	    where: {id: 1}
//	    expect: {name: Anne}
//
// Statements use the stmtdoc format shared with the relq CLI.
//
// # Assertion Types
//
//   - trace_contains: an event of a type (load, select, exec) ran, optionally on a table or from a source
//   - trace_order: named steps ran in the given order
//   - trace_count: exactly N matching events ran
//   - final_state: exactly one store row matches where and holds expect
//   - cache_state: the cached row with the given primary key holds expect, or is absent
//
// # Deterministic Testing
//
// Every statement is stamped with the scenario's fixed query id and a
// logical clock starting at zero, so traces compare byte for byte against
// golden snapshots in testdata/golden.
package harness
