// Package engine answers relq commands from relation caches and the store.
//
// The engine sits between the keyword chains callers build and the two
// places rows live: the in-memory relation caches (relcache) and the
// SQLite store. It never parses SQL and never builds expression trees.
//
// ARCHITECTURE:
//
// Local-First Selects:
// A SELECT on a table that Load has fully materialized is answered by
// scanning the cache's ordered index:
// 1. Each row is bound to the FROM table and the WHERE evaluated
// 2. Rows whose condition is not truthy are skipped (NULL is not true)
// 3. Survivors are stably sorted by the ORDER BY specs
// 4. LIMIT truncates; the select list projects columns by name
//
// Database Fallback:
// Any node that cannot be evaluated in memory (EXISTS, NOT, joins, an
// unloaded table) makes the engine compile the statement to SQLite and
// materialize it from the store. Full-row results are written back to
// the cache through change tracking (Registry.Replace).
//
// Writes:
// INSERT, UPDATE and DELETE run against the store. A loaded table is then
// re-read and its cache updated row by row, so later local selects see
// the change.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every command is stamped with a monotonic seq from Clock.Next() and a
// query id from the IDGenerator. Both appear in every log line.
//
// Snapshot Reads:
// A local select scans one immutable cache snapshot; concurrent writers
// publish new snapshots and never disturb a scan in progress.
package engine
