// Package store is the SQLite row source relation caches are filled from.
//
// The store holds user tables described by ir.TableSpec. It runs SQL text
// produced by the querysql compiler and scans the result rows into
// ir.Record values; it never builds queries from expression trees itself.
//
// # Tables
//
//   - EnsureTable creates a table from its spec (stored columns only)
//   - Tables with a schema live in an attached database of that name
//   - Put upserts records by primary key, for seeding and fixtures
//
// # Reads
//
// Materialize maps result columns to table columns by name and converts
// each value to the column's IR type. SQLite reports booleans as 0/1
// integers; bool columns turn them back into IRBool.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes (file databases)
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - case_sensitive_like=ON: LIKE agrees with local evaluation
package store
