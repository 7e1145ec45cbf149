// Package ir provides the foundational value and metadata types for relq.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers so that cache keys
//     stay deterministic
//   - Row values compare byte for byte, as SQLite's BINARY collation does;
//     only identifiers are compared in NFC
//   - IRValue is sealed; SQL NULL is the explicit IRNull value, never Go nil
//   - Compare is a total order over every IRValue and is what the ordered
//     cache index sorts by
//   - TableSpec is the narrow slice of schema metadata the core consumes;
//     full schema definitions live outside relq
package ir
