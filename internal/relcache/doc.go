// Package relcache holds materialized rows per entity type in persistent,
// dual-indexed caches.
//
// Each Cache keeps a hash index for point lookups and an ordered index for
// range scans over the same Key/Row pairs. Both are persistent maps from
// github.com/benbjohnson/immutable, so a mutation costs O(log n) new nodes
// and returns a new Cache while every older reference keeps its snapshot.
//
// CARDINALITY:
//
//	                 Put   Remove(k)   RemoveValue(k, v)   RemoveOld(k, old)
//	single-owner     yes   rejected    rejected            yes
//	multi-owner      yes   yes         rejected            yes
//
// A single-owner cache holds at most one row per key and retires rows only
// through RemoveOld, which change tracking drives via Registry.Replace.
// A multi-owner cache may hold the same row under several keys, which is
// why removing "the" key of a value is ambiguous there.
//
// CONCURRENCY:
//
// Readers Load a snapshot from a Relation and need no locks. Writers
// publish with Relation.Update, an optimistic compare-and-swap loop.
package relcache
