// Package dictgo provides small composable in-process containers: a
// growable array, a chained hash index, a runtime-typed variant, and a
// string-keyed dictionary of variants built from them.
//
// # Quick Start
//
//	d, _ := dictgo.New(128, 32)
//	defer d.Free()
//
//	_ = d.SetString("mr.key", "mr.value")
//	v := d.GetString("mr.key", "fallback")
//
// # Semantics Worth Knowing
//
// Keys are short: only the first KeyBytes-1 bytes are significant and
// longer keys silently truncate. Comparison and hashing are
// case-folded 7-bit ASCII by default; pass WithCaseSensitive for raw
// byte keys.
//
// The key/value arrays grow on demand, but the embedded hash table
// never resizes. A dictionary that far outgrows its hashTableSize
// still works; lookups just degrade toward linear chain walks. Pick
// the table size for the keys you expect and check IndexStats when in
// doubt.
//
// # Concurrency
//
// Nothing in this module locks, blocks, or suspends. Every container
// is single-owner and externally synchronized: wrap each instance in
// one exclusive lock if it must be shared. Allocation-style failures
// are returned as values; contract violations (wrong-kind variant
// access, out-of-range hash keys, iterating before First) panic.
//
// # Packages
//
//   - array: growable sequence with amortized 1.5x growth
//   - hashindex: fixed-size chained hash index resolving keys to slots
//   - variant: runtime-typed value with owned/borrowed string duality
//   - tracker: pointer-keyed allocation record store built on hashindex
//   - alloclog: structured allocation event logging with optional
//     compression
package dictgo
