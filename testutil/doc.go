// Package testutil provides testing utilities for dictgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random source plus helpers for
// generating dictionary keys and synthetic allocation traces.
//
// # Key Generation
//
//	rng := testutil.NewRNG(seed)
//	key := rng.Key(8)        // distinct within the significant prefix
//	keys := rng.Keys(100, 8) // pairwise distinct
//
// # Allocation Traces
//
//	ptrs := rng.Pointers(1000, 16)
package testutil
