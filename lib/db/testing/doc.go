// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the KVDB interface contract,
//     including per-user isolation, inclusive ranges, key ordering and snapshot round trips
//   - benchmark: Performance tests for measuring throughput of common database operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	testing.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	testing.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
