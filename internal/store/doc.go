// Package store keeps run outcomes in SQLite.
//
// Each RunOutcome is written once, in one transaction, keyed by run id:
//   - runs: status, symbol, error, impact report and source digests
//   - sources: content-addressed original and final source states
//   - attempts: one row per repair attempt with its verdict
//   - results and cases: the two execution results of every attempt
//   - warnings: files the symbol index could not scan
//
// Writing an existing run id is a no-op, so sinks may retry safely.
//
// # Deterministic reads
//
// Every query orders by an explicit key (attempt index, mode, case id
// COLLATE BINARY), so reading the same run twice yields identical values.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
