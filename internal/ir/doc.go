// Package ir holds the data model shared by every parity component.
//
// This package contains type definitions and the canonical encoding used for
// content-addressed identity. All other internal packages import ir; ir imports
// nothing internal.
//
// Key design constraints:
//   - Values produced by a component (UsageSite, ImpactReport, ExecutionResult,
//     Verdict, RunOutcome) are never mutated after construction. A new attempt
//     produces a new value.
//   - ExecutionMode is a first-class selector, never a boolean.
//   - All JSON tags use snake_case.
//   - Digests are domain-separated SHA-256 over canonical JSON (see hash.go).
package ir
