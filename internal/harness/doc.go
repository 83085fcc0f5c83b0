// Package harness runs an external verification suite against the target
// unit in one of two execution modes and captures structured results.
//
// # Mode selection
//
// The candidate configuration is selected by a single named toggle (for
// example BILLING_V2). The toggle is passed explicitly for one invocation
// only:
//
//   - CommandRunner builds a fresh environment for each subprocess: the toggle
//     is set to "1" for the candidate and removed for the baseline. The
//     parent process environment is never modified, so runs are isolated and
//     may execute concurrently.
//   - FuncRunner runs an in-process function. The toggle is set through a
//     ScopedEnv that is acquired immediately before the call and released
//     immediately after, under a process-wide lock. Such runs are never
//     concurrent.
//
// # Suite format
//
// Suites may be loaded from YAML:
//
//	name: billing
//	command: [python, -m, pytest, -v, tests/]
//	dir: .
//	reporter: pytest
//	toggle: BILLING_V2
//	timeout: 5m
//	attempts_per_mode: 1
//	parallel: false
//
// The literal argument "{report}" in command is replaced with a fresh
// temporary file path per invocation, whose contents are parsed after the
// run (for example `go test -json` piped to a file, or pytest --junitxml).
//
// # Harness errors
//
// A suite that cannot start, times out, exits non-zero before any case
// runs, fails to build, or leaves no readable report yields an
// ExecutionResult with HarnessError set. That is distinct from an empty
// suite, which exits zero with zero cases.
package harness
