// Package engine implements the repair orchestrator.
//
// A run is a bounded state machine:
//
//	Scoping -> Generating -> Validating -> Terminal(Succeeded)
//	                              |
//	                              +-> Repairing -> Validating ...
//	                              +-> Terminal(ExhaustedBudget)
//
// Any state may also end in Terminal(FatalError), and a cancelled context
// ends the run with Terminal(Cancelled) at the next state boundary.
//
// Single writer: one goroutine drives the machine, and the orchestrator
// never asks the oracle for a new candidate until the previous candidate's
// validation has finished and its verdict is recorded. Concurrent calls to
// Run on one Orchestrator are serialized because they share the same
// source.
//
// Blocking collaborator calls (oracle, suite, source control cleanup) run
// detached from the caller's cancellation and bounded by their own
// timeouts, so a cancelled run never leaves a half-validated candidate or a
// half-written source file behind.
//
// Every run produces exactly one ir.RunOutcome. It is checked with
// RunOutcome.Validate and handed to the Sink once.
package engine
