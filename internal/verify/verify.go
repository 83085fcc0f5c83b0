// Package verify compares two ExecutionResults and classifies them as
// Equivalent, Diverged or Inconclusive.
//
// Verify is pure: no I/O, no shared state. Its classification does not
// depend on argument order; only the mode attribution of each divergence
// follows the results' own Mode fields.
package verify

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/parity/internal/ir"
)

// Verify classifies the pair (a, b). Rules apply in order:
//
//  1. a harness-level error on either side: Inconclusive
//  2. different case-id sets: Inconclusive, listing one-sided ids
//  3. any flaky case on either side: Inconclusive
//  4. any case with differing status: Diverged, listing those cases
//  5. no cases on either side: Inconclusive (empty suite)
//  6. identical failures on both sides: Inconclusive
//  7. otherwise: Equivalent
func Verify(a, b ir.ExecutionResult) ir.Verdict {
	if a.HarnessFailed() || b.HarnessFailed() {
		var parts []string
		for _, r := range ordered(a, b) {
			if r.HarnessFailed() {
				parts = append(parts, fmt.Sprintf("%s: %s", r.Mode, r.HarnessError))
			}
		}
		return ir.Verdict{
			Classification: ir.Inconclusive,
			Reason:         "harness error: " + strings.Join(parts, "; "),
		}
	}

	if missing := shapeMismatch(a, b); len(missing) > 0 {
		return ir.Verdict{
			Classification: ir.Inconclusive,
			Divergences:    missing,
			Reason: fmt.Sprintf("case sets differ (%s %d cases, %s %d cases, %d one-sided)",
				a.Mode, len(a.Cases), b.Mode, len(b.Cases), len(missing)),
		}
	}

	if flaky := mergeFlaky(a, b); len(flaky) > 0 {
		return ir.Verdict{
			Classification: ir.Inconclusive,
			Reason:         "flaky cases: " + strings.Join(flaky, ", "),
		}
	}

	var divergences []ir.Divergence
	for _, ca := range a.Cases {
		cb, _ := b.Case(ca.ID)
		if ca.Status == cb.Status {
			continue
		}
		divergences = append(divergences, divergence(a.Mode, ca, b.Mode, cb))
	}
	if len(divergences) > 0 {
		return ir.Verdict{
			Classification: ir.Diverged,
			Divergences:    divergences,
			Reason:         fmt.Sprintf("%d of %d cases differ between modes", len(divergences), len(a.Cases)),
		}
	}

	if len(a.Cases) == 0 {
		return ir.Verdict{Classification: ir.Inconclusive, Reason: "empty suite: no cases ran in either mode"}
	}

	if failing := a.Counts.Failed + a.Counts.Errored; failing > 0 {
		return ir.Verdict{
			Classification: ir.Inconclusive,
			Reason:         fmt.Sprintf("both modes fail the same %d case(s)", failing),
		}
	}

	return ir.Verdict{
		Classification: ir.Equivalent,
		Reason:         fmt.Sprintf("all %d cases agree", len(a.Cases)),
	}
}

// shapeMismatch lists case ids present on only one side, in id order.
func shapeMismatch(a, b ir.ExecutionResult) []ir.Divergence {
	var out []ir.Divergence
	for _, pair := range [][2]ir.ExecutionResult{{a, b}, {b, a}} {
		have, other := pair[0], pair[1]
		for _, c := range have.Cases {
			if _, ok := other.Case(c.ID); ok {
				continue
			}
			d := ir.Divergence{CaseID: c.ID, Diagnostic: fmt.Sprintf("only present in %s", have.Mode)}
			setStatus(&d, have.Mode, c.Status)
			if c.Status.Failing() {
				d.FailedIn = []ir.ExecutionMode{have.Mode}
			}
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(x, y ir.Divergence) int { return strings.Compare(x.CaseID, y.CaseID) })
	return out
}

func divergence(modeA ir.ExecutionMode, ca ir.CaseOutcome, modeB ir.ExecutionMode, cb ir.CaseOutcome) ir.Divergence {
	d := ir.Divergence{CaseID: ca.ID}
	setStatus(&d, modeA, ca.Status)
	setStatus(&d, modeB, cb.Status)

	var diags []string
	for _, side := range []struct {
		mode ir.ExecutionMode
		c    ir.CaseOutcome
	}{{modeA, ca}, {modeB, cb}} {
		if !side.c.Status.Failing() {
			continue
		}
		d.FailedIn = append(d.FailedIn, side.mode)
		if side.c.Diagnostic != "" {
			diags = append(diags, fmt.Sprintf("[%s] %s", side.mode, side.c.Diagnostic))
		}
	}
	slices.SortFunc(d.FailedIn, compareModes)
	slices.Sort(diags)
	d.Diagnostic = strings.Join(diags, "\n")
	if d.Diagnostic == "" {
		d.Diagnostic = fmt.Sprintf("%s %s, %s %s", modeA, ca.Status, modeB, cb.Status)
	}
	return d
}

func setStatus(d *ir.Divergence, mode ir.ExecutionMode, s ir.CaseStatus) {
	if mode == ir.ModeCandidate {
		d.Candidate = s
	} else {
		d.Baseline = s
	}
}

func mergeFlaky(a, b ir.ExecutionResult) []string {
	flaky := append(slices.Clone(a.FlakyCases), b.FlakyCases...)
	slices.Sort(flaky)
	return slices.Compact(flaky)
}

// ordered returns the pair baseline first when the modes allow it, so
// messages read the same regardless of argument order.
func ordered(a, b ir.ExecutionResult) []ir.ExecutionResult {
	if compareModes(a.Mode, b.Mode) > 0 {
		return []ir.ExecutionResult{b, a}
	}
	return []ir.ExecutionResult{a, b}
}

func compareModes(x, y ir.ExecutionMode) int {
	rank := func(m ir.ExecutionMode) int {
		if m == ir.ModeBaseline {
			return 0
		}
		return 1
	}
	return rank(x) - rank(y)
}
