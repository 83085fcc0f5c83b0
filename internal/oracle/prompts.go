package oracle

import (
	"fmt"
	"strings"

	"github.com/roach88/parity/internal/ir"
)

const plannerSystem = `You are a senior engineer planning a behavior-preserving rewrite.
You receive one source file and a report of every place the target symbol is used.
Produce a short numbered plan: the helpers and constants to introduce, the order of
the changes, and the edge cases that must keep their current results.
Do not write code.`

const patcherSystem = `You are a senior engineer implementing a behavior-preserving rewrite.
The file keeps two implementations of the target behind an environment toggle:
the existing one runs when the toggle is unset, the rewritten one when it is set.
Leave the existing implementation and the toggle routing exactly as they are.
Only the toggled implementation and any new helpers may change.
The public signature of the target must not change.
Reply with the complete source file and nothing else.`

const fixerSystem = `You are a senior engineer fixing a rewrite that changed observable behavior.
The same test suite was run with the toggle unset and set, and some cases disagree.
Change only the toggled implementation and its helpers so that every case has the
same outcome in both modes. Do not touch the existing implementation or the routing.
Reply with the complete source file and nothing else.`

// maxDiagnostic bounds each diagnostic quoted into a repair prompt.
const maxDiagnostic = 2000

func plannerPrompt(req ProposeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Target\n\n%s in %s\n\n", req.Symbol.Name, req.Current.Path)
	if req.Goal != "" {
		fmt.Fprintf(&b, "# Goal\n\n%s\n\n", req.Goal)
	}
	writeImpact(&b, req.Report)
	writeSource(&b, "Source", req.Current)
	return b.String()
}

func patcherPrompt(req ProposeRequest, plan string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Target\n\n%s in %s, toggle %s\n\n", req.Symbol.Name, req.Current.Path, req.Toggle)
	if req.Goal != "" {
		fmt.Fprintf(&b, "# Goal\n\n%s\n\n", req.Goal)
	}
	fmt.Fprintf(&b, "# Plan\n\n%s\n\n", strings.TrimSpace(plan))
	writeSource(&b, "Source", req.Current)
	b.WriteString("Reply with the complete file.\n")
	return b.String()
}

func fixerPrompt(req RepairRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Repair %d\n\n%s in %s, toggle %s\n\n", req.Iteration, req.Symbol.Name, req.Candidate.Path, req.Toggle)
	fmt.Fprintf(&b, "# Verdict\n\n%s", req.Verdict.Classification)
	if req.Verdict.Reason != "" {
		fmt.Fprintf(&b, ": %s", req.Verdict.Reason)
	}
	b.WriteString("\n\n")

	if len(req.Verdict.Divergences) > 0 {
		b.WriteString("# Diverging cases\n\n")
		for _, d := range req.Verdict.Divergences {
			fmt.Fprintf(&b, "- %s: baseline=%s candidate=%s\n", d.CaseID, orMissing(d.Baseline), orMissing(d.Candidate))
			if d.Diagnostic != "" {
				fmt.Fprintf(&b, "  %s\n", indent(truncate(d.Diagnostic, maxDiagnostic), "  "))
			}
		}
		b.WriteString("\n")
	}
	for _, r := range []ir.ExecutionResult{req.Baseline, req.Result} {
		if r.HarnessError != "" {
			fmt.Fprintf(&b, "# %s harness error\n\n%s\n\n", r.Mode, r.HarnessError)
		}
	}
	writeSource(&b, "Current candidate", req.Candidate)
	b.WriteString("Reply with the complete fixed file.\n")
	return b.String()
}

func writeImpact(b *strings.Builder, r ir.ImpactReport) {
	fmt.Fprintf(b, "# Impact\n\nrisk %s, %d call site file(s), %d reference(s)\n", r.Risk, r.CallSites, r.References)
	for _, f := range r.Files {
		for _, s := range f.Sites {
			container := s.Container
			if container == "" {
				container = "<file>"
			}
			fmt.Fprintf(b, "- %s %s lines %s\n", f.Path, container, joinLines(s.Lines))
		}
	}
	b.WriteString("\n")
}

func writeSource(b *strings.Builder, title string, s ir.SourceState) {
	fmt.Fprintf(b, "# %s (%s)\n\n```\n%s\n```\n\n", title, s.Path, strings.TrimRight(s.Content, "\n"))
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprint(l)
	}
	return strings.Join(parts, ",")
}

func orMissing(s ir.CaseStatus) string {
	if s == "" {
		return "missing"
	}
	return string(s)
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}
