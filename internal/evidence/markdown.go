package evidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/parity/internal/ir"
)

// digestWidth is how much of a digest the report shows.
const digestWidth = 12

// RenderMarkdown renders EVIDENCE.md for o. The output depends only on o.
func RenderMarkdown(o ir.RunOutcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Evidence Pack: %s\n\n", o.Symbol)
	writeSummary(&b, o)

	if o.Error != nil {
		fmt.Fprintf(&b, "## Error\n\n`%s` in state `%s`: %s\n\n", o.Error.Code, o.Error.State, o.Error.Message)
	}
	if o.Report != nil {
		writeImpact(&b, *o.Report)
	}
	if len(o.Attempts) > 0 {
		b.WriteString("## Attempts\n\n")
		for _, a := range o.Attempts {
			writeAttempt(&b, a)
		}
	}
	if o.Diff != "" {
		fmt.Fprintf(&b, "## Diff\n\n```diff\n%s\n```\n", strings.TrimRight(o.Diff, "\n"))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSummary(b *strings.Builder, o ir.RunOutcome) {
	b.WriteString("## Summary\n\n| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		fmt.Fprintf(b, "| %s | %s |\n", k, cell(v))
	}
	row("Run", o.RunID)
	row("Status", string(o.Status))
	if o.Report != nil {
		row("Risk", string(o.Report.Risk))
	}
	row("Attempts", fmt.Sprintf("%d (%d of %d repairs)", len(o.Attempts), o.Repairs(), o.MaxRepairs))
	if n := len(o.Attempts); n > 0 {
		row("Final verdict", string(o.Attempts[n-1].Verdict.Classification))
	}
	if o.DryRun {
		row("Dry run", "yes")
	}
	row("Started", o.StartedAt.UTC().Format(time.RFC3339))
	row("Duration", o.FinishedAt.Sub(o.StartedAt).String())
	b.WriteString("\n")
}

func writeImpact(b *strings.Builder, r ir.ImpactReport) {
	b.WriteString("## Impact\n\n")
	def := r.DefinitionFile
	if def == "" {
		def = "(not found)"
	}
	fmt.Fprintf(b, "- Definition: `%s`\n", def)
	fmt.Fprintf(b, "- Call sites: %d across %d file(s)\n", r.CallSites, r.FileCount)
	fmt.Fprintf(b, "- References: %d\n\n", r.References)

	if len(r.Files) > 0 {
		b.WriteString("| File | Kind | Refs | Sites |\n|---|---|---|---|\n")
		for _, f := range r.Files {
			kind := "call site"
			switch {
			case f.IsDefinition:
				kind = "definition"
			case f.IsTest:
				kind = "test"
			}
			sites := make([]string, len(f.Sites))
			for i, s := range f.Sites {
				container := s.Container
				if container == "" {
					container = "<module>"
				}
				sites[i] = container + ":" + joinInts(s.Lines)
			}
			fmt.Fprintf(b, "| `%s` | %s | %d | %s |\n", f.Path, kind, f.References, cell(strings.Join(sites, "; ")))
		}
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		b.WriteString("Scan warnings:\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(b, "- `%s`: %s\n", w.Path, w.Reason)
		}
		b.WriteString("\n")
	}
	if r.LowConfidence {
		b.WriteString("Low confidence:\n\n")
		for _, n := range r.ConfidenceNotes {
			fmt.Fprintf(b, "- %s\n", n)
		}
		b.WriteString("\n")
	}
}

func writeAttempt(b *strings.Builder, a ir.RepairAttempt) {
	label := "proposal"
	if a.Index > 0 {
		label = fmt.Sprintf("repair %d", a.Index)
	}
	fmt.Fprintf(b, "### Attempt %d (%s)\n\n", a.Index, label)

	digest := a.CandidateDigest
	if len(digest) > digestWidth {
		digest = digest[:digestWidth]
	}
	repeated := ""
	if a.Repeated {
		repeated = " (repeated)"
	}
	fmt.Fprintf(b, "- Candidate source: `%s`%s\n", digest, repeated)
	for _, r := range []ir.ExecutionResult{a.Baseline, a.Candidate} {
		fmt.Fprintf(b, "- %s: %s\n", r.Mode, counts(r))
	}
	fmt.Fprintf(b, "- Verdict: **%s**", a.Verdict.Classification)
	if a.Verdict.Reason != "" {
		fmt.Fprintf(b, ": %s", a.Verdict.Reason)
	}
	b.WriteString("\n\n")

	if len(a.Verdict.Divergences) > 0 {
		b.WriteString("| Case | Baseline | Candidate | Failed in |\n|---|---|---|---|\n")
		for _, d := range a.Verdict.Divergences {
			failed := make([]string, len(d.FailedIn))
			for i, m := range d.FailedIn {
				failed[i] = string(m)
			}
			fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n",
				d.CaseID, statusCell(d.Baseline), statusCell(d.Candidate), cell(strings.Join(failed, ", ")))
		}
		b.WriteString("\n")
	}
}

func counts(r ir.ExecutionResult) string {
	s := fmt.Sprintf("%d passed, %d failed, %d errored, %d skipped in %s",
		r.Counts.Passed, r.Counts.Failed, r.Counts.Errored, r.Counts.Skipped, r.Duration.Round(time.Millisecond))
	if r.HarnessError != "" {
		s += "; harness error: " + r.HarnessError
	}
	if len(r.FlakyCases) > 0 {
		s += fmt.Sprintf("; %d flaky", len(r.FlakyCases))
	}
	return s
}

func statusCell(s ir.CaseStatus) string {
	if s == "" {
		return "(missing)"
	}
	return string(s)
}

// cell makes v safe inside a table cell.
func cell(v string) string {
	if v == "" {
		return "-"
	}
	v = strings.ReplaceAll(v, "|", `\|`)
	return strings.ReplaceAll(v, "\n", " ")
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
