package impact

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/parity/internal/ir"
)

// WriteSummary renders a plain-text summary of r. Output is deterministic.
func WriteSummary(w io.Writer, r ir.ImpactReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Impact report for %s\n", r.Symbol)
	fmt.Fprintf(&b, "  risk:        %s (low>=%d, high>=%d, fan-out>=%d)\n",
		r.Risk, r.Thresholds.Low, r.Thresholds.High, r.Thresholds.FanOut)
	def := r.DefinitionFile
	if def == "" {
		def = "(not found)"
	}
	fmt.Fprintf(&b, "  definition:  %s\n", def)
	fmt.Fprintf(&b, "  call sites:  %d\n", r.CallSites)
	fmt.Fprintf(&b, "  files:       %d\n", r.FileCount)
	fmt.Fprintf(&b, "  references:  %d\n", r.References)

	b.WriteString("\nFiles:\n")
	for _, f := range r.Files {
		var tags []string
		if f.IsDefinition {
			tags = append(tags, "definition")
		}
		if f.IsTest {
			tags = append(tags, "test")
		}
		tag := ""
		if len(tags) > 0 {
			tag = " [" + strings.Join(tags, ",") + "]"
		}
		fmt.Fprintf(&b, "  %s%s\n", f.Path, tag)
		for _, s := range f.Sites {
			container := s.Container
			if container == "" {
				container = "<module>"
			}
			fmt.Fprintf(&b, "    %s: %s\n", container, joinInts(s.Lines))
		}
	}

	if len(r.TestEvidence) > 0 {
		b.WriteString("\nTest evidence:\n")
		for _, p := range r.TestEvidence {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, wn := range r.Warnings {
			fmt.Fprintf(&b, "  %s\n", wn)
		}
	}
	if r.LowConfidence {
		b.WriteString("\nLow confidence:\n")
		for _, n := range r.ConfidenceNotes {
			fmt.Fprintf(&b, "  - %s\n", n)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
