// Package impact turns a symbol index into a risk-scored ImpactReport.
//
// Analyze is a pure function of its inputs. The risk tier depends only on
// the call-site count, the distinct-file count and the configured thresholds.
package impact

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"

	"github.com/roach88/parity/internal/index"
	"github.com/roach88/parity/internal/ir"
)

// Default risk thresholds.
const (
	// DefaultLowThreshold is the call-site count at which risk becomes medium.
	DefaultLowThreshold = 3

	// DefaultHighThreshold is the call-site count at which risk becomes high.
	DefaultHighThreshold = 10

	// DefaultFanOutThreshold is the distinct-file count that raises the
	// tier by one step.
	DefaultFanOutThreshold = 25
)

// DefaultThresholds returns the documented default thresholds.
func DefaultThresholds() ir.RiskThresholds {
	return ir.RiskThresholds{
		Low:    DefaultLowThreshold,
		High:   DefaultHighThreshold,
		FanOut: DefaultFanOutThreshold,
	}
}

// NormalizeThresholds fills zero fields with defaults and rejects
// inconsistent values.
func NormalizeThresholds(th ir.RiskThresholds) (ir.RiskThresholds, error) {
	def := DefaultThresholds()
	if th.Low == 0 {
		th.Low = def.Low
	}
	if th.High == 0 {
		th.High = def.High
	}
	if th.FanOut == 0 {
		th.FanOut = def.FanOut
	}
	if th.Low < 0 || th.High < 0 || th.FanOut < 0 {
		return th, fmt.Errorf("risk thresholds must be positive: %+v", th)
	}
	if th.Low > th.High {
		return th, fmt.Errorf("low threshold %d exceeds high threshold %d", th.Low, th.High)
	}
	return th, nil
}

// RiskTier classifies a usage profile. It is total over all inputs and
// non-decreasing in callSites for fixed thresholds.
//
//	callSites >= High  -> high
//	callSites >= Low   -> medium
//	otherwise          -> low
//
// A fan-out of FanOut or more distinct files raises the result one step.
func RiskTier(callSites, files int, th ir.RiskThresholds) ir.RiskTier {
	tier := ir.RiskLow
	switch {
	case callSites >= th.High:
		tier = ir.RiskHigh
	case callSites >= th.Low:
		tier = ir.RiskMedium
	}
	if th.FanOut > 0 && files >= th.FanOut {
		switch tier {
		case ir.RiskLow:
			tier = ir.RiskMedium
		case ir.RiskMedium:
			tier = ir.RiskHigh
		}
	}
	return tier
}

// AnalysisError reports that the symbol was found nowhere in the codebase.
type AnalysisError struct {
	Symbol ir.Symbol
	Root   string
	Reason string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis: symbol %s: %s under %s", e.Symbol, e.Reason, e.Root)
}

// Analyze builds the ImpactReport for sym from an index scan.
//
// It fails with *AnalysisError only when the index is empty. Every other
// degradation produces a report flagged LowConfidence.
func Analyze(res *index.Result, sym ir.Symbol, th ir.RiskThresholds) (ir.ImpactReport, error) {
	th, err := NormalizeThresholds(th)
	if err != nil {
		return ir.ImpactReport{}, err
	}
	if res == nil || res.Empty() {
		root := ""
		if res != nil {
			root = res.Root
		}
		return ir.ImpactReport{}, &AnalysisError{Symbol: sym, Root: root, Reason: "not found"}
	}

	defs := res.Definitions()
	defFile := definitionFile(sym, res, defs)

	report := ir.ImpactReport{
		Symbol:         sym,
		DefinitionFile: defFile,
		Files:          make([]ir.FileImpact, 0, len(res.Files)),
		TestEvidence:   []string{},
		Thresholds:     th,
		Warnings:       slices.Clone(res.Warnings),
	}
	if report.Warnings == nil {
		report.Warnings = []ir.ScanWarning{}
	}

	for _, f := range res.Files {
		isDef := f.Path == defFile
		sites := make([]ir.UsageSite, len(f.Sites))
		for i, s := range f.Sites {
			sites[i] = ir.UsageSite{Path: s.Path, Container: s.Container, Lines: slices.Clone(s.Lines)}
		}
		report.Files = append(report.Files, ir.FileImpact{
			Path:         f.Path,
			Sites:        sites,
			References:   f.References,
			IsDefinition: isDef,
			IsTest:       f.Test,
		})
		report.References += f.References
		if isDef {
			continue
		}
		report.CallSites++
		if f.Test {
			report.TestEvidence = append(report.TestEvidence, f.Path)
		}
	}
	report.FileCount = len(report.Files)
	report.Risk = RiskTier(report.CallSites, report.FileCount, th)

	note := func(format string, args ...any) {
		report.LowConfidence = true
		report.ConfidenceNotes = append(report.ConfidenceNotes, fmt.Sprintf(format, args...))
	}
	if n := len(report.Warnings); n > 0 {
		note("%d file(s) could not be scanned", n)
	}
	if defFile == "" {
		note("no definition of %s found", sym.Name)
	}
	if len(defs) > 1 {
		note("%d files define %s", len(defs), sym.Name)
	}
	if report.CallSites == 0 {
		note("the definition is the only reference")
	}
	if len(report.TestEvidence) == 0 {
		note("no test file references %s", sym.Name)
	}

	return report, nil
}

// definitionFile picks the definition file: the symbol's module when the
// index saw it, otherwise the first file with a definition node.
func definitionFile(sym ir.Symbol, res *index.Result, defs []string) string {
	if sym.Module != "" {
		module := path.Clean(filepath.ToSlash(sym.Module))
		for _, f := range res.Files {
			if f.Path == module {
				return f.Path
			}
		}
	}
	if len(defs) > 0 {
		return defs[0]
	}
	return ""
}
