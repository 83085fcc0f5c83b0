package ir

import "fmt"

// Symbol identifies a named unit of behavior.
// Module is the file or package path that defines it; Name is the identifier.
// Symbols are only used as lookup keys.
type Symbol struct {
	Module string `json:"module"`
	Name   string `json:"name"`
}

// String renders the symbol as "module:name", or just the name when the
// module is unknown.
func (s Symbol) String() string {
	if s.Module == "" {
		return s.Name
	}
	return fmt.Sprintf("%s:%s", s.Module, s.Name)
}

// UsageSite is one group of references to a symbol within a single file,
// sharing the same enclosing definition.
//
// Lines is ascending with duplicates removed. Container is the name of the
// enclosing function/class/type, empty at file scope or when unresolvable.
type UsageSite struct {
	Path      string `json:"path"`
	Container string `json:"container,omitempty"`
	Lines     []int  `json:"lines"`
}

// ScanWarning records a file the Symbol Index could not use.
// Warnings never abort a scan.
type ScanWarning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (w ScanWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Reason)
}

// FileImpact groups the usage sites of one file.
type FileImpact struct {
	Path         string      `json:"path"`
	Sites        []UsageSite `json:"sites"`
	References   int         `json:"references"`
	IsDefinition bool        `json:"is_definition"`
	IsTest       bool        `json:"is_test"`
}

// RiskTier is the coarse risk classification of an impact report.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Rank orders tiers so callers can compare them.
func (t RiskTier) Rank() int {
	switch t {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// RiskThresholds configures risk tiering.
// Call-site counts at or above High are high risk, at or above Low are medium.
// A fan-out of FanOut or more distinct files raises the tier by one step.
type RiskThresholds struct {
	Low    int `json:"low"`
	High   int `json:"high"`
	FanOut int `json:"fan_out"`
}

// ImpactReport is the risk-scored summary of where a symbol is used.
// Created once per run and immutable thereafter.
type ImpactReport struct {
	Symbol         Symbol         `json:"symbol"`
	DefinitionFile string         `json:"definition_file,omitempty"`
	Files          []FileImpact   `json:"files"`
	CallSites      int            `json:"call_sites"`
	FileCount      int            `json:"file_count"`
	References     int            `json:"references"`
	TestEvidence   []string       `json:"test_evidence"`
	Risk           RiskTier       `json:"risk"`
	Thresholds     RiskThresholds `json:"thresholds"`
	Warnings       []ScanWarning  `json:"warnings"`

	// LowConfidence is set when the report was built from degraded input.
	// ConfidenceNotes explains why.
	LowConfidence   bool     `json:"low_confidence"`
	ConfidenceNotes []string `json:"confidence_notes,omitempty"`
}

// CallSitePaths returns the paths of files other than the definition file.
func (r ImpactReport) CallSitePaths() []string {
	var paths []string
	for _, f := range r.Files {
		if !f.IsDefinition {
			paths = append(paths, f.Path)
		}
	}
	return paths
}
