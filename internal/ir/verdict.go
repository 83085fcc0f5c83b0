package ir

// Classification is the tri-state equivalence verdict.
type Classification string

const (
	Equivalent   Classification = "equivalent"
	Diverged     Classification = "diverged"
	Inconclusive Classification = "inconclusive"
)

// Divergence describes one case id on which the two runs disagree.
//
// A status is empty when the case is absent from that side, which only
// happens for shape mismatches. FailedIn names the mode(s) where the case
// failed or errored.
type Divergence struct {
	CaseID     string          `json:"case_id"`
	Baseline   CaseStatus      `json:"baseline,omitempty"`
	Candidate  CaseStatus      `json:"candidate,omitempty"`
	FailedIn   []ExecutionMode `json:"failed_in,omitempty"`
	Diagnostic string          `json:"diagnostic,omitempty"`
}

// Verdict is the comparison of two ExecutionResults.
type Verdict struct {
	Classification Classification `json:"classification"`
	Divergences    []Divergence   `json:"divergences,omitempty"`
	Reason         string         `json:"reason"`
}

// DivergentCaseIDs returns the case ids in verdict order.
func (v Verdict) DivergentCaseIDs() []string {
	ids := make([]string, len(v.Divergences))
	for i, d := range v.Divergences {
		ids[i] = d.CaseID
	}
	return ids
}

// IsEquivalent reports whether the verdict is a pass.
func (v Verdict) IsEquivalent() bool {
	return v.Classification == Equivalent
}
