package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/parity/internal/impact"
	"github.com/roach88/parity/internal/ir"
)

// File names inside a pack.
const (
	FileImpact   = "impact.json"
	FileSummary  = "impact.txt"
	FileOutcome  = "outcome.json"
	FileEvidence = "EVIDENCE.md"
	FileDiff     = "diff.patch"
)

// File is one entry of an evidence pack. Name is slash-separated.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Pack is the ordered set of files produced for one run.
type Pack struct {
	RunID string
	Files []File
}

// Names lists the file names in pack order.
func (p Pack) Names() []string {
	names := make([]string, len(p.Files))
	for i, f := range p.Files {
		names[i] = f.Name
	}
	return names
}

// LogName is the pack path of one suite transcript.
func LogName(attempt int, mode ir.ExecutionMode) string {
	return fmt.Sprintf("logs/attempt-%d-%s.log", attempt, mode)
}

// BuildPack renders every artifact of o. Files that have no content for
// this run (no report, no diff, no logs) are left out.
func BuildPack(o ir.RunOutcome) (Pack, error) {
	p := Pack{RunID: o.RunID}

	if o.Report != nil {
		data, err := marshalIndent(o.Report)
		if err != nil {
			return Pack{}, fmt.Errorf("evidence: impact: %w", err)
		}
		p.Files = append(p.Files, File{Name: FileImpact, ContentType: "application/json", Content: data})

		var buf bytes.Buffer
		if err := impact.WriteSummary(&buf, *o.Report); err != nil {
			return Pack{}, fmt.Errorf("evidence: summary: %w", err)
		}
		p.Files = append(p.Files, File{Name: FileSummary, ContentType: "text/plain; charset=utf-8", Content: buf.Bytes()})
	}

	data, err := marshalIndent(o)
	if err != nil {
		return Pack{}, fmt.Errorf("evidence: outcome: %w", err)
	}
	p.Files = append(p.Files, File{Name: FileOutcome, ContentType: "application/json", Content: data})
	p.Files = append(p.Files, File{Name: FileEvidence, ContentType: "text/markdown; charset=utf-8", Content: []byte(RenderMarkdown(o))})

	if o.Diff != "" {
		p.Files = append(p.Files, File{Name: FileDiff, ContentType: "text/x-diff", Content: []byte(o.Diff)})
	}
	for _, a := range o.Attempts {
		for _, r := range []ir.ExecutionResult{a.Baseline, a.Candidate} {
			if r.Log == "" {
				continue
			}
			p.Files = append(p.Files, File{Name: LogName(a.Index, r.Mode), ContentType: "text/plain; charset=utf-8", Content: []byte(r.Log)})
		}
	}
	return p, nil
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
