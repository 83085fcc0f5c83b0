package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource = "parity/source/v1"
	DomainResult = "parity/result/v1"
	DomainReport = "parity/report/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceDigest identifies a source version by its exact bytes.
// Content is hashed raw, without normalization: two candidates that differ
// only in Unicode normalization are different candidates.
func SourceDigest(content string) string {
	return hashWithDomain(DomainSource, []byte(content))
}

// ResultFingerprint identifies the observable shape of an ExecutionResult:
// mode, harness error and per-case statuses. Timings, diagnostics and logs
// are excluded, so two deterministic runs of the same source share a
// fingerprint.
func ResultFingerprint(r ExecutionResult) (string, error) {
	cases := make([]any, len(r.Cases))
	for i, c := range r.Cases {
		cases[i] = map[string]any{
			"id":     c.ID,
			"status": string(c.Status),
		}
	}
	obj := map[string]any{
		"mode":          string(r.Mode),
		"harness_error": r.HarnessError,
		"cases":         cases,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ResultFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// ReportFingerprint identifies an ImpactReport by the fields that drive its
// risk classification and usage listing.
func ReportFingerprint(r ImpactReport) (string, error) {
	files := make([]any, len(r.Files))
	for i, f := range r.Files {
		sites := make([]any, len(f.Sites))
		for j, s := range f.Sites {
			sites[j] = map[string]any{
				"container": s.Container,
				"lines":     s.Lines,
			}
		}
		files[i] = map[string]any{
			"path":          f.Path,
			"is_definition": f.IsDefinition,
			"is_test":       f.IsTest,
			"sites":         sites,
		}
	}
	obj := map[string]any{
		"symbol":     map[string]any{"module": r.Symbol.Module, "name": r.Symbol.Name},
		"files":      files,
		"call_sites": r.CallSites,
		"file_count": r.FileCount,
		"risk":       string(r.Risk),
		"thresholds": map[string]any{
			"low":     r.Thresholds.Low,
			"high":    r.Thresholds.High,
			"fan_out": r.Thresholds.FanOut,
		},
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReportFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainReport, canonical), nil
}

// MustReportFingerprint is like ReportFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustReportFingerprint(r ImpactReport) string {
	fp, err := ReportFingerprint(r)
	if err != nil {
		panic(err)
	}
	return fp
}
