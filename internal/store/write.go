package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/parity/internal/ir"
)

// WriteOutcome stores a terminal RunOutcome and everything it references
// in one transaction. Uses ON CONFLICT(run_id) DO NOTHING for idempotency:
// writing a run id a second time leaves the first record untouched and
// reports inserted=false.
func (s *Store) WriteOutcome(ctx context.Context, o ir.RunOutcome) (inserted bool, err error) {
	if o.RunID == "" {
		return false, fmt.Errorf("write outcome: run_id is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write outcome: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	inserted, err = writeRun(ctx, tx, o)
	if err != nil || !inserted {
		return false, err
	}

	for _, src := range []*ir.SourceState{o.Original, o.Final} {
		if err := writeSource(ctx, tx, src); err != nil {
			return false, err
		}
	}
	if o.Report != nil {
		for _, w := range o.Report.Warnings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO warnings (run_id, path, reason) VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING
			`, o.RunID, w.Path, w.Reason); err != nil {
				return false, fmt.Errorf("write warning: %w", err)
			}
		}
	}
	for _, a := range o.Attempts {
		if err := writeAttempt(ctx, tx, o.RunID, a); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write outcome: commit: %w", err)
	}
	return true, nil
}

func writeRun(ctx context.Context, tx *sql.Tx, o ir.RunOutcome) (bool, error) {
	var (
		report      sql.NullString
		fingerprint string
		risk        string
	)
	if o.Report != nil {
		data, err := marshalJSON(o.Report)
		if err != nil {
			return false, fmt.Errorf("write run: marshal report: %w", err)
		}
		report = sql.NullString{String: data, Valid: true}
		if fingerprint, err = ir.ReportFingerprint(*o.Report); err != nil {
			return false, fmt.Errorf("write run: %w", err)
		}
		risk = string(o.Report.Risk)
	}

	var errCode, errState, errMessage string
	if o.Error != nil {
		errCode, errState, errMessage = o.Error.Code, string(o.Error.State), o.Error.Message
	}

	var origPath, origDigest, finalPath, finalDigest string
	if o.Original != nil {
		origPath, origDigest = o.Original.Path, o.Original.Digest
	}
	if o.Final != nil {
		finalPath, finalDigest = o.Final.Path, o.Final.Digest
	}

	schemaVersion := o.SchemaVersion
	if schemaVersion == "" {
		schemaVersion = ir.SchemaVersion
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, status, symbol_module, symbol_name, max_repairs, dry_run, risk, report, report_fingerprint,
		 error_code, error_state, error_message, original_path, original_digest, final_path, final_digest,
		 diff, started_at, finished_at, schema_version, tool_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		o.RunID,
		string(o.Status),
		o.Symbol.Module,
		o.Symbol.Name,
		o.MaxRepairs,
		boolToInt(o.DryRun),
		risk,
		report,
		fingerprint,
		errCode,
		errState,
		errMessage,
		origPath,
		origDigest,
		finalPath,
		finalDigest,
		o.Diff,
		formatTime(o.StartedAt),
		formatTime(o.FinishedAt),
		schemaVersion,
		ir.ToolVersion,
	)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	return n == 1, nil
}

func writeSource(ctx context.Context, tx *sql.Tx, src *ir.SourceState) error {
	if src == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sources (digest, path, content) VALUES (?, ?, ?)
		ON CONFLICT(digest, path) DO NOTHING
	`, src.Digest, src.Path, src.Content)
	if err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

func writeAttempt(ctx context.Context, tx *sql.Tx, runID string, a ir.RepairAttempt) error {
	var trigger sql.NullString
	if a.Trigger != nil {
		data, err := marshalJSON(a.Trigger)
		if err != nil {
			return fmt.Errorf("write attempt %d: marshal trigger: %w", a.Index, err)
		}
		trigger = sql.NullString{String: data, Valid: true}
	}
	verdict, err := marshalJSON(a.Verdict)
	if err != nil {
		return fmt.Errorf("write attempt %d: marshal verdict: %w", a.Index, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempts
		(run_id, idx, trigger_verdict, started_at, finished_at, candidate_digest, repeated, classification, verdict)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		a.Index,
		trigger,
		formatTime(a.StartedAt),
		formatTime(a.FinishedAt),
		a.CandidateDigest,
		boolToInt(a.Repeated),
		string(a.Verdict.Classification),
		verdict,
	)
	if err != nil {
		return fmt.Errorf("write attempt %d: %w", a.Index, err)
	}

	for _, r := range []ir.ExecutionResult{a.Baseline, a.Candidate} {
		if err := writeResult(ctx, tx, runID, a.Index, r); err != nil {
			return err
		}
	}
	return nil
}

func writeResult(ctx context.Context, tx *sql.Tx, runID string, idx int, r ir.ExecutionResult) error {
	fingerprint, err := ir.ResultFingerprint(r)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	flaky, err := marshalFlaky(r.FlakyCases)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO results
		(run_id, idx, mode, exit_code, duration_ns, harness_error, flaky_cases, fingerprint,
		 passed, failed, errored, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID, idx, string(r.Mode), r.ExitCode, int64(r.Duration), r.HarnessError, flaky, fingerprint,
		r.Counts.Passed, r.Counts.Failed, r.Counts.Errored, r.Counts.Skipped,
	)
	if err != nil {
		return fmt.Errorf("write result %d/%s: %w", idx, r.Mode, err)
	}

	for _, c := range r.Cases {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cases (run_id, idx, mode, case_id, status, diagnostic)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, idx, string(r.Mode), c.ID, string(c.Status), c.Diagnostic); err != nil {
			return fmt.Errorf("write case %s: %w", c.ID, err)
		}
	}
	return nil
}
