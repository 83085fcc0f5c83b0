package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/parity/internal/ir"
)

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID          string            `json:"run_id"`
	Status         ir.RunStatus      `json:"status"`
	Symbol         ir.Symbol         `json:"symbol"`
	Risk           ir.RiskTier       `json:"risk,omitempty"`
	Attempts       int               `json:"attempts"`
	Classification ir.Classification `json:"classification,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// ListRuns returns the most recent runs first, at most limit of them
// (all when limit <= 0). Ties on start time are broken by run id.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	return s.FindRuns(ctx, nil, limit)
}

// FindRuns is ListRuns restricted to runs matching where. A nil predicate
// matches every run.
func (s *Store) FindRuns(ctx context.Context, where Predicate, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	cond, params, err := compileWhere(where)
	if err != nil {
		return nil, fmt.Errorf("compile run filter: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.status, r.symbol_module, r.symbol_name, r.risk, r.error_code,
		       r.started_at, r.finished_at,
		       (SELECT COUNT(*) FROM attempts a WHERE a.run_id = r.run_id),
		       COALESCE((SELECT a.classification FROM attempts a WHERE a.run_id = r.run_id
		                 ORDER BY a.idx DESC LIMIT 1), '')
		FROM runs r
		WHERE `+cond+`
		ORDER BY r.started_at DESC, r.run_id COLLATE BINARY ASC
		LIMIT ?
	`, append(params, limit)...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			r                     RunSummary
			status, risk, class   string
			startedAt, finishedAt string
		)
		if err := rows.Scan(&r.RunID, &status, &r.Symbol.Module, &r.Symbol.Name, &risk, &r.ErrorCode,
			&startedAt, &finishedAt, &r.Attempts, &class); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = ir.RunStatus(status)
		r.Risk = ir.RiskTier(risk)
		r.Classification = ir.Classification(class)
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ResolveRunID expands a unique run id prefix to the full id.
// Returns sql.ErrNoRows if nothing matches.
func (s *Store) ResolveRunID(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM runs
		WHERE substr(run_id, 1, ?) = ?
		ORDER BY run_id COLLATE BINARY ASC
		LIMIT 2
	`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("resolve run id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("resolve run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve run id: %w", err)
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("run %q: %w", prefix, sql.ErrNoRows)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}

// ReadOutcome rebuilds the RunOutcome stored under runID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadOutcome(ctx context.Context, runID string) (ir.RunOutcome, error) {
	o, err := s.readRun(ctx, runID)
	if err != nil {
		return ir.RunOutcome{}, err
	}
	if o.Attempts, err = s.readAttempts(ctx, runID); err != nil {
		return ir.RunOutcome{}, err
	}
	return o, nil
}

func (s *Store) readRun(ctx context.Context, runID string) (ir.RunOutcome, error) {
	var (
		o                                            ir.RunOutcome
		status, errCode, errState, errMessage        string
		origPath, origDigest, finalPath, finalDigest string
		startedAt, finishedAt                        string
		dryRun                                       int
		report                                       sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, status, symbol_module, symbol_name, max_repairs, dry_run, report,
		       error_code, error_state, error_message, original_path, original_digest,
		       final_path, final_digest, diff, started_at, finished_at, schema_version
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&o.RunID, &status, &o.Symbol.Module, &o.Symbol.Name, &o.MaxRepairs, &dryRun, &report,
		&errCode, &errState, &errMessage, &origPath, &origDigest,
		&finalPath, &finalDigest, &o.Diff, &startedAt, &finishedAt, &o.SchemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunOutcome{}, fmt.Errorf("run %s: %w", runID, err)
	}
	if err != nil {
		return ir.RunOutcome{}, fmt.Errorf("read run: %w", err)
	}

	o.Status = ir.RunStatus(status)
	o.DryRun = dryRun != 0
	if errCode != "" {
		o.Error = &ir.Failure{Code: errCode, State: ir.RunState(errState), Message: errMessage}
	}
	if report.Valid {
		var r ir.ImpactReport
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return ir.RunOutcome{}, fmt.Errorf("read run: unmarshal report: %w", err)
		}
		o.Report = &r
	}
	if o.Original, err = s.readSource(ctx, origPath, origDigest); err != nil {
		return ir.RunOutcome{}, err
	}
	if o.Final, err = s.readSource(ctx, finalPath, finalDigest); err != nil {
		return ir.RunOutcome{}, err
	}
	if o.StartedAt, err = parseTime(startedAt); err != nil {
		return ir.RunOutcome{}, err
	}
	if o.FinishedAt, err = parseTime(finishedAt); err != nil {
		return ir.RunOutcome{}, err
	}
	return o, nil
}

func (s *Store) readSource(ctx context.Context, path, digest string) (*ir.SourceState, error) {
	if digest == "" {
		return nil, nil
	}
	src := ir.SourceState{Path: path, Digest: digest}
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM sources WHERE digest = ? AND path = ?
	`, digest, path).Scan(&src.Content)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", digest, err)
	}
	return &src, nil
}

func (s *Store) readAttempts(ctx context.Context, runID string) ([]ir.RepairAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, trigger_verdict, started_at, finished_at, candidate_digest, repeated, verdict
		FROM attempts
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []ir.RepairAttempt{}
	for rows.Next() {
		var (
			a                     ir.RepairAttempt
			trigger               sql.NullString
			startedAt, finishedAt string
			repeated              int
			verdict               string
		)
		if err := rows.Scan(&a.Index, &trigger, &startedAt, &finishedAt, &a.CandidateDigest, &repeated, &verdict); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Repeated = repeated != 0
		if trigger.Valid {
			var v ir.Verdict
			if err := json.Unmarshal([]byte(trigger.String), &v); err != nil {
				return nil, fmt.Errorf("attempt %d: unmarshal trigger: %w", a.Index, err)
			}
			a.Trigger = &v
		}
		if err := json.Unmarshal([]byte(verdict), &a.Verdict); err != nil {
			return nil, fmt.Errorf("attempt %d: unmarshal verdict: %w", a.Index, err)
		}
		if a.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if a.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	rows.Close()

	for i := range attempts {
		idx := attempts[i].Index
		if attempts[i].Baseline, err = s.readResult(ctx, runID, idx, ir.ModeBaseline); err != nil {
			return nil, err
		}
		if attempts[i].Candidate, err = s.readResult(ctx, runID, idx, ir.ModeCandidate); err != nil {
			return nil, err
		}
	}
	return attempts, nil
}

func (s *Store) readResult(ctx context.Context, runID string, idx int, mode ir.ExecutionMode) (ir.ExecutionResult, error) {
	in := ir.ResultInput{Mode: mode}
	var (
		durationNS int64
		flaky      string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT exit_code, duration_ns, harness_error, flaky_cases
		FROM results
		WHERE run_id = ? AND idx = ? AND mode = ?
	`, runID, idx, string(mode)).Scan(&in.ExitCode, &durationNS, &in.HarnessError, &flaky)
	if err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("read result %d/%s: %w", idx, mode, err)
	}
	in.Duration = time.Duration(durationNS)
	if in.FlakyCases, err = unmarshalFlaky(flaky); err != nil {
		return ir.ExecutionResult{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, status, diagnostic
		FROM cases
		WHERE run_id = ? AND idx = ? AND mode = ?
		ORDER BY case_id COLLATE BINARY ASC
	`, runID, idx, string(mode))
	if err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c      ir.CaseOutcome
			status string
		)
		if err := rows.Scan(&c.ID, &status, &c.Diagnostic); err != nil {
			return ir.ExecutionResult{}, fmt.Errorf("scan case: %w", err)
		}
		c.Status = ir.CaseStatus(status)
		in.Cases = append(in.Cases, c)
	}
	if err := rows.Err(); err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("iterate cases: %w", err)
	}
	return ir.NewExecutionResult(in), nil
}
