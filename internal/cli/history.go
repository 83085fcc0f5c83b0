package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/parity/internal/evidence"
	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database  string
	Limit     int
	Statuses  []string
	Risk      string
	ErrorCode string
	Symbol    string
}

// filter converts the filter flags.
func (o *HistoryOptions) filter() (store.RunFilter, error) {
	f := store.RunFilter{ErrorCode: o.ErrorCode, Symbol: o.Symbol}
	for _, s := range o.Statuses {
		st := ir.RunStatus(s)
		switch st {
		case ir.StatusSucceeded, ir.StatusExhaustedBudget, ir.StatusFatalError, ir.StatusCancelled:
			f.Statuses = append(f.Statuses, st)
		default:
			return store.RunFilter{}, fmt.Errorf("unknown status %q", s)
		}
	}
	switch r := ir.RiskTier(o.Risk); r {
	case "", ir.RiskLow, ir.RiskMedium, ir.RiskHigh:
		f.Risk = r
	default:
		return store.RunFilter{}, fmt.Errorf("unknown risk tier %q", o.Risk)
	}
	return f, nil
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs or show one run's evidence",
		Long: `Query the run history written by "parity run --db".

Without arguments the most recent runs are listed, optionally filtered by
status, risk tier, error code or symbol name. With a run id, or any unique
prefix of one, the full evidence report for that run is printed.

Examples:
  parity history --db ./parity.db
  parity history --db ./parity.db --status exhausted_budget,fatal_error
  parity history --db ./parity.db --symbol compute_total --risk high
  parity history --db ./parity.db 0192f3
  parity history --db ./parity.db 0192f3 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run history (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "only runs with these statuses")
	cmd.Flags().StringVar(&opts.Risk, "risk", "", "only runs with this risk tier")
	cmd.Flags().StringVar(&opts.ErrorCode, "error-code", "", "only runs that failed with this code")
	cmd.Flags().StringVar(&opts.Symbol, "symbol", "", "only runs for this symbol name")

	return cmd
}

func runHistory(opts *HistoryOptions, runID string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmdContext(cmd)

	// Opening creates the database, which would hide a mistyped path.
	if _, err := os.Stat(opts.Database); err != nil {
		return fail(out, ErrCodeStore, "failed to open database", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return fail(out, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	if runID == "" {
		filter, err := opts.filter()
		if err != nil {
			return fail(out, ErrCodeConfig, "invalid filter", err)
		}
		runs, err := st.FindRuns(ctx, filter.Predicate(), opts.Limit)
		if err != nil {
			return fail(out, ErrCodeStore, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return out.Success(runs)
		}
		writeHistoryText(out, runs)
		return nil
	}

	full, err := st.ResolveRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if opts.Format == "json" {
				_ = out.Error(ErrCodeNotFound, err.Error(), nil)
			}
			return WrapExitError(ExitFailure, "run not found", err)
		}
		return fail(out, ErrCodeStore, "failed to resolve run id", err)
	}
	outcome, err := st.ReadOutcome(ctx, full)
	if err != nil {
		return fail(out, ErrCodeStore, "failed to read run", err)
	}

	if opts.Format == "json" {
		return out.Success(outcome)
	}
	_, err = fmt.Fprint(out.Writer, evidence.RenderMarkdown(outcome))
	return err
}

func writeHistoryText(out *OutputFormatter, runs []store.RunSummary) {
	w := out.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	st := out.style()
	fmt.Fprintf(w, "%-36s  %-20s  %-16s  %-6s  %-8s  %s\n", "RUN", "STARTED", "STATUS", "RISK", "ATTEMPTS", "SYMBOL")
	for _, r := range runs {
		risk := string(r.Risk)
		if risk == "" {
			risk = "-"
		}
		// Pad before styling so escape codes do not skew the columns.
		fmt.Fprintf(w, "%-36s  %-20s  %s  %-6s  %-8d  %s\n",
			r.RunID,
			r.StartedAt.UTC().Format(time.RFC3339),
			st.status(r.Status)+pad(string(r.Status), 16),
			risk,
			r.Attempts,
			r.Symbol,
		)
	}
}

// pad returns the spaces that right-pad s to width.
func pad(s string, width int) string {
	if n := width - len(s); n > 0 {
		return fmt.Sprintf("%*s", n, "")
	}
	return ""
}
