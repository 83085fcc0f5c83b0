package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/parity/internal/config"
	"github.com/roach88/parity/internal/engine"
	"github.com/roach88/parity/internal/harness"
	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/metrics"
	"github.com/roach88/parity/internal/oracle"
	"github.com/roach88/parity/internal/vcs"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigFlags

	// Budget overrides budget.max_repairs when non-negative.
	Budget      int
	Goal        string
	DryRun      bool
	Database    string
	Artifacts   string
	MetricsFile string

	// Oracle overrides the configured LLM provider (for testing).
	Oracle oracle.Oracle

	// Runner overrides the subprocess suite runner (for testing).
	Runner harness.Runner

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunResult is the run command's JSON payload.
type RunResult struct {
	RunID          string            `json:"run_id"`
	Status         ir.RunStatus      `json:"status"`
	Symbol         ir.Symbol         `json:"symbol"`
	Risk           ir.RiskTier       `json:"risk,omitempty"`
	Attempts       int               `json:"attempts"`
	Repairs        int               `json:"repairs"`
	MaxRepairs     int               `json:"max_repairs"`
	Classification ir.Classification `json:"classification,omitempty"`
	Error          *ir.Failure       `json:"error,omitempty"`
	DryRun         bool              `json:"dry_run,omitempty"`
	Evidence       string            `json:"evidence,omitempty"`
	Diff           string            `json:"diff,omitempty"`
	DiffStat       *vcs.Stat         `json:"diff_stat,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Refactor a symbol and validate it in both modes",
		Long: `Run the repair loop for one symbol.

The symbol's usages are scanned and risk-scored, the oracle proposes a
candidate implementation behind the toggle, and the suite runs with the
toggle off and on. While the modes disagree the oracle repairs the
candidate, up to the repair budget. The outcome is written to the evidence
directory and, with --db, to the run history.

Exit codes: 0 when the modes are equivalent, 1 when the budget ran out or
the run was cancelled, 2 on a fatal error.

Examples:
  parity run
  parity run --config parity.yaml --budget 3
  parity run --target app/billing.py --symbol compute_total --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigFlags)
	cmd.Flags().IntVar(&opts.Budget, "budget", -1, "maximum repair iterations (default from config)")
	cmd.Flags().StringVar(&opts.Goal, "goal", "", "refactor goal passed to the oracle")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "scan and score impact only")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run history")
	cmd.Flags().StringVar(&opts.Artifacts, "artifacts", "", "evidence directory")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")

	return cmd
}

func addConfigFlags(cmd *cobra.Command, f *ConfigFlags) {
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "config file (default ./"+config.DefaultFile+" if present)")
	cmd.Flags().StringVar(&f.Target, "target", "", "file defining the symbol, relative to root")
	cmd.Flags().StringVar(&f.Symbol, "symbol", "", "symbol to refactor")
	cmd.Flags().StringVar(&f.Root, "root", "", "codebase root")
}

func runRun(opts *RunOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	ov := opts.overrides()
	if opts.Budget >= 0 {
		ov["budget.max_repairs"] = opts.Budget
	}
	if opts.Goal != "" {
		ov["goal"] = opts.Goal
	}
	cfg, err := loadConfig(opts.ConfigPath, ov)
	if err != nil {
		return fail(out, ErrCodeConfig, "failed to load config", err)
	}
	out.VerboseLog("target %s, symbol %s, root %s", cfg.Target, cfg.Symbol, cfg.Root)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	rec := metrics.New()
	orch, sinks, err := wireOrchestrator(ctx, opts, cfg, out, logger, rec)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sinks.Close(); closeErr != nil {
			logger.Error("error closing run history", "error", closeErr)
		}
	}()

	logger.Info("run starting", "symbol", cfg.SymbolRef().String(), "budget", cfg.Budget.MaxRepairs, "dry_run", opts.DryRun)
	outcome, recordErr := orch.Run(ctx, engine.Request{
		Symbol:     cfg.SymbolRef(),
		Goal:       cfg.Goal,
		Toggle:     toggleName(cfg),
		MaxRepairs: cfg.Budget.MaxRepairs,
		DryRun:     opts.DryRun,
	})
	if recordErr != nil {
		logger.Error("failed to record evidence", "run_id", outcome.RunID, "error", recordErr)
	}

	metricsFile := cfg.Evidence.MetricsFile
	if opts.MetricsFile != "" {
		metricsFile = opts.MetricsFile
	}
	if metricsFile != "" {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			logger.Error("failed to write metrics", "path", metricsFile, "error", err)
		}
	}

	result := newRunResult(outcome)
	if sinks.dir != nil {
		result.Evidence = sinks.dir.Path(outcome.RunID)
	}
	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		writeRunText(out, result)
	}

	if recordErr != nil {
		return WrapExitError(ExitCommandError, "failed to record evidence", recordErr)
	}
	if code := ExitCodeFor(outcome.Status); code != ExitSuccess {
		return NewExitError(code, fmt.Sprintf("run %s ended %s", outcome.RunID, outcome.Status))
	}
	return nil
}

// wireOrchestrator builds the orchestrator and its sinks from cfg.
func wireOrchestrator(ctx context.Context, opts *RunOptions, cfg *config.Config, out *OutputFormatter, logger *slog.Logger, rec *metrics.Recorder) (*engine.Orchestrator, *sinks, error) {
	scoper, err := buildScoper(cfg, logger, rec)
	if err != nil {
		return nil, nil, fail(out, ErrCodeConfig, "failed to build index", err)
	}

	// Dry runs stop after scoping, so neither the suite nor the oracle
	// needs to be configured.
	validator := &engine.SuiteValidator{Metrics: rec}
	if !opts.DryRun || cfg.HasSuite() {
		adapter, err := buildAdapter(cfg, opts.Runner, logger)
		if err != nil {
			return nil, nil, fail(out, ErrCodeHarness, "failed to set up suite", err)
		}
		validator.Adapter = adapter
	}

	orc := opts.Oracle
	if orc == nil {
		if opts.DryRun {
			orc = oracle.NewScripted(cfg.Target)
		} else {
			llm, err := oracle.New(ctx, cfg.ProviderConfig(), logger)
			if err != nil {
				return nil, nil, fail(out, ErrCodeConfig, "failed to set up oracle", err)
			}
			orc = llm
		}
	}

	source, err := buildSource(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fail(out, ErrCodeConfig, "failed to set up source control", err)
	}

	sk, err := buildSinks(cfg, opts.Database, opts.Artifacts, logger)
	if err != nil {
		return nil, nil, fail(out, ErrCodeStore, "failed to set up evidence", err)
	}

	ids := opts.RunIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	orch, err := engine.New(engine.Deps{
		Scoper:    scoper,
		Oracle:    orc,
		Source:    source,
		Validator: validator,
		Sink:      sk.Multi,
	},
		engine.WithRunIDs(ids),
		engine.WithMetrics(rec),
		engine.WithLogger(logger),
		engine.WithOracleTimeout(cfg.OracleTimeout()),
		engine.WithRestoreOnFailure(cfg.VCS.RestoreOnFailure),
	)
	if err != nil {
		_ = sk.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to create orchestrator", err)
	}
	return orch, sk, nil
}

// toggleName is the suite's toggle, or empty when no suite is configured.
func toggleName(cfg *config.Config) string {
	if cfg.Suite != nil {
		return cfg.Suite.Toggle
	}
	if s, err := cfg.HarnessSuite(); err == nil {
		return s.Toggle
	}
	return ""
}

func newRunResult(o ir.RunOutcome) RunResult {
	r := RunResult{
		RunID:      o.RunID,
		Status:     o.Status,
		Symbol:     o.Symbol,
		Attempts:   len(o.Attempts),
		Repairs:    o.Repairs(),
		MaxRepairs: o.MaxRepairs,
		Error:      o.Error,
		DryRun:     o.DryRun,
		Diff:       o.Diff,
	}
	if o.Report != nil {
		r.Risk = o.Report.Risk
	}
	if n := len(o.Attempts); n > 0 {
		r.Classification = o.Attempts[n-1].Verdict.Classification
	}
	if o.Diff != "" {
		if st, err := vcs.DiffStat(o.Diff); err == nil {
			r.DiffStat = &st
		}
	}
	return r
}

func writeRunText(out *OutputFormatter, r RunResult) {
	st := out.style()
	w := out.Writer

	fmt.Fprintf(w, "%s %s\n", st.heading.Render("Run"), r.RunID)
	fmt.Fprintf(w, "  Symbol:   %s\n", r.Symbol)
	fmt.Fprintf(w, "  Status:   %s\n", st.status(r.Status))
	if r.Risk != "" {
		fmt.Fprintf(w, "  Risk:     %s\n", st.risk(r.Risk))
	}
	if r.DryRun {
		fmt.Fprintf(w, "  Dry run:  %s\n", st.muted.Render("no candidate generated"))
	} else {
		fmt.Fprintf(w, "  Attempts: %d (%d of %d repairs)\n", r.Attempts, r.Repairs, r.MaxRepairs)
	}
	if r.Classification != "" {
		fmt.Fprintf(w, "  Verdict:  %s\n", st.verdict(r.Classification))
	}
	if r.Error != nil {
		fmt.Fprintf(w, "  Error:    %s\n", st.bad.Render(r.Error.String()))
	}
	if r.DiffStat != nil {
		fmt.Fprintf(w, "  Changes:  %s\n", r.DiffStat)
	}
	if r.Evidence != "" {
		fmt.Fprintf(w, "  Evidence: %s\n", r.Evidence)
	}
	if out.Verbose && r.Diff != "" {
		fmt.Fprintf(w, "\n%s\n", r.Diff)
	}
}

// fail reports err in the configured format and returns it as a command
// error. Text output is left to the caller of Execute.
func fail(out *OutputFormatter, code, message string, err error) error {
	if out.Format == "json" {
		_ = out.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	}
	return WrapExitError(ExitCommandError, message, err)
}
