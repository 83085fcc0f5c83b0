package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/parity/internal/harness"
	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/verify"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigFlags

	// Runner overrides the subprocess suite runner (for testing).
	Runner harness.Runner
}

// ValidateResult is the validate command's JSON payload.
type ValidateResult struct {
	Suite     string             `json:"suite"`
	Verdict   ir.Verdict         `json:"verdict"`
	Baseline  ir.ExecutionResult `json:"baseline"`
	Candidate ir.ExecutionResult `json:"candidate"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the suite in both modes against the current source",
		Long: `Run the configured suite with the toggle off and on and compare the
results, without generating or repairing anything.

Use it to check a hand-written candidate or to confirm the suite is stable
before a run.

Exit codes: 0 when the modes are equivalent, 1 when they diverge or the
comparison is inconclusive, 2 when the suite cannot be set up.

Examples:
  parity validate
  parity validate --config parity.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigFlags)

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadConfig(opts.ConfigPath, opts.overrides())
	if err != nil {
		return fail(out, ErrCodeConfig, "failed to load config", err)
	}
	adapter, err := buildAdapter(cfg, opts.Runner, logger)
	if err != nil {
		return fail(out, ErrCodeHarness, "failed to set up suite", err)
	}

	baseline, candidate := adapter.RunBoth(cmdContext(cmd))
	result := ValidateResult{
		Suite:     adapter.Suite().Name,
		Verdict:   verify.Verify(baseline, candidate),
		Baseline:  baseline,
		Candidate: candidate,
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		writeValidateText(out, result)
	}

	if !result.Verdict.IsEquivalent() {
		return NewExitError(ExitFailure, fmt.Sprintf("modes are %s", result.Verdict.Classification))
	}
	return nil
}

func writeValidateText(out *OutputFormatter, r ValidateResult) {
	st := out.style()
	w := out.Writer

	fmt.Fprintf(w, "%s %s\n", st.heading.Render("Suite"), r.Suite)
	for _, res := range []ir.ExecutionResult{r.Baseline, r.Candidate} {
		c := res.Counts
		fmt.Fprintf(w, "  %-9s %d passed, %d failed, %d errored, %d skipped (%s)\n",
			res.Mode+":", c.Passed, c.Failed, c.Errored, c.Skipped, res.Duration)
		if res.HarnessError != "" {
			fmt.Fprintf(w, "            %s %s\n", st.bad.Render("harness error:"), res.HarnessError)
		}
	}
	fmt.Fprintf(w, "  Verdict:  %s", st.verdict(r.Verdict.Classification))
	if r.Verdict.Reason != "" {
		fmt.Fprintf(w, " (%s)", r.Verdict.Reason)
	}
	fmt.Fprintln(w)
	for _, d := range r.Verdict.Divergences {
		fmt.Fprintf(w, "    %s: baseline=%s candidate=%s\n", d.CaseID, orDash(string(d.Baseline)), orDash(string(d.Candidate)))
		if out.Verbose && d.Diagnostic != "" {
			fmt.Fprintf(w, "      %s\n", st.muted.Render(d.Diagnostic))
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
