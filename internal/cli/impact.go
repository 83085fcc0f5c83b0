package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/parity/internal/impact"
)

// ImpactOptions holds flags for the impact command.
type ImpactOptions struct {
	*RootOptions
	ConfigFlags
}

// NewImpactCommand creates the impact command.
func NewImpactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImpactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "impact",
		Short: "Score the blast radius of changing a symbol",
		Long: `Build the impact report a run starts from: the definition, every call
site, the tests that reference the symbol and a risk tier.

Target, symbol and root come from the config file unless given as flags.

Examples:
  parity impact
  parity impact --target app/billing.py --symbol compute_total
  parity impact --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigFlags)

	return cmd
}

func runImpact(opts *ImpactOptions, cmd *cobra.Command) error {
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
	scoper, err := buildScoper(cfg, logger, nil)
	if err != nil {
		return fail(out, ErrCodeConfig, "failed to build index", err)
	}

	report, err := scoper.Scope(cmdContext(cmd), cfg.SymbolRef())
	if err != nil {
		var ae *impact.AnalysisError
		if errors.As(err, &ae) {
			if opts.Format == "json" {
				_ = out.Error(ErrCodeAnalysis, ae.Error(), nil)
			}
			return WrapExitError(ExitFailure, "symbol not found", err)
		}
		return fail(out, ErrCodeScan, "scan failed", err)
	}

	if opts.Format == "json" {
		return out.Success(report)
	}
	return impact.WriteSummary(out.Writer, report)
}
