package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/parity/internal/index"
	"github.com/roach88/parity/internal/ir"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Symbol    string
	Root      string
	Module    string
	Languages []string
	TextExts  []string
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List every usage of a symbol",
		Long: `Scan a codebase for a symbol without scoring it.

Go and Python files are parsed with tree-sitter; files with the extensions
given by --text-ext are matched by whole word. Unreadable or unparseable
files are reported as warnings and do not stop the scan.

Examples:
  parity scan --symbol compute_total
  parity scan --symbol compute_total --module app/billing.py --root ./shop
  parity scan --symbol Total --lang go --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Symbol, "symbol", "", "symbol to look for (required)")
	_ = cmd.MarkFlagRequired("symbol")
	cmd.Flags().StringVar(&opts.Root, "root", ".", "codebase root")
	cmd.Flags().StringVar(&opts.Module, "module", "", "file defining the symbol, relative to root")
	cmd.Flags().StringSliceVar(&opts.Languages, "lang", nil, "languages to parse (go, python, javascript, text)")
	cmd.Flags().StringSliceVar(&opts.TextExts, "text-ext", nil, "extra extensions matched by whole word, e.g. .js")

	return cmd
}

func runScan(opts *ScanOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	ixOpts := index.Options{TextExtensions: opts.TextExts, DefinitionFile: opts.Module}
	for _, l := range opts.Languages {
		lang, err := index.ParseLanguage(l)
		if err != nil {
			return fail(out, ErrCodeConfig, "invalid --lang", err)
		}
		ixOpts.Languages = append(ixOpts.Languages, lang)
	}
	ix, err := index.New(ixOpts, logger)
	if err != nil {
		return fail(out, ErrCodeConfig, "failed to create index", err)
	}

	sym := ir.Symbol{Module: opts.Module, Name: opts.Symbol}
	res, err := ix.Scan(cmdContext(cmd), opts.Root, sym)
	if err != nil {
		return fail(out, ErrCodeScan, "scan failed", err)
	}

	if opts.Format == "json" {
		return out.Success(res)
	}
	writeScanText(out, res)
	return nil
}

func writeScanText(out *OutputFormatter, res *index.Result) {
	st := out.style()
	w := out.Writer

	if res.Empty() {
		fmt.Fprintf(w, "No usages of %s found under %s (%d files scanned)\n", res.Symbol.Name, res.Root, res.Scanned)
	} else {
		fmt.Fprintf(w, "%s %s: %d file(s) of %d scanned\n", st.heading.Render("Usages of"), res.Symbol.Name, len(res.Files), res.Scanned)
		for _, f := range res.Files {
			tag := ""
			switch {
			case f.Definition:
				tag = st.good.Render(" [definition]")
			case f.Test:
				tag = st.muted.Render(" [test]")
			}
			fmt.Fprintf(w, "  %s (%s, %d refs)%s\n", f.Path, f.Language, f.References, tag)
			for _, s := range f.Sites {
				container := s.Container
				if container == "" {
					container = "<module>"
				}
				fmt.Fprintf(w, "    %s: %s\n", container, joinLines(s.Lines))
			}
		}
	}
	for _, wn := range res.Warnings {
		fmt.Fprintf(w, "%s %s\n", st.warn.Render("warning:"), wn)
	}
}
