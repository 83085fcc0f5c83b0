package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/parity/internal/config"
	"github.com/roach88/parity/internal/engine"
	"github.com/roach88/parity/internal/evidence"
	"github.com/roach88/parity/internal/harness"
	"github.com/roach88/parity/internal/index"
	"github.com/roach88/parity/internal/metrics"
	"github.com/roach88/parity/internal/store"
	"github.com/roach88/parity/internal/vcs"
)

// ConfigFlags are the flags shared by commands that load parity.yaml.
type ConfigFlags struct {
	ConfigPath string
	Target     string
	Symbol     string
	Root       string
}

// overrides converts set flags into config overrides.
func (f ConfigFlags) overrides() config.Overrides {
	ov := config.Overrides{}
	if f.Target != "" {
		ov["target"] = f.Target
	}
	if f.Symbol != "" {
		ov["symbol"] = f.Symbol
	}
	if f.Root != "" {
		ov["root"] = f.Root
	}
	return ov
}

// newLogger logs to w at info level, or debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the config file named by path, or parity.yaml in the
// working directory when path is empty and the file exists. With neither,
// flags alone must supply the required fields.
func loadConfig(path string, ov config.Overrides) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", config.DefaultFile, err)
		}
	}
	return config.Load(path, ov)
}

func buildIndex(cfg *config.Config, logger *slog.Logger) (*index.Index, error) {
	opts, err := cfg.IndexOptions()
	if err != nil {
		return nil, err
	}
	return index.New(opts, logger)
}

func buildScoper(cfg *config.Config, logger *slog.Logger, rec *metrics.Recorder) (*engine.IndexScoper, error) {
	ix, err := buildIndex(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &engine.IndexScoper{Index: ix, Root: cfg.Root, Thresholds: cfg.Risk, Metrics: rec}, nil
}

// buildAdapter builds the suite adapter. A nil runner runs the suite as a
// subprocess.
func buildAdapter(cfg *config.Config, runner harness.Runner, logger *slog.Logger) (*harness.Adapter, error) {
	suite, err := cfg.HarnessSuite()
	if err != nil {
		return nil, err
	}
	if runner == nil {
		runner = &harness.CommandRunner{}
	}
	return harness.NewAdapter(suite, runner, logger)
}

// buildSource returns the source control for the target, preparing the git
// branch when git is enabled.
func buildSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.SourceControl, error) {
	ws, err := vcs.NewWorkspace(cfg.Root, cfg.Target, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.VCS.Git {
		return ws, nil
	}
	g := vcs.NewGit(ws, cfg.VCS.Branch)
	if _, err := g.Prepare(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// sinks collects evidence sinks and the resources they hold.
type sinks struct {
	evidence.Multi
	store *store.Store
	dir   *evidence.Dir
}

func (s *sinks) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// buildSinks wires the artifact directory, the optional SQLite store and
// the optional S3 upload. dbOverride and dirOverride replace the config
// values when set.
func buildSinks(cfg *config.Config, dbOverride, dirOverride string, logger *slog.Logger) (*sinks, error) {
	s := &sinks{}

	dir := cfg.Evidence.Dir
	if dirOverride != "" {
		dir = dirOverride
	}
	if dir != "" {
		s.dir = evidence.NewDir(dir, logger)
		s.Multi = append(s.Multi, s.dir)
	}

	db := cfg.Evidence.DB
	if dbOverride != "" {
		db = dbOverride
	}
	if db != "" {
		st, err := store.Open(db)
		if err != nil {
			return nil, fmt.Errorf("open evidence database: %w", err)
		}
		s.store = st
		s.Multi = append(s.Multi, evidence.StoreSink{Store: st})
	}

	if s3cfg, ok := cfg.S3Config(); ok {
		up, err := evidence.NewS3(s3cfg, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Multi = append(s.Multi, up)
	}
	return s, nil
}

// cmdContext returns the command's context, or Background outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, n := range lines {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
