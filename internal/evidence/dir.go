package evidence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/parity/internal/ir"
)

// DefaultDir is the artifacts directory used when none is configured.
const DefaultDir = "artifacts"

// Dir writes each run's pack to <Root>/<run-id>/.
type Dir struct {
	Root   string
	logger *slog.Logger
}

// NewDir creates a Dir sink. A nil logger discards output.
func NewDir(root string, logger *slog.Logger) *Dir {
	if root == "" {
		root = DefaultDir
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dir{Root: root, logger: logger}
}

// Path returns the directory that holds runID's pack.
func (d *Dir) Path(runID string) string {
	return filepath.Join(d.Root, runID)
}

// Record implements Sink.
func (d *Dir) Record(ctx context.Context, o ir.RunOutcome) error {
	p, err := BuildPack(o)
	if err != nil {
		return err
	}
	return d.Write(ctx, p)
}

// Write stores an already built pack.
func (d *Dir) Write(ctx context.Context, p Pack) error {
	if p.RunID == "" {
		return fmt.Errorf("evidence: pack has no run id")
	}
	base := d.Path(p.RunID)
	for _, f := range p.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(base, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("evidence: %w", err)
		}
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return fmt.Errorf("evidence: %w", err)
		}
	}
	d.logger.Info("evidence written", "run_id", p.RunID, "path", base, "files", len(p.Files))
	return nil
}
