// Package vcs snapshots, rewrites and restores the unit under validation,
// and optionally records the result in git.
package vcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/parity/internal/ir"
)

// Workspace owns one source file on disk.
type Workspace struct {
	root   string
	target string
	logger *slog.Logger
}

// NewWorkspace creates a Workspace for target, a path relative to root.
// A nil logger discards output.
func NewWorkspace(root, target string, logger *slog.Logger) (*Workspace, error) {
	if target == "" {
		return nil, fmt.Errorf("vcs: target is required")
	}
	if filepath.IsAbs(target) {
		rel, err := filepath.Rel(root, target)
		if err != nil {
			return nil, fmt.Errorf("vcs: target %s is not under %s: %w", target, root, err)
		}
		target = rel
	}
	target = filepath.ToSlash(filepath.Clean(target))
	if target == ".." || len(target) > 2 && target[:3] == "../" {
		return nil, fmt.Errorf("vcs: target %s escapes %s", target, root)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Workspace{root: root, target: target, logger: logger}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Target returns the slash-separated path of the unit, relative to Root.
func (w *Workspace) Target() string {
	return w.target
}

func (w *Workspace) abs() string {
	return filepath.Join(w.root, filepath.FromSlash(w.target))
}

// Snapshot reads the current content of the unit.
func (w *Workspace) Snapshot(ctx context.Context) (ir.SourceState, error) {
	if err := ctx.Err(); err != nil {
		return ir.SourceState{}, err
	}
	data, err := os.ReadFile(w.abs())
	if err != nil {
		return ir.SourceState{}, fmt.Errorf("vcs: snapshot %s: %w", w.target, err)
	}
	return ir.NewSourceState(w.target, string(data)), nil
}

// Apply makes the unit hold state's content. It is a no-op when the file
// already has the same digest. Writes go to a temp file in the same
// directory and are renamed into place, so readers never see a partial file.
func (w *Workspace) Apply(ctx context.Context, state ir.SourceState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.Path != "" && filepath.ToSlash(filepath.Clean(state.Path)) != w.target {
		return fmt.Errorf("vcs: state is for %s, workspace owns %s", state.Path, w.target)
	}
	if state.Digest != ir.SourceDigest(state.Content) {
		return fmt.Errorf("vcs: state digest does not match its content")
	}

	path := w.abs()
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
		if current, err := os.ReadFile(path); err == nil && ir.SourceDigest(string(current)) == state.Digest {
			w.logger.Debug("apply skipped, content unchanged", "path", w.target, "digest", state.Digest)
			return nil
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".parity-*")
	if err != nil {
		return fmt.Errorf("vcs: apply %s: %w", w.target, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.WriteString(tmp, state.Content); err != nil {
		tmp.Close()
		return fmt.Errorf("vcs: apply %s: %w", w.target, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("vcs: apply %s: %w", w.target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vcs: apply %s: %w", w.target, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("vcs: apply %s: %w", w.target, err)
	}
	w.logger.Info("applied source", "path", w.target, "digest", state.Digest)
	return nil
}

// Restore puts a snapshot back.
func (w *Workspace) Restore(ctx context.Context, snapshot ir.SourceState) error {
	return w.Apply(ctx, snapshot)
}

// Finalize is a no-op for a plain workspace; the applied file is the result.
func (w *Workspace) Finalize(ctx context.Context, final ir.SourceState, message string) error {
	return nil
}
