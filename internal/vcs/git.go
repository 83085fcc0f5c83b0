package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/roach88/parity/internal/ir"
)

// Git decorates a Workspace with branch and commit handling.
type Git struct {
	*Workspace

	// Branch is created by Prepare when set.
	Branch string

	// Author overrides the commit author, "Name <email>".
	Author string
}

// NewGit wraps w.
func NewGit(w *Workspace, branch string) *Git {
	return &Git{Workspace: w, Branch: branch}
}

// Prepare checks that root is a git work tree and creates Branch. A dirty
// tree is reported but does not fail, matching how the tool is used on
// in-progress checkouts.
func (g *Git) Prepare(ctx context.Context) (dirty bool, err error) {
	if _, err := g.git(ctx, "rev-parse", "--is-inside-work-tree"); err != nil {
		return false, fmt.Errorf("vcs: %s is not a git work tree: %w", g.root, err)
	}
	status, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	dirty = strings.TrimSpace(status) != ""
	if dirty {
		g.logger.Warn("working tree has uncommitted changes", "root", g.root)
	}
	if g.Branch == "" {
		return dirty, nil
	}
	current, err := g.CurrentBranch(ctx)
	if err == nil && current == g.Branch {
		return dirty, nil
	}
	if _, err := g.git(ctx, "checkout", "-b", g.Branch); err != nil {
		return dirty, err
	}
	g.logger.Info("created branch", "branch", g.Branch)
	return dirty, nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Finalize commits the unit with message. Nothing is committed when the
// file matches HEAD.
func (g *Git) Finalize(ctx context.Context, final ir.SourceState, message string) error {
	if _, err := g.git(ctx, "add", "--", g.target); err != nil {
		return err
	}
	if _, err := g.git(ctx, "diff", "--cached", "--quiet", "--", g.target); err == nil {
		g.logger.Info("nothing to commit", "path", g.target)
		return nil
	}
	args := []string{"commit", "-m", message}
	if g.Author != "" {
		args = append(args, "--author", g.Author)
	}
	args = append(args, "--", g.target)
	if _, err := g.git(ctx, args...); err != nil {
		return err
	}
	g.logger.Info("committed", "path", g.target, "digest", final.Digest)
	return nil
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
