package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/roach88/parity/internal/ir"
)

// Invocation is one suite run in one mode.
type Invocation struct {
	Suite   Suite
	Mode    ir.ExecutionMode
	Attempt int
}

// Raw is the unparsed output of one invocation.
type Raw struct {
	Command  []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	TimedOut bool

	// Report holds the report file contents when HasReport is set.
	Report    []byte
	HasReport bool

	// Cases is set by runners that produce structured results directly.
	// When non-nil the reporter is bypassed.
	Cases []ir.CaseOutcome
}

// Runner executes a suite invocation.
//
// Run returns an error only when the suite could not start. Test failures,
// non-zero exits and timeouts are reported through Raw.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Raw, error)

	// Isolated reports whether concurrent invocations in different modes
	// are safe.
	Isolated() bool
}

// CommandRunner runs the suite as a subprocess. Each subprocess gets its own
// environment, so invocations are isolated.
type CommandRunner struct {
	// BaseEnv is the environment the toggle is layered onto. Nil means
	// os.Environ().
	BaseEnv []string

	// WaitDelay bounds how long I/O may linger after the process is killed.
	WaitDelay time.Duration
}

// Isolated is always true: mode travels in the subprocess environment.
func (r *CommandRunner) Isolated() bool { return true }

// Run executes inv.Suite.Command in inv.Mode.
func (r *CommandRunner) Run(ctx context.Context, inv Invocation) (Raw, error) {
	suite := inv.Suite
	if len(suite.Command) == 0 {
		return Raw{}, fmt.Errorf("empty command")
	}

	reportPath, cleanup, err := r.reportPath(suite)
	if err != nil {
		return Raw{}, err
	}
	defer cleanup()

	args := make([]string, len(suite.Command))
	for i, a := range suite.Command {
		args[i] = strings.ReplaceAll(a, ReportPlaceholder, reportPath)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = suite.Dir
	cmd.Env = Toggle{Name: suite.Toggle}.Environ(r.environ(suite), inv.Mode)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Raw{Command: args}, fmt.Errorf("start %s: %w", args[0], err)
	}
	waitErr := cmd.Wait()

	raw := Raw{
		Command:  args,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
		ExitCode: cmd.ProcessState.ExitCode(),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !raw.TimedOut {
		return raw, fmt.Errorf("wait %s: %w", args[0], waitErr)
	}

	if reportPath != "" {
		if data, err := os.ReadFile(reportPath); err == nil {
			raw.Report = data
			raw.HasReport = true
		}
	}
	return raw, nil
}

// environ merges the base environment with suite.Env in a stable order.
func (r *CommandRunner) environ(suite Suite) []string {
	base := r.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	env := append([]string(nil), base...)
	keys := make([]string, 0, len(suite.Env))
	for k := range suite.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+suite.Env[k])
	}
	return env
}

// reportPath picks where the suite writes its report: a fresh temp file
// for the {report} placeholder, or the configured report file, which is
// removed first so a stale report is never read.
func (r *CommandRunner) reportPath(suite Suite) (string, func(), error) {
	noop := func() {}
	if suite.usesPlaceholder() {
		f, err := os.CreateTemp("", "parity-report-*")
		if err != nil {
			return "", noop, fmt.Errorf("create report file: %w", err)
		}
		path := f.Name()
		_ = f.Close()
		// The suite creates the file; an empty leftover must not count as
		// a report.
		_ = os.Remove(path)
		return path, func() { _ = os.Remove(path) }, nil
	}
	if suite.ReportFile != "" {
		path := suite.ReportFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(suite.Dir, path)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", noop, fmt.Errorf("remove stale report: %w", err)
		}
		return path, noop, nil
	}
	return "", noop, nil
}

// SuiteFunc is an in-process suite. It observes the mode through the
// process environment, as the unit under test would.
type SuiteFunc func(ctx context.Context) ([]ir.CaseOutcome, error)

// FuncRunner runs a SuiteFunc under a ScopedEnv. It is not isolated.
type FuncRunner struct {
	Fn SuiteFunc
}

// Isolated is false: the toggle lives in shared process state.
func (r *FuncRunner) Isolated() bool { return false }

// Run acquires the toggle for inv.Mode, calls Fn, and releases the toggle.
func (r *FuncRunner) Run(ctx context.Context, inv Invocation) (Raw, error) {
	scope, err := AcquireEnv(Toggle{Name: inv.Suite.Toggle}, inv.Mode)
	if err != nil {
		return Raw{}, fmt.Errorf("set toggle: %w", err)
	}
	defer scope.Release()

	start := time.Now()
	cases, err := r.Fn(ctx)
	raw := Raw{
		Command:  []string{"<in-process>"},
		Duration: time.Since(start),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		Cases:    cases,
	}
	if err != nil && !raw.TimedOut {
		return raw, err
	}
	if raw.Cases == nil {
		raw.Cases = []ir.CaseOutcome{}
	}
	return raw, nil
}
