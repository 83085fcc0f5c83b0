package harness

import (
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/parity/internal/ir"
)

// CandidateValue is the value the toggle is set to for candidate runs.
const CandidateValue = "1"

// Toggle is the single named switch that selects the candidate
// configuration. A truthy value selects Candidate; absence or any other
// value selects Baseline.
type Toggle struct {
	Name string
}

// IsTruthy reports whether v activates the candidate: 1, true, yes or on,
// in any case, surrounded by optional whitespace.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// ModeOf reads the mode a process would observe given an environment
// lookup function such as os.LookupEnv.
func (t Toggle) ModeOf(lookup func(string) (string, bool)) ir.ExecutionMode {
	if v, ok := lookup(t.Name); ok && IsTruthy(v) {
		return ir.ModeCandidate
	}
	return ir.ModeBaseline
}

// Environ returns a copy of base (KEY=VALUE entries) with every entry for
// the toggle removed, then the toggle set if mode is Candidate.
// base is not modified.
func (t Toggle) Environ(base []string, mode ir.ExecutionMode) []string {
	prefix := t.Name + "="
	env := slices.DeleteFunc(slices.Clone(base), func(kv string) bool {
		return strings.HasPrefix(kv, prefix)
	})
	if mode == ir.ModeCandidate {
		env = append(env, prefix+CandidateValue)
	}
	return env
}

// envMu serializes every ScopedEnv in the process.
var envMu sync.Mutex

// ScopedEnv holds the process environment's toggle for the lifetime of one
// in-process invocation.
type ScopedEnv struct {
	name     string
	prev     string
	hadPrev  bool
	released bool
}

// AcquireEnv blocks until no other ScopedEnv is held, then sets the toggle
// for mode. The caller must call Release.
func AcquireEnv(t Toggle, mode ir.ExecutionMode) (*ScopedEnv, error) {
	envMu.Lock()
	prev, had := os.LookupEnv(t.Name)
	s := &ScopedEnv{name: t.Name, prev: prev, hadPrev: had}

	var err error
	if mode == ir.ModeCandidate {
		err = os.Setenv(t.Name, CandidateValue)
	} else {
		err = os.Unsetenv(t.Name)
	}
	if err != nil {
		s.restore()
		envMu.Unlock()
		return nil, err
	}
	return s, nil
}

// Release restores the toggle's previous value and releases the lock.
// Calling Release more than once is a no-op.
func (s *ScopedEnv) Release() {
	if s == nil || s.released {
		return
	}
	s.released = true
	s.restore()
	envMu.Unlock()
}

func (s *ScopedEnv) restore() {
	if s.hadPrev {
		_ = os.Setenv(s.name, s.prev)
	} else {
		_ = os.Unsetenv(s.name)
	}
}
