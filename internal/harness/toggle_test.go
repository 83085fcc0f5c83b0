package harness

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parity/internal/ir"
)

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "On", " on "} {
		assert.True(t, IsTruthy(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "off", "2", "enabled"} {
		assert.False(t, IsTruthy(v), v)
	}
}

func TestToggleEnviron(t *testing.T) {
	tg := Toggle{Name: "BILLING_V2"}
	base := []string{"PATH=/bin", "BILLING_V2=1", "BILLING_V2_EXTRA=x", "BILLING_V2=yes"}

	baseline := tg.Environ(base, ir.ModeBaseline)
	assert.Equal(t, []string{"PATH=/bin", "BILLING_V2_EXTRA=x"}, baseline)

	candidate := tg.Environ(base, ir.ModeCandidate)
	assert.Equal(t, []string{"PATH=/bin", "BILLING_V2_EXTRA=x", "BILLING_V2=1"}, candidate)

	assert.Equal(t, []string{"PATH=/bin", "BILLING_V2=1", "BILLING_V2_EXTRA=x", "BILLING_V2=yes"}, base,
		"base environment must not be modified")
}

func TestToggleModeOf(t *testing.T) {
	tg := Toggle{Name: "FLAG"}
	lookup := func(env map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		}
	}

	assert.Equal(t, ir.ModeBaseline, tg.ModeOf(lookup(nil)))
	assert.Equal(t, ir.ModeBaseline, tg.ModeOf(lookup(map[string]string{"FLAG": "0"})))
	assert.Equal(t, ir.ModeCandidate, tg.ModeOf(lookup(map[string]string{"FLAG": "true"})))
}

func TestScopedEnvRestoresPreviousValue(t *testing.T) {
	const name = "PARITY_TEST_SCOPED_TOGGLE"
	t.Setenv(name, "previous")

	scope, err := AcquireEnv(Toggle{Name: name}, ir.ModeCandidate)
	require.NoError(t, err)
	assert.Equal(t, CandidateValue, os.Getenv(name))
	scope.Release()
	assert.Equal(t, "previous", os.Getenv(name))

	scope, err = AcquireEnv(Toggle{Name: name}, ir.ModeBaseline)
	require.NoError(t, err)
	_, present := os.LookupEnv(name)
	assert.False(t, present, "baseline removes the toggle")
	scope.Release()
	scope.Release()
	assert.Equal(t, "previous", os.Getenv(name))
}

func TestScopedEnvUnsetStaysUnset(t *testing.T) {
	const name = "PARITY_TEST_SCOPED_UNSET"
	require.NoError(t, os.Unsetenv(name))

	scope, err := AcquireEnv(Toggle{Name: name}, ir.ModeCandidate)
	require.NoError(t, err)
	scope.Release()

	_, present := os.LookupEnv(name)
	assert.False(t, present)
}
