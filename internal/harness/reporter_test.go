package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parity/internal/ir"
)

const goTestStream = `{"Action":"start","Package":"example.com/billing"}
{"Action":"run","Package":"example.com/billing","Test":"TestTotal"}
{"Action":"output","Package":"example.com/billing","Test":"TestTotal","Output":"=== RUN   TestTotal\n"}
{"Action":"pass","Package":"example.com/billing","Test":"TestTotal","Elapsed":0.01}
{"Action":"run","Package":"example.com/billing","Test":"TestHalfCoupon"}
{"Action":"output","Package":"example.com/billing","Test":"TestHalfCoupon","Output":"    billing_test.go:42: got 60, want 50\n"}
{"Action":"fail","Package":"example.com/billing","Test":"TestHalfCoupon","Elapsed":0.02}
{"Action":"run","Package":"example.com/billing","Test":"TestLegacy"}
{"Action":"skip","Package":"example.com/billing","Test":"TestLegacy"}
not json at all
{"Action":"run","Package":"example.com/billing","Test":"TestPanics"}
{"Action":"output","Package":"example.com/billing","Test":"TestPanics","Output":"panic: boom\n"}
{"Action":"fail","Package":"example.com/billing","Elapsed":0.1}
`

func TestParseGoTestJSON(t *testing.T) {
	cases, err := ParseGoTestJSON([]byte(goTestStream))
	require.NoError(t, err)

	assert.Equal(t, []ir.CaseOutcome{
		{ID: "example.com/billing::TestTotal", Status: ir.StatusPassed},
		{ID: "example.com/billing::TestHalfCoupon", Status: ir.StatusFailed, Diagnostic: "    billing_test.go:42: got 60, want 50"},
		{ID: "example.com/billing::TestLegacy", Status: ir.StatusSkipped},
		{ID: "example.com/billing::TestPanics", Status: ir.StatusErrored, Diagnostic: "panic: boom"},
	}, cases)
}

func TestParseGoTestJSONBuildFailure(t *testing.T) {
	stream := `{"Action":"start","Package":"example.com/billing"}
{"Action":"output","Package":"example.com/billing","Output":"# example.com/billing\n"}
{"Action":"output","Package":"example.com/billing","Output":"./billing.go:3:1: syntax error\n"}
{"Action":"fail","Package":"example.com/billing","Elapsed":0}
`
	_, err := ParseGoTestJSON([]byte(stream))
	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "example.com/billing", be.Package)
	assert.Contains(t, be.Output, "syntax error")
}

func TestParseJUnit(t *testing.T) {
	report := `<?xml version="1.0" encoding="utf-8"?>
<testsuites>
  <testsuite name="pytest" tests="4">
    <testcase classname="tests.test_billing" name="test_total" time="0.01"/>
    <testcase classname="tests.test_billing" name="test_half_coupon_with_cap" time="0.01">
      <failure message="assert 60 == 50">AssertionError</failure>
    </testcase>
    <testcase classname="tests.test_billing" name="test_db" time="0.00">
      <error message="fixture missing"/>
    </testcase>
    <testcase name="test_skipped"><skipped/></testcase>
  </testsuite>
</testsuites>`

	cases, err := ParseJUnit([]byte(report))
	require.NoError(t, err)
	assert.Equal(t, []ir.CaseOutcome{
		{ID: "tests.test_billing::test_total", Status: ir.StatusPassed},
		{ID: "tests.test_billing::test_half_coupon_with_cap", Status: ir.StatusFailed, Diagnostic: "assert 60 == 50\nAssertionError"},
		{ID: "tests.test_billing::test_db", Status: ir.StatusErrored, Diagnostic: "fixture missing"},
		{ID: "test_skipped", Status: ir.StatusSkipped},
	}, cases)
}

func TestParseJUnitRejectsGarbage(t *testing.T) {
	_, err := ParseJUnit([]byte("<html><body>oops</body></html>"))
	assert.Error(t, err)
}

func TestParsePytest(t *testing.T) {
	out := `============================= test session starts ==============================
collected 4 items

tests/test_billing.py::test_total PASSED                                 [ 25%]
tests/test_billing.py::test_half_coupon_with_cap FAILED                  [ 50%]
tests/test_billing.py::test_member PASSED                                [ 75%]
tests/test_billing.py::test_member ERROR                                 [ 75%]
tests/test_billing.py::test_old XFAIL                                    [100%]

=========================== short test summary info ============================
FAILED tests/test_billing.py::test_half_coupon_with_cap - assert 60.0 == 50.0
ERROR tests/test_billing.py::test_member - fixture 'db' not found
==================== 1 failed, 2 passed, 1 error in 0.12s =====================
`
	cases := ParsePytest([]byte(out))
	assert.Equal(t, []ir.CaseOutcome{
		{ID: "tests/test_billing.py::test_total", Status: ir.StatusPassed},
		{ID: "tests/test_billing.py::test_half_coupon_with_cap", Status: ir.StatusFailed, Diagnostic: "assert 60.0 == 50.0"},
		{ID: "tests/test_billing.py::test_member", Status: ir.StatusErrored, Diagnostic: "fixture 'db' not found"},
		{ID: "tests/test_billing.py::test_old", Status: ir.StatusSkipped},
	}, cases)
}

func TestParseReportUnknownKind(t *testing.T) {
	_, err := ParseReport("tap", nil)
	assert.Error(t, err)
}
