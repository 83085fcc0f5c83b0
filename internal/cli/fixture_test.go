package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parity/internal/harness"
	"github.com/roach88/parity/internal/ir"
)

const (
	cliToggle   = "PARITY_CLI_TEST_V2"
	billingPath = "app/billing.py"
	capCase     = "test_half_coupon_with_cap"
)

const billingV1 = `def compute_total(items):
    return sum(items)
`

const checkoutPy = `from app.billing import compute_total


def checkout(cart):
    return compute_total(cart)
`

const testBillingPy = `from app.billing import compute_total


def test_half_coupon_with_cap():
    assert compute_total([1, 2]) == 3
`

const (
	goodV2  = "def compute_total(items):\n    return sum(items)  # v2\n"
	buggyV2 = "def compute_total(items):\n    return sum(items) - 1  # bug\n"
)

const parityYAML = `target: app/billing.py
symbol: compute_total
goal: switch compute_total to the v2 rounding rules
suite:
  name: billing
  command: ["python", "-m", "pytest", "-q"]
  reporter: pytest
  toggle: PARITY_CLI_TEST_V2
evidence:
  dir: artifacts
`

// project is a temp codebase with a parity.yaml at its root.
type project struct {
	root   string
	config string
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, billingPath, billingV1)
	writeFile(t, root, "app/checkout.py", checkoutPy)
	writeFile(t, root, "tests/test_billing.py", testBillingPy)
	writeFile(t, root, "parity.yaml", parityYAML)
	return &project{root: root, config: filepath.Join(root, "parity.yaml")}
}

func (p *project) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// runner is an in-process billing suite. The candidate fails the cap case
// while the staged source is buggy.
func (p *project) runner() *harness.FuncRunner {
	return &harness.FuncRunner{Fn: func(ctx context.Context) ([]ir.CaseOutcome, error) {
		data, err := os.ReadFile(filepath.Join(p.root, billingPath))
		if err != nil {
			return nil, err
		}
		mode := harness.Toggle{Name: cliToggle}.ModeOf(os.LookupEnv)

		cases := make([]ir.CaseOutcome, 0, 4)
		for i := 0; i < 3; i++ {
			cases = append(cases, ir.CaseOutcome{ID: fmt.Sprintf("test_case_%02d", i), Status: ir.StatusPassed})
		}
		capOutcome := ir.CaseOutcome{ID: capCase, Status: ir.StatusPassed}
		if mode == ir.ModeCandidate && strings.Contains(string(data), "# bug") {
			capOutcome = ir.CaseOutcome{ID: capCase, Status: ir.StatusFailed, Diagnostic: "AssertionError: 2 != 3"}
		}
		return append(cases, capOutcome), nil
	}}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testCommand returns a bare command whose output is captured.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}
