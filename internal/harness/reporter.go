package harness

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/roach88/parity/internal/ir"
)

// maxDiagnostic caps the diagnostic text kept per case.
const maxDiagnostic = 4000

// BuildError reports that the suite could not be compiled, so no case ran.
type BuildError struct {
	Package string
	Output  string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for %s: %s", e.Package, truncate(e.Output, 500))
}

// ParseReport dispatches to the parser for kind.
func ParseReport(kind ReporterKind, data []byte) ([]ir.CaseOutcome, error) {
	switch kind {
	case ReporterGoTestJSON:
		return ParseGoTestJSON(data)
	case ReporterJUnit:
		return ParseJUnit(data)
	case ReporterPytest:
		return ParsePytest(data), nil
	default:
		return nil, fmt.Errorf("unknown reporter %q", kind)
	}
}

// testEvent is one line of `go test -json` output.
type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Output  string  `json:"Output"`
	Elapsed float64 `json:"Elapsed"`
}

type goCase struct {
	id     string
	status ir.CaseStatus
	output []string
}

// ParseGoTestJSON parses a `go test -json` event stream. Case ids are
// "package::TestName". A test that starts but never reports a result (for
// example after a panic) is Errored. A package that fails without running
// any test is a *BuildError. Malformed lines are skipped.
func ParseGoTestJSON(data []byte) ([]ir.CaseOutcome, error) {
	cases := make(map[string]*goCase)
	var order []string
	pkgTests := make(map[string]int)
	pkgOutput := make(map[string][]string)

	get := func(pkg, test string) *goCase {
		id := pkg + "::" + test
		if c, ok := cases[id]; ok {
			return c
		}
		c := &goCase{id: id}
		cases[id] = c
		order = append(order, id)
		pkgTests[pkg]++
		return c
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e testEvent
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}

		if e.Test == "" {
			switch e.Action {
			case "output":
				pkgOutput[e.Package] = append(pkgOutput[e.Package], strings.TrimRight(e.Output, "\n"))
			case "fail":
				if pkgTests[e.Package] == 0 {
					return nil, &BuildError{Package: e.Package, Output: strings.Join(pkgOutput[e.Package], "\n")}
				}
			}
			continue
		}

		c := get(e.Package, e.Test)
		switch e.Action {
		case "output":
			c.output = append(c.output, strings.TrimRight(e.Output, "\n"))
		case "pass":
			c.status = ir.StatusPassed
		case "fail":
			c.status = ir.StatusFailed
		case "skip":
			c.status = ir.StatusSkipped
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning test output: %w", err)
	}

	out := make([]ir.CaseOutcome, 0, len(order))
	for _, id := range order {
		c := cases[id]
		status := c.status
		if status == "" {
			status = ir.StatusErrored
		}
		co := ir.CaseOutcome{ID: id, Status: status}
		if status.Failing() {
			co.Diagnostic = truncate(strings.Join(c.output, "\n"), maxDiagnostic)
		}
		out = append(out, co)
	}
	return out, nil
}

// ParseJUnit parses a JUnit XML report. Case ids are "classname::name",
// or just the name when classname is empty.
func ParseJUnit(data []byte) ([]ir.CaseOutcome, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse junit xml: %w", err)
	}
	if xmlquery.FindOne(doc, "//testsuite|//testsuites") == nil {
		return nil, fmt.Errorf("parse junit xml: no testsuite element")
	}

	var out []ir.CaseOutcome
	for _, tc := range xmlquery.Find(doc, "//testcase") {
		name := tc.SelectAttr("name")
		id := name
		if cls := tc.SelectAttr("classname"); cls != "" {
			id = cls + "::" + name
		}

		co := ir.CaseOutcome{ID: id, Status: ir.StatusPassed}
		if n := tc.SelectElement("error"); n != nil {
			co.Status = ir.StatusErrored
			co.Diagnostic = junitDiagnostic(n)
		} else if n := tc.SelectElement("failure"); n != nil {
			co.Status = ir.StatusFailed
			co.Diagnostic = junitDiagnostic(n)
		} else if tc.SelectElement("skipped") != nil {
			co.Status = ir.StatusSkipped
		}
		out = append(out, co)
	}
	if out == nil {
		out = []ir.CaseOutcome{}
	}
	return out, nil
}

func junitDiagnostic(n *xmlquery.Node) string {
	msg := n.SelectAttr("message")
	body := strings.TrimSpace(n.InnerText())
	switch {
	case msg == "":
		return truncate(body, maxDiagnostic)
	case body == "":
		return truncate(msg, maxDiagnostic)
	default:
		return truncate(msg+"\n"+body, maxDiagnostic)
	}
}

var (
	pytestVerbose = regexp.MustCompile(`^(\S+::\S+?)\s+(PASSED|FAILED|ERROR|SKIPPED|XFAIL|XPASS)\b`)
	pytestSummary = regexp.MustCompile(`^(FAILED|ERROR)\s+(\S+::\S+)(?:\s+-\s+(.*))?$`)
)

// ParsePytest parses `pytest -v` output (optionally with -rA summary
// lines). XFAIL counts as skipped and XPASS as passed. Lines from the short
// test summary supply diagnostics.
func ParsePytest(data []byte) []ir.CaseOutcome {
	status := make(map[string]ir.CaseStatus)
	diag := make(map[string]string)
	var order []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := pytestSummary.FindStringSubmatch(line); m != nil {
			if m[3] != "" {
				diag[m[2]] = truncate(m[3], maxDiagnostic)
			}
			if _, seen := status[m[2]]; !seen {
				order = append(order, m[2])
				status[m[2]] = pytestStatus(m[1])
			}
			continue
		}
		m := pytestVerbose.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, st := m[1], pytestStatus(m[2])
		prev, seen := status[id]
		if !seen {
			order = append(order, id)
		}
		// A test can report PASSED then ERROR in teardown.
		if !seen || st == ir.StatusErrored || (st == ir.StatusFailed && prev != ir.StatusErrored) {
			status[id] = st
		}
	}

	out := make([]ir.CaseOutcome, 0, len(order))
	for _, id := range order {
		co := ir.CaseOutcome{ID: id, Status: status[id]}
		if co.Status.Failing() {
			co.Diagnostic = diag[id]
		}
		out = append(out, co)
	}
	return out
}

func pytestStatus(word string) ir.CaseStatus {
	switch word {
	case "PASSED", "XPASS":
		return ir.StatusPassed
	case "FAILED":
		return ir.StatusFailed
	case "ERROR":
		return ir.StatusErrored
	default:
		return ir.StatusSkipped
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
