package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/parity/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Run succeeded, modes are equivalent
	ExitFailure      = 1 // Modes disagree, budget exhausted or run cancelled
	ExitCommandError = 2 // Bad flags or config, unreadable database, fatal run error
)

// Error codes reported in CLIError.
const (
	ErrCodeConfig   = "E001" // config missing or invalid
	ErrCodeStore    = "E002" // evidence database unavailable
	ErrCodeScan     = "E003" // index scan failed
	ErrCodeAnalysis = "E004" // symbol not found
	ErrCodeHarness  = "E005" // suite could not be set up
	ErrCodeRun      = "E006" // run ended in a fatal error
	ErrCodeNotFound = "E007" // no such run
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure for errors that carry no code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ExitCodeFor maps a terminal run status to a process exit code.
func ExitCodeFor(status ir.RunStatus) int {
	switch status {
	case ir.StatusSucceeded:
		return ExitSuccess
	case ir.StatusExhaustedBudget, ir.StatusCancelled:
		return ExitFailure
	default:
		return ExitCommandError
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool

	styles *styles
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
// Text output prints data with fmt.Println; callers with richer text output
// write to Writer themselves and call Success only for JSON.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "%s [%s]: %s\n", f.style().bad.Render("Error"), code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) style() *styles {
	if f.styles == nil {
		f.styles = newStyles(f.Writer)
	}
	return f.styles
}

// styles renders text output. The renderer is bound to the output writer,
// so colors are dropped when it is not a terminal.
type styles struct {
	good    lipgloss.Style
	bad     lipgloss.Style
	warn    lipgloss.Style
	heading lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer) *styles {
	r := lipgloss.NewRenderer(w)
	return &styles{
		good:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		bad:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		heading: r.NewStyle().Bold(true).Underline(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// status renders a run status with its color.
func (s *styles) status(st ir.RunStatus) string {
	switch st {
	case ir.StatusSucceeded:
		return s.good.Render(string(st))
	case ir.StatusExhaustedBudget, ir.StatusCancelled:
		return s.warn.Render(string(st))
	default:
		return s.bad.Render(string(st))
	}
}

// verdict renders a classification with its color.
func (s *styles) verdict(c ir.Classification) string {
	switch c {
	case ir.Equivalent:
		return s.good.Render(string(c))
	case ir.Diverged:
		return s.bad.Render(string(c))
	default:
		return s.warn.Render(string(c))
	}
}

// risk renders a risk tier with its color.
func (s *styles) risk(t ir.RiskTier) string {
	switch t {
	case ir.RiskHigh:
		return s.bad.Render(string(t))
	case ir.RiskMedium:
		return s.warn.Render(string(t))
	default:
		return s.good.Render(string(t))
	}
}
