package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReporterKind names the format a suite reports results in.
type ReporterKind string

const (
	ReporterGoTestJSON ReporterKind = "go-test-json"
	ReporterJUnit      ReporterKind = "junit-xml"
	ReporterPytest     ReporterKind = "pytest"
)

// ReportPlaceholder in a command argument is replaced by a per-invocation
// report file path.
const ReportPlaceholder = "{report}"

// DefaultTimeout bounds a single suite invocation.
const DefaultTimeout = 10 * time.Minute

// Duration is a time.Duration that reads from YAML strings like "90s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Suite describes how to run the external verification suite.
type Suite struct {
	// Name labels the suite in logs and evidence.
	Name string `yaml:"name"`

	// Command is the argv of the suite runner. The first element is looked
	// up on PATH.
	Command []string `yaml:"command"`

	// Dir is the working directory. Relative paths resolve against the
	// suite file's directory when loaded from YAML.
	Dir string `yaml:"dir,omitempty"`

	// Env adds variables to every invocation. It must not set the toggle.
	Env map[string]string `yaml:"env,omitempty"`

	// Reporter selects the result parser.
	Reporter ReporterKind `yaml:"reporter"`

	// ReportFile is a report path written by the suite, relative to Dir.
	// When empty and no {report} placeholder is used, stdout is parsed.
	ReportFile string `yaml:"report_file,omitempty"`

	// Toggle is the environment variable that selects the candidate.
	Toggle string `yaml:"toggle"`

	Timeout Duration `yaml:"timeout,omitempty"`

	// AttemptsPerMode re-runs the suite to detect flaky cases. Statuses are
	// never averaged; disagreeing cases are reported as flaky.
	AttemptsPerMode int `yaml:"attempts_per_mode,omitempty"`

	// Parallel lets isolated runners execute both modes concurrently.
	Parallel bool `yaml:"parallel,omitempty"`
}

// WithDefaults returns a copy of s with zero fields defaulted.
func (s Suite) WithDefaults() Suite {
	if s.Reporter == "" {
		s.Reporter = ReporterGoTestJSON
	}
	if s.Timeout <= 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.AttemptsPerMode <= 0 {
		s.AttemptsPerMode = 1
	}
	return s
}

// Validate checks that the suite can be run by a CommandRunner.
func (s Suite) Validate() error {
	if len(s.Command) == 0 || s.Command[0] == "" {
		return fmt.Errorf("command is required and must be non-empty")
	}
	if err := s.validateCommon(); err != nil {
		return err
	}
	if s.Reporter == ReporterJUnit && s.ReportFile == "" && !s.usesPlaceholder() {
		return fmt.Errorf("reporter %s needs report_file or a %s argument", s.Reporter, ReportPlaceholder)
	}
	return nil
}

func (s Suite) validateCommon() error {
	if s.Toggle == "" {
		return fmt.Errorf("toggle is required")
	}
	if _, ok := s.Env[s.Toggle]; ok {
		return fmt.Errorf("env must not set the toggle %s", s.Toggle)
	}
	switch s.Reporter {
	case ReporterGoTestJSON, ReporterJUnit, ReporterPytest, "":
	default:
		return fmt.Errorf("unknown reporter %q", s.Reporter)
	}
	if s.AttemptsPerMode < 0 {
		return fmt.Errorf("attempts_per_mode must not be negative")
	}
	return nil
}

func (s Suite) usesPlaceholder() bool {
	for _, arg := range s.Command {
		if strings.Contains(arg, ReportPlaceholder) {
			return true
		}
	}
	return false
}

// LoadSuite reads and validates a suite YAML file.
// Unknown fields are rejected. A relative dir resolves against the file's
// directory.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if !filepath.IsAbs(suite.Dir) {
		suite.Dir = filepath.Join(filepath.Dir(path), suite.Dir)
	}

	suite = suite.WithDefaults()
	if err := suite.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return &suite, nil
}
