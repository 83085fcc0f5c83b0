// Package config loads the run configuration: a YAML file validated and
// defaulted by an embedded CUE schema, with secrets taken from the
// environment.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/parity/internal/evidence"
	"github.com/roach88/parity/internal/harness"
	"github.com/roach88/parity/internal/index"
	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/oracle"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "parity.yaml"

// Environment variables holding secrets.
const (
	EnvS3AccessKey = "PARITY_S3_ACCESS_KEY"
	EnvS3SecretKey = "PARITY_S3_SECRET_KEY"
)

// Config is a validated, defaulted run configuration.
type Config struct {
	Target    string            `json:"target"`
	Symbol    string            `json:"symbol"`
	Root      string            `json:"root"`
	Goal      string            `json:"goal"`
	Budget    Budget            `json:"budget"`
	Risk      ir.RiskThresholds `json:"risk"`
	Index     Index             `json:"index"`
	SuiteFile string            `json:"suite_file,omitempty"`
	Suite     *Suite            `json:"suite,omitempty"`
	Oracle    Oracle            `json:"oracle"`
	VCS       VCS               `json:"vcs"`
	Evidence  Evidence          `json:"evidence"`
}

type Budget struct {
	MaxRepairs int `json:"max_repairs"`
}

type Index struct {
	Languages      []string `json:"languages"`
	TextExtensions []string `json:"text_extensions"`
	SkipDirs       []string `json:"skip_dirs"`
	Concurrency    int      `json:"concurrency"`
	CacheSize      int      `json:"cache_size"`
}

type Suite struct {
	Name            string            `json:"name"`
	Command         []string          `json:"command"`
	Dir             string            `json:"dir"`
	Env             map[string]string `json:"env"`
	Reporter        string            `json:"reporter"`
	ReportFile      string            `json:"report_file"`
	Toggle          string            `json:"toggle"`
	Timeout         string            `json:"timeout"`
	AttemptsPerMode int               `json:"attempts_per_mode"`
	Parallel        bool              `json:"parallel"`
}

type Oracle struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	Timeout  string `json:"timeout"`
}

type VCS struct {
	Git              bool   `json:"git"`
	Branch           string `json:"branch"`
	RestoreOnFailure bool   `json:"restore_on_failure"`
}

type Evidence struct {
	Dir         string `json:"dir"`
	DB          string `json:"db"`
	MetricsFile string `json:"metrics_file"`
	S3          *S3    `json:"s3,omitempty"`
}

type S3 struct {
	Endpoint string `json:"endpoint"`
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix"`
	Region   string `json:"region"`
	UseSSL   bool   `json:"use_ssl"`
}

// Overrides are dotted-path values applied on top of the file, such as
// "budget.max_repairs" from a command-line flag.
type Overrides map[string]any

// Load reads path (which may be empty for flags-only runs), applies
// overrides, then validates and defaults the result against the schema.
// Relative paths in the file resolve against the file's directory.
func Load(path string, overrides Overrides) (*Config, error) {
	data := map[string]any{}
	base := "."
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(raw))
		if err := decoder.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if data == nil {
			data = map[string]any{}
		}
		base = filepath.Dir(path)
	}
	for key, v := range overrides {
		if err := setPath(data, key, v); err != nil {
			return nil, err
		}
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(base)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data map[string]any) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(data))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setPath(data map[string]any, key string, v any) error {
	parts := strings.Split(key, ".")
	m := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p]
		if !ok {
			child := map[string]any{}
			m[p] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("override %s: %s is not a mapping", key, p)
		}
		m = child
	}
	m[parts[len(parts)-1]] = v
	return nil
}

func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Root = abs(c.Root)
	c.SuiteFile = abs(c.SuiteFile)
	c.Evidence.Dir = abs(c.Evidence.Dir)
	c.Evidence.DB = abs(c.Evidence.DB)
	c.Evidence.MetricsFile = abs(c.Evidence.MetricsFile)
	if c.Suite != nil {
		c.Suite.Dir = abs(c.Suite.Dir)
	}
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Risk.Low > c.Risk.High {
		return fmt.Errorf("risk.low (%d) must not exceed risk.high (%d)", c.Risk.Low, c.Risk.High)
	}
	if c.Suite != nil && c.SuiteFile != "" {
		return fmt.Errorf("set either suite or suite_file, not both")
	}
	if _, err := time.ParseDuration(c.Oracle.Timeout); err != nil {
		return fmt.Errorf("oracle.timeout: %w", err)
	}
	if c.Suite != nil {
		if _, err := time.ParseDuration(c.Suite.Timeout); err != nil {
			return fmt.Errorf("suite.timeout: %w", err)
		}
		if _, ok := c.Suite.Env[c.Suite.Toggle]; ok {
			return fmt.Errorf("suite.env must not set the toggle %s", c.Suite.Toggle)
		}
	}
	for _, l := range c.Index.Languages {
		if _, err := index.ParseLanguage(l); err != nil {
			return fmt.Errorf("index.languages: %w", err)
		}
	}
	return nil
}

// SymbolRef is the configured symbol keyed by its defining file.
func (c *Config) SymbolRef() ir.Symbol {
	return ir.Symbol{Module: c.targetPath(), Name: c.Symbol}
}

// targetPath is Target in the cleaned slash form the index reports.
func (c *Config) targetPath() string {
	if c.Target == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(c.Target))
}

// OracleTimeout is the per-call oracle deadline.
func (c *Config) OracleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Oracle.Timeout)
	return d
}

// HasSuite reports whether a suite is configured inline or by file.
func (c *Config) HasSuite() bool {
	return c.Suite != nil || c.SuiteFile != ""
}

// HarnessSuite returns the suite to run, loading SuiteFile when set.
func (c *Config) HarnessSuite() (harness.Suite, error) {
	if c.SuiteFile != "" {
		s, err := harness.LoadSuite(c.SuiteFile)
		if err != nil {
			return harness.Suite{}, err
		}
		return *s, nil
	}
	if c.Suite == nil {
		return harness.Suite{}, fmt.Errorf("no suite configured")
	}
	timeout, err := time.ParseDuration(c.Suite.Timeout)
	if err != nil {
		return harness.Suite{}, fmt.Errorf("suite.timeout: %w", err)
	}
	s := harness.Suite{
		Name:            c.Suite.Name,
		Command:         c.Suite.Command,
		Dir:             c.Suite.Dir,
		Env:             c.Suite.Env,
		Reporter:        harness.ReporterKind(c.Suite.Reporter),
		ReportFile:      c.Suite.ReportFile,
		Toggle:          c.Suite.Toggle,
		Timeout:         harness.Duration(timeout),
		AttemptsPerMode: c.Suite.AttemptsPerMode,
		Parallel:        c.Suite.Parallel,
	}.WithDefaults()
	if err := s.Validate(); err != nil {
		return harness.Suite{}, fmt.Errorf("invalid suite: %w", err)
	}
	return s, nil
}

// IndexOptions converts the index section.
func (c *Config) IndexOptions() (index.Options, error) {
	opts := index.Options{
		TextExtensions: c.Index.TextExtensions,
		SkipDirs:       c.Index.SkipDirs,
		DefinitionFile: c.targetPath(),
		Concurrency:    c.Index.Concurrency,
		CacheSize:      c.Index.CacheSize,
	}
	for _, l := range c.Index.Languages {
		lang, err := index.ParseLanguage(l)
		if err != nil {
			return index.Options{}, err
		}
		opts.Languages = append(opts.Languages, lang)
	}
	return opts, nil
}

// ProviderConfig converts the oracle section.
func (c *Config) ProviderConfig() oracle.ProviderConfig {
	return oracle.ProviderConfig{
		Provider: oracle.Provider(c.Oracle.Provider),
		Model:    c.Oracle.Model,
		BaseURL:  c.Oracle.BaseURL,
	}
}

// S3Config returns the upload settings with keys from the environment.
// ok is false when no s3 section is configured.
func (c *Config) S3Config() (cfg evidence.S3Config, ok bool) {
	if c.Evidence.S3 == nil {
		return evidence.S3Config{}, false
	}
	s := c.Evidence.S3
	return evidence.S3Config{
		Endpoint:  s.Endpoint,
		Region:    s.Region,
		AccessKey: os.Getenv(EnvS3AccessKey),
		SecretKey: os.Getenv(EnvS3SecretKey),
		Bucket:    s.Bucket,
		Prefix:    s.Prefix,
		UseSSL:    s.UseSSL,
	}, true
}
