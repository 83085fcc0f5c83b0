// Package metrics records run statistics in a Prometheus registry.
//
// A nil *Recorder is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/parity/internal/ir"
)

// Recorder owns a private registry with the parity collectors.
type Recorder struct {
	reg *prometheus.Registry

	runs           *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	suiteDuration  *prometheus.HistogramVec
	harnessErrors  *prometheus.CounterVec
	scanFiles      prometheus.Histogram
	oracleDuration *prometheus.HistogramVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_runs_total",
			Help: "Finished runs by terminal status",
		}, []string{"status"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_attempts_total",
			Help: "Validated attempts by verdict classification",
		}, []string{"classification"}),
		suiteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parity_suite_duration_seconds",
			Help:    "Suite run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		}, []string{"mode"}),
		harnessErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_harness_errors_total",
			Help: "Suite runs that failed at harness level",
		}, []string{"mode"}),
		scanFiles: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parity_scan_files",
			Help:    "Files scanned per symbol index pass",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		}),
		oracleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parity_oracle_duration_seconds",
			Help:    "Oracle call duration in seconds by operation and result",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"op", "result"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// RunFinished counts a terminal run.
func (r *Recorder) RunFinished(status ir.RunStatus) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(string(status)).Inc()
}

// AttemptFinished counts a validated attempt.
func (r *Recorder) AttemptFinished(v ir.Verdict) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(string(v.Classification)).Inc()
}

// SuiteRan observes one folded execution result.
func (r *Recorder) SuiteRan(res ir.ExecutionResult) {
	if r == nil {
		return
	}
	r.suiteDuration.WithLabelValues(string(res.Mode)).Observe(res.Duration.Seconds())
	if res.HarnessFailed() {
		r.harnessErrors.WithLabelValues(string(res.Mode)).Inc()
	}
}

// Scanned observes the number of files one index pass looked at.
func (r *Recorder) Scanned(files int) {
	if r == nil {
		return
	}
	r.scanFiles.Observe(float64(files))
}

// OracleCalled observes one oracle call.
func (r *Recorder) OracleCalled(op string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.oracleDuration.WithLabelValues(op, result).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
