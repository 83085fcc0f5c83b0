package engine

import "sync"

// RepeatDetector tracks candidate digests per run so the orchestrator can
// flag an oracle that returns a candidate it already produced.
//
// A repeat is not an error. The attempt is validated and consumes budget as
// usual; the flag only surfaces in evidence.
//
// Thread-safe: can be called concurrently.
type RepeatDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[run_id]map[digest]bool
}

// NewRepeatDetector creates an empty detector.
func NewRepeatDetector() *RepeatDetector {
	return &RepeatDetector{
		history: make(map[string]map[string]bool),
	}
}

// Seen reports whether digest was already recorded for runID.
func (d *RepeatDetector) Seen(runID, digest string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[runID] == nil {
		return false
	}
	return d.history[runID][digest]
}

// Record marks digest as produced in runID.
func (d *RepeatDetector) Record(runID, digest string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[runID] == nil {
		d.history[runID] = make(map[string]bool)
	}
	d.history[runID][digest] = true
}

// Observe records digest and reports whether it had been seen before.
func (d *RepeatDetector) Observe(runID, digest string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[runID] == nil {
		d.history[runID] = make(map[string]bool)
	}
	seen := d.history[runID][digest]
	d.history[runID][digest] = true
	return seen
}

// Clear removes all history for runID.
func (d *RepeatDetector) Clear(runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.history, runID)
}

// HistorySize returns the number of runs with tracked history.
func (d *RepeatDetector) HistorySize() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.history)
}

// RunHistorySize returns the number of digests tracked for runID.
func (d *RepeatDetector) RunHistorySize(runID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.history[runID])
}
