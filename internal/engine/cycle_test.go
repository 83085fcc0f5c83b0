package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeatDetector_New(t *testing.T) {
	d := NewRepeatDetector()
	require.NotNil(t, d)
	assert.Equal(t, 0, d.HistorySize())
}

func TestRepeatDetector_FirstOccurrence(t *testing.T) {
	d := NewRepeatDetector()
	assert.False(t, d.Seen("run-1", "digest-a"))
}

func TestRepeatDetector_AfterRecord(t *testing.T) {
	d := NewRepeatDetector()
	d.Record("run-1", "digest-a")

	assert.True(t, d.Seen("run-1", "digest-a"))
	assert.False(t, d.Seen("run-1", "digest-b"), "other digests are unaffected")
	assert.False(t, d.Seen("run-2", "digest-a"), "history is per run")
}

func TestRepeatDetector_Observe(t *testing.T) {
	d := NewRepeatDetector()

	assert.False(t, d.Observe("run-1", "digest-a"), "first observation is new")
	assert.True(t, d.Observe("run-1", "digest-a"), "second observation is a repeat")
	assert.False(t, d.Observe("run-1", "digest-b"))
	assert.Equal(t, 2, d.RunHistorySize("run-1"))
}

func TestRepeatDetector_Clear(t *testing.T) {
	d := NewRepeatDetector()
	d.Record("run-1", "digest-a")
	d.Record("run-2", "digest-a")
	assert.Equal(t, 2, d.HistorySize())

	d.Clear("run-1")

	assert.Equal(t, 1, d.HistorySize())
	assert.False(t, d.Seen("run-1", "digest-a"))
	assert.True(t, d.Seen("run-2", "digest-a"))
	assert.Equal(t, 0, d.RunHistorySize("run-1"))
}

func TestRepeatDetector_Concurrent(t *testing.T) {
	d := NewRepeatDetector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Observe("run-1", fmt.Sprintf("digest-%d", i%10))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, d.RunHistorySize("run-1"))
}
