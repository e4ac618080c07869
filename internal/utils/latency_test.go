package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for _, d := range []time.Duration{50, 10, 40, 20, 30} {
		tracker.Observe(d * time.Millisecond)
	}

	assert.Equal(t, 5, tracker.Count())
	assert.GreaterOrEqual(t, tracker.Percentile(95), 40*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, tracker.Percentile(0))
}

func TestLatencyTrackerBoundedSize(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 3, tracker.Count())
	assert.Equal(t, 9*time.Millisecond, tracker.Percentile(100), "newest sample retained")
	assert.Equal(t, 7*time.Millisecond, tracker.Percentile(0), "oldest samples evicted")
}
