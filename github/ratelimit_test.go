package github

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateTrackerUnknownQuotaIsFull(t *testing.T) {
	tracker := NewRateTracker("rest", nil)

	_, known := tracker.Quota()
	assert.False(t, known)
	assert.Equal(t, 1.0, tracker.RemainingFraction())
}

func TestRateTrackerFraction(t *testing.T) {
	tracker := NewRateTracker("graphql", nil)
	reset := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)

	tracker.Update(5000, 900, 3, reset)

	q, known := tracker.Quota()
	assert.True(t, known)
	assert.Equal(t, 900, q.Remaining)
	assert.Equal(t, 3, q.LastCost)
	assert.Equal(t, reset, q.ResetAt)
	assert.InDelta(t, 0.18, tracker.RemainingFraction(), 1e-9)
}

func TestRateTrackerIgnoresEmptyLimit(t *testing.T) {
	tracker := NewRateTracker("rest", nil)
	tracker.Update(0, 0, 0, time.Time{})

	_, known := tracker.Quota()
	assert.False(t, known)
}
