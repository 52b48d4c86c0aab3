package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockedTracker_Consecutive(t *testing.T) {
	tr := NewBlockedTracker(DefaultBlockedPolicy())

	for i := 0; i < 4; i++ {
		assert.False(t, tr.Observe(true), "step %d", i)
	}
	assert.True(t, tr.Observe(true), "fifth consecutive block crosses")
	assert.False(t, tr.Observe(true), "reported once per crossing")
	assert.Equal(t, 6, tr.Consecutive())

	assert.False(t, tr.Observe(false))
	assert.Equal(t, 0, tr.Consecutive())
	assert.False(t, tr.Systemic())
}

func TestBlockedTracker_RateNeedsHalfWindow(t *testing.T) {
	tr := NewBlockedTracker(BlockedPolicy{Window: 10, Threshold: 0.5, Consecutive: 100})

	// Alternate so the consecutive rule never fires.
	crossed := 0
	for i := 0; i < 4; i++ {
		if tr.Observe(i%2 == 0) {
			crossed++
		}
	}
	assert.Zero(t, crossed, "fewer than window/2 samples")
	assert.InDelta(t, 0.5, tr.Rate(), 1e-9)

	assert.True(t, tr.Observe(true), "five samples, 3/5 blocked")
	assert.True(t, tr.Systemic())
}

func TestBlockedTracker_WindowRolls(t *testing.T) {
	tr := NewBlockedTracker(BlockedPolicy{Window: 4, Threshold: 0.75, Consecutive: 100})

	for _, b := range []bool{true, true, true, false} {
		tr.Observe(b)
	}
	assert.InDelta(t, 0.75, tr.Rate(), 1e-9)

	tr.Observe(false) // first true drops out
	assert.InDelta(t, 0.5, tr.Rate(), 1e-9)
	assert.False(t, tr.Systemic())

	tr.Observe(false)
	tr.Observe(false)
	assert.InDelta(t, 0.0, tr.Rate(), 1e-9)
}

func TestBlockedTracker_RearmsAfterClearing(t *testing.T) {
	tr := NewBlockedTracker(BlockedPolicy{Window: 20, Threshold: 0.9, Consecutive: 2})

	tr.Observe(true)
	assert.True(t, tr.Observe(true))
	tr.Observe(false)
	tr.Observe(true)
	assert.True(t, tr.Observe(true), "second crossing is reported again")
}

func TestBlockedTracker_Reset(t *testing.T) {
	tr := NewBlockedTracker(BlockedPolicy{})
	tr.Observe(true)
	tr.Reset()
	assert.Zero(t, tr.Rate())
	assert.Zero(t, tr.Consecutive())
}
