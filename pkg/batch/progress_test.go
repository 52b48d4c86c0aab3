package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

func TestProgress(t *testing.T) {
	p := NewProgress(&State{Records: makeRecords(10)})
	assert.Equal(t, 10, p.Total)
	assert.Equal(t, "idle", p.Status)

	p.SetStatus(StatusRunning)
	p.SetCurrent(processID(0))
	p.Record(resolver.KindFound)
	p.Record(resolver.KindNotFound)
	p.Record(resolver.KindBlocked)
	p.Record(resolver.KindTransientError)

	s := p.Snapshot()
	assert.Equal(t, "running", s.Status)
	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 1, s.Found)
	assert.Equal(t, 1, s.NotFound)
	assert.Equal(t, 1, s.Blocked)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.NeedsReview())
	assert.InDelta(t, 40.0, s.PercentComplete(), 1e-9)
	assert.False(t, s.IsComplete())
	require.NotNil(t, s.EstimatedRemainingSeconds)

	p.Override(resolver.KindNotFound)
	s = p.Snapshot()
	assert.Equal(t, 2, s.Found)
	assert.Equal(t, 0, s.NotFound)
}

func TestProgress_ResumedRecordsCount(t *testing.T) {
	st := &State{Records: makeRecords(3), Cursor: 2}
	st.Records[0].Judge = resolver.Found("A")
	st.Records[1].Judge = resolver.Blocked("captcha")

	s := NewProgress(st).Snapshot()
	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, 1, s.Found)
	assert.Equal(t, 1, s.Blocked)
	assert.Nil(t, s.EstimatedRemainingSeconds, "no estimate before this session resolves anything")
}

func TestProgress_OnUpdate(t *testing.T) {
	p := NewProgress(&State{Records: makeRecords(2)})
	var got []ProgressSnapshot
	p.SetOnUpdate(func(s ProgressSnapshot) { got = append(got, s) })

	p.Record(resolver.KindFound)
	p.Record(resolver.KindFound)

	require.Len(t, got, 2)
	assert.True(t, got[1].IsComplete())
}

func TestProgressSnapshot_Empty(t *testing.T) {
	s := NewProgress(&State{}).Snapshot()
	assert.Zero(t, s.PercentComplete())
	assert.True(t, s.IsComplete())
}
