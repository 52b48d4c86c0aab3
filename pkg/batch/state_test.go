package batch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

func TestState_Status(t *testing.T) {
	tests := []struct {
		name string
		st   State
		want Status
	}{
		{"empty", State{}, StatusIdle},
		{"loaded", State{Records: makeRecords(2)}, StatusIdle},
		{"running", State{Records: makeRecords(2), Running: true}, StatusRunning},
		{"paused", State{Records: makeRecords(2), Cursor: 1}, StatusPaused},
		{"completed", State{Records: makeRecords(2), Cursor: 2}, StatusCompleted},
		{"completed wins over running flag", State{Records: makeRecords(2), Cursor: 2, Running: true}, StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.st.Status())
		})
	}
}

func TestState_Summarize(t *testing.T) {
	st := State{RunID: "r1", Records: makeRecords(4), Cursor: 4}
	st.Records[0].Judge = resolver.Found("A")
	st.Records[1].Judge = resolver.Found("A")
	st.Records[1].Overridden = true
	st.Records[2].Judge = resolver.Blocked("captcha")
	st.Records[3].Judge = resolver.Blocked("captcha")

	s := st.Summarize(2)
	assert.Equal(t, "completed", s.Status)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Counts["found"])
	assert.Equal(t, 2, s.Counts["blocked"])
	assert.Equal(t, 1, s.Overridden)
	assert.InDelta(t, 1.0, s.BlockedRate, 1e-9, "window covers the last two")

	assert.InDelta(t, 0.5, st.Summarize(0).BlockedRate, 1e-9)
}

func TestState_JSONRoundTrip(t *testing.T) {
	st := State{RunID: "r1", Source: "in.csv", Records: makeRecords(2), Cursor: 1}
	st.Records[0].Judge = resolver.NotFound(resolver.DetailPrincipalLinkMissing)

	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"not_found"`)

	var got State
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, st.Records[0].Judge, got.Records[0].Judge)
	assert.Equal(t, 1, got.Cursor)
	require.NoError(t, got.Validate())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "paused", StatusPaused.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
