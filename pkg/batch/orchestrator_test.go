package batch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

func TestOrchestrator_RunToCompletion(t *testing.T) {
	r := &scriptedResolver{}
	cp := &memCheckpoint{}
	o, sleeper, log := newTestOrchestrator(r, WithCheckpointer(cp))

	runID, err := o.Load("mles.csv", makeRecords(4))
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Equal(t, StatusIdle, o.Status())

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, StatusCompleted, o.Status())
	snap := o.Snapshot()
	assert.Equal(t, 4, snap.Cursor)
	assert.False(t, snap.Running)
	for i, rec := range snap.Records {
		assert.True(t, rec.Judge.IsFound(), "record %d", i)
	}

	assert.Equal(t, 4, r.callCount())
	// Pacing between steps, none after the last one.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, sleeper.waits)

	require.Len(t, log.steps, 4)
	for i, ev := range log.steps {
		assert.Equal(t, i, ev.Index)
		assert.Equal(t, 4, ev.Total)
		assert.Equal(t, processID(i), ev.RecordID)
		assert.Equal(t, runID, ev.RunID)
	}
	assert.Equal(t, []StateEvent{
		{RunID: runID, Old: StatusIdle, New: StatusRunning},
		{RunID: runID, Old: StatusRunning, New: StatusCompleted},
	}, log.states)

	require.NotNil(t, cp.last)
	assert.Equal(t, 4, cp.saves)
	assert.Equal(t, 4, cp.last.Cursor)

	p := o.Progress().Snapshot()
	assert.Equal(t, 4, p.Found)
	assert.True(t, p.IsComplete())
}

func TestOrchestrator_StepRequiresRunning(t *testing.T) {
	o, _, _ := newTestOrchestrator(&scriptedResolver{})
	_, err := o.Load("", makeRecords(2))
	require.NoError(t, err)

	_, err = o.Step(context.Background())
	assert.True(t, jrerrors.IsInvalidState(err))
	assert.Equal(t, 0, o.Snapshot().Cursor)
}

func TestOrchestrator_InvalidTransitions(t *testing.T) {
	o, _, _ := newTestOrchestrator(&scriptedResolver{})

	assert.True(t, jrerrors.IsInvalidState(o.Start()), "start without records")
	assert.True(t, jrerrors.IsInvalidState(o.Pause()), "pause while idle")

	_, err := o.Load("", makeRecords(1))
	require.NoError(t, err)
	require.NoError(t, o.Start())
	assert.True(t, jrerrors.IsInvalidState(o.Start()), "start while running")

	_, err = o.Load("", makeRecords(1))
	assert.True(t, jrerrors.IsInvalidState(err), "load while running")

	_, err = o.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status())
	assert.True(t, jrerrors.IsInvalidState(o.Start()), "start when completed")
	assert.True(t, jrerrors.IsInvalidState(o.Pause()), "pause when completed")
}

func TestOrchestrator_MalformedIDSkipsRecord(t *testing.T) {
	r := &scriptedResolver{}
	o, sleeps, _ := newTestOrchestrator(r)

	recs := makeRecords(3)
	recs[1].ProcessID = "12345"
	_, err := o.Load("", recs)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, 3, snap.Cursor)
	assert.Equal(t, resolver.KindTransientError, snap.Records[1].Judge.Kind)
	assert.Contains(t, snap.Records[1].Judge.Detail, "malformed id")
	assert.Equal(t, 2, r.callCount())
	assert.Len(t, sleeps.waits, 1, "no pacing after a record that never reached the portal")
}

func TestOrchestrator_PanicBecomesTransientError(t *testing.T) {
	id, err := cnj.Normalize(processID(0))
	require.NoError(t, err)
	r := &scriptedResolver{panicOn: id.Display}
	o, _, _ := newTestOrchestrator(r)

	_, err = o.Load("", makeRecords(2))
	require.NoError(t, err)
	require.NoError(t, o.Start())

	ev, err := o.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resolver.KindTransientError, ev.Outcome.Kind)
	assert.Contains(t, ev.Outcome.Detail, "boom")
	assert.Equal(t, 1, o.Snapshot().Cursor)
}

func TestOrchestrator_ServerErrorsAdvanceCursor(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	noSleep := func(context.Context, time.Duration) error { return nil }
	f := portal.NewFetcher(portal.Config{}, portal.WithSleeper(noSleep))
	res := resolver.New(f, resolver.WithStrategy(portal.ShowStrategy{BaseURL: srv.URL}))
	o, _, _ := newTestOrchestrator(res)

	_, err := o.Load("", makeRecords(2))
	require.NoError(t, err)
	require.NoError(t, o.Start())

	ev, err := o.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resolver.KindTransientError, ev.Outcome.Kind)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, o.Snapshot().Cursor)
	assert.Equal(t, StatusRunning, o.Status())
}

func TestOrchestrator_CaptchaBlocksAfterOneRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`<div>Por favor resolva o CAPTCHA</div>`))
	}))
	defer srv.Close()

	f := portal.NewFetcher(portal.Config{}, portal.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	res := resolver.New(f, resolver.WithStrategy(portal.ShowStrategy{BaseURL: srv.URL}))
	o, _, _ := newTestOrchestrator(res)

	_, err := o.Load("", makeRecords(1))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, resolver.KindBlocked, snap.Records[0].Judge.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOrchestrator_PauseAndResume(t *testing.T) {
	r := &scriptedResolver{}
	var o *Orchestrator
	o, _, log := newTestOrchestrator(r, WithObserver(ObserverFuncs{
		Step: func(e StepEvent) {
			if e.Index == 1 {
				require.NoError(t, o.Pause())
			}
		},
	}))

	_, err := o.Load("", makeRecords(5))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, StatusPaused, o.Status())
	assert.Equal(t, 2, o.Snapshot().Cursor)
	assert.Equal(t, 2, r.callCount())

	before := o.Snapshot()
	require.NoError(t, o.Run(context.Background()))
	after := o.Snapshot()

	assert.Equal(t, StatusCompleted, o.Status())
	assert.Equal(t, 5, r.callCount(), "resolved records are not resolved again")
	assert.Equal(t, before.Records[:2], after.Records[:2])
	assert.Contains(t, log.states, StateEvent{RunID: before.RunID, Old: StatusPaused, New: StatusRunning})
}

func TestOrchestrator_Restore(t *testing.T) {
	src, _, _ := newTestOrchestrator(&scriptedResolver{})
	_, err := src.Load("", makeRecords(4))
	require.NoError(t, err)
	require.NoError(t, src.Start())
	for i := 0; i < 2; i++ {
		_, err := src.Step(context.Background())
		require.NoError(t, err)
	}
	cp := src.Snapshot()

	r := &scriptedResolver{}
	dst, _, _ := newTestOrchestrator(r)
	require.NoError(t, dst.Restore(cp))
	assert.Equal(t, StatusPaused, dst.Status())
	assert.Equal(t, 2, dst.Progress().Snapshot().Processed)

	require.NoError(t, dst.Run(context.Background()))
	assert.Equal(t, 2, r.callCount())
	assert.Equal(t, cp.RunID, dst.Snapshot().RunID)
	assert.Equal(t, cp.Records[:2], dst.Snapshot().Records[:2])
}

func TestOrchestrator_RestoreRejectsBrokenState(t *testing.T) {
	o, _, _ := newTestOrchestrator(&scriptedResolver{})

	tests := []struct {
		name string
		st   *State
	}{
		{"nil", nil},
		{"cursor past end", &State{Records: makeRecords(1), Cursor: 2}},
		{"negative cursor", &State{Records: makeRecords(1), Cursor: -1}},
		{"unresolved before cursor", &State{Records: makeRecords(2), Cursor: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := o.Restore(tt.st)
			assert.True(t, jrerrors.IsValidation(err))
		})
	}
}

func TestOrchestrator_ApplyOverride(t *testing.T) {
	ids := make([]string, 4)
	for i := range ids {
		id, err := cnj.Normalize(processID(i))
		require.NoError(t, err)
		ids[i] = id.Display
	}
	r := &scriptedResolver{script: map[string]resolver.Outcome{
		ids[0]: resolver.Found("Y"),
		ids[1]: resolver.NotFound(resolver.DetailJudgeFieldMissing),
		ids[2]: resolver.Blocked("captcha"),
		ids[3]: resolver.TransientError("timeout"),
	}}
	cp := &memCheckpoint{}
	o, _, _ := newTestOrchestrator(r, WithCheckpointer(cp))
	_, err := o.Load("", append(makeRecords(4), makeRecords(1)...))
	require.NoError(t, err)
	require.NoError(t, o.Start())
	for i := 0; i < 4; i++ {
		_, err := o.Step(context.Background())
		require.NoError(t, err)
	}

	t.Run("found is rejected and state unchanged", func(t *testing.T) {
		before := o.Snapshot()
		err := o.ApplyOverride(0, "Dr. Judge X")
		var ioe *jrerrors.InvalidOverrideError
		require.ErrorAs(t, err, &ioe)
		assert.Equal(t, 0, ioe.Index)
		assert.Equal(t, "found", ioe.Current)
		assert.Equal(t, before, o.Snapshot())
	})

	t.Run("transient error is rejected", func(t *testing.T) {
		assert.True(t, jrerrors.IsInvalidState(o.ApplyOverride(3, "Dr. X")))
	})

	t.Run("unresolved is rejected", func(t *testing.T) {
		assert.True(t, jrerrors.IsInvalidState(o.ApplyOverride(4, "Dr. X")))
	})

	t.Run("out of range is rejected", func(t *testing.T) {
		assert.True(t, jrerrors.IsInvalidState(o.ApplyOverride(5, "Dr. X")))
		assert.True(t, jrerrors.IsInvalidState(o.ApplyOverride(-1, "Dr. X")))
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		assert.True(t, jrerrors.IsValidation(o.ApplyOverride(1, "  ")))
		assert.Equal(t, resolver.KindNotFound, o.Snapshot().Records[1].Judge.Kind)
	})

	t.Run("not found and blocked accept", func(t *testing.T) {
		require.NoError(t, o.ApplyOverride(1, " Dra. Helena "))
		require.NoError(t, o.ApplyOverride(2, "Dr. Paulo"))

		snap := o.Snapshot()
		assert.Equal(t, resolver.Found("Dra. Helena"), snap.Records[1].Judge)
		assert.True(t, snap.Records[1].Overridden)
		assert.Equal(t, resolver.Found("Dr. Paulo"), snap.Records[2].Judge)
		assert.Equal(t, 4, snap.Cursor)
		assert.Equal(t, resolver.Found("Dr. Paulo"), cp.last.Records[2].Judge)

		p := o.Progress().Snapshot()
		assert.Equal(t, 3, p.Found)
		assert.Equal(t, 0, p.NotFound)
		assert.Equal(t, 0, p.Blocked)
	})

	t.Run("override twice is rejected", func(t *testing.T) {
		assert.True(t, jrerrors.IsInvalidState(o.ApplyOverride(1, "Other")))
	})
}

func TestOrchestrator_SystemicBlockWarning(t *testing.T) {
	script := map[string]resolver.Outcome{}
	for i := 0; i < 7; i++ {
		id, err := cnj.Normalize(processID(i))
		require.NoError(t, err)
		script[id.Display] = resolver.Blocked("captcha")
	}
	o, _, log := newTestOrchestrator(&scriptedResolver{script: script})

	_, err := o.Load("", makeRecords(8))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	require.Len(t, log.warnings, 1)
	w := log.warnings[0]
	assert.Equal(t, WarningSystemicBlock, w.Kind)
	assert.Equal(t, DefaultBlockedConsecutive, w.Consecutive)
	assert.InDelta(t, 7.0/8.0, o.BlockedRate(), 1e-9)
	assert.Equal(t, 7, o.Snapshot().Counts()[resolver.KindBlocked])
}

func TestOrchestrator_CancelPausesAndCheckpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cp := &memCheckpoint{}
	r := &scriptedResolver{}
	o, _, _ := newTestOrchestrator(r,
		WithCheckpointer(cp),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	_, err := o.Load("", makeRecords(3))
	require.NoError(t, err)
	err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StatusPaused, o.Status())
	assert.Equal(t, 1, o.Snapshot().Cursor)
	require.NotNil(t, cp.last)
	assert.Equal(t, 1, cp.last.Cursor)
	assert.False(t, cp.last.Running)
}

func TestOrchestrator_CancelDuringRequestFinishesRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var requestErr error
	r := &scriptedResolver{onCall: func(reqCtx context.Context, _ cnj.ID) {
		cancel()
		requestErr = reqCtx.Err()
	}}
	cp := &memCheckpoint{}
	o, _, _ := newTestOrchestrator(r, WithCheckpointer(cp))

	_, err := o.Load("", makeRecords(3))
	require.NoError(t, err)
	err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, requestErr, "in-flight request sees no cancellation")

	assert.Equal(t, StatusPaused, o.Status())
	assert.Equal(t, 1, r.callCount())
	snap := o.Snapshot()
	assert.Equal(t, 1, snap.Cursor)
	assert.Equal(t, resolver.KindFound, snap.Records[0].Judge.Kind)
	require.NotNil(t, cp.last)
	assert.Equal(t, 1, cp.last.Cursor)
}

func TestOrchestrator_StepOnCancelledContext(t *testing.T) {
	r := &scriptedResolver{}
	o, _, _ := newTestOrchestrator(r)
	_, err := o.Load("", makeRecords(2))
	require.NoError(t, err)
	require.NoError(t, o.Start())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, o.Snapshot().Cursor)
	assert.Zero(t, r.callCount())
}

func TestOrchestrator_CheckpointFailureIsNotFatal(t *testing.T) {
	cp := &memCheckpoint{err: errDisk}
	o, _, log := newTestOrchestrator(&scriptedResolver{}, WithCheckpointer(cp))

	_, err := o.Load("", makeRecords(2))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, StatusCompleted, o.Status())
	require.NotEmpty(t, log.warnings)
	assert.Equal(t, WarningCheckpoint, log.warnings[0].Kind)
	assert.Contains(t, log.warnings[0].Message, "disk full")
}

func TestOrchestrator_Reset(t *testing.T) {
	o, _, log := newTestOrchestrator(&scriptedResolver{})
	runID, err := o.Load("", makeRecords(2))
	require.NoError(t, err)
	require.NoError(t, o.Start())
	_, err = o.Step(context.Background())
	require.NoError(t, err)

	o.Reset()
	assert.Equal(t, StatusIdle, o.Status())
	snap := o.Snapshot()
	assert.Empty(t, snap.Records)
	assert.Equal(t, 0, snap.Cursor)
	assert.Equal(t, StateEvent{RunID: runID, Old: StatusRunning, New: StatusIdle}, log.states[len(log.states)-1])
}

func TestOrchestrator_LoadClearsOutcomes(t *testing.T) {
	o, _, _ := newTestOrchestrator(&scriptedResolver{})
	recs := makeRecords(1)
	recs[0].Judge = resolver.Found("stale")
	recs[0].Overridden = true

	_, err := o.Load("", recs)
	require.NoError(t, err)
	snap := o.Snapshot()
	assert.False(t, snap.Records[0].Judge.Resolved())
	assert.False(t, snap.Records[0].Overridden)
	assert.Equal(t, resolver.Found("stale"), recs[0].Judge, "caller's slice is not modified")
}

func TestOrchestrator_SnapshotIsACopy(t *testing.T) {
	o, _, _ := newTestOrchestrator(&scriptedResolver{})
	_, err := o.Load("", makeRecords(1))
	require.NoError(t, err)

	snap := o.Snapshot()
	snap.Records[0].Judge = resolver.Found("mutated")
	snap.Cursor = 1

	again := o.Snapshot()
	assert.False(t, again.Records[0].Judge.Resolved())
	assert.Equal(t, 0, again.Cursor)
}

func TestPacing_Delay(t *testing.T) {
	p := Pacing{Min: DefaultMinDelay, Max: DefaultMaxDelay}
	assert.Equal(t, DefaultMinDelay, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(0.5))
	assert.Less(t, p.Delay(0.999), DefaultMaxDelay+time.Nanosecond)
	assert.Equal(t, time.Second, Pacing{Min: time.Second}.Delay(0.7))
}
