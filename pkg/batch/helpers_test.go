package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// processID returns a valid TJSP number unique to i.
func processID(i int) string {
	return fmt.Sprintf("%07d-89.2023.8.26.%04d", i, 100+i%9000)
}

func makeRecords(n int) []ProcessRecord {
	recs := make([]ProcessRecord, n)
	for i := range recs {
		recs[i] = ProcessRecord{
			ProcessID:     processID(i),
			WritNumber:    fmt.Sprintf("M-%d", i),
			CourtDivision: fmt.Sprintf("%dª Vara Cível", i%3+1),
		}
	}
	return recs
}

// scriptedResolver answers from a per-process script, Found by default.
type scriptedResolver struct {
	mu      sync.Mutex
	script  map[string]resolver.Outcome
	calls   []string
	onCall  func(ctx context.Context, id cnj.ID)
	panicOn string
}

func (r *scriptedResolver) Resolve(ctx context.Context, id cnj.ID) resolver.Outcome {
	r.mu.Lock()
	r.calls = append(r.calls, id.Display)
	r.mu.Unlock()
	if r.onCall != nil {
		r.onCall(ctx, id)
	}
	if id.Display == r.panicOn {
		panic("boom")
	}
	if out, ok := r.script[id.Display]; ok {
		return out
	}
	return resolver.Found("Dr. " + id.Forum)
}

func (r *scriptedResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

// eventLog records every observer callback.
type eventLog struct {
	mu       sync.Mutex
	steps    []StepEvent
	states   []StateEvent
	warnings []WarningEvent
}

func (l *eventLog) OnStep(e StepEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, e)
}

func (l *eventLog) OnStateChange(e StateEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, e)
}

func (l *eventLog) OnWarning(e WarningEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, e)
}

// memCheckpoint keeps the last saved state.
type memCheckpoint struct {
	mu    sync.Mutex
	last  *State
	saves int
	err   error
}

func (m *memCheckpoint) Save(ctx context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.last = st
	return nil
}

var errDisk = errors.New("disk full")

func newTestOrchestrator(r Resolver, opts ...Option) (*Orchestrator, *sleepRecorder, *eventLog) {
	s := &sleepRecorder{}
	log := &eventLog{}
	base := []Option{
		WithSleeper(s.Sleep),
		WithJitter(func() float64 { return 0.5 }),
		WithObserver(log),
	}
	return New(r, append(base, opts...)...), s, log
}
