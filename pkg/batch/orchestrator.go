// Package batch drives judge resolution across a list of records.
//
// The Orchestrator owns the run State. It resolves one record per Step,
// strictly in order, and never issues concurrent requests. Run adds a
// randomized pacing delay between steps. Observers, checkpoint stores and
// the status server only ever see copies of the state.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
	"github.com/otherjamesbrown/judgeroute/pkg/observability"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// Default pacing between steps.
const (
	DefaultMinDelay = 1500 * time.Millisecond
	DefaultMaxDelay = 2500 * time.Millisecond
)

// Resolver resolves the judge of one process.
type Resolver interface {
	Resolve(ctx context.Context, id cnj.ID) resolver.Outcome
}

// Checkpointer persists run state. Save receives a private copy.
type Checkpointer interface {
	Save(ctx context.Context, st *State) error
}

// Pacing bounds the delay between two steps.
type Pacing struct {
	Min time.Duration
	Max time.Duration
}

// Delay maps r in [0, 1) onto [Min, Max].
func (p Pacing) Delay(r float64) time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(r*float64(p.Max-p.Min))
}

// Orchestrator drives a Resolver across the records of one run.
type Orchestrator struct {
	mu    sync.RWMutex
	state State
	// gen changes on Load, Restore and Reset so a step that was in flight
	// during one of them drops its result.
	gen uint64

	resolver    Resolver
	normalizer  cnj.Normalizer
	pacing      Pacing
	sleep       portal.Sleeper
	jitter      func() float64
	observers   Observers
	checkpoint  Checkpointer
	blocked     *BlockedTracker
	progress    *Progress
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      logging.Logger
	now         func() time.Time
	blockPolicy BlockedPolicy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPacing sets the delay range between steps.
func WithPacing(p Pacing) Option {
	return func(o *Orchestrator) { o.pacing = p }
}

// WithSleeper replaces the pacing sleeper.
func WithSleeper(s portal.Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithJitter replaces the random source used for pacing. fn returns values
// in [0, 1).
func WithJitter(fn func() float64) Option {
	return func(o *Orchestrator) { o.jitter = fn }
}

// WithNormalizer sets the identifier normalizer.
func WithNormalizer(n cnj.Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

// WithObserver registers an observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithCheckpointer saves the state after every step and override.
func WithCheckpointer(c Checkpointer) Option {
	return func(o *Orchestrator) { o.checkpoint = c }
}

// WithBlockedPolicy sets when blocked outcomes are reported as systemic.
func WithBlockedPolicy(p BlockedPolicy) Option {
	return func(o *Orchestrator) { o.blockPolicy = p }
}

// WithMetrics records step metrics into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer emits a span per step.
func WithTracer(t *observability.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator in the Idle state with no records.
func New(r Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:    r,
		normalizer:  cnj.Default,
		pacing:      Pacing{Min: DefaultMinDelay, Max: DefaultMaxDelay},
		sleep:       portal.SleepContext,
		jitter:      rand.Float64,
		tracer:      observability.NewTracer(),
		logger:      logging.NewNopLogger(),
		now:         time.Now,
		blockPolicy: DefaultBlockedPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(logging.F("component", "orchestrator"))
	o.blocked = NewBlockedTracker(o.blockPolicy)
	o.progress = NewProgress(&State{})
	return o
}

// Load starts a new run over records. It fails while a run is in progress.
func (o *Orchestrator) Load(source string, records []ProcessRecord) (string, error) {
	st := State{
		RunID:   uuid.NewString(),
		Source:  source,
		Records: make([]ProcessRecord, len(records)),
	}
	copy(st.Records, records)
	for i := range st.Records {
		st.Records[i].Judge = resolver.Outcome{}
		st.Records[i].Overridden = false
	}
	now := o.now()
	st.StartedAt, st.UpdatedAt = now, now

	if err := o.replace(st); err != nil {
		return "", err
	}
	o.logger.Info("Loaded records",
		logging.F("run_id", st.RunID),
		logging.F("records", len(records)))
	return st.RunID, nil
}

// Restore resumes a checkpointed run. Records before the cursor keep their
// outcomes and are never resolved again.
func (o *Orchestrator) Restore(st *State) error {
	if st == nil {
		return fmt.Errorf("restore: %w: nil state", jrerrors.ErrValidation)
	}
	c := st.Clone()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("restore run %s: %w: %v", c.RunID, jrerrors.ErrValidation, err)
	}
	c.Running = false
	if err := o.replace(*c); err != nil {
		return err
	}
	o.logger.Info("Restored run",
		logging.F("run_id", c.RunID),
		logging.F("cursor", c.Cursor),
		logging.F("records", len(c.Records)))
	return nil
}

func (o *Orchestrator) replace(st State) error {
	o.mu.Lock()
	if o.state.Running {
		o.mu.Unlock()
		return fmt.Errorf("%w: run %s is running", jrerrors.ErrInvalidState, o.state.RunID)
	}
	o.state = st
	o.gen++
	o.blocked.Reset()
	o.progress = NewProgress(&st)
	o.mu.Unlock()
	return nil
}

// Start moves an Idle or Paused run to Running.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	old := o.state.Status()
	switch {
	case len(o.state.Records) == 0:
		o.mu.Unlock()
		return fmt.Errorf("%w: no records loaded", jrerrors.ErrInvalidState)
	case old != StatusIdle && old != StatusPaused:
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", jrerrors.ErrInvalidState, old)
	}
	o.state.Running = true
	o.state.UpdatedAt = o.now()
	ev := StateEvent{RunID: o.state.RunID, Old: old, New: StatusRunning}
	o.mu.Unlock()

	o.stateChanged(ev)
	return nil
}

// Pause stops a Running run. A step already in flight completes first.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	old := o.state.Status()
	if old != StatusRunning {
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot pause from %s", jrerrors.ErrInvalidState, old)
	}
	o.state.Running = false
	o.state.UpdatedAt = o.now()
	ev := StateEvent{RunID: o.state.RunID, Old: old, New: o.state.Status()}
	snap := o.state.Clone()
	o.mu.Unlock()

	o.stateChanged(ev)
	o.save(context.Background(), snap)
	return nil
}

// Reset discards the records and returns to Idle.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	old := o.state.Status()
	runID := o.state.RunID
	o.state = State{}
	o.gen++
	o.blocked.Reset()
	o.progress = NewProgress(&State{})
	o.mu.Unlock()
	if old != StatusIdle {
		o.stateChanged(StateEvent{RunID: runID, Old: old, New: StatusIdle})
	}
}

// Step resolves the record at the cursor and advances it. Resolution
// failures of any kind become the record's outcome; Step only returns an
// error when the run is not Running or ctx was already cancelled, and in
// both cases the state is unchanged. Once a request is under way it runs to
// completion, retries included, even if ctx is cancelled meanwhile.
func (o *Orchestrator) Step(ctx context.Context) (StepEvent, error) {
	ev, _, err := o.step(ctx)
	return ev, err
}

// step also reports whether the portal was contacted, which Run uses to
// decide whether to pace.
func (o *Orchestrator) step(ctx context.Context) (StepEvent, bool, error) {
	if err := ctx.Err(); err != nil {
		return StepEvent{}, false, err
	}

	o.mu.RLock()
	if o.state.Status() != StatusRunning {
		status := o.state.Status()
		o.mu.RUnlock()
		return StepEvent{}, false, fmt.Errorf("%w: cannot step from %s", jrerrors.ErrInvalidState, status)
	}
	gen := o.gen
	index := o.state.Cursor
	total := len(o.state.Records)
	rec := o.state.Records[index]
	runID := o.state.RunID
	o.mu.RUnlock()

	start := time.Now()
	outcome := rec.Judge
	reused := outcome.Resolved()
	fetched := false
	if !reused {
		o.Progress().SetCurrent(rec.ProcessID)
		// A pause, Ctrl-C included, takes effect after the record settles.
		outcome, fetched = o.resolve(context.WithoutCancel(ctx), runID, index, rec.ProcessID)
	}
	elapsed := time.Since(start)

	o.mu.Lock()
	if o.gen != gen || o.state.Cursor != index {
		o.mu.Unlock()
		return StepEvent{}, fetched, fmt.Errorf("%w: run changed during step", jrerrors.ErrInvalidState)
	}
	o.state.Records[index].Judge = outcome
	o.state.Cursor++
	o.state.UpdatedAt = o.now()
	completed := o.state.Cursor == total
	if completed {
		o.state.Running = false
	}
	snap := o.state.Clone()
	o.mu.Unlock()

	ev := StepEvent{
		RunID:    runID,
		Index:    index,
		Total:    total,
		RecordID: rec.ProcessID,
		Outcome:  outcome,
		Elapsed:  elapsed,
		Reused:   reused,
	}

	o.logger.Debug("Step",
		logging.F("run_id", runID),
		logging.F("index", index),
		logging.F("process", rec.ProcessID),
		logging.F("outcome", outcome.String()),
		logging.F("elapsed", elapsed))

	o.Progress().Record(outcome.Kind)
	o.metrics.ObserveStep(outcome.Kind.String(), elapsed, index+1, total)
	o.observers.OnStep(ev)
	if !reused {
		o.trackBlocked(runID, outcome.Kind == resolver.KindBlocked)
	}
	o.save(ctx, snap)

	if completed {
		o.stateChanged(StateEvent{RunID: runID, Old: StatusRunning, New: StatusCompleted})
		o.logger.Info("Run completed", logging.F("run_id", runID), logging.F("records", total))
	}
	return ev, fetched, nil
}

// resolve normalizes and resolves one identifier. It never panics. fetched
// is false when the identifier was rejected before reaching the resolver.
func (o *Orchestrator) resolve(ctx context.Context, runID string, index int, processID string) (out resolver.Outcome, fetched bool) {
	ctx, span := o.tracer.StartStepSpan(ctx, runID, index, processID)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Resolver panicked",
				logging.F("index", index),
				logging.F("process", processID),
				logging.F("panic", fmt.Sprint(r)))
			out, fetched = resolver.TransientError(fmt.Sprintf("internal error: %v", r)), true
		}
	}()

	id, err := o.normalizer.Normalize(processID)
	if err != nil {
		o.logger.Warn("Skipping malformed process id",
			logging.F("index", index),
			logging.Err(err))
		return resolver.TransientError("malformed id: " + err.Error()), false
	}

	fetched = true
	out = o.resolver.Resolve(ctx, id)
	if !out.Resolved() {
		out = resolver.TransientError("resolver returned no outcome")
	}
	return out, fetched
}

func (o *Orchestrator) trackBlocked(runID string, blocked bool) {
	o.mu.Lock()
	crossed := o.blocked.Observe(blocked)
	rate := o.blocked.Rate()
	systemic := o.blocked.Systemic()
	consecutive := o.blocked.Consecutive()
	o.mu.Unlock()

	o.metrics.SetBlocked(rate, systemic)
	if !crossed {
		return
	}

	w := WarningEvent{
		RunID:       runID,
		Kind:        WarningSystemicBlock,
		BlockedRate: rate,
		Consecutive: consecutive,
		Message: fmt.Sprintf("portal appears to be blocking requests: %.0f%% of recent steps blocked, %d in a row",
			rate*100, consecutive),
	}
	o.logger.Warn("Likely systemic block",
		logging.F("run_id", runID),
		logging.F("blocked_rate", rate),
		logging.F("consecutive", w.Consecutive))
	o.observers.OnWarning(w)
}

// Run starts the run if needed and steps until it completes, is paused or
// ctx is cancelled. Cancellation pauses the run and returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context) error {
	switch o.Status() {
	case StatusIdle, StatusPaused:
		if err := o.Start(); err != nil {
			return err
		}
	case StatusCompleted:
		return nil
	}

	for {
		_, fetched, err := o.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				o.pauseIfRunning()
				return ctx.Err()
			}
			if jrerrors.IsInvalidState(err) {
				// Paused or reset from elsewhere.
				return nil
			}
			return err
		}

		if o.Status() != StatusRunning {
			return nil
		}
		if fetched {
			d := o.pacing.Delay(o.jitter())
			if err := o.sleep(ctx, d); err != nil {
				o.pauseIfRunning()
				if errors.Is(err, ctx.Err()) {
					return ctx.Err()
				}
				return err
			}
		}
	}
}

func (o *Orchestrator) pauseIfRunning() {
	if o.Status() == StatusRunning {
		_ = o.Pause()
	}
}

// ApplyOverride sets the judge of a NotFound or Blocked record by hand.
// Any other target is rejected with an InvalidOverrideError and the state
// is left as it was.
func (o *Orchestrator) ApplyOverride(index int, name string) error {
	name = strings.TrimSpace(name)

	o.mu.Lock()
	if index < 0 || index >= len(o.state.Records) {
		o.mu.Unlock()
		return &jrerrors.InvalidOverrideError{Index: index, Current: "out of range"}
	}
	current := o.state.Records[index].Judge
	if !current.Overridable() {
		o.mu.Unlock()
		return &jrerrors.InvalidOverrideError{Index: index, Current: current.Kind.String()}
	}
	if name == "" {
		o.mu.Unlock()
		return fmt.Errorf("override at index %d: %w: empty judge name", index, jrerrors.ErrValidation)
	}
	o.state.Records[index].Judge = resolver.Found(name)
	o.state.Records[index].Overridden = true
	o.state.UpdatedAt = o.now()
	snap := o.state.Clone()
	o.mu.Unlock()

	o.Progress().Override(current.Kind)
	o.logger.Info("Applied override",
		logging.F("run_id", snap.RunID),
		logging.F("index", index),
		logging.F("previous", current.String()))
	o.save(context.Background(), snap)
	return nil
}

// Snapshot returns a deep copy of the run state.
func (o *Orchestrator) Snapshot() *State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

// Summary returns a status summary with the live blocked rate.
func (o *Orchestrator) Summary() Summary {
	o.mu.RLock()
	s := o.state.Summarize(o.blocked.policy.Window)
	o.mu.RUnlock()
	return s
}

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Status()
}

// BlockedRate is the share of blocked outcomes in the rolling window.
func (o *Orchestrator) BlockedRate() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.blocked.Rate()
}

// Progress returns the progress tracker of the current run.
func (o *Orchestrator) Progress() *Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.progress
}

func (o *Orchestrator) stateChanged(ev StateEvent) {
	o.Progress().SetStatus(ev.New)
	o.logger.Debug("State change",
		logging.F("run_id", ev.RunID),
		logging.F("old", ev.Old.String()),
		logging.F("new", ev.New.String()))
	o.observers.OnStateChange(ev)
}

// save checkpoints snap. Failures are reported, never fatal.
func (o *Orchestrator) save(ctx context.Context, snap *State) {
	if o.checkpoint == nil {
		return
	}
	// A cancelled run still gets its last checkpoint written.
	ctx = context.WithoutCancel(ctx)
	if err := o.checkpoint.Save(ctx, snap); err != nil {
		o.logger.Warn("Checkpoint failed",
			logging.F("run_id", snap.RunID),
			logging.Err(err))
		o.observers.OnWarning(WarningEvent{
			RunID:   snap.RunID,
			Kind:    WarningCheckpoint,
			Message: err.Error(),
		})
	}
}
