package batch

import (
	"time"

	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// StepEvent is emitted after every step.
type StepEvent struct {
	RunID    string           `json:"run_id"`
	Index    int              `json:"index"`
	Total    int              `json:"total"`
	RecordID string           `json:"record_id"`
	Outcome  resolver.Outcome `json:"outcome"`
	Elapsed  time.Duration    `json:"elapsed"`
	// Reused is set when the record already had an outcome and no request
	// was made.
	Reused bool `json:"reused,omitempty"`
}

// StateEvent is emitted on every lifecycle transition.
type StateEvent struct {
	RunID string `json:"run_id"`
	Old   Status `json:"old"`
	New   Status `json:"new"`
}

// Warning kinds.
const (
	WarningSystemicBlock = "systemic_block"
	WarningCheckpoint    = "checkpoint_failed"
)

// WarningEvent reports a condition the operator should look at.
type WarningEvent struct {
	RunID       string  `json:"run_id"`
	Kind        string  `json:"kind"`
	Message     string  `json:"message"`
	BlockedRate float64 `json:"blocked_rate,omitempty"`
	Consecutive int     `json:"consecutive,omitempty"`
}

// Observer receives progress from the orchestrator. Callbacks run on the
// orchestrator's goroutine and must not block for long; events are copies.
type Observer interface {
	OnStep(StepEvent)
	OnStateChange(StateEvent)
	OnWarning(WarningEvent)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnStep(e StepEvent) {
	for _, obs := range o {
		obs.OnStep(e)
	}
}

func (o Observers) OnStateChange(e StateEvent) {
	for _, obs := range o {
		obs.OnStateChange(e)
	}
}

func (o Observers) OnWarning(e WarningEvent) {
	for _, obs := range o {
		obs.OnWarning(e)
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step    func(StepEvent)
	State   func(StateEvent)
	Warning func(WarningEvent)
}

func (f ObserverFuncs) OnStep(e StepEvent) {
	if f.Step != nil {
		f.Step(e)
	}
}

func (f ObserverFuncs) OnStateChange(e StateEvent) {
	if f.State != nil {
		f.State(e)
	}
}

func (f ObserverFuncs) OnWarning(e WarningEvent) {
	if f.Warning != nil {
		f.Warning(e)
	}
}
