package batch

import (
	"fmt"
	"time"

	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// Status is the orchestrator's lifecycle state.
type Status int

const (
	// StatusIdle: nothing processed and not running.
	StatusIdle Status = iota
	// StatusRunning: the cursor is advancing.
	StatusRunning
	// StatusPaused: stopped part-way through the records.
	StatusPaused
	// StatusCompleted: every record has an outcome.
	StatusCompleted
)

var statusNames = map[Status]string{
	StatusIdle:      "idle",
	StatusRunning:   "running",
	StatusPaused:    "paused",
	StatusCompleted: "completed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is everything needed to resume an extraction run.
type State struct {
	RunID   string          `json:"run_id" yaml:"run_id"`
	Source  string          `json:"source,omitempty" yaml:"source,omitempty"`
	Records []ProcessRecord `json:"records" yaml:"records"`
	// Cursor is the index of the next record to resolve.
	Cursor    int       `json:"cursor" yaml:"cursor"`
	Running   bool      `json:"running" yaml:"running"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Status derives the lifecycle state from the cursor and running flag.
func (s *State) Status() Status {
	switch {
	case len(s.Records) > 0 && s.Cursor >= len(s.Records):
		return StatusCompleted
	case s.Running:
		return StatusRunning
	case s.Cursor == 0:
		return StatusIdle
	default:
		return StatusPaused
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	if s.Records != nil {
		c.Records = make([]ProcessRecord, len(s.Records))
		copy(c.Records, s.Records)
	}
	return &c
}

// Validate checks the cursor invariants: the cursor is in range and every
// record before it has an outcome.
func (s *State) Validate() error {
	if s.Cursor < 0 || s.Cursor > len(s.Records) {
		return fmt.Errorf("cursor %d out of range [0, %d]", s.Cursor, len(s.Records))
	}
	for i := 0; i < s.Cursor; i++ {
		if !s.Records[i].Judge.Resolved() {
			return fmt.Errorf("record %d is before the cursor but unresolved", i)
		}
	}
	return nil
}

// Counts returns the number of records per outcome kind.
func (s *State) Counts() map[resolver.Kind]int {
	counts := make(map[resolver.Kind]int, len(resolver.Kinds))
	for _, r := range s.Records {
		counts[r.Judge.Kind]++
	}
	return counts
}

// Summary is a compact view of a State for status output.
type Summary struct {
	RunID       string         `json:"run_id" yaml:"run_id"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	Status      string         `json:"status" yaml:"status"`
	Cursor      int            `json:"cursor" yaml:"cursor"`
	Total       int            `json:"total" yaml:"total"`
	Counts      map[string]int `json:"counts" yaml:"counts"`
	Overridden  int            `json:"overridden" yaml:"overridden"`
	BlockedRate float64        `json:"blocked_rate" yaml:"blocked_rate"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Summarize builds a Summary. The blocked rate is taken over the last
// window resolved records, or all of them when window is not positive.
func (s *State) Summarize(window int) Summary {
	counts := make(map[string]int)
	for k, n := range s.Counts() {
		counts[k.String()] = n
	}
	overridden := 0
	for _, r := range s.Records {
		if r.Overridden {
			overridden++
		}
	}

	from := 0
	if window > 0 && s.Cursor > window {
		from = s.Cursor - window
	}
	blocked, seen := 0, 0
	for i := from; i < s.Cursor && i < len(s.Records); i++ {
		seen++
		if s.Records[i].Judge.Kind == resolver.KindBlocked {
			blocked++
		}
	}
	var rate float64
	if seen > 0 {
		rate = float64(blocked) / float64(seen)
	}

	return Summary{
		RunID:       s.RunID,
		Source:      s.Source,
		Status:      s.Status().String(),
		Cursor:      s.Cursor,
		Total:       len(s.Records),
		Counts:      counts,
		Overridden:  overridden,
		BlockedRate: rate,
		StartedAt:   s.StartedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
