package batch

import (
	"sync"
	"time"

	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// Progress tracks the progress of an extraction run.
type Progress struct {
	mu sync.RWMutex

	// Counts
	Total     int
	Processed int
	counts    map[resolver.Kind]int

	// Records resolved in an earlier session; excluded from the ETA.
	resumed int

	// Current state
	Current string
	Status  string

	// Timing
	StartedAt time.Time
	UpdatedAt time.Time

	onUpdate func(ProgressSnapshot)
}

// NewProgress creates a progress tracker for st. Records before the cursor
// count as already processed.
func NewProgress(st *State) *Progress {
	p := &Progress{
		Total:     len(st.Records),
		Processed: st.Cursor,
		counts:    make(map[resolver.Kind]int),
		resumed:   st.Cursor,
		Status:    st.Status().String(),
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for i := 0; i < st.Cursor && i < len(st.Records); i++ {
		p.counts[st.Records[i].Judge.Kind]++
	}
	return p
}

// SetOnUpdate sets a callback called after each update, outside the lock.
func (p *Progress) SetOnUpdate(fn func(ProgressSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// SetStatus records a lifecycle change.
func (p *Progress) SetStatus(s Status) {
	p.mu.Lock()
	p.Status = s.String()
	p.UpdatedAt = time.Now()
	p.mu.Unlock()
	p.notifyUpdate()
}

// SetCurrent records the process being resolved.
func (p *Progress) SetCurrent(processID string) {
	p.mu.Lock()
	p.Current = processID
	p.UpdatedAt = time.Now()
	p.mu.Unlock()
	p.notifyUpdate()
}

// Record counts one resolved record.
func (p *Progress) Record(kind resolver.Kind) {
	p.mu.Lock()
	p.counts[kind]++
	p.Processed++
	p.UpdatedAt = time.Now()
	p.mu.Unlock()
	p.notifyUpdate()
}

// Override moves one record from its old kind to found.
func (p *Progress) Override(old resolver.Kind) {
	p.mu.Lock()
	if p.counts[old] > 0 {
		p.counts[old]--
	}
	p.counts[resolver.KindFound]++
	p.UpdatedAt = time.Now()
	p.mu.Unlock()
	p.notifyUpdate()
}

// Snapshot returns a read-only copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.StartedAt).Seconds()
	var estimatedRemaining *float64
	if session := p.Processed - p.resumed; session > 0 {
		remaining := p.Total - p.Processed
		rate := elapsed / float64(session)
		est := rate * float64(remaining)
		estimatedRemaining = &est
	}

	return ProgressSnapshot{
		Total:                     p.Total,
		Processed:                 p.Processed,
		Found:                     p.counts[resolver.KindFound],
		NotFound:                  p.counts[resolver.KindNotFound],
		Blocked:                   p.counts[resolver.KindBlocked],
		Failed:                    p.counts[resolver.KindTransientError],
		Current:                   p.Current,
		Status:                    p.Status,
		StartedAt:                 p.StartedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: estimatedRemaining,
	}
}

func (p *Progress) notifyUpdate() {
	p.mu.RLock()
	fn := p.onUpdate
	p.mu.RUnlock()
	if fn != nil {
		fn(p.Snapshot())
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	Total                     int       `json:"total"`
	Processed                 int       `json:"processed"`
	Found                     int       `json:"found"`
	NotFound                  int       `json:"not_found"`
	Blocked                   int       `json:"blocked"`
	Failed                    int       `json:"failed"`
	Current                   string    `json:"current,omitempty"`
	Status                    string    `json:"status"`
	StartedAt                 time.Time `json:"started_at"`
	ElapsedSeconds            float64   `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64  `json:"estimated_remaining_seconds,omitempty"`
}

// PercentComplete returns the percentage of records processed.
func (s ProgressSnapshot) PercentComplete() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// IsComplete returns true if all records have been processed.
func (s ProgressSnapshot) IsComplete() bool {
	return s.Processed >= s.Total
}

// NeedsReview is the number of records a person has to look at.
func (s ProgressSnapshot) NeedsReview() int {
	return s.NotFound + s.Blocked + s.Failed
}
