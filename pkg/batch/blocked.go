package batch

// Defaults for BlockedPolicy.
const (
	DefaultBlockedWindow      = 20
	DefaultBlockedThreshold   = 0.5
	DefaultBlockedConsecutive = 5
)

// BlockedPolicy decides when blocked outcomes look systemic rather than
// isolated.
type BlockedPolicy struct {
	// Window is the number of recent steps the rate is computed over.
	Window int
	// Threshold is the rate at or above which the block is systemic, once
	// at least Window/2 steps were observed.
	Threshold float64
	// Consecutive blocked steps that are systemic regardless of the rate.
	Consecutive int
}

// DefaultBlockedPolicy returns the default policy.
func DefaultBlockedPolicy() BlockedPolicy {
	return BlockedPolicy{
		Window:      DefaultBlockedWindow,
		Threshold:   DefaultBlockedThreshold,
		Consecutive: DefaultBlockedConsecutive,
	}
}

// BlockedTracker keeps a rolling window of blocked/not-blocked steps.
// It is not safe for concurrent use.
type BlockedTracker struct {
	policy      BlockedPolicy
	ring        []bool
	next        int
	n           int
	blocked     int
	consecutive int
	warned      bool
}

// NewBlockedTracker creates a tracker. Non-positive fields take defaults.
func NewBlockedTracker(p BlockedPolicy) *BlockedTracker {
	def := DefaultBlockedPolicy()
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.Threshold <= 0 {
		p.Threshold = def.Threshold
	}
	if p.Consecutive <= 0 {
		p.Consecutive = def.Consecutive
	}
	return &BlockedTracker{policy: p, ring: make([]bool, p.Window)}
}

// Observe records one step and reports whether this step made the block
// systemic. It reports true once per crossing; the tracker re-arms when the
// condition clears.
func (t *BlockedTracker) Observe(blocked bool) bool {
	if t.n == len(t.ring) {
		if t.ring[t.next] {
			t.blocked--
		}
	} else {
		t.n++
	}
	t.ring[t.next] = blocked
	t.next = (t.next + 1) % len(t.ring)
	if blocked {
		t.blocked++
		t.consecutive++
	} else {
		t.consecutive = 0
	}

	systemic := t.Systemic()
	crossed := systemic && !t.warned
	t.warned = systemic
	return crossed
}

// Rate is the share of blocked steps in the window.
func (t *BlockedTracker) Rate() float64 {
	if t.n == 0 {
		return 0
	}
	return float64(t.blocked) / float64(t.n)
}

// Consecutive is the number of blocked steps in a row up to the latest.
func (t *BlockedTracker) Consecutive() int {
	return t.consecutive
}

// Systemic reports whether the block currently looks systemic.
func (t *BlockedTracker) Systemic() bool {
	if t.consecutive >= t.policy.Consecutive {
		return true
	}
	return t.n >= t.policy.Window/2 && t.Rate() >= t.policy.Threshold
}

// Reset clears the window.
func (t *BlockedTracker) Reset() {
	*t = BlockedTracker{policy: t.policy, ring: make([]bool, t.policy.Window)}
}
