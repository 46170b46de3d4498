package position

import "sync"

// Tracker owns the high-water-mark cell for one tracked position. The mark
// only ratchets upward while the position stays open and resets to zero the
// instant it closes. Safe for concurrent use, though the engine serializes
// ticks per position anyway.
type Tracker struct {
	mu  sync.Mutex
	hwm float64
	set bool
}

// NewTracker returns an empty tracker. Seed restores a persisted mark.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Seed initializes the mark from a persisted snapshot. Ignored once the
// tracker has observed a tick.
func (t *Tracker) Seed(hwm float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.set {
		t.hwm = hwm
		t.set = true
	}
}

// Apply updates the mark from the state's current P&L and fills in the HWM
// and drawdown fields. A closed state resets the mark.
func (t *Tracker) Apply(s *State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !s.IsOpen {
		t.hwm = 0
		t.set = false
		return
	}

	t.set = true
	if s.UnrealizedPnL > t.hwm {
		t.hwm = s.UnrealizedPnL
	}
	s.HighWaterMarkPnL = t.hwm

	dd := t.hwm - s.UnrealizedPnL
	if dd < 0 {
		dd = 0
	}
	s.DrawdownFromHWM = dd
	if t.hwm > 0 {
		s.DrawdownFromHWMPercent = dd / t.hwm * 100
	} else {
		s.DrawdownFromHWMPercent = 0
	}
}

// Mark returns the current high-water mark.
func (t *Tracker) Mark() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hwm
}
