package clock

import (
	"sort"
	"time"
)

// Slot names a logical timer. A slot holds at most one pending timer.
type Slot string

const (
	// SlotTransition carries preview, mismatch, level-complete and level-failed waits.
	SlotTransition Slot = "transition"
	// SlotCombo carries the combo indicator auto-hide.
	SlotCombo Slot = "combo"
)

type timer struct {
	slot Slot
	due  time.Duration
	seq  uint64
	fn   func()
}

// Scheduler runs callbacks after a delay measured on an unscaled clock that
// only moves when Advance is called. It is not safe for concurrent use; the
// owner serializes access.
type Scheduler struct {
	now     time.Duration
	seq     uint64
	pending map[Slot]*timer
}

// NewScheduler returns a scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[Slot]*timer)}
}

// Schedule runs fn once d has elapsed, replacing any timer pending in slot.
func (s *Scheduler) Schedule(slot Slot, d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	s.seq++
	s.pending[slot] = &timer{slot: slot, due: s.now + d, seq: s.seq, fn: fn}
}

// Cancel drops the timer pending in slot, if any.
func (s *Scheduler) Cancel(slot Slot) {
	delete(s.pending, slot)
}

// CancelAll drops every pending timer.
func (s *Scheduler) CancelAll() {
	clear(s.pending)
}

// Pending reports whether slot has a timer waiting.
func (s *Scheduler) Pending(slot Slot) bool {
	_, ok := s.pending[slot]
	return ok
}

// Remaining returns the time left on slot's timer.
func (s *Scheduler) Remaining(slot Slot) (time.Duration, bool) {
	t, ok := s.pending[slot]
	if !ok {
		return 0, false
	}
	return t.due - s.now, true
}

// Now returns the elapsed unscaled time.
func (s *Scheduler) Now() time.Duration { return s.now }

// Advance moves the clock forward by dt and fires every timer that comes
// due, earliest first. Timers scheduled by a callback fire in the same call
// if they are already due.
func (s *Scheduler) Advance(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	target := s.now + dt
	for {
		t := s.nextDue(target)
		if t == nil {
			break
		}
		delete(s.pending, t.slot)
		if t.due > s.now {
			s.now = t.due
		}
		t.fn()
	}
	s.now = target
}

func (s *Scheduler) nextDue(target time.Duration) *timer {
	due := make([]*timer, 0, len(s.pending))
	for _, t := range s.pending {
		if t.due <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}
