// Package scheduler owns one in-process expiry timer per in-progress
// attempt. Timers are a fast path only: deadlines are durable in the attempt
// store and a periodic reconciliation sweep re-arms or force-expires them, so
// a lost timer is never a lost deadline.
package scheduler

import (
	"sync"
	"time"
)

// ExpireFunc finalizes one attempt. It must re-read the attempt and no-op if
// the attempt already left in_progress; the scheduler fires blindly.
type ExpireFunc func(attemptID string)

type Clock func() time.Time

type Scheduler struct {
	expire ExpireFunc
	now    Clock

	mu     sync.Mutex
	timers map[string]*time.Timer
	// warnings are keyed by fire time so re-arming the same schedule (the
	// reconciliation sweep does, every interval) never stacks duplicates.
	warnings map[string]map[int64]*time.Timer
	closed   bool
}

func New(expire ExpireFunc, now Clock) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		expire:   expire,
		now:      now,
		timers:   map[string]*time.Timer{},
		warnings: map[string]map[int64]*time.Timer{},
	}
}

// Arm schedules the expiry timer for an attempt, replacing any previous one,
// so the reconciliation sweep can call it repeatedly. A deadline already in
// the past (clock skew, restart) fires immediately.
func (s *Scheduler) Arm(attemptID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[attemptID]; ok {
		t.Stop()
	}
	d := expiresAt.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timers[attemptID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, attemptID)
		s.mu.Unlock()
		s.expire(attemptID)
	})
}

// ScheduleWarning arms one advisory timer. Warnings never transition state;
// they are dropped on Cancel and on warning times already past. Scheduling
// the same (attempt, fire time) again is a no-op, so callers can re-arm a
// warning schedule repeatedly without duplicating pushes.
func (s *Scheduler) ScheduleWarning(attemptID string, at time.Time, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	d := at.Sub(s.now())
	if d <= 0 {
		return
	}
	key := at.UnixNano()
	if _, ok := s.warnings[attemptID][key]; ok {
		return
	}
	if s.warnings[attemptID] == nil {
		s.warnings[attemptID] = map[int64]*time.Timer{}
	}
	s.warnings[attemptID][key] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.warnings[attemptID], key)
		s.mu.Unlock()
		fire()
	})
}

// Cancel stops the expiry timer and any pending warnings for an attempt.
// Returns false if the expiry timer already fired or was never armed; the
// submission path treats that as "cancellation too late", not an error.
func (s *Scheduler) Cancel(attemptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.warnings[attemptID] {
		w.Stop()
	}
	delete(s.warnings, attemptID)
	t, ok := s.timers[attemptID]
	if !ok {
		return false
	}
	delete(s.timers, attemptID)
	return t.Stop()
}

// Shutdown stops every pending timer. Deadlines survive in the store and are
// picked up by the next process's reconciliation sweep.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	for id, ws := range s.warnings {
		for _, w := range ws {
			w.Stop()
		}
		delete(s.warnings, id)
	}
}

// Pending reports whether an expiry timer is currently armed for an attempt.
func (s *Scheduler) Pending(attemptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[attemptID]
	return ok
}
