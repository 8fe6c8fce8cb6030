package scheduler_test

import (
	"sync"
	"testing"
	"time"

	"github.com/classpulse/classpulse-backend/internal/scheduler"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []string
	ch    chan string
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan string, 16)}
}

func (f *fireRecorder) expire(attemptID string) {
	f.mu.Lock()
	f.fired = append(f.fired, attemptID)
	f.mu.Unlock()
	f.ch <- attemptID
}

func (f *fireRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

func (f *fireRecorder) waitFire(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case id := <-f.ch:
		return id
	case <-time.After(timeout):
		t.Fatalf("no timer fired within %v", timeout)
		return ""
	}
}

func TestArm_PastDeadlineFiresImmediately(t *testing.T) {
	rec := newFireRecorder()
	s := scheduler.New(rec.expire, nil)
	defer s.Shutdown()

	s.Arm("a1", time.Now().Add(-time.Hour))
	if got := rec.waitFire(t, time.Second); got != "a1" {
		t.Fatalf("fired %q, want a1", got)
	}
}

func TestArm_FiresAtDeadline(t *testing.T) {
	rec := newFireRecorder()
	s := scheduler.New(rec.expire, nil)
	defer s.Shutdown()

	s.Arm("a1", time.Now().Add(30*time.Millisecond))
	if !s.Pending("a1") {
		t.Fatalf("expected pending timer after Arm")
	}
	rec.waitFire(t, time.Second)
	if s.Pending("a1") {
		t.Fatalf("timer still pending after fire")
	}
}

func TestArm_ReplacesExistingTimer(t *testing.T) {
	rec := newFireRecorder()
	s := scheduler.New(rec.expire, nil)
	defer s.Shutdown()

	// The sweep re-arms repeatedly; only one timer may survive.
	s.Arm("a1", time.Now().Add(20*time.Millisecond))
	s.Arm("a1", time.Now().Add(40*time.Millisecond))
	rec.waitFire(t, time.Second)

	time.Sleep(100 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Fatalf("timer fired %d times, want 1", n)
	}
}

func TestCancel_StopsPendingTimer(t *testing.T) {
	rec := newFireRecorder()
	s := scheduler.New(rec.expire, nil)
	defer s.Shutdown()

	s.Arm("a1", time.Now().Add(50*time.Millisecond))
	if !s.Cancel("a1") {
		t.Fatalf("Cancel returned false for a pending timer")
	}
	time.Sleep(120 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Fatalf("cancelled timer fired %d times", n)
	}
	if s.Cancel("a1") {
		t.Fatalf("second Cancel should report no pending timer")
	}
}

func TestScheduleWarning_FiresAndIsDroppedOnCancel(t *testing.T) {
	rec := newFireRecorder()
	s := scheduler.New(rec.expire, nil)
	defer s.Shutdown()

	warned := make(chan struct{}, 2)
	s.ScheduleWarning("a1", time.Now().Add(20*time.Millisecond), func() { warned <- struct{}{} })
	select {
	case <-warned:
	case <-time.After(time.Second):
		t.Fatalf("warning never fired")
	}

	// A warning already in the past is dropped, and Cancel clears the rest.
	s.ScheduleWarning("a2", time.Now().Add(-time.Minute), func() { warned <- struct{}{} })
	s.ScheduleWarning("a2", time.Now().Add(30*time.Millisecond), func() { warned <- struct{}{} })
	s.Cancel("a2")
	select {
	case <-warned:
		t.Fatalf("warning fired after Cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduleWarning_RearmIsIdempotent(t *testing.T) {
	rec := newFireRecorder()
	s := scheduler.New(rec.expire, nil)
	defer s.Shutdown()

	warned := make(chan struct{}, 8)
	at := time.Now().Add(40 * time.Millisecond)
	// Re-arming the same fire time, as the reconciliation sweep does every
	// interval, must not stack duplicate timers.
	for i := 0; i < 3; i++ {
		s.ScheduleWarning("a1", at, func() { warned <- struct{}{} })
	}

	select {
	case <-warned:
	case <-time.After(time.Second):
		t.Fatalf("warning never fired")
	}
	select {
	case <-warned:
		t.Fatalf("duplicate warning fired for a re-armed schedule")
	case <-time.After(100 * time.Millisecond):
	}

	// A fired warning may be armed again (it left the registry).
	s.ScheduleWarning("a1", time.Now().Add(20*time.Millisecond), func() { warned <- struct{}{} })
	select {
	case <-warned:
	case <-time.After(time.Second):
		t.Fatalf("fresh warning after fire never fired")
	}
}

func TestShutdown_StopsEverything(t *testing.T) {
	rec := newFireRecorder()
	s := scheduler.New(rec.expire, nil)

	s.Arm("a1", time.Now().Add(30*time.Millisecond))
	s.Shutdown()
	time.Sleep(100 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Fatalf("timer fired %d times after Shutdown", n)
	}

	// Arming after shutdown is a no-op.
	s.Arm("a2", time.Now().Add(-time.Second))
	time.Sleep(50 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Fatalf("timer armed after Shutdown fired")
	}
}
