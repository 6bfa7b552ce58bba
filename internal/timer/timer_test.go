package timer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/timer"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type notifications struct {
	mu   sync.Mutex
	msgs []string
	ch   chan string
}

func newNotifications() *notifications {
	return &notifications{ch: make(chan string, 16)}
}

func (n *notifications) notify(_ context.Context, _ timer.Entry, msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	n.ch <- msg
}

func (n *notifications) wait(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case m := <-n.ch:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for timer notification")
		return ""
	}
}

func (n *notifications) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

// ── Set / List / Cancel ──────────────────────────────────────────────────────

func TestSet_AssignsMonotonicIDsAndLabels(t *testing.T) {
	t.Parallel()
	s := timer.New()
	defer s.Close()

	a, err := s.Set(time.Hour, "")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, _ := s.Set(time.Hour, "pasta")
	if a.ID != 1 || b.ID != 2 {
		t.Errorf("ids = %d, %d", a.ID, b.ID)
	}
	if a.Label != "Timer 1" || b.Label != "pasta" {
		t.Errorf("labels = %q, %q", a.Label, b.Label)
	}
	if !a.End.Equal(a.Start.Add(time.Hour)) {
		t.Errorf("end = %v, start = %v", a.End, a.Start)
	}

	// Cancelled IDs are never reused.
	if _, err := s.Cancel(b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	c, _ := s.Set(time.Hour, "")
	if c.ID != 3 {
		t.Errorf("id after cancel = %d, want 3", c.ID)
	}
}

func TestSet_RejectsNonPositive(t *testing.T) {
	t.Parallel()
	s := timer.New()
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := s.Set(d, ""); !errors.Is(err, timer.ErrInvalidDuration) {
			t.Errorf("Set(%v) err = %v", d, err)
		}
	}
}

func TestList_OrderedAndExcludesExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	s := timer.New(timer.WithClock(clock))
	defer s.Close()

	_, _ = s.Set(time.Hour, "long")
	_, _ = s.Set(2*time.Hour, "longer")
	_, _ = s.Set(30*time.Minute, "short")

	got := s.List()
	if len(got) != 3 || got[0].ID != 1 || got[1].ID != 2 || got[2].ID != 3 {
		t.Fatalf("List = %+v", got)
	}
	if got[2].Remaining != 30*time.Minute {
		t.Errorf("remaining = %v", got[2].Remaining)
	}

	// Advance the clock past two end times without letting the real timers fire.
	mu.Lock()
	now = now.Add(90 * time.Minute)
	mu.Unlock()
	got = s.List()
	if len(got) != 1 || got[0].Label != "longer" {
		t.Errorf("List after advance = %+v", got)
	}
}

func TestCancelLatest_RemovesGreatestID(t *testing.T) {
	t.Parallel()
	n := newNotifications()
	s := timer.New(timer.WithNotifier(n.notify))
	defer s.Close()

	five, _ := s.Set(50*time.Millisecond, "five")
	ten, _ := s.Set(100*time.Millisecond, "ten")

	got, err := s.CancelLatest()
	if err != nil {
		t.Fatalf("CancelLatest: %v", err)
	}
	if got.ID != ten.ID {
		t.Errorf("cancelled id %d, want %d", got.ID, ten.ID)
	}
	if l := s.List(); len(l) != 1 || l[0].ID != five.ID {
		t.Errorf("List after cancel = %+v", l)
	}

	if msg := n.wait(t, 2*time.Second); msg != "Timer finished: five" {
		t.Errorf("notification = %q", msg)
	}
	time.Sleep(150 * time.Millisecond)
	if l := s.List(); len(l) != 0 {
		t.Errorf("fired timer still listed: %+v", l)
	}
	if n.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", n.count())
	}
}

func TestCancel_Errors(t *testing.T) {
	t.Parallel()
	s := timer.New()
	if _, err := s.CancelLatest(); !errors.Is(err, timer.ErrNoActiveTimers) {
		t.Errorf("CancelLatest on empty = %v", err)
	}
	if _, err := s.Cancel(42); !errors.Is(err, timer.ErrNotFound) {
		t.Errorf("Cancel(42) = %v", err)
	}
}

// ── firing ───────────────────────────────────────────────────────────────────

func TestFire_AlertsThenNotifiesOnce(t *testing.T) {
	t.Parallel()
	var order []string
	var mu sync.Mutex
	done := make(chan struct{})
	s := timer.New(
		timer.WithAlerter(timer.AlerterFunc(func(context.Context) error {
			mu.Lock()
			order = append(order, "alert")
			mu.Unlock()
			return nil
		})),
		timer.WithNotifier(func(_ context.Context, e timer.Entry, msg string) {
			mu.Lock()
			order = append(order, msg)
			mu.Unlock()
			close(done)
		}),
	)
	_, _ = s.Set(10*time.Millisecond, "tea")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "alert" || order[1] != "Timer finished: tea" {
		t.Errorf("order = %v", order)
	}
	if s.Len() != 0 {
		t.Errorf("fired timer still registered")
	}
}

func TestFire_CancelledTimerHasNoSideEffect(t *testing.T) {
	t.Parallel()
	var fired atomic.Int32
	s := timer.New(timer.WithNotifier(func(context.Context, timer.Entry, string) { fired.Add(1) }))
	e, _ := s.Set(20*time.Millisecond, "")
	if _, err := s.Cancel(e.ID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("cancelled timer notified")
	}
}

func TestFire_PanicIsIsolated(t *testing.T) {
	t.Parallel()
	n := newNotifications()
	var calls atomic.Int32
	s := timer.New(
		timer.WithAlerter(timer.AlerterFunc(func(context.Context) error {
			if calls.Add(1) == 1 {
				panic("speaker exploded")
			}
			return errors.New("still broken")
		})),
		timer.WithNotifier(n.notify),
	)
	defer s.Close()

	_, _ = s.Set(10*time.Millisecond, "first")
	_, _ = s.Set(30*time.Millisecond, "second")

	got := map[string]bool{}
	got[n.wait(t, 2*time.Second)] = true
	got[n.wait(t, 2*time.Second)] = true
	if !got["Timer finished: first"] || !got["Timer finished: second"] {
		t.Errorf("notifications = %v", got)
	}
}

func TestClose_StopsPendingTimers(t *testing.T) {
	t.Parallel()
	var fired atomic.Int32
	s := timer.New(timer.WithNotifier(func(context.Context, timer.Entry, string) { fired.Add(1) }))
	_, _ = s.Set(20*time.Millisecond, "")
	s.Close()
	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("timer fired after Close")
	}
	if _, err := s.Set(time.Second, ""); !errors.Is(err, timer.ErrClosed) {
		t.Errorf("Set after Close = %v", err)
	}
}

func TestConcurrentSetAndCancel(t *testing.T) {
	t.Parallel()
	s := timer.New()
	defer s.Close()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := s.Set(time.Minute, "")
			if err != nil {
				t.Error(err)
				return
			}
			_ = s.List()
			_, _ = s.Cancel(e.ID)
		}()
	}
	wg.Wait()
	if s.Len() != 0 {
		t.Errorf("Len = %d after cancelling everything", s.Len())
	}
}
