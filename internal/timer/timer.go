// Package timer runs user-created countdown timers.
//
// Each timer is a single [time.AfterFunc] task registered in a mutex-guarded
// active set; no goroutine sleeps on behalf of a pending timer. When a timer
// fires it first checks that it is still registered, so a timer cancelled
// after its task already woke up performs no side effect. Alerts and
// notifications run outside the lock and a panic in either is recovered and
// logged without affecting other timers.
//
// IDs increase monotonically and are never reused, which makes
// [Service.CancelLatest] well defined as "the active timer with the greatest
// ID".
package timer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
)

var (
	// ErrInvalidDuration is returned by Set for non-positive durations.
	ErrInvalidDuration = errors.New("timer: duration must be positive")

	// ErrNotFound is returned by Cancel for an unknown or finished ID.
	ErrNotFound = errors.New("timer: not found")

	// ErrNoActiveTimers is returned by CancelLatest when nothing is running.
	ErrNoActiveTimers = errors.New("timer: no active timers")

	// ErrClosed is returned by Set after Close.
	ErrClosed = errors.New("timer: service closed")
)

// Entry describes one timer. Entries are values; the service keeps its own
// copy.
type Entry struct {
	ID       uint64        `json:"id"`
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
}

// Status is a snapshot of an active timer.
type Status struct {
	ID        uint64        `json:"id"`
	Label     string        `json:"label"`
	Remaining time.Duration `json:"remaining"`
}

// Alerter plays the audible alert for a finished timer.
type Alerter interface {
	Alert(ctx context.Context) error
}

// AlerterFunc adapts a function to [Alerter].
type AlerterFunc func(ctx context.Context) error

// Alert calls f(ctx).
func (f AlerterFunc) Alert(ctx context.Context) error { return f(ctx) }

// Notifier receives the "Timer finished: {label}" message exactly once per
// fired timer.
type Notifier func(ctx context.Context, e Entry, message string)

// Option configures a [Service].
type Option func(*Service)

// WithAlerter sets the alert played when a timer fires.
func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerter = a }
}

// WithNotifier sets the callback invoked when a timer fires.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithMetrics records timer lifecycle events on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now for remaining-time calculations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type active struct {
	entry Entry
	timer *time.Timer
}

// Service manages the set of running timers. It is safe for concurrent use.
type Service struct {
	alerter Alerter
	notify  Notifier
	metrics *observe.Metrics
	now     func() time.Time

	mu     sync.Mutex
	nextID uint64
	active map[uint64]*active
	closed bool
}

// New creates a Service.
func New(opts ...Option) *Service {
	s := &Service{
		now:    time.Now,
		active: make(map[uint64]*active),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set starts a timer for d. An empty label becomes "Timer {id}".
func (s *Service) Set(d time.Duration, label string) (Entry, error) {
	if d <= 0 {
		return Entry{}, ErrInvalidDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{}, ErrClosed
	}

	s.nextID++
	id := s.nextID
	if label == "" {
		label = fmt.Sprintf("Timer %d", id)
	}
	start := s.now()
	e := Entry{ID: id, Label: label, Duration: d, Start: start, End: start.Add(d)}
	s.active[id] = &active{
		entry: e,
		timer: time.AfterFunc(d, func() { s.fire(id) }),
	}
	s.record(context.Background(), "set")
	s.gauge(1)
	slog.Debug("timer set", "id", id, "label", label, "duration", d)
	return e, nil
}

// List returns the active timers ordered by ID. Timers whose end time has
// passed are never reported, even if their task has not run yet.
func (s *Service) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Status, 0, len(s.active))
	for _, a := range s.active {
		rem := a.entry.End.Sub(now)
		if rem <= 0 {
			continue
		}
		out = append(out, Status{ID: a.entry.ID, Label: a.entry.Label, Remaining: rem})
	}
	slices.SortFunc(out, func(a, b Status) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of registered timers.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cancel stops the timer with the given ID.
func (s *Service) Cancel(id uint64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.active[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	s.removeLocked(a)
	return a.entry, nil
}

// CancelLatest stops the active timer with the greatest ID.
func (s *Service) CancelLatest() (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *active
	for _, a := range s.active {
		if latest == nil || a.entry.ID > latest.entry.ID {
			latest = a
		}
	}
	if latest == nil {
		return Entry{}, ErrNoActiveTimers
	}
	s.removeLocked(latest)
	return latest.entry, nil
}

func (s *Service) removeLocked(a *active) {
	a.timer.Stop()
	delete(s.active, a.entry.ID)
	s.record(context.Background(), "cancelled")
	s.gauge(-1)
	slog.Debug("timer cancelled", "id", a.entry.ID, "label", a.entry.Label)
}

// Close stops every pending timer and rejects further Set calls.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.active {
		a.timer.Stop()
		delete(s.active, id)
		s.gauge(-1)
	}
	s.closed = true
}

// fire runs on the AfterFunc goroutine.
func (s *Service) fire(id uint64) {
	s.mu.Lock()
	a, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	s.gauge(-1)
	s.record(ctx, "fired")
	e := a.entry
	msg := "Timer finished: " + e.Label
	slog.Info("timer finished", "id", e.ID, "label", e.Label)

	if s.alerter != nil {
		s.safely(e, "alert", func() {
			if err := s.alerter.Alert(ctx); err != nil {
				slog.Warn("timer alert failed", "id", e.ID, "err", err)
			}
		})
	}
	if s.notify != nil {
		s.safely(e, "notify", func() { s.notify(ctx, e, msg) })
	}
}

func (s *Service) safely(e Entry, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("timer callback panicked", "id", e.ID, "stage", stage, "panic", r)
			s.record(context.Background(), "panic")
		}
	}()
	fn()
}

func (s *Service) record(ctx context.Context, event string) {
	if s.metrics != nil {
		s.metrics.RecordTimerEvent(ctx, event)
	}
}

func (s *Service) gauge(delta int64) {
	if s.metrics != nil {
		s.metrics.ActiveTimers.Add(context.Background(), delta)
	}
}
