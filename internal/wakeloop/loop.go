// Package wakeloop runs the listen → acknowledge → command → respond cycle.
//
// [Loop] is a state machine driven by a single goroutine. It waits for a wake
// phrase in short listening windows, acknowledges it, captures one command,
// hands it to the orchestrator and speaks the response. An exit phrase or a
// cancelled context ends [Loop.Run].
//
// Cancellation is cooperative. It is observed between states only: an audio
// window that has started always runs to completion, and so does the
// processing of a captured command.
package wakeloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/internal/speech"
)

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("wakeloop: already running")

// Spoken replies.
const (
	DefaultAcknowledgement = "Yes, I'm listening."
	ReplyNotCaught         = "Sorry, I didn't catch that."
	ReplySpeechUnavailable = "Speech recognition service is unavailable."
	ReplyGoodbye           = "Goodbye!"
)

// State is a wake loop state.
type State int32

const (
	StateIdle State = iota
	StateWakeDetected
	StateListening
	StateProcessing
	StateSpeaking
	StateShuttingDown
)

var stateNames = [...]string{
	StateIdle:         "IDLE_LISTENING_FOR_WAKE",
	StateWakeDetected: "WAKE_DETECTED",
	StateListening:    "LISTENING_FOR_COMMAND",
	StateProcessing:   "PROCESSING",
	StateSpeaking:     "SPEAKING",
	StateShuttingDown: "SHUTTING_DOWN",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Handler resolves a captured command.
type Handler interface {
	HandleUtterance(ctx context.Context, text string) orchestrator.Response
}

// Config tunes the loop. Zero durations select the defaults.
type Config struct {
	// Acknowledgement is spoken after the wake phrase. Default:
	// [DefaultAcknowledgement].
	Acknowledgement string

	// WakeWindow is the length of each wake listening window. Default: 2s.
	WakeWindow time.Duration

	// CommandWindow is the length of the command window. Default: 4s.
	CommandWindow time.Duration

	// ErrorBackoff is the pause after a speech service error while idle.
	// Default: 5s.
	ErrorBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.Acknowledgement == "" {
		c.Acknowledgement = DefaultAcknowledgement
	}
	if c.WakeWindow <= 0 {
		c.WakeWindow = 2 * time.Second
	}
	if c.CommandWindow <= 0 {
		c.CommandWindow = 4 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
}

// Option configures a Loop.
type Option func(*Loop)

// WithMetrics counts state entries.
func WithMetrics(m *observe.Metrics) Option { return func(l *Loop) { l.metrics = m } }

// Loop is the wake word state machine.
type Loop struct {
	cfg      Config
	listener speech.Listener
	speaker  speech.Speaker
	handler  Handler
	metrics  *observe.Metrics

	matcher atomic.Pointer[Matcher]
	ack     atomic.Pointer[string]
	state   atomic.Int32
	running atomic.Bool

	obsMu     sync.RWMutex
	observers []func(from, to State)
}

// New creates a loop. m selects the wake phrases.
func New(l speech.Listener, s speech.Speaker, h Handler, m *Matcher, cfg Config, opts ...Option) *Loop {
	cfg.applyDefaults()
	loop := &Loop{cfg: cfg, listener: l, speaker: s, handler: h}
	loop.matcher.Store(m)
	loop.ack.Store(&cfg.Acknowledgement)
	for _, o := range opts {
		o(loop)
	}
	return loop
}

// State returns the current state. Safe for concurrent use.
func (l *Loop) State() State { return State(l.state.Load()) }

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

// OnTransition registers fn to be called on the loop goroutine after every
// state change.
func (l *Loop) OnTransition(fn func(from, to State)) {
	l.obsMu.Lock()
	l.observers = append(l.observers, fn)
	l.obsMu.Unlock()
}

// SetMatcher replaces the wake phrase matcher. Safe to call while running.
func (l *Loop) SetMatcher(m *Matcher) { l.matcher.Store(m) }

// Matcher returns the active wake phrase matcher.
func (l *Loop) Matcher() *Matcher { return l.matcher.Load() }

// SetAcknowledgement replaces the acknowledgement. Safe to call while running.
func (l *Loop) SetAcknowledgement(text string) {
	if text == "" {
		text = DefaultAcknowledgement
	}
	l.ack.Store(&text)
}

// Run drives the state machine until an exit phrase is handled or ctx is
// cancelled. It returns nil in both cases.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	log := observe.Logger(ctx)
	log.Info("wake loop started", "wake_phrases", l.matcher.Load().Phrases())

	// Acquisition and processing finish even after a stop request.
	work := context.WithoutCancel(ctx)

	l.transition(ctx, StateIdle)
	var (
		command  string
		response string
		farewell string
	)
	for {
		st := l.State()
		if st != StateShuttingDown && ctx.Err() != nil {
			l.transition(ctx, StateShuttingDown)
			continue
		}

		switch st {
		case StateIdle:
			r := l.listener.Listen(work, l.cfg.WakeWindow)
			switch r.Status {
			case speech.StatusServiceError:
				log.Warn("wake loop: speech service error", "err", r.Err, "backoff", l.cfg.ErrorBackoff)
				sleep(ctx, l.cfg.ErrorBackoff)
			case speech.StatusOK:
				if phrase, ok := l.matcher.Load().Match(r.Text); ok {
					log.Info("wake phrase detected", "phrase", phrase, "heard", r.Text)
					l.transition(ctx, StateWakeDetected)
				}
			}

		case StateWakeDetected:
			l.speaker.Speak(work, *l.ack.Load())
			l.transition(ctx, StateListening)

		case StateListening:
			r := l.listener.Listen(work, l.cfg.CommandWindow)
			switch r.Status {
			case speech.StatusOK:
				command = r.Text
				l.transition(ctx, StateProcessing)
			case speech.StatusServiceError:
				log.Warn("wake loop: speech service error during command", "err", r.Err)
				l.speaker.Speak(work, ReplySpeechUnavailable)
				l.transition(ctx, StateIdle)
			default:
				l.speaker.Speak(work, ReplyNotCaught)
				l.transition(ctx, StateIdle)
			}

		case StateProcessing:
			resp := l.handler.HandleUtterance(work, command)
			if resp.Exit {
				farewell = resp.Text
				if farewell == "" {
					farewell = ReplyGoodbye
				}
				l.transition(ctx, StateShuttingDown)
				continue
			}
			response = resp.Text
			l.transition(ctx, StateSpeaking)

		case StateSpeaking:
			l.speaker.Speak(work, response)
			l.transition(ctx, StateIdle)

		case StateShuttingDown:
			if farewell != "" {
				l.speaker.Speak(work, farewell)
			}
			log.Info("wake loop stopped", "requested", ctx.Err() != nil)
			return nil
		}
	}
}

func (l *Loop) transition(ctx context.Context, to State) {
	from := State(l.state.Swap(int32(to)))
	if l.metrics != nil {
		l.metrics.RecordStateTransition(ctx, to.String())
	}
	l.obsMu.RLock()
	obs := l.observers
	l.obsMu.RUnlock()
	for _, fn := range obs {
		fn(from, to)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
