// Package speech adapts the audio devices and the STT/TTS providers into the
// two collaborators the assistant core talks to: a [Listener] that returns an
// explicit [Result] instead of control-flow errors, and a [Speaker] that
// never fails from the caller's point of view.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// Status classifies the outcome of one listening window.
type Status int

const (
	// StatusOK means Text holds a non-empty transcript.
	StatusOK Status = iota
	// StatusNoSpeech means nothing intelligible was said.
	StatusNoSpeech
	// StatusServiceError means the device or the recogniser failed.
	StatusServiceError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoSpeech:
		return "no_speech"
	case StatusServiceError:
		return "service_error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of [Listener.Listen].
type Result struct {
	Status Status
	Text   string
	// Audio is the captured clip, when one was recorded.
	Audio audio.Clip
	// Err is set for StatusServiceError.
	Err error
}

// OK reports whether r carries a transcript.
func (r Result) OK() bool { return r.Status == StatusOK }

// Listener captures one window of speech and transcribes it. Listen blocks
// for the full window.
type Listener interface {
	Listen(ctx context.Context, d time.Duration) Result
}

// Speaker says text out loud. Failures are handled internally.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// ── STTListener ──────────────────────────────────────────────────────────────

// STTListener implements [Listener] with an [audio.Recorder] and an
// [stt.Provider].
type STTListener struct {
	recorder audio.Recorder
	provider stt.Provider
	cfg      stt.Config
	metrics  *observe.Metrics
}

var _ Listener = (*STTListener)(nil)

// NewSTTListener creates a listener. m may be nil.
func NewSTTListener(rec audio.Recorder, p stt.Provider, cfg stt.Config, m *observe.Metrics) *STTListener {
	return &STTListener{recorder: rec, provider: p, cfg: cfg, metrics: m}
}

// Listen implements [Listener].
func (l *STTListener) Listen(ctx context.Context, d time.Duration) Result {
	clip, err := l.recorder.Record(ctx, d)
	if err != nil {
		return Result{Status: StatusServiceError, Err: fmt.Errorf("speech: record: %w", err)}
	}
	if clip.Empty() {
		return Result{Status: StatusNoSpeech, Audio: clip}
	}

	start := time.Now()
	tr, err := l.provider.Transcribe(ctx, clip, l.cfg)
	outcome := observe.OutcomeOK
	defer func() {
		if l.metrics != nil {
			l.metrics.RecordProviderCall(ctx, "stt", "listen", outcome, start)
		}
	}()
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		outcome = observe.OutcomeNoSpeech
		return Result{Status: StatusNoSpeech, Audio: clip}
	case err != nil:
		outcome = observe.OutcomeError
		return Result{Status: StatusServiceError, Audio: clip, Err: fmt.Errorf("speech: transcribe: %w", err)}
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		outcome = observe.OutcomeEmpty
		return Result{Status: StatusNoSpeech, Audio: clip}
	}
	return Result{Status: StatusOK, Text: text, Audio: clip}
}

// ── TTSSpeaker ───────────────────────────────────────────────────────────────

// TTSSpeaker implements [Speaker] by synthesising with a [tts.Provider] and
// playing the result on an [audio.Player].
type TTSSpeaker struct {
	provider tts.Provider
	player   audio.Player
	voice    tts.Voice
	metrics  *observe.Metrics
}

var _ Speaker = (*TTSSpeaker)(nil)

// NewTTSSpeaker creates a speaker. m may be nil.
func NewTTSSpeaker(p tts.Provider, player audio.Player, voice tts.Voice, m *observe.Metrics) *TTSSpeaker {
	return &TTSSpeaker{provider: p, player: player, voice: voice, metrics: m}
}

// Speak implements [Speaker].
func (s *TTSSpeaker) Speak(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	start := time.Now()
	clip, err := s.provider.Synthesize(ctx, text, s.voice)
	if s.metrics != nil {
		outcome := observe.OutcomeOK
		if err != nil {
			outcome = observe.OutcomeError
		}
		s.metrics.RecordProviderCall(ctx, "tts", "speak", outcome, start)
	}
	if err != nil {
		observe.Logger(ctx).Warn("speech: synthesis failed", "err", err, "text", text)
		return
	}
	if clip.Empty() {
		return
	}
	if err := s.player.Play(ctx, clip); err != nil {
		observe.Logger(ctx).Warn("speech: playback failed", "err", err)
	}
}

// ── ConsoleSpeaker ───────────────────────────────────────────────────────────

// ConsoleSpeaker writes "NAME: text" lines instead of producing audio.
type ConsoleSpeaker struct {
	mu   sync.Mutex
	w    io.Writer
	name string
}

var _ Speaker = (*ConsoleSpeaker)(nil)

// NewConsoleSpeaker writes to w, prefixing each line with name.
func NewConsoleSpeaker(w io.Writer, name string) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w, name: name}
}

// Speak implements [Speaker].
func (c *ConsoleSpeaker) Speak(_ context.Context, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "%s: %s\n", c.name, text); err != nil {
		slog.Warn("speech: console write failed", "err", err)
	}
}

// ── SerialListener ───────────────────────────────────────────────────────────

// SerialListener gives one caller at a time the input device. The wake loop
// and an authentication started from the HTTP or MCP surface share it, so a
// passphrase is never recorded into a wake window.
type SerialListener struct {
	sem  chan struct{}
	next Listener
}

var _ Listener = (*SerialListener)(nil)

// NewSerialListener wraps next.
func NewSerialListener(next Listener) *SerialListener {
	return &SerialListener{sem: make(chan struct{}, 1), next: next}
}

// Listen implements [Listener]. A caller whose ctx ends while another window
// is being recorded gets a service error without touching the device.
func (l *SerialListener) Listen(ctx context.Context, d time.Duration) Result {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{Status: StatusServiceError, Err: ctx.Err()}
	}
	defer func() { <-l.sem }()
	return l.next.Listen(ctx, d)
}

// ── SerialSpeaker ────────────────────────────────────────────────────────────

// SerialSpeaker serialises concurrent Speak calls onto one output channel.
// Callers race for the channel; whoever acquires it first speaks first.
type SerialSpeaker struct {
	mu        sync.Mutex
	next      Speaker
	observers []func(text string)
}

var _ Speaker = (*SerialSpeaker)(nil)

// NewSerialSpeaker wraps next.
func NewSerialSpeaker(next Speaker) *SerialSpeaker {
	return &SerialSpeaker{next: next}
}

// OnSpeak registers fn to be called with every utterance before it is spoken.
// It must be called before the speaker is shared.
func (s *SerialSpeaker) OnSpeak(fn func(text string)) {
	s.observers = append(s.observers, fn)
}

// Speak implements [Speaker].
func (s *SerialSpeaker) Speak(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fn := range s.observers {
		fn(text)
	}
	s.next.Speak(ctx, text)
}
