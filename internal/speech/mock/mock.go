// Package mock provides scripted implementations of the speech interfaces.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/speech"
)

// Listener returns Results in order. Once exhausted it returns NoSpeech, or
// calls Exhausted when set.
type Listener struct {
	mu sync.Mutex

	Results []speech.Result

	// Exhausted, when non-nil, is called instead of returning NoSpeech after
	// Results run out. Tests use it to cancel the loop under test.
	Exhausted func() speech.Result

	// Windows records the duration passed to each Listen call.
	Windows []time.Duration

	next int
}

var _ speech.Listener = (*Listener)(nil)

// Listen implements [speech.Listener].
func (l *Listener) Listen(_ context.Context, d time.Duration) speech.Result {
	l.mu.Lock()
	l.Windows = append(l.Windows, d)
	if l.next < len(l.Results) {
		r := l.Results[l.next]
		l.next++
		l.mu.Unlock()
		return r
	}
	fn := l.Exhausted
	l.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return speech.Result{Status: speech.StatusNoSpeech}
}

// CallCount returns the number of Listen calls.
func (l *Listener) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Windows)
}

// Speaker records every utterance.
type Speaker struct {
	mu     sync.Mutex
	Spoken []string
}

var _ speech.Speaker = (*Speaker)(nil)

// Speak implements [speech.Speaker].
func (s *Speaker) Speak(_ context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, text)
}

// Texts returns a copy of everything spoken so far.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Spoken...)
}

// Text returns a scripted OK result.
func Text(s string) speech.Result { return speech.Result{Status: speech.StatusOK, Text: s} }

// NoSpeech returns a scripted NoSpeech result.
func NoSpeech() speech.Result { return speech.Result{Status: speech.StatusNoSpeech} }

// ServiceError returns a scripted ServiceError result.
func ServiceError(err error) speech.Result {
	return speech.Result{Status: speech.StatusServiceError, Err: err}
}
