// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., a local
// whisper.cpp server or the OpenAI transcription API) and turns one captured
// audio window into text. The assistant records fixed-length windows (a short
// one while waiting for the wake phrase, a longer one for the command), so a
// request/response interface is all that is needed.
//
// Implementations distinguish two failure classes:
//
//   - [ErrNoSpeech]: the audio was silent or unintelligible. This is an
//     expected outcome; callers listen again.
//   - any other error: the service itself failed (transport error, bad
//     status, malformed response).
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// ErrNoSpeech is returned (possibly wrapped) when the audio contained no
// recognisable speech.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Config carries recognition hints for a single request.
type Config struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// An empty string lets the provider auto-detect or use its default.
	Language string

	// Prompt is an optional vocabulary hint (e.g., the wake phrases). Providers
	// that do not support prompting ignore it.
	Prompt string
}

// Transcript is the result of a successful transcription.
type Transcript struct {
	// Text is the transcribed speech content, trimmed of surrounding
	// whitespace. Never empty for a nil error.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts clip to text. Returns [ErrNoSpeech] when the audio
	// holds no recognisable speech and a different error when the backend
	// could not be reached or answered with garbage.
	Transcribe(ctx context.Context, clip audio.Clip, cfg Config) (Transcript, error)
}
