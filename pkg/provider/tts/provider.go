// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Coqui server
// or the OpenAI speech API) and turns one complete response string into a
// clip of PCM audio. Responses from the assistant are short, so batch
// synthesis keeps the interface simple; the speech layer plays the clip once
// it is ready.
//
// Implementations must be safe for concurrent use: a timer notification may be
// synthesised while a command response is in flight.
package tts

import (
	"context"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// Voice selects the provider-specific voice used for synthesis.
type Voice struct {
	// ID is the provider-specific voice identifier (e.g., "p225", "alloy").
	// Empty selects the provider default.
	ID string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 or 0 = default).
	// Providers without rate control ignore it.
	SpeedFactor float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text into a single audio clip. Returns an error if the
	// backend cannot be reached, rejects the request, or returns audio in an
	// unsupported format. Empty text yields an empty clip and nil error.
	Synthesize(ctx context.Context, text string, voice Voice) (audio.Clip, error)
}
