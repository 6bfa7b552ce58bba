// Package audio defines the capture and playback abstractions used by the
// assistant together with small PCM helpers.
//
// The two primary abstractions are:
//
//   - [Recorder] captures a fixed-length window of microphone audio.
//   - [Player] plays a clip of PCM audio through the default output device.
//
// All audio handled by this package is 16-bit signed little-endian PCM.
// Implementations live in adapter packages (e.g., audio/command, which shells
// out to arecord/aplay).
//
// This package lives under pkg/ because external code is expected to provide
// its own [Recorder] and [Player] implementations.
package audio

import (
	"context"
	"time"
)

// Recorder captures audio from an input device.
//
// Record blocks for the full window d and returns whatever was captured. It is
// not preemptible mid-window; implementations may still honour ctx before the
// capture starts. A returned clip may be empty when the device produced no
// data.
//
// Implementations must be safe for sequential reuse; concurrent calls to
// Record on the same Recorder are not required to be supported.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) (Clip, error)
}

// Player plays PCM audio on an output device.
//
// Play blocks until the clip has finished playing or ctx is cancelled.
// Implementations must be safe for concurrent use; concurrent calls may be
// serialised internally.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}
