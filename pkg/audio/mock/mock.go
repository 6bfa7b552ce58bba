// Package mock provides in-memory mock implementations of [audio.Recorder] and
// [audio.Player] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields
// that control return values.
//
// Typical usage:
//
//	rec := &mock.Recorder{Clips: []audio.Clip{clipA, clipB}}
//	clip, err := rec.Record(ctx, 4*time.Second) // returns clipA
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// ─── Recorder ────────────────────────────────────────────────────────────────

// Recorder is a mock implementation of [audio.Recorder].
type Recorder struct {
	mu sync.Mutex

	// Clips are returned in order by successive Record calls. Once exhausted,
	// the last clip is repeated. An empty slice yields empty clips.
	Clips []audio.Clip

	// Err, when non-nil, is returned by every Record call.
	Err error

	// Durations records the window requested by each Record call.
	Durations []time.Duration

	next int
}

// Record implements [audio.Recorder].
func (r *Recorder) Record(_ context.Context, d time.Duration) (audio.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Durations = append(r.Durations, d)
	if r.Err != nil {
		return audio.Clip{}, r.Err
	}
	if len(r.Clips) == 0 {
		return audio.Clip{SampleRate: 16000, Channels: 1}, nil
	}
	i := min(r.next, len(r.Clips)-1)
	r.next++
	return r.Clips[i], nil
}

// CallCount returns the number of Record calls.
func (r *Recorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Durations)
}

// ─── Player ──────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// Err, when non-nil, is returned by every Play call.
	Err error

	// Played records every clip passed to Play.
	Played []audio.Clip
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, clip audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Played = append(p.Played, clip)
	return p.Err
}

// CallCount returns the number of Play calls.
func (p *Player) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}
