// Package memory provides an in-process implementation of the jarvis
// persistence interfaces. Nothing survives a restart; it backs the "memory"
// storage driver and serves as a reference implementation in tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/intent"
)

var (
	_ auth.ProfileStore = (*Store)(nil)
	_ intent.Store      = (*Store)(nil)
)

// Store is a thread-safe in-memory store. The zero value is ready to use.
type Store struct {
	mu      sync.RWMutex
	profile *auth.Profile
	intents []intent.StoredIntent
}

// New returns an empty Store.
func New() *Store { return &Store{} }

// LoadProfile implements [auth.ProfileStore].
func (s *Store) LoadProfile(context.Context) (auth.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return auth.Profile{}, false, nil
	}
	return *s.profile, true, nil
}

// SaveProfile implements [auth.ProfileStore].
func (s *Store) SaveProfile(_ context.Context, p auth.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
	return nil
}

// LoadIntents implements [intent.Store].
func (s *Store) LoadIntents(context.Context) ([]intent.StoredIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]intent.StoredIntent, len(s.intents))
	for i, e := range s.intents {
		e.Record = e.Record.Clone()
		out[i] = e
	}
	return out, nil
}

// SaveIntent implements [intent.Store]. Saving an existing key moves it to
// the newest position.
func (s *Store) SaveIntent(_ context.Context, entry intent.StoredIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = slices.DeleteFunc(s.intents, func(e intent.StoredIntent) bool { return e.Key == entry.Key })
	entry.Record = entry.Record.Clone()
	s.intents = append(s.intents, entry)
	return nil
}

// DeleteIntent implements [intent.Store].
func (s *Store) DeleteIntent(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = slices.DeleteFunc(s.intents, func(e intent.StoredIntent) bool { return e.Key == key })
	return nil
}

// ClearIntents implements [intent.Store].
func (s *Store) ClearIntents(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = nil
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
