// Package storetest is a conformance suite shared by the storage drivers.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/intent"
)

// Store is the persistence surface every driver implements.
type Store interface {
	auth.ProfileStore
	intent.Store
	Ping(ctx context.Context) error
	Close() error
}

// Run exercises a fresh, empty store returned by open.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("Ping", func(t *testing.T) {
		if err := open(t).Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
	t.Run("Profile", func(t *testing.T) { testProfile(t, open(t)) })
	t.Run("Intents", func(t *testing.T) { testIntents(t, open(t)) })
	t.Run("CacheWriteThrough", func(t *testing.T) { testCacheWriteThrough(t, open(t)) })
}

func testProfile(t *testing.T, s Store) {
	ctx := context.Background()
	if _, ok, err := s.LoadProfile(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	want := auth.Profile{
		Features:   auth.Features{1.5, 200.25, 40000, 1024, -1024},
		Passphrase: "my voice is my password",
		EnrolledAt: at,
	}
	if err := s.SaveProfile(ctx, want); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	got, ok, err := s.LoadProfile(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadProfile: ok=%v err=%v", ok, err)
	}
	if got.Features != want.Features || got.Passphrase != want.Passphrase || !got.EnrolledAt.Equal(at) {
		t.Errorf("LoadProfile = %+v, want %+v", got, want)
	}

	want.Features[0] = 3
	want.Passphrase = "open sesame now"
	if err := s.SaveProfile(ctx, want); err != nil {
		t.Fatalf("SaveProfile (replace): %v", err)
	}
	got, _, _ = s.LoadProfile(ctx)
	if got.Features[0] != 3 || got.Passphrase != "open sesame now" {
		t.Errorf("profile not replaced: %+v", got)
	}
}

func entry(key string, offset time.Duration) intent.StoredIntent {
	return intent.StoredIntent{
		Key: key,
		Record: intent.Record{
			Intent:          intent.IntentWeather,
			Action:          "get_weather",
			Parameters:      map[string]any{"location": key},
			NeedsPermission: false,
		},
		CreatedAt: time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC).Add(offset),
	}
}

func testIntents(t *testing.T, s Store) {
	ctx := context.Background()
	for i, key := range []string{"paris", "berlin", "tokyo"} {
		if err := s.SaveIntent(ctx, entry(key, time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("SaveIntent(%s): %v", key, err)
		}
	}
	if err := s.DeleteIntent(ctx, "berlin"); err != nil {
		t.Fatalf("DeleteIntent: %v", err)
	}
	if err := s.DeleteIntent(ctx, "missing"); err != nil {
		t.Fatalf("DeleteIntent(missing): %v", err)
	}

	got, err := s.LoadIntents(ctx)
	if err != nil {
		t.Fatalf("LoadIntents: %v", err)
	}
	if len(got) != 2 || got[0].Key != "paris" || got[1].Key != "tokyo" {
		t.Fatalf("LoadIntents = %+v", got)
	}
	if !got[0].CreatedAt.Equal(entry("paris", 0).CreatedAt) {
		t.Errorf("CreatedAt = %v", got[0].CreatedAt)
	}

	// Re-saving replaces the record and moves the key to the newest position.
	resaved := entry("paris", time.Minute)
	resaved.Record.Parameters["location"] = "paris, france"
	if err := s.SaveIntent(ctx, resaved); err != nil {
		t.Fatalf("SaveIntent(paris again): %v", err)
	}
	got, _ = s.LoadIntents(ctx)
	if len(got) != 2 || got[0].Key != "tokyo" || got[1].Key != "paris" {
		t.Fatalf("after re-save: %+v", got)
	}
	if got[1].Record.Param("location") != "paris, france" || got[1].Record.Intent != intent.IntentWeather {
		t.Errorf("record = %+v", got[1].Record)
	}
	if !got[1].CreatedAt.Equal(resaved.CreatedAt) {
		t.Errorf("CreatedAt after re-save = %v, want %v", got[1].CreatedAt, resaved.CreatedAt)
	}
	if got[0].Record.Param("location") != "tokyo" {
		t.Errorf("untouched record = %+v", got[0].Record)
	}

	if err := s.ClearIntents(ctx); err != nil {
		t.Fatalf("ClearIntents: %v", err)
	}
	if got, _ := s.LoadIntents(ctx); len(got) != 0 {
		t.Errorf("after clear: %+v", got)
	}
}

// testCacheWriteThrough checks that a cache backed by the store can be
// rebuilt from it.
func testCacheWriteThrough(t *testing.T, s Store) {
	ctx := context.Background()
	c := intent.NewCache(2, intent.WithStore(s))
	c.Put(ctx, "weather in paris", intent.Record{Intent: intent.IntentWeather, Action: "get_weather"})
	c.Put(ctx, "weather in rome", intent.Record{Intent: intent.IntentWeather, Action: "get_weather"})
	c.Put(ctx, "weather in oslo", intent.Record{Intent: intent.IntentWeather, Action: "get_weather"})

	reloaded := intent.NewCache(2, intent.WithStore(s))
	n, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d entries, want 2", n)
	}
	if _, ok := reloaded.Get("weather in paris"); ok {
		t.Error("evicted entry came back")
	}
	if _, ok := reloaded.Get("weather in oslo"); !ok {
		t.Error("newest entry missing")
	}
}
