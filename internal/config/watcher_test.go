package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
)

const baseYAML = `
server:
  log_level: info
assistant:
  wake_phrases: ["jarvis"]
storage:
  driver: memory
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// reloads collects ReloadFunc invocations.
type reloads struct {
	n    atomic.Int32
	last atomic.Pointer[config.ConfigDiff]
	ch   chan struct{}
}

func newReloads() *reloads { return &reloads{ch: make(chan struct{}, 8)} }

func (r *reloads) fn(_, _ *config.Config, d config.ConfigDiff) {
	r.n.Add(1)
	r.last.Store(&d)
	r.ch <- struct{}{}
}

func (r *reloads) wait(t *testing.T) config.ConfigDiff {
	t.Helper()
	select {
	case <-r.ch:
		return *r.last.Load()
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
		return config.ConfigDiff{}
	}
}

func newWatcher(t *testing.T, content string, r *reloads) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, content)
	var fn config.ReloadFunc
	if r != nil {
		fn = r.fn
	}
	w, err := config.NewWatcher(path, fn, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := newWatcher(t, baseYAML, nil)
	if cfg := w.Current(); cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Fatalf("Current() = %+v", cfg)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestWatcher_PollsWakePhraseChange(t *testing.T) {
	t.Parallel()
	r := newReloads()
	w, path := newWatcher(t, baseYAML, r)

	writeConfig(t, path, `
server:
  log_level: debug
assistant:
  wake_phrases: ["jarvis", "computer"]
storage:
  driver: memory
`)
	d := r.wait(t)
	if !d.WakePhrasesChanged || len(d.NewWakePhrases) != 2 {
		t.Errorf("diff = %+v, want the new wake phrase", d)
	}
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level debug", d)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Error("Current() not updated")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	r := newReloads()
	w, path := newWatcher(t, baseYAML, r)
	w.Stop()

	// With polling stopped only Reload can pick the edit up.
	writeConfig(t, path, baseYAML+"  postgres_dsn: postgres://localhost/jarvis\n")
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	d := r.wait(t)
	if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "storage" {
		t.Errorf("RestartRequired = %v, want [storage]", d.RestartRequired)
	}
}

func TestWatcher_IgnoresIneffectiveEdits(t *testing.T) {
	t.Parallel()
	r := newReloads()
	_, path := newWatcher(t, baseYAML, r)

	// A comment changes the hash but not the config.
	writeConfig(t, path, "# tuned for the study\n"+baseYAML)
	// A touch changes only the mtime.
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)
	if n := r.n.Load(); n != 0 {
		t.Errorf("callback fired %d times for ineffective edits", n)
	}
}

func TestWatcher_InvalidEditKeepsConfig(t *testing.T) {
	t.Parallel()
	r := newReloads()
	w, path := newWatcher(t, baseYAML, r)

	writeConfig(t, path, "server:\n  log_level: bananas\n")
	if err := w.Reload(); err == nil {
		t.Error("Reload accepted an invalid log level")
	}
	time.Sleep(100 * time.Millisecond)

	if n := r.n.Load(); n != 0 {
		t.Errorf("callback fired %d times for an invalid config", n)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Error("invalid edit replaced the current config")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, _ := newWatcher(t, baseYAML, nil)
	w.Stop()
	w.Stop()
}
