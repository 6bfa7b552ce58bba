package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc receives the previous and the newly loaded configuration along
// with their [Diff].
type ReloadFunc func(old, new *Config, d ConfigDiff)

// Watcher keeps a config file's parsed contents current. It polls the file
// and re-parses when the content hash changes; [Watcher.Reload] forces a
// check, e.g. on SIGHUP. The callback only fires when the diff reports a
// hot-reloadable change or a section that needs a restart, so comment or
// formatting edits are silent. An edit that fails to parse or validate is
// logged and the last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc

	// check serializes polling and forced reloads.
	check sync.Mutex

	mu      sync.Mutex
	current *Config
	state   fileState

	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

type fileState struct {
	mtime time.Time
	size  int64
	hash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onReload may be nil.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.state = cfg, st

	go w.poll()
	return w, nil
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload re-reads the file now, ignoring the modification time. It returns
// the load error, if any; the current config is unchanged in that case.
func (w *Watcher) Reload() error {
	return w.refresh(true)
}

// Stop ends polling and waits for an in-flight check to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) poll() {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if err := w.refresh(false); err != nil {
				slog.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// refresh loads the file when it looks modified (or always, when forced) and
// publishes the result if the content hash differs.
func (w *Watcher) refresh(force bool) error {
	w.check.Lock()
	defer w.check.Unlock()

	w.mu.Lock()
	prev := w.state
	w.mu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return err
		}
		if info.ModTime().Equal(prev.mtime) && info.Size() == prev.size {
			return nil
		}
	}

	cfg, st, err := w.read()
	if err != nil {
		if !force {
			// Remember the bad revision so it is reported once, not every tick.
			w.mu.Lock()
			w.state.mtime, w.state.size = st.mtime, st.size
			w.mu.Unlock()
		}
		return err
	}

	w.mu.Lock()
	if st.hash == prev.hash {
		w.state = st
		w.mu.Unlock()
		return nil
	}
	old := w.current
	w.current, w.state = cfg, st
	w.mu.Unlock()

	d := Diff(old, cfg)
	if !d.Changed() && len(d.RestartRequired) == 0 {
		slog.Debug("config: file changed without effective changes", "path", w.path)
		return nil
	}
	slog.Info("config: reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(old, cfg, d)
	}
	return nil
}

// read parses exactly the bytes it hashes. The returned state carries mtime
// and size even when parsing fails.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	st := fileState{mtime: info.ModTime(), size: info.Size()}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, st, err
	}
	st.hash = sha256.Sum256(data)
	cfg, err := decodeBytes(data)
	if err != nil {
		return nil, st, err
	}
	return cfg, st, nil
}
