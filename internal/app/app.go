// Package app wires all jarvis subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives the wake loop and the HTTP API, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithListener, WithSpeaker, etc.). When an option is not provided, New
// creates real implementations from the config and providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/capability"
	"github.com/MrWong99/jarvis/internal/capability/builtin"
	"github.com/MrWong99/jarvis/internal/chat"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/intent"
	"github.com/MrWong99/jarvis/internal/mcpserver"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/internal/server"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/internal/store"
	"github.com/MrWong99/jarvis/internal/timer"
	"github.com/MrWong99/jarvis/internal/wakeloop"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM   llm.Provider
	STT   stt.Provider
	TTS   tts.Provider
	Audio config.AudioDevices
}

// breakerStates is implemented by the resilience fallback wrappers.
type breakerStates interface {
	States() map[string]resilience.State
}

// App owns all subsystem lifetimes and orchestrates the voice assistant.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	store      store.Store
	listener   speech.Listener
	output     speech.Speaker
	speaker    *speech.SerialSpeaker
	gate       *auth.Gate
	cache      *intent.Cache
	fastPath   *intent.FastPath
	breaker    *resilience.CircuitBreaker
	classifier intent.Classifier
	assistant  *chat.Assistant
	timers     *timer.Service
	registry   *capability.Registry
	launcher   builtin.Launcher
	orch       *orchestrator.Orchestrator
	loop       *wakeloop.Loop
	hub        *server.Hub
	server     *server.Server
	watcher    *config.Watcher

	configPath string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a persistence backend instead of opening one from config.
// The app does not close an injected store.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithListener injects the speech listener instead of recording through the
// audio and STT providers.
func WithListener(l speech.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithSpeaker injects the speech output instead of synthesising through the
// TTS provider.
func WithSpeaker(s speech.Speaker) Option {
	return func(a *App) { a.output = s }
}

// WithLauncher injects the process launcher used by the built-in
// capabilities.
func WithLauncher(l builtin.Launcher) Option {
	return func(a *App) { a.launcher = l }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets a config reload change the log level through v.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithConfigWatch hot-reloads wake phrases, exit phrases, the acknowledgement
// and the log level from the config file at path.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection, voice
// profile and cache loading, capability registration and orchestrator
// assembly. Nothing listens or serves until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		hub:       server.NewHub(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Speech I/O ────────────────────────────────────────────────────
	a.initSpeech()

	// ── 3. Authentication gate ───────────────────────────────────────────
	if err := a.initGate(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init auth: %w", err)
	}

	// ── 4. Intent resolution ─────────────────────────────────────────────
	if err := a.initIntent(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init intent: %w", err)
	}

	// ── 5. Timers + capabilities ─────────────────────────────────────────
	a.initCapabilities()

	// ── 6. Orchestrator + wake loop ──────────────────────────────────────
	a.initOrchestrator()
	a.initLoop()

	// ── 7. HTTP API ──────────────────────────────────────────────────────
	a.initServer()

	// ── 8. Config hot reload ─────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured backend unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	s, err := store.Open(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	slog.Info("store opened", "driver", a.cfg.Storage.Driver)
	return nil
}

// initSpeech builds the serialised listener and speaker. Without an STT
// provider and a recorder there is no listener, and the wake loop is
// disabled. Without TTS the assistant writes its replies to stdout.
func (a *App) initSpeech() {
	p := a.providers
	if a.listener == nil && p.STT != nil && p.Audio.Recorder != nil {
		a.listener = speech.NewSTTListener(p.Audio.Recorder, p.STT,
			stt.Config{Language: a.cfg.Assistant.Language}, a.metrics)
	}
	if a.listener != nil {
		a.listener = speech.NewSerialListener(a.listener)
	}
	if a.output == nil {
		if p.TTS != nil && p.Audio.Player != nil {
			voice := tts.Voice{ID: a.cfg.Assistant.Voice.ID, SpeedFactor: a.cfg.Assistant.Voice.SpeedFactor}
			a.output = speech.NewTTSSpeaker(p.TTS, p.Audio.Player, voice, a.metrics)
		} else {
			a.output = speech.NewConsoleSpeaker(os.Stdout, a.cfg.Assistant.Name)
		}
	}
	a.speaker = speech.NewSerialSpeaker(a.output)
	a.speaker.OnSpeak(func(text string) {
		a.hub.Publish(server.EventSpeech, speechEvent{Text: text})
	})
}

// initGate creates the voice authentication gate and loads the stored
// profile.
func (a *App) initGate(ctx context.Context) error {
	l := a.listener
	if l == nil {
		l = offlineListener{}
	}
	sec := a.cfg.Security
	a.gate = auth.New(l, auth.Config{
		Passphrase:     sec.Passphrase,
		SampleDuration: sec.SampleDuration,
		ThresholdRatio: sec.ThresholdRatio,
		SessionTimeout: sec.SessionTimeout,
	}, auth.WithStore(a.store), auth.WithSpeaker(a.speaker), auth.WithMetrics(a.metrics))
	return a.gate.Load(ctx)
}

// initIntent builds the fast path, the cache and the LLM classifier.
func (a *App) initIntent(ctx context.Context) error {
	ic := a.cfg.Intent
	if ic.FastPathEnabled() {
		a.fastPath = intent.NewFastPath(intent.DefaultRules()...)
	}

	if ic.CacheEnabled() {
		var copts []intent.CacheOption
		if ic.PersistCache {
			copts = append(copts, intent.WithStore(a.store))
		}
		a.cache = intent.NewCache(ic.CacheSize, copts...)
		if ic.PersistCache {
			n, err := a.cache.Load(ctx)
			if err != nil {
				return fmt.Errorf("load cache: %w", err)
			}
			slog.Info("intent cache restored", "entries", n)
		}
	}

	if a.providers.LLM == nil {
		slog.Warn("no LLM provider configured; unmatched commands get the default reply")
		return nil
	}
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "classifier",
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from, "to", to)
		},
	})
	a.classifier = intent.NewLLMClassifier(a.providers.LLM, intent.WithBreaker(a.breaker))
	a.assistant = chat.New(a.providers.LLM,
		chat.WithName(a.cfg.Assistant.Name),
		chat.WithHistorySize(a.cfg.Assistant.HistorySize),
		chat.WithMetrics(a.metrics),
	)
	return nil
}

// initCapabilities starts the timer service and registers the built-in
// handlers.
func (a *App) initCapabilities() {
	tc := a.cfg.Timers
	topts := []timer.Option{
		timer.WithMetrics(a.metrics),
		timer.WithNotifier(func(ctx context.Context, e timer.Entry, msg string) {
			a.hub.PublishTimer("finished", e)
			a.speaker.Speak(ctx, msg)
		}),
	}
	if a.providers.Audio.Player != nil {
		topts = append(topts, timer.WithAlerter(
			timer.NewBeeper(a.providers.Audio.Player, tc.BeepCount, tc.BeepFrequency, tc.BeepDuration)))
	}
	a.timers = timer.New(topts...)
	a.closers = append(a.closers, func() error {
		a.timers.Close()
		return nil
	})

	a.registry = capability.NewRegistry()
	builtin.Register(a.registry, builtin.Deps{
		Timers:   a.timers,
		Launcher: a.launcher,
		Name:     a.cfg.Assistant.Name,
	})
	a.registry.Freeze()
	slog.Info("capabilities registered", "count", len(a.registry.Keys()))
}

func (a *App) initOrchestrator() {
	opts := []orchestrator.Option{
		orchestrator.WithGate(a.gate, a.cfg.Security.AuthRequired()),
		orchestrator.WithMetrics(a.metrics),
	}
	if a.fastPath != nil {
		opts = append(opts, orchestrator.WithFastPath(a.fastPath))
	}
	if a.cache != nil {
		opts = append(opts, orchestrator.WithCache(a.cache))
	}
	if a.classifier != nil {
		opts = append(opts, orchestrator.WithClassifier(a.classifier, a.cfg.Intent.ClassifierTimeout))
	}
	if a.assistant != nil {
		opts = append(opts, orchestrator.WithFallback(a.assistant))
	}
	if phrases := a.cfg.Assistant.ExitPhrases; len(phrases) > 0 {
		opts = append(opts, orchestrator.WithExitPhrases(phrases...))
	}
	a.orch = orchestrator.New(a.registry, opts...)
}

// initLoop builds the wake loop when a listener is available.
func (a *App) initLoop() {
	if a.listener == nil {
		slog.Warn("no speech input configured; wake loop disabled")
		return
	}
	ac := a.cfg.Assistant
	a.loop = wakeloop.New(a.listener, a.speaker, a.orch, newMatcher(ac), wakeloop.Config{
		Acknowledgement: ac.Acknowledgement,
		WakeWindow:      ac.WakeWindow,
		CommandWindow:   ac.CommandWindow,
		ErrorBackoff:    ac.ErrorBackoff,
	}, wakeloop.WithMetrics(a.metrics))
	a.loop.OnTransition(func(from, to wakeloop.State) {
		a.hub.Publish(server.EventState, stateEvent{From: from.String(), To: to.String()})
	})
}

// initServer builds the HTTP API when a listen address is configured.
func (a *App) initServer() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}
	opts := []server.Option{
		server.WithHub(a.hub),
		server.WithTimers(a.timers),
		server.WithAuth(a.gate),
		server.WithSpeaker(a.speaker),
		server.WithHealth(a.healthChecks()),
		server.WithMetrics(a.metrics),
	}
	if a.loop != nil {
		opts = append(opts, server.WithLoop(a.loop))
	}
	if a.cache != nil {
		opts = append(opts, server.WithCache(a.cache))
	}
	a.server = server.New(a.orch, a.cfg.Server, opts...)
}

// healthChecks assembles the readiness checks for /readyz.
func (a *App) healthChecks() *health.Handler {
	checks := []health.Checker{health.PingChecker("store", a.store)}
	if a.breaker != nil {
		checks = append(checks, health.BreakerChecker("classifier", func() map[string]resilience.State {
			return map[string]resilience.State{a.breaker.Name(): a.breaker.State()}
		}))
	}
	for kind, p := range map[string]any{"llm": a.providers.LLM, "stt": a.providers.STT, "tts": a.providers.TTS} {
		if bs, ok := p.(breakerStates); ok {
			checks = append(checks, health.BreakerChecker(kind, bs.States))
		}
	}
	if a.loop != nil {
		checks = append(checks, health.FlagChecker("wake_loop", a.loop.Running).Optional())
	}
	return health.New(checks...)
}

func (a *App) initWatcher() error {
	if a.configPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.configPath, a.applyReload)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// ReloadConfig re-reads the watched config file immediately. It is a no-op
// when the app was built without [WithConfigWatch].
func (a *App) ReloadConfig() error {
	if a.watcher == nil {
		return nil
	}
	return a.watcher.Reload()
}

// applyReload applies the hot-reloadable parts of a changed config.
func (a *App) applyReload(_, new *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.WakePhrasesChanged && a.loop != nil {
		a.loop.SetMatcher(newMatcher(new.Assistant))
		slog.Info("wake phrases reloaded", "phrases", d.NewWakePhrases)
	}
	if d.ExitPhrasesChanged {
		a.orch.SetExitPhrases(d.NewExitPhrases)
		slog.Info("exit phrases reloaded", "phrases", d.NewExitPhrases)
	}
	if d.AcknowledgementChanged && a.loop != nil {
		a.loop.SetAcknowledgement(d.NewAcknowledgement)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

func newMatcher(ac config.AssistantConfig) *wakeloop.Matcher {
	var mopts []wakeloop.MatcherOption
	if ac.PhoneticWake {
		mopts = append(mopts, wakeloop.WithPhonetic(ac.PhoneticThreshold))
	}
	return wakeloop.NewMatcher(ac.WakePhrases, mopts...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the command orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Gate returns the voice authentication gate.
func (a *App) Gate() *auth.Gate { return a.gate }

// Timers returns the timer service.
func (a *App) Timers() *timer.Service { return a.timers }

// Loop returns the wake loop, or nil when no speech input is configured.
func (a *App) Loop() *wakeloop.Loop { return a.loop }

// Hub returns the event hub.
func (a *App) Hub() *server.Hub { return a.hub }

// Server returns the HTTP API, or nil when server.listen_addr is empty.
func (a *App) Server() *server.Server { return a.server }

// ─── Operations ──────────────────────────────────────────────────────────────

// Ask resolves a single text command.
func (a *App) Ask(ctx context.Context, text string) orchestrator.Response {
	return a.orch.HandleUtterance(ctx, text)
}

// Enroll records a new voice profile using the configured passphrase.
func (a *App) Enroll(ctx context.Context) error {
	return a.gate.Enroll(ctx, a.cfg.Security.Passphrase)
}

// MCPServer exposes the orchestrator, timers and capability list as MCP
// tools.
func (a *App) MCPServer(version string) *mcp.Server {
	return mcpserver.New(a.orch, a.timers, a.registry, mcpserver.Config{
		Name:    "jarvis",
		Version: version,
	})
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the wake loop and the HTTP API and blocks until ctx is cancelled,
// the loop handles an exit phrase, or a component fails. An exit phrase stops
// the HTTP API as well.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil && a.server == nil {
		return errors.New("app: nothing to run: configure speech input or server.listen_addr")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if a.loop != nil {
		g.Go(func() error {
			defer cancel()
			return a.loop.Run(gctx)
		})
	}
	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(gctx)
		})
	}
	slog.Info("jarvis running",
		"wake_loop", a.loop != nil,
		"listen_addr", a.cfg.Server.ListenAddr,
	)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New has opened so far.
func (a *App) closeAll() {
	_ = a.Shutdown(context.Background())
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type speechEvent struct {
	Text string `json:"text"`
}

type stateEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// offlineListener stands in for a missing speech input so the gate reports
// speech as unavailable.
type offlineListener struct{}

func (offlineListener) Listen(context.Context, time.Duration) speech.Result {
	return speech.Result{Status: speech.StatusServiceError, Err: errors.New("no speech input configured")}
}
