// Package server exposes the assistant over HTTP.
//
// Routes:
//
//	POST   /api/command, /command  run one text command through the orchestrator
//	GET    /status                 assistant status
//	GET    /api/timers             list active timers
//	POST   /api/timers             start a timer
//	DELETE /api/timers             cancel the most recent timer
//	DELETE /api/timers/{id}        cancel one timer
//	GET    /api/auth               voice authentication state
//	POST   /api/auth/revoke        lock the session
//	GET    /ws/events              websocket event stream
//	GET    /healthz, /readyz       probes
//	GET    /metrics                Prometheus scrape endpoint
//
// Command and timer creation requests are rate limited per client address.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/intent"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/internal/timer"
	"github.com/MrWong99/jarvis/internal/wakeloop"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// ── Dependencies ─────────────────────────────────────────────────────────────

// Commander resolves a text command.
type Commander interface {
	HandleUtterance(ctx context.Context, text string) orchestrator.Response
}

// Timers is the timer service surface used by the API.
type Timers interface {
	Set(d time.Duration, label string) (timer.Entry, error)
	List() []timer.Status
	Cancel(id uint64) (timer.Entry, error)
	CancelLatest() (timer.Entry, error)
}

// AuthState is the voice authentication surface used by the API.
type AuthState interface {
	State() auth.State
	IsEnrolled() bool
	IsAuthenticated() bool
	Revoke()
}

// LoopState reports the wake loop's progress.
type LoopState interface {
	Running() bool
	State() wakeloop.State
}

// CacheStats reports intent cache statistics.
type CacheStats interface {
	Stats() intent.CacheStats
}

// Option configures a Server.
type Option func(*Server)

// WithTimers enables the /api/timers routes.
func WithTimers(t Timers) Option { return func(s *Server) { s.timers = t } }

// WithAuth enables the /api/auth routes.
func WithAuth(a AuthState) Option { return func(s *Server) { s.auth = a } }

// WithLoop reports the wake loop state in /status.
func WithLoop(l LoopState) Option { return func(s *Server) { s.loop = l } }

// WithCache reports intent cache statistics in /status.
func WithCache(c CacheStats) Option { return func(s *Server) { s.cache = c } }

// WithSpeaker speaks command replies when server.speak_responses is set.
func WithSpeaker(sp speech.Speaker) Option { return func(s *Server) { s.speaker = sp } }

// WithHealth serves the given readiness checks on /readyz.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithHub publishes events on h instead of a private hub.
func WithHub(h *Hub) Option { return func(s *Server) { s.hub = h } }

// WithMetrics records request metrics on m. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// ── Server ───────────────────────────────────────────────────────────────────

// Server is the HTTP API. Create one with [New] and start it with [Server.Run].
type Server struct {
	cfg     config.ServerConfig
	cmd     Commander
	timers  Timers
	auth    AuthState
	loop    LoopState
	cache   CacheStats
	speaker speech.Speaker
	health  *health.Handler
	hub     *Hub
	metrics *observe.Metrics
	limiter *rateLimiter

	handler http.Handler
}

// New builds the server and its route table.
func New(cmd Commander, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{cfg: cfg, cmd: cmd}
	for _, o := range opts {
		o(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/command", s.limit(s.handleCommand))
	mux.Handle("POST /command", s.limit(s.handleCommand))
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.timers != nil {
		mux.HandleFunc("GET /api/timers", s.handleListTimers)
		mux.Handle("POST /api/timers", s.limit(s.handleSetTimer))
		mux.HandleFunc("DELETE /api/timers", s.handleCancelLatest)
		mux.HandleFunc("DELETE /api/timers/{id}", s.handleCancelTimer)
	}
	if s.auth != nil {
		mux.HandleFunc("GET /api/auth", s.handleAuth)
		mux.HandleFunc("POST /api/auth/revoke", s.handleRevoke)
	}
	mux.HandleFunc("GET /ws/events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	var h http.Handler = mux
	h = observe.Middleware(s.metrics)(h)
	if len(cfg.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Traceparent"},
			ExposedHeaders:   []string{"X-Correlation-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		})(h)
	}
	s.handler = h
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the event hub fed to /ws/events subscribers.
func (s *Server) Hub() *Hub { return s.hub }

// Run listens on cfg.ListenAddr until ctx is cancelled, then shuts down
// gracefully. Request contexts derive from ctx so open event streams end too.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLS != nil)
		if tls := s.cfg.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) limit(fn http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return fn
	}
	return s.limiter.middleware(fn)
}

// ── Commands ─────────────────────────────────────────────────────────────────

type commandRequest struct {
	Command string `json:"command"`
}

type commandEvent struct {
	Command  string                `json:"command"`
	Response orchestrator.Response `json:"response"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.cmd.HandleUtterance(r.Context(), req.Command)
	s.hub.Publish(EventCommand, commandEvent{Command: req.Command, Response: resp})

	if s.cfg.SpeakResponses && s.speaker != nil && resp.Text != "" {
		go s.speaker.Speak(context.WithoutCancel(r.Context()), resp.Text)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Status ───────────────────────────────────────────────────────────────────

type statusResponse struct {
	Initialized   bool               `json:"initialized"`
	Running       bool               `json:"running"`
	State         string             `json:"state,omitempty"`
	Authenticated bool               `json:"authenticated"`
	Enrolled      bool               `json:"enrolled"`
	Cache         *intent.CacheStats `json:"cache,omitempty"`
	ActiveTimers  int                `json:"active_timers"`
	Subscribers   int                `json:"event_subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := statusResponse{Initialized: s.cmd != nil, Subscribers: s.hub.Subscribers()}
	if s.loop != nil {
		st.Running = s.loop.Running()
		st.State = s.loop.State().String()
	}
	if s.auth != nil {
		st.Enrolled = s.auth.IsEnrolled()
		st.Authenticated = s.auth.IsAuthenticated()
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		st.Cache = &stats
	}
	if s.timers != nil {
		st.ActiveTimers = len(s.timers.List())
	}
	writeJSON(w, http.StatusOK, st)
}

// ── Timers ───────────────────────────────────────────────────────────────────

type timerView struct {
	ID               uint64    `json:"id"`
	Label            string    `json:"label"`
	Remaining        string    `json:"remaining"`
	RemainingSeconds float64   `json:"remaining_seconds"`
	End              time.Time `json:"end,omitzero"`
}

type setTimerRequest struct {
	// Duration is either a Go duration ("90s") or natural language
	// ("5 minutes").
	Duration string `json:"duration"`
	Label    string `json:"label"`
}

type timerEvent struct {
	Action string    `json:"action"`
	Timer  timerView `json:"timer"`
}

// PublishTimer publishes a timer event. action is one of set, cancelled or
// finished.
func (h *Hub) PublishTimer(action string, e timer.Entry) {
	h.Publish(EventTimer, timerEvent{Action: action, Timer: entryView(e)})
}

func entryView(e timer.Entry) timerView {
	return timerView{
		ID:               e.ID,
		Label:            e.Label,
		Remaining:        timer.FormatDuration(e.Duration),
		RemainingSeconds: e.Duration.Seconds(),
		End:              e.End,
	}
}

func (s *Server) handleListTimers(w http.ResponseWriter, _ *http.Request) {
	list := s.timers.List()
	out := make([]timerView, len(list))
	for i, st := range list {
		out[i] = timerView{
			ID:               st.ID,
			Label:            st.Label,
			Remaining:        timer.FormatDuration(st.Remaining),
			RemainingSeconds: st.Remaining.Seconds(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"timers": out})
}

func (s *Server) handleSetTimer(w http.ResponseWriter, r *http.Request) {
	var req setTimerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(req.Duration))
	if err != nil {
		var ok bool
		if d, ok = timer.ParseDuration(req.Duration); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot parse duration %q", req.Duration))
			return
		}
	}

	e, err := s.timers.Set(d, req.Label)
	switch {
	case errors.Is(err, timer.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.hub.PublishTimer("set", e)
	writeJSON(w, http.StatusCreated, entryView(e))
}

func (s *Server) handleCancelTimer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timer id")
		return
	}
	s.cancelled(w)(s.timers.Cancel(id))
}

func (s *Server) handleCancelLatest(w http.ResponseWriter, _ *http.Request) {
	s.cancelled(w)(s.timers.CancelLatest())
}

func (s *Server) cancelled(w http.ResponseWriter) func(timer.Entry, error) {
	return func(e timer.Entry, err error) {
		if errors.Is(err, timer.ErrNotFound) || errors.Is(err, timer.ErrNoActiveTimers) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.hub.PublishTimer("cancelled", e)
		writeJSON(w, http.StatusOK, entryView(e))
	}
}

// ── Auth ─────────────────────────────────────────────────────────────────────

type authResponse struct {
	State         string `json:"state"`
	Enrolled      bool   `json:"enrolled"`
	Authenticated bool   `json:"authenticated"`
}

func (s *Server) authView() authResponse {
	return authResponse{
		State:         s.auth.State().String(),
		Enrolled:      s.auth.IsEnrolled(),
		Authenticated: s.auth.IsAuthenticated(),
	}
}

func (s *Server) handleAuth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.authView())
}

func (s *Server) handleRevoke(w http.ResponseWriter, _ *http.Request) {
	s.auth.Revoke()
	writeJSON(w, http.StatusOK, s.authView())
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
