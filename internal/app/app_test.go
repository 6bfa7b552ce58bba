package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/internal/server"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/internal/speech/mock"
	"github.com/MrWong99/jarvis/internal/store/memory"
	"github.com/MrWong99/jarvis/internal/wakeloop"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	llmmock "github.com/MrWong99/jarvis/pkg/provider/llm/mock"
)

// testConfig returns a defaulted config that keeps everything in memory.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = ""
	cfg.Storage.Driver = config.StorageMemory
	cfg.Assistant.WakePhrases = []string{"jarvis"}
	return cfg
}

// classifyingLLM answers classifier requests with record and chat requests
// with reply.
func classifyingLLM(record, reply string) *llmmock.Provider {
	return &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if req.JSONMode {
				return &llm.CompletionResponse{Content: record}, nil
			}
			return &llm.CompletionResponse{Content: reply}, nil
		},
	}
}

// noopLauncher records nothing and starts nothing.
type noopLauncher struct{}

func (noopLauncher) Start(context.Context, string, ...string) error { return nil }
func (noopLauncher) Run(context.Context, string, ...string) error   { return nil }

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithSpeaker(&mock.Speaker{}),
		app.WithLauncher(noopLauncher{}),
	}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_TextOnly(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	if a.Loop() != nil {
		t.Error("wake loop built without speech input")
	}
	if a.Server() != nil {
		t.Error("server built without listen address")
	}

	resp := a.Ask(context.Background(), "what time is it")
	if resp.Source != orchestrator.SourceFastPath || !resp.Success {
		t.Errorf("Ask = %+v, want fast path success", resp)
	}

	// Without a classifier unmatched commands get the default reply.
	resp = a.Ask(context.Background(), "tell me a story")
	if resp.Source != orchestrator.SourceFallback {
		t.Errorf("source = %q, want %q", resp.Source, orchestrator.SourceFallback)
	}

	if err := a.Run(context.Background()); err == nil {
		t.Error("Run() with nothing to run should fail")
	}
}

func TestNew_UnknownStorageDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage.Driver = "floppy"
	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Fatal("New() should reject an unknown storage driver")
	}
}

func TestAsk_ClassifierAndChat(t *testing.T) {
	t.Parallel()

	p := classifyingLLM(`{"intent":"calculation","action":"calculate","parameters":{"expression":"25 * 47"}}`, "Certainly, sir.")
	a := newApp(t, testConfig(), &app.Providers{LLM: p})

	resp := a.Ask(context.Background(), "what is 25 times 47")
	if resp.Source != orchestrator.SourceClassifier || resp.Text != "The answer is 1175" {
		t.Errorf("Ask = %+v", resp)
	}

	// The second ask is answered from the cache without another LLM call.
	calls := p.CallCount()
	resp = a.Ask(context.Background(), "What is 25 times 47?")
	if resp.Source != orchestrator.SourceCache {
		t.Errorf("source = %q, want cache", resp.Source)
	}
	if p.CallCount() != calls {
		t.Errorf("LLM calls = %d, want %d", p.CallCount(), calls)
	}
}

func TestAsk_ChatFallback(t *testing.T) {
	t.Parallel()

	p := classifyingLLM(`{"intent":"general","action":"chat","parameters":{}}`, "Certainly, sir.")
	a := newApp(t, testConfig(), &app.Providers{LLM: p})

	resp := a.Ask(context.Background(), "how are you today")
	if resp.Text != "Certainly, sir." || !resp.Success {
		t.Errorf("Ask = %+v", resp)
	}
}

func TestCache_PersistsAcrossRestarts(t *testing.T) {
	t.Parallel()

	st := memory.New()
	cfg := testConfig()
	cfg.Intent.PersistCache = true
	p := classifyingLLM(`{"intent":"calculation","action":"calculate","parameters":{"expression":"25 * 47"}}`, "")

	first := newApp(t, cfg, &app.Providers{LLM: p}, app.WithStore(st))
	first.Ask(context.Background(), "what is 25 times 47")

	second := newApp(t, cfg, &app.Providers{LLM: p}, app.WithStore(st))
	calls := p.CallCount()
	resp := second.Ask(context.Background(), "what is 25 times 47")
	if resp.Source != orchestrator.SourceCache {
		t.Errorf("source = %q, want cache after restart", resp.Source)
	}
	if p.CallCount() != calls {
		t.Error("restored entry should not reach the classifier")
	}
}

func TestRun_WakeLoopSession(t *testing.T) {
	t.Parallel()

	l := &mock.Listener{Results: []speech.Result{
		mock.Text("hey jarvis"),
		mock.Text("what time is it"),
		mock.Text("jarvis"),
		mock.Text("goodbye"),
	}}
	sp := &mock.Speaker{}
	a := newApp(t, testConfig(), nil, app.WithListener(l), app.WithSpeaker(sp))
	if a.Loop() == nil {
		t.Fatal("wake loop not built")
	}

	events, cancel := a.Hub().Subscribe()
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after the exit phrase")
	}

	spoken := sp.Texts()
	if len(spoken) != 4 || spoken[0] != wakeloop.DefaultAcknowledgement || spoken[3] != orchestrator.ReplyGoodbye {
		t.Errorf("spoken = %q", spoken)
	}
	if a.Loop().State() != wakeloop.StateShuttingDown {
		t.Errorf("state = %v", a.Loop().State())
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	if !slices.Contains(types, server.EventState) || !slices.Contains(types, server.EventSpeech) {
		t.Errorf("event types = %v, want state and speech events", types)
	}
}

func TestRun_ServerStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a := newApp(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}
}

func TestServer_CommandRoute(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	p := classifyingLLM(`{"intent":"timer","action":"set_timer","parameters":{"seconds":300}}`, "")
	a := newApp(t, cfg, &app.Providers{LLM: p}, app.WithMetrics(observe.DefaultMetrics()))
	if a.Server() == nil {
		t.Fatal("server not built")
	}
	ts := httptest.NewServer(a.Server().Handler())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/api/command", "application/json", strings.NewReader(`{"command":"start a countdown of five minutes"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var body orchestrator.Response
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Errorf("response = %+v", body)
	}
	if got := a.Timers().Len(); got != 1 {
		t.Errorf("active timers = %d, want 1", got)
	}

	res, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("/readyz status = %d", res.StatusCode)
	}
}

func TestTimers_AnnounceWhenFinished(t *testing.T) {
	t.Parallel()

	sp := &mock.Speaker{}
	a := newApp(t, testConfig(), nil, app.WithSpeaker(sp))
	events, cancel := a.Hub().Subscribe()
	defer cancel()

	if _, err := a.Timers().Set(20*time.Millisecond, "tea"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != server.EventTimer {
				continue
			}
			// The event is published before the announcement is spoken.
			waitFor(t, func() bool { return slices.Contains(sp.Texts(), "Timer finished: tea") })
			return
		case <-deadline:
			t.Fatal("no timer event")
		}
	}
}

func TestEnroll_WithoutSpeechInput(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	if err := a.Enroll(context.Background()); err == nil {
		t.Error("Enroll() without speech input should fail")
	}
	if a.Gate().IsEnrolled() {
		t.Error("gate reports enrolled")
	}
}

// exclusiveListener hears nothing and records whether two windows were ever
// open at once.
type exclusiveListener struct {
	mu      sync.Mutex
	active  int
	overlap bool
	windows int
}

func (l *exclusiveListener) Listen(context.Context, time.Duration) speech.Result {
	l.mu.Lock()
	l.active++
	l.windows++
	if l.active > 1 {
		l.overlap = true
	}
	l.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	return speech.Result{Status: speech.StatusNoSpeech}
}

func TestEnroll_SharesInputWithWakeLoop(t *testing.T) {
	t.Parallel()

	l := &exclusiveListener{}
	a := newApp(t, testConfig(), nil, app.WithListener(l))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	if err := a.Enroll(context.Background()); err == nil {
		t.Error("Enroll() succeeded without any speech")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.overlap {
		t.Error("enrollment recorded while the wake loop was listening")
	}
	if l.windows < 2 {
		t.Errorf("windows = %d, want both the loop and enrollment to listen", l.windows)
	}
}

func TestMCPServer(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	if a.MCPServer("test") == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestApp_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a, err := app.New(context.Background(), cfg, nil, app.WithSpeaker(&mock.Speaker{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
