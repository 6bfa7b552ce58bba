// Package chat provides the conversational fallback used when a command does
// not resolve to a capability.
//
// [Assistant] keeps a short rolling history and never returns an error: every
// failure is turned into one of a fixed set of spoken apologies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// Degraded replies.
const (
	ReplyEmpty       = "I'm having trouble thinking right now. Please try again."
	ReplyUnreachable = "I cannot connect to my neural network. Please ensure Ollama is running."
	ReplyTimeout     = "My response is taking too long. Let me try that again."
	ReplyError       = "I encountered an error processing that request."
)

const systemPromptTemplate = `You are %s, a highly intelligent personal AI assistant.
You are helpful, concise, and proactive. You can control the computer, manage files,
search the web, and assist with various tasks. Keep responses brief and actionable.
When the user asks you to perform an action, respond with clear intent.`

// Option configures an Assistant.
type Option func(*Assistant)

// WithName sets the persona name used in the system prompt. Default: "JARVIS".
func WithName(name string) Option { return func(a *Assistant) { a.name = name } }

// WithHistorySize sets how many past messages are sent with each request.
// Default: 10.
func WithHistorySize(n int) Option { return func(a *Assistant) { a.historySize = n } }

// WithTimeout bounds a single completion. Default: 10s.
func WithTimeout(d time.Duration) Option { return func(a *Assistant) { a.timeout = d } }

// WithMetrics records completion latency.
func WithMetrics(m *observe.Metrics) Option { return func(a *Assistant) { a.metrics = m } }

// Assistant answers free-form questions through an LLM.
type Assistant struct {
	provider    llm.Provider
	name        string
	historySize int
	timeout     time.Duration
	metrics     *observe.Metrics

	mu      sync.Mutex
	history []llm.Message
}

// New creates an Assistant backed by p.
func New(p llm.Provider, opts ...Option) *Assistant {
	a := &Assistant{
		provider:    p,
		name:        "JARVIS",
		historySize: 10,
		timeout:     10 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Chat sends text with the recent history and returns the trimmed reply.
// Only successful exchanges are added to the history.
func (a *Assistant) Chat(ctx context.Context, text string) string {
	ctx, span := observe.StartSpan(ctx, "chat.complete")
	defer span.End()

	user := llm.Message{Role: "user", Content: text}
	a.mu.Lock()
	msgs := append(a.recentLocked(a.historySize-1), user)
	a.mu.Unlock()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(systemPromptTemplate, a.name),
		Messages:     msgs,
		Temperature:  0.3,
		MaxTokens:    100,
	})
	if a.metrics != nil {
		outcome := observe.OutcomeOK
		switch {
		case err != nil:
			outcome = observe.OutcomeError
		case resp == nil || strings.TrimSpace(resp.Content) == "":
			outcome = observe.OutcomeEmpty
		}
		a.metrics.RecordProviderCall(ctx, "llm", "chat", outcome, start)
	}
	if err != nil {
		observe.Logger(ctx).Warn("chat: completion failed", "err", err)
		return Degraded(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return ReplyEmpty
	}

	reply := strings.TrimSpace(resp.Content)
	a.mu.Lock()
	a.history = append(a.history, user, llm.Message{Role: "assistant", Content: reply})
	if keep := max(a.historySize, 0); len(a.history) > keep {
		a.history = append([]llm.Message(nil), a.history[len(a.history)-keep:]...)
	}
	a.mu.Unlock()
	return reply
}

// History returns a copy of the retained messages.
func (a *Assistant) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Message(nil), a.history...)
}

// Reset clears the history.
func (a *Assistant) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// recentLocked returns a copy of at most n trailing history messages.
func (a *Assistant) recentLocked(n int) []llm.Message {
	if n <= 0 {
		return nil
	}
	h := a.history
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return append(make([]llm.Message, 0, len(h)+1), h...)
}

// Degraded maps a completion error to the reply spoken instead.
func Degraded(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReplyTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReplyTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrAllFailed):
		return ReplyUnreachable
	default:
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return ReplyUnreachable
		}
		return ReplyError
	}
}
