// Package orchestrator resolves recognised utterances into actions.
//
// [Orchestrator.HandleUtterance] runs a fixed pipeline and stops at the first
// stage that produces an answer:
//
//  1. exit phrase
//  2. keyword fast path
//  3. intent cache
//  4. classifier (result cached on success, {general, chat} on failure)
//  5. authentication gate for sensitive system_control actions
//  6. capability dispatch, or the conversational fallback on a miss
//
// No error ever escapes HandleUtterance. Calls are serialised, so one
// Orchestrator can be shared by the wake loop, the HTTP API and the MCP
// server.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/capability"
	"github.com/MrWong99/jarvis/internal/intent"
	"github.com/MrWong99/jarvis/internal/observe"
)

// Fixed replies.
const (
	ReplyEmpty         = "I didn't hear a command."
	ReplyGoodbye       = "Goodbye!"
	ReplyDenied        = "Permission denied. Voice authentication failed."
	ReplyNotEnrolled   = "Permission denied: no voice profile enrolled."
	ReplyAuthNoSpeech  = "Permission denied. Speech recognition service is unavailable."
	ReplyHandlerFailed = "Sorry, I encountered an error while doing that."
	apologyPrefix      = "Sorry, "
)

// DefaultExitPhrases end the session.
var DefaultExitPhrases = []string{"goodbye", "exit", "quit", "stop listening", "shut down"}

// DefaultClassifierTimeout bounds one classifier call.
const DefaultClassifierTimeout = 5 * time.Second

// Source names the pipeline stage that resolved an utterance.
type Source string

const (
	SourceNone       Source = "none"
	SourceExit       Source = "exit"
	SourceFastPath   Source = "fast_path"
	SourceCache      Source = "cache"
	SourceClassifier Source = "classifier"
	// SourceFallback marks a classifier failure; the utterance went to the
	// conversational fallback.
	SourceFallback Source = "fallback"
)

// Response is the outcome of one utterance.
type Response struct {
	// Text is spoken back to the user.
	Text string `json:"response"`
	// Source is the stage that resolved the intent.
	Source Source `json:"source"`
	// Record is the resolved intent. Zero for empty input and exit phrases.
	Record intent.Record `json:"intent"`
	// Success reports whether the request was carried out.
	Success bool `json:"success"`
	// Exit is set when the utterance ended the session.
	Exit bool `json:"exit"`
}

// Dispatcher runs the handler bound to a record.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec intent.Record, raw string) (capability.Result, bool)
}

// Gate is the authentication gate consulted for sensitive actions.
type Gate interface {
	IsAuthenticated() bool
	Authenticate(ctx context.Context) error
}

// Fallback answers utterances no capability handles.
type Fallback interface {
	Chat(ctx context.Context, text string) string
}

// FallbackFunc adapts a function to [Fallback].
type FallbackFunc func(ctx context.Context, text string) string

// Chat calls f(ctx, text).
func (f FallbackFunc) Chat(ctx context.Context, text string) string { return f(ctx, text) }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFastPath enables the keyword fast path.
func WithFastPath(fp *intent.FastPath) Option { return func(o *Orchestrator) { o.fastPath = fp } }

// WithCache enables the intent cache.
func WithCache(c *intent.Cache) Option { return func(o *Orchestrator) { o.cache = c } }

// WithClassifier sets the classifier and its per-call timeout. A
// non-positive timeout selects [DefaultClassifierTimeout].
func WithClassifier(c intent.Classifier, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.classifier = c
		if timeout > 0 {
			o.classifierTimeout = timeout
		}
	}
}

// WithGate guards sensitive system_control actions when required is true.
func WithGate(g Gate, required bool) Option {
	return func(o *Orchestrator) {
		o.gate = g
		o.requireAuth = required
	}
}

// WithFallback sets the conversational fallback.
func WithFallback(f Fallback) Option { return func(o *Orchestrator) { o.fallback = f } }

// WithExitPhrases replaces [DefaultExitPhrases].
func WithExitPhrases(phrases ...string) Option {
	return func(o *Orchestrator) { o.SetExitPhrases(phrases) }
}

// WithMetrics records command metrics.
func WithMetrics(m *observe.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// Orchestrator is the command resolution pipeline.
type Orchestrator struct {
	dispatcher        Dispatcher
	fastPath          *intent.FastPath
	cache             *intent.Cache
	classifier        intent.Classifier
	classifierTimeout time.Duration
	gate              Gate
	requireAuth       bool
	fallback          Fallback
	metrics           *observe.Metrics

	exitPhrases atomic.Pointer[[]string]

	// mu serialises HandleUtterance.
	mu sync.Mutex
}

// New creates an orchestrator dispatching to d.
func New(d Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher:        d,
		classifierTimeout: DefaultClassifierTimeout,
		fallback:          FallbackFunc(func(context.Context, string) string { return "I'm not sure how to help with that." }),
	}
	o.SetExitPhrases(DefaultExitPhrases)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetExitPhrases replaces the exit phrases. Safe to call concurrently with
// HandleUtterance.
func (o *Orchestrator) SetExitPhrases(phrases []string) {
	norm := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := intent.Normalize(p); n != "" {
			norm = append(norm, n)
		}
	}
	o.exitPhrases.Store(&norm)
}

// ExitPhrases returns the normalised exit phrases.
func (o *Orchestrator) ExitPhrases() []string {
	return append([]string(nil), *o.exitPhrases.Load()...)
}

// IsExit reports whether text contains an exit phrase.
func (o *Orchestrator) IsExit(text string) bool {
	return intent.ContainsAny(intent.Normalize(text), *o.exitPhrases.Load()...)
}

// HandleUtterance resolves text and carries out the resulting action.
func (o *Orchestrator) HandleUtterance(ctx context.Context, text string) Response {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "orchestrator.handle")
	defer span.End()

	start := time.Now()
	resp := o.handle(ctx, intent.NewUtterance(text))

	span.SetAttributes(
		attribute.String("source", string(resp.Source)),
		attribute.String("intent", resp.Record.String()),
		attribute.Bool("success", resp.Success),
	)
	if o.metrics != nil {
		o.metrics.CommandDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("source", string(resp.Source))))
		o.metrics.RecordCommand(ctx, string(resp.Source), resp.Record.Intent, resp.Success)
	}
	observe.Logger(ctx).Info("command handled",
		"text", text,
		"source", resp.Source,
		"intent", resp.Record.String(),
		"success", resp.Success,
		"duration", time.Since(start),
	)
	return resp
}

func (o *Orchestrator) handle(ctx context.Context, u intent.Utterance) Response {
	if u.Normalized == "" {
		return Response{Text: ReplyEmpty, Source: SourceNone}
	}
	if intent.ContainsAny(u.Normalized, *o.exitPhrases.Load()...) {
		return Response{Text: ReplyGoodbye, Source: SourceExit, Success: true, Exit: true}
	}

	rec, source := o.resolve(ctx, u)

	if o.requiresAuth(rec) {
		if text, ok := o.authorize(ctx); !ok {
			return Response{Text: text, Source: source, Record: rec}
		}
	}

	text, success := o.dispatch(ctx, rec, u.Raw)
	return Response{Text: text, Source: source, Record: rec, Success: success}
}

// resolve runs the fast path, cache and classifier stages.
func (o *Orchestrator) resolve(ctx context.Context, u intent.Utterance) (intent.Record, Source) {
	if o.fastPath != nil {
		if rec, rule, ok := o.fastPath.Match(u.Normalized); ok {
			observe.Logger(ctx).Debug("fast path match", "rule", rule)
			return rec, SourceFastPath
		}
	}

	if o.cache != nil {
		rec, ok := o.cache.Get(u.Normalized)
		if o.metrics != nil {
			o.metrics.RecordCacheLookup(ctx, ok)
		}
		if ok {
			return rec, SourceCache
		}
	}

	if o.classifier == nil {
		return intent.Fallback(), SourceFallback
	}

	cctx, cancel := context.WithTimeout(ctx, o.classifierTimeout)
	defer cancel()
	cctx, span := observe.StartSpan(cctx, "orchestrator.classify", attribute.Int("text_len", len(u.Raw)))
	start := time.Now()
	rec, err := o.classifier.Classify(cctx, u.Raw)
	observe.EndSpan(span, err)
	if o.metrics != nil {
		outcome := observe.OutcomeOK
		if err != nil {
			outcome = observe.OutcomeError
		}
		o.metrics.RecordProviderCall(ctx, "llm", "classify", outcome, start)
	}
	if err != nil {
		observe.Logger(ctx).Warn("classifier failed, using conversational fallback", "err", err)
		return intent.Fallback(), SourceFallback
	}
	if o.cache != nil {
		o.cache.Put(ctx, u.Normalized, rec)
	}
	return rec, SourceClassifier
}

func (o *Orchestrator) requiresAuth(rec intent.Record) bool {
	return o.requireAuth && o.gate != nil && rec.NeedsPermission && rec.Intent == intent.IntentSystemControl
}

// authorize unlocks the gate if needed. It returns the denial reply when
// access is refused.
func (o *Orchestrator) authorize(ctx context.Context) (string, bool) {
	if o.gate.IsAuthenticated() {
		return "", true
	}
	err := o.gate.Authenticate(ctx)
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, auth.ErrNotEnrolled):
		return ReplyNotEnrolled, false
	case errors.Is(err, auth.ErrSpeechUnavailable):
		return ReplyAuthNoSpeech, false
	default:
		observe.Logger(ctx).Info("authentication refused", "err", err)
		return ReplyDenied, false
	}
}

// dispatch runs the bound handler or the conversational fallback.
func (o *Orchestrator) dispatch(ctx context.Context, rec intent.Record, raw string) (string, bool) {
	start := time.Now()
	res, found := o.dispatcher.Dispatch(ctx, rec, raw)
	if !found {
		return o.fallback.Chat(ctx, raw), true
	}
	if o.metrics != nil {
		o.metrics.HandlerDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("handler", rec.String())))
	}

	switch {
	case res.Err != nil:
		observe.Logger(ctx).Error("capability handler failed", "handler", rec.String(), "err", res.Err)
		return ReplyHandlerFailed, false
	case !res.Success:
		return apologise(res.Message), false
	default:
		return res.Message, true
	}
}

// apologise prefixes a handler's failure message with an apology.
func apologise(msg string) string {
	if msg == "" {
		return ReplyHandlerFailed
	}
	r, size := utf8.DecodeRuneInString(msg)
	if r != 'I' || (len(msg) > size && msg[size] != ' ' && msg[size] != '\'') {
		msg = string(unicode.ToLower(r)) + msg[size:]
	}
	return apologyPrefix + msg
}
