// Package capability maps resolved intents to the handlers that carry them
// out.
//
// A [Registry] is a static table keyed by (intent, action). It is populated
// once at start-up, frozen, and then only read. Dispatch never panics and
// never returns an error to the caller: a missing entry is reported through
// the bool result and a panicking handler is converted into a failed
// [Result].
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/internal/intent"
)

// Request is the input to a [Handler].
type Request struct {
	// Params are the parameters resolved for the intent. Handlers own this
	// map and may modify it.
	Params map[string]any
	// Raw is the utterance as recognised.
	Raw string
}

// Param returns the named parameter rendered as a trimmed string.
func (r Request) Param(name string) string {
	return intent.ParamString(r.Params, name)
}

// Result is the outcome of a [Handler].
type Result struct {
	// Success reports whether the action was carried out.
	Success bool
	// Message is spoken back to the user.
	Message string
	// Err, if set, marks an internal failure; the orchestrator speaks a
	// generic apology instead of Message.
	Err error
}

// OK returns a successful Result.
func OK(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Fail returns an unsuccessful Result whose message is still spoken.
func Fail(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

// Handler performs one action.
type Handler func(ctx context.Context, req Request) Result

// Key identifies a handler.
type Key struct {
	Intent string
	Action string
}

func (k Key) String() string { return k.Intent + "/" + k.Action }

// Registry is the (intent, action) → [Handler] table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Key]Handler
	frozen   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Key]Handler)}
}

// Register binds h to (intentTag, action). Registering the same pair twice
// replaces the earlier handler. It panics after [Registry.Freeze] or when h
// is nil.
func (r *Registry) Register(intentTag, action string, h Handler) {
	if h == nil {
		panic("capability: nil handler for " + intentTag + "/" + action)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("capability: Register called after Freeze")
	}
	r.handlers[Key{intentTag, action}] = h
}

// Freeze makes the table read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the handler for (intentTag, action).
func (r *Registry) Lookup(intentTag, action string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[Key{intentTag, action}]
	return h, ok
}

// Keys returns every registered key, sorted.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if a.Intent != b.Intent {
			if a.Intent < b.Intent {
				return -1
			}
			return 1
		}
		switch {
		case a.Action < b.Action:
			return -1
		case a.Action > b.Action:
			return 1
		}
		return 0
	})
	return keys
}

// Dispatch runs the handler registered for rec. found is false when no
// handler is registered; the returned Result is then zero. A panicking
// handler yields a failed Result with Err set.
func (r *Registry) Dispatch(ctx context.Context, rec intent.Record, raw string) (res Result, found bool) {
	h, ok := r.Lookup(rec.Intent, rec.Action)
	if !ok {
		return Result{}, false
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("capability handler panicked", "intent", rec.Intent, "action", rec.Action, "panic", p)
			res = Result{Err: fmt.Errorf("capability: %s panicked: %v", rec, p)}
			found = true
		}
	}()
	return h(ctx, Request{Params: rec.Clone().Parameters, Raw: raw}), true
}
