// Package intent resolves a recognised utterance into a structured [Record].
//
// Resolution happens in three tiers that the orchestrator consults in order:
//
//  1. [FastPath]: an ordered list of deterministic keyword rules that resolve
//     common commands without any I/O.
//  2. [Cache]: a bounded map from normalised utterance text to a previously
//     classified Record.
//  3. A [Classifier], typically [LLMClassifier], which asks a language model
//     to categorise the utterance.
//
// Records are values. Every tier hands out a fresh copy of the parameter map
// so a caller can never mutate a cached or rule-owned record.
package intent

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Intent categories understood by the built-in capabilities.
const (
	IntentGeneral       = "general"
	IntentSystemControl = "system_control"
	IntentFileOperation = "file_operation"
	IntentSearch        = "search"
	IntentWebBrowsing   = "web_browsing"
	IntentProductivity  = "productivity"
	IntentWeather       = "weather"
	IntentCalculation   = "calculation"
	IntentMediaControl  = "media_control"
	IntentTimer         = "timer"
)

// ActionChat is the action paired with [IntentGeneral] for free conversation.
const ActionChat = "chat"

// Record is the structured interpretation of one utterance.
type Record struct {
	Intent          string         `json:"intent"`
	Action          string         `json:"action"`
	Parameters      map[string]any `json:"parameters"`
	NeedsPermission bool           `json:"needs_permission"`
}

// Fallback returns the record used whenever no structured intent could be
// resolved: {general, chat}.
func Fallback() Record {
	return Record{Intent: IntentGeneral, Action: ActionChat, Parameters: map[string]any{}}
}

// Clone returns a copy of r whose Parameters map is not shared with r.
// Nested values are copied shallowly.
func (r Record) Clone() Record {
	out := r
	if r.Parameters != nil {
		out.Parameters = maps.Clone(r.Parameters)
	} else {
		out.Parameters = map[string]any{}
	}
	return out
}

// IsFallback reports whether r is the conversational {general, chat} record.
func (r Record) IsFallback() bool {
	return r.Intent == IntentGeneral && r.Action == ActionChat
}

// String returns "intent/action".
func (r Record) String() string {
	return r.Intent + "/" + r.Action
}

// Param returns the named parameter rendered as a trimmed string. Numbers are
// formatted without trailing zeros. Missing or nil parameters return "".
func (r Record) Param(name string) string {
	return ParamString(r.Parameters, name)
}

// ParamString renders params[name] as a trimmed string. See [Record.Param].
func ParamString(params map[string]any, name string) string {
	v, ok := params[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Classifier turns free text into a Record. Implementations may perform
// network I/O and must honour ctx cancellation.
type Classifier interface {
	Classify(ctx context.Context, text string) (Record, error)
}

// ClassifierFunc adapts a plain function to [Classifier].
type ClassifierFunc func(ctx context.Context, text string) (Record, error)

// Classify calls f(ctx, text).
func (f ClassifierFunc) Classify(ctx context.Context, text string) (Record, error) {
	return f(ctx, text)
}

// Utterance is one recognised speech segment. It is never mutated after
// [NewUtterance] returns.
type Utterance struct {
	Raw        string
	Normalized string
	At         time.Time
}

// NewUtterance records raw with its normalised form and the current time.
func NewUtterance(raw string) Utterance {
	return Utterance{Raw: raw, Normalized: Normalize(raw), At: time.Now()}
}
