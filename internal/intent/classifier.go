package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// ErrMalformedResponse is returned when the model's reply contains no JSON
// object.
var ErrMalformedResponse = errors.New("intent: classifier returned no JSON object")

// classifierPrompt lists the categories the built-in capabilities handle.
const classifierPrompt = `Analyze the user's command and extract the intent.

Return ONLY a JSON object with:
- "intent": category (system_control, file_operation, search, web_browsing, productivity, weather, calculation, media_control, timer, general)
- "action": specific action
- "parameters": any relevant parameters
- "needs_permission": true/false for sensitive operations

Intent categories:
- system_control: open/close apps, lock screen (needs_permission true for close_app and lock_screen)
- file_operation: open file explorer, folders (downloads, documents, pictures, desktop, music, videos)
- weather: current weather, temperature queries
- calculation: math operations ("calculate"), unit conversions ("convert_units" with value, from, to)
- media_control: play_pause, next_track, previous_track, volume_up, volume_down, mute
- timer: set_timer (duration), list_timers, cancel_timer (optional id)
- search: search_web, search_youtube, open_website
- web_browsing: search web, open website
- productivity: get_time, get_date
- general: conversation, questions, help

Examples:
{"intent": "file_operation", "action": "open_explorer", "parameters": {"location": "downloads"}, "needs_permission": false}
{"intent": "system_control", "action": "open_app", "parameters": {"app": "firefox"}, "needs_permission": false}
{"intent": "system_control", "action": "lock_screen", "parameters": {}, "needs_permission": true}
{"intent": "weather", "action": "get_weather", "parameters": {"location": "New York"}, "needs_permission": false}
{"intent": "calculation", "action": "calculate", "parameters": {"expression": "25 * 47"}, "needs_permission": false}
{"intent": "calculation", "action": "convert_units", "parameters": {"value": 5, "from": "miles", "to": "km"}, "needs_permission": false}
{"intent": "timer", "action": "set_timer", "parameters": {"duration": "5 minutes"}, "needs_permission": false}
{"intent": "media_control", "action": "play_pause", "parameters": {}, "needs_permission": false}
{"intent": "search", "action": "search_web", "parameters": {"query": "Go tutorials"}, "needs_permission": false}
{"intent": "web_browsing", "action": "search_web", "parameters": {"query": "AI news", "engine": "google"}, "needs_permission": false}`

// ClassifierOption configures an [LLMClassifier].
type ClassifierOption func(*LLMClassifier)

// WithBreaker guards every model call with cb.
func WithBreaker(cb *resilience.CircuitBreaker) ClassifierOption {
	return func(c *LLMClassifier) { c.breaker = cb }
}

// WithMaxTokens caps the reply length. Default: 150.
func WithMaxTokens(n int) ClassifierOption {
	return func(c *LLMClassifier) { c.maxTokens = n }
}

// LLMClassifier implements [Classifier] by prompting a language model for a
// JSON intent description.
type LLMClassifier struct {
	provider  llm.Provider
	breaker   *resilience.CircuitBreaker
	maxTokens int
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier returns a classifier backed by p.
func NewLLMClassifier(p llm.Provider, opts ...ClassifierOption) *LLMClassifier {
	c := &LLMClassifier{provider: p, maxTokens: 150}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify implements [Classifier]. The model is asked for JSON output at
// temperature 0.1; missing intent or action fields default to {general, chat}.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Record, error) {
	req := llm.CompletionRequest{
		SystemPrompt: classifierPrompt,
		Messages:     []llm.Message{{Role: "user", Content: fmt.Sprintf("Command: %q", text)}},
		Temperature:  0.1,
		MaxTokens:    c.maxTokens,
		JSONMode:     true,
	}

	var resp *llm.CompletionResponse
	call := func() error {
		var err error
		resp, err = c.provider.Complete(ctx, req)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return Record{}, fmt.Errorf("intent: classify: %w", err)
	}
	if resp == nil {
		return Record{}, ErrMalformedResponse
	}
	return ParseRecord(resp.Content)
}

// ParseRecord extracts the first JSON object from content and decodes it into
// a Record. Code fences and surrounding prose are ignored.
func ParseRecord(content string) (Record, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Record{}, ErrMalformedResponse
	}

	var raw struct {
		Intent          string         `json:"intent"`
		Action          string         `json:"action"`
		Parameters      map[string]any `json:"parameters"`
		NeedsPermission bool           `json:"needs_permission"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	rec := Record{
		Intent:          strings.ToLower(strings.TrimSpace(raw.Intent)),
		Action:          strings.ToLower(strings.TrimSpace(raw.Action)),
		Parameters:      raw.Parameters,
		NeedsPermission: raw.NeedsPermission,
	}
	if rec.Intent == "" {
		rec.Intent = IntentGeneral
	}
	if rec.Action == "" {
		rec.Action = ActionChat
	}
	if rec.Parameters == nil {
		rec.Parameters = map[string]any{}
	}
	return rec, nil
}
