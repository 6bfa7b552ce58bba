package llm

import "strings"

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the backend can constrain output to a JSON object.
	SupportsJSONMode bool
}

// KnownCapabilities returns ModelCapabilities for well-known model families.
// Unknown models receive conservative defaults without JSON mode.
func KnownCapabilities(model string) ModelCapabilities {
	caps := ModelCapabilities{
		ContextWindow:   8_192,
		MaxOutputTokens: 2_048,
	}

	lower := strings.ToLower(model)
	switch {
	// ── OpenAI ───────────────────────────────────────────────────────────────
	case strings.HasPrefix(lower, "gpt-4o"), strings.HasPrefix(lower, "gpt-4.1"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 16_384
		caps.SupportsJSONMode = true
	case strings.HasPrefix(lower, "gpt-4-turbo"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 4_096
		caps.SupportsJSONMode = true
	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
		caps.MaxOutputTokens = 4_096
		caps.SupportsJSONMode = true

	// ── Local models served by Ollama / llama.cpp ────────────────────────────
	case strings.HasPrefix(lower, "llama3"), strings.HasPrefix(lower, "qwen"),
		strings.HasPrefix(lower, "mistral"), strings.HasPrefix(lower, "phi"):
		caps.ContextWindow = 8_192
		caps.MaxOutputTokens = 2_048
	}
	return caps
}
