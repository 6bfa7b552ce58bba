package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

var (
	_ llm.Provider = (*LLMFallback)(nil)
	_ stt.Provider = (*STTFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// ── LLM ─────────────────────────────────────────────────────────────────────

// LLMFallback is an [llm.Provider] backed by a [Chain] of language models.
type LLMFallback struct {
	*Chain[llm.Provider]
}

// NewLLMFallback starts a chain with primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{NewChain(primaryName, primary, cfg)}
}

// AddFallback appends a backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.Add(name, p) }

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.Chain, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the primary's capabilities. JSON mode requested on
// that basis still reaches a fallback, which is expected to follow the
// prompt.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.Primary().Capabilities()
}

// ── STT ─────────────────────────────────────────────────────────────────────

// STTFallback is an [stt.Provider] backed by a [Chain] of recognisers. A
// backend answering [stt.ErrNoSpeech] heard silence correctly: the result is
// returned as is and the breaker records a success.
type STTFallback struct {
	*Chain[stt.Provider]
}

// NewSTTFallback starts a chain with primary. A nil IsFailure in cfg is
// replaced with one that ignores [stt.ErrNoSpeech].
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool {
			return DefaultIsFailure(err) && !errors.Is(err, stt.ErrNoSpeech)
		}
	}
	return &STTFallback{NewChain(primaryName, primary, cfg)}
}

// AddFallback appends a backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.Add(name, p) }

func (f *STTFallback) Transcribe(ctx context.Context, clip audio.Clip, cfg stt.Config) (stt.Transcript, error) {
	return Call(ctx, f.Chain, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, clip, cfg)
	})
}

// ── TTS ─────────────────────────────────────────────────────────────────────

// TTSFallback is a [tts.Provider] backed by a [Chain] of synthesisers. The
// voice is passed through unchanged; a backend that does not know the ID
// uses its default voice.
type TTSFallback struct {
	*Chain[tts.Provider]
}

// NewTTSFallback starts a chain with primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{NewChain(primaryName, primary, cfg)}
}

// AddFallback appends a backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.Add(name, p) }

func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	return Call(ctx, f.Chain, func(ctx context.Context, p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}
