package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	llmmock "github.com/MrWong99/jarvis/pkg/provider/llm/mock"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	sttmock "github.com/MrWong99/jarvis/pkg/provider/stt/mock"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	ttsmock "github.com/MrWong99/jarvis/pkg/provider/tts/mock"
)

func TestLLMFallback(t *testing.T) {
	t.Parallel()

	local := &llmmock.Provider{
		CompleteErr:       errBackend,
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8192, SupportsJSONMode: true},
	}
	cloud := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"intent":"general"}`}}

	f := NewLLMFallback(local, "ollama", FallbackConfig{})
	f.AddFallback("openai", cloud)

	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "what's up"}}, JSONMode: true}
	resp, err := f.Complete(context.Background(), req)
	if err != nil || resp.Content != `{"intent":"general"}` {
		t.Fatalf("Complete = %+v, %v", resp, err)
	}
	if len(cloud.CompleteCalls) != 1 || !cloud.CompleteCalls[0].Req.JSONMode {
		t.Errorf("fallback calls = %+v, want the original request", cloud.CompleteCalls)
	}
	if caps := f.Capabilities(); caps.ContextWindow != 8192 {
		t.Errorf("Capabilities() = %+v, want the primary's", caps)
	}
}

func TestSTTFallback_NoSpeechIsHealthy(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{} // no scripted results: every call is ErrNoSpeech
	secondary := &sttmock.Provider{Results: []sttmock.Result{{Text: "jarvis"}}}
	f := NewSTTFallback(primary, "whisper", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
	f.AddFallback("openai", secondary)

	clip := audio.Clip{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	for range 3 {
		if _, err := f.Transcribe(context.Background(), clip, stt.Config{}); !errors.Is(err, stt.ErrNoSpeech) {
			t.Fatalf("err = %v, want ErrNoSpeech", err)
		}
	}
	if secondary.CallCount() != 0 {
		t.Errorf("silence failed over %d times", secondary.CallCount())
	}
	if f.States()["whisper"] != StateClosed {
		t.Error("silence tripped the breaker")
	}
}

func TestSTTFallback_Failover(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Results: []sttmock.Result{{Err: errBackend}}}
	secondary := &sttmock.Provider{Results: []sttmock.Result{{Text: "set a timer"}}}
	f := NewSTTFallback(primary, "whisper", FallbackConfig{})
	f.AddFallback("openai", secondary)

	tr, err := f.Transcribe(context.Background(), audio.Clip{SampleRate: 16000, Channels: 1}, stt.Config{Language: "en"})
	if err != nil || tr.Text != "set a timer" {
		t.Fatalf("Transcribe = %+v, %v", tr, err)
	}
	if secondary.Calls[0].Cfg.Language != "en" {
		t.Errorf("config not forwarded: %+v", secondary.Calls[0].Cfg)
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()

	clip := audio.Clip{Data: []byte{1, 2}, SampleRate: 22050, Channels: 1}
	primary := &ttsmock.Provider{Err: errBackend}
	secondary := &ttsmock.Provider{Clip: clip}
	f := NewTTSFallback(primary, "coqui", FallbackConfig{})
	f.AddFallback("openai", secondary)

	got, err := f.Synthesize(context.Background(), "Timer set.", tts.Voice{ID: "p225"})
	if err != nil || got.SampleRate != 22050 {
		t.Fatalf("Synthesize = %+v, %v", got, err)
	}
	if secondary.Calls[0].Voice.ID != "p225" || secondary.Texts()[0] != "Timer set." {
		t.Errorf("calls = %+v", secondary.Calls)
	}

	secondary.Err = errBackend
	if _, err := f.Synthesize(context.Background(), "again", tts.Voice{}); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}
