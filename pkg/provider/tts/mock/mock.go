// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio clips to consumers and to verify which
// texts and voices were passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{Clip: audio.Clip{Data: []byte{0, 0}, SampleRate: 16000, Channels: 1}}
//	clip, _ := p.Synthesize(ctx, "Yes, I'm listening.", tts.Voice{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the Voice passed to Synthesize.
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by every successful Synthesize call.
	Clip audio.Clip

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns the configured clip.
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return audio.Clip{}, p.Err
	}
	return p.Clip, nil
}

// Texts returns the text of every recorded call. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
