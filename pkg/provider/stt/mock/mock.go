// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to feed a scripted sequence of transcription outcomes to the
// speech layer and to inspect which clips were submitted.
//
// Example:
//
//	p := &mock.Provider{Results: []mock.Result{
//	    {Text: "hey jarvis"},
//	    {Err: stt.ErrNoSpeech},
//	}}
//	tr, err := p.Transcribe(ctx, clip, stt.Config{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Result is one scripted outcome of Transcribe.
type Result struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Clip is the audio passed to Transcribe.
	Clip audio.Clip
	// Cfg is the Config passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order by successive calls. Once exhausted the
	// provider returns stt.ErrNoSpeech.
	Results []Result

	// Calls records every call to Transcribe.
	Calls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(_ context.Context, clip audio.Clip, cfg stt.Config) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Clip: clip, Cfg: cfg})
	if p.next >= len(p.Results) {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	r := p.Results[p.next]
	p.next++
	if r.Err != nil {
		return stt.Transcript{}, r.Err
	}
	return stt.Transcript{Text: r.Text, Duration: clip.Duration()}, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
