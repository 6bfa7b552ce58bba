// Package openai provides an STT provider backed by the OpenAI transcription
// API (or any server exposing the same /audio/transcriptions endpoint).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// defaultSilenceRMS matches the whisper provider: quieter windows are not sent.
const defaultSilenceRMS = 300

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the transcription model (default "whisper-1").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL targets an OpenAI-compatible transcription endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithBaseURL(url)) }
}

// WithSilenceThreshold sets the RMS level below which a clip is treated as
// silence without contacting the API. Zero disables the check.
func WithSilenceThreshold(rms float64) Option {
	return func(p *Provider) { p.silenceRMS = rms }
}

// Provider implements stt.Provider using the OpenAI audio transcription API.
type Provider struct {
	client     oai.Client
	model      string
	silenceRMS float64
	reqOpts    []option.RequestOption
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	p := &Provider{
		model:      string(oai.AudioModelWhisper1),
		silenceRMS: defaultSilenceRMS,
		reqOpts:    []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(p.reqOpts...)
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, cfg stt.Config) (stt.Transcript, error) {
	if clip.Empty() {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	clip = audio.Convert(clip, audio.SpeechFormat)
	if p.silenceRMS > 0 && audio.RMS(clip.Data) < p.silenceRMS {
		return stt.Transcript{}, stt.ErrNoSpeech
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(audio.EncodeWAV(clip)), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if cfg.Language != "" {
		params.Language = oai.String(cfg.Language)
	}
	if cfg.Prompt != "" {
		params.Prompt = oai.String(cfg.Prompt)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	return stt.Transcript{Text: text, Duration: clip.Duration()}, nil
}
