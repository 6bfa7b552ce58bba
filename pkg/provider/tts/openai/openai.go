// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Audio is requested as raw PCM (24 kHz, 16-bit, mono), so no container
// parsing is needed.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	pcmSampleRate = 24000
	defaultVoice  = "alloy"
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the speech model (default "tts-1").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL targets an OpenAI-compatible speech endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithBaseURL(url)) }
}

// Provider implements tts.Provider using the OpenAI audio speech endpoint.
type Provider struct {
	client  oai.Client
	model   string
	reqOpts []option.RequestOption
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{
		model:   string(oai.SpeechModelTTS1),
		reqOpts: []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(p.reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, nil
	}

	resp, err := p.client.Audio.Speech.New(ctx, p.buildParams(text, voice))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return audio.Clip{Data: pcm, SampleRate: pcmSampleRate, Channels: 1}, nil
}

func (p *Provider) buildParams(text string, voice tts.Voice) oai.AudioSpeechNewParams {
	id := voice.ID
	if id == "" {
		id = defaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}
	return params
}
