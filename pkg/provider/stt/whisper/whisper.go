// Package whisper provides a whisper.cpp-backed STT provider.
//
// It talks to a running whisper-server binary, which exposes a REST API at
// POST /inference. Each captured window is wrapped in a WAV container and
// uploaded as multipart/form-data; the server answers with JSON containing the
// recognised text.
//
// Windows whose energy is below a silence threshold are rejected locally with
// [stt.ErrNoSpeech] so the wake loop does not hit the server for every quiet
// second of microphone input.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := p.Transcribe(ctx, clip, stt.Config{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which a window is considered silent. The maximum possible
	// value for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage = "en"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// nonSpeechMarkers are the placeholder strings whisper.cpp emits for windows
// that contain only noise.
var nonSpeechMarkers = []string{"[blank_audio]", "[silence]", "(silence)", "[ silence ]", "[music]", "[noise]"}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSilenceThreshold sets the RMS level below which a window is treated as
// silence without contacting the server. Zero disables the check.
func WithSilenceThreshold(rms float64) Option {
	return func(p *Provider) {
		p.silenceRMS = rms
	}
}

// WithHTTPClient overrides the HTTP client (default timeout 30 s).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	silenceRMS float64
	httpClient *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL (e.g.,
// "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		silenceRMS: defaultRMSThreshold,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The clip is converted to 16 kHz mono
// before upload.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, cfg stt.Config) (stt.Transcript, error) {
	if clip.Empty() {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	clip = audio.Convert(clip, audio.SpeechFormat)
	if p.silenceRMS > 0 && audio.RMS(clip.Data) < p.silenceRMS {
		return stt.Transcript{}, stt.ErrNoSpeech
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	text, err := p.infer(ctx, clip, lang, cfg.Prompt)
	if err != nil {
		return stt.Transcript{}, err
	}
	text = cleanText(text)
	if text == "" {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	return stt.Transcript{Text: text, Duration: clip.Duration()}, nil
}

// infer encodes clip as a WAV file and POSTs it to the whisper.cpp /inference
// endpoint as multipart/form-data.
func (p *Provider) infer(ctx context.Context, clip audio.Clip, lang, prompt string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(clip)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"language":        lang,
		"model":           p.model,
		"prompt":          prompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}

// cleanText strips whitespace and whisper's non-speech placeholders.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, m := range nonSpeechMarkers {
		if lower == m {
			return ""
		}
	}
	return s
}
