// Package openai provides an LLM provider for the OpenAI chat completions
// API. Pointing it at another base URL serves any OpenAI-compatible server,
// such as a local llama.cpp or vLLM instance.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// jsonInstruction replaces response_format for servers that may not honour it.
const jsonInstruction = "Respond with a single JSON object and nothing else."

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	caps   llm.ModelCapabilities

	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL targets an OpenAI-compatible server instead of api.openai.com.
// JSON mode is then requested through the system prompt, since not every
// compatible server implements response_format.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithOrganization sets the OpenAI organization header.
func WithOrganization(org string) Option {
	return func(p *Provider) { p.organization = org }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithMaxRetries sets how often the SDK retries transient failures.
// Default: 1. Command classification runs under a short deadline, so the
// SDK's own default of 2 retries with backoff rarely fits.
func WithMaxRetries(n int) Option {
	return func(p *Provider) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// New returns a provider for model authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key is required")
	case model == "":
		return nil, errors.New("openai: model is required")
	}

	p := &Provider{model: model, maxRetries: 1}
	for _, o := range opts {
		o(p)
	}
	p.caps = llm.KnownCapabilities(model)
	if p.baseURL != "" {
		p.caps.SupportsJSONMode = false
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(p.maxRetries),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(p.organization))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s: response has no choices", p.model)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("openai: %s: refused: %s", p.model, choice.Message.Refusal)
	}

	return &llm.CompletionResponse{
		Content: strings.TrimSpace(choice.Message.Content),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.caps
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: request has no messages")
	}

	system := req.SystemPrompt
	if req.JSONMode && !p.caps.SupportsJSONMode {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if system != "" {
		msgs = append(msgs, oai.SystemMessage(system))
	}
	for i, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONMode && p.caps.SupportsJSONMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role %q", m.Role)
}
