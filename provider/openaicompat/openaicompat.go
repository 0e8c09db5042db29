// Package openaicompat is an adapter for backends speaking the OpenAI chat
// completions protocol. The wire types come from go-openai; transport, error
// classification and stream framing are handled here.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/provider/httpx"
	"github.com/kai200407/aipostblog/sse"
)

// DefaultOpenAIBaseURL is the public OpenAI endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// Provider is an OpenAI-compatible chat completions adapter.
type Provider struct {
	name        string
	baseURL     string
	apiKey      string
	client      httpx.Client
	topP        float32
	streamUsage bool
}

var _ aipostblog.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client.HTTP = c }
}

// WithTimeout bounds connection setup, the wait for response headers and
// each stall of the response body. A stream that keeps delivering tokens is
// never cut off.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.HTTP = httpx.NewHTTPClient(d) }
}

// WithRateLimit paces outbound requests.
func WithRateLimit(l *rate.Limiter) Option {
	return func(p *Provider) { p.client.Limiter = l }
}

// WithTopP sets nucleus sampling.
func WithTopP(v float32) Option {
	return func(p *Provider) { p.topP = v }
}

// WithStreamUsage controls whether usage is requested in streamed responses.
func WithStreamUsage(enabled bool) Option {
	return func(p *Provider) { p.streamUsage = enabled }
}

// New creates an OpenAI-compatible provider for backend name at baseURL.
func New(name, baseURL, apiKey string, opts ...Option) *Provider {
	p := &Provider{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		client:      httpx.Client{Backend: name, HTTP: http.DefaultClient},
		streamUsage: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client.Backend = name
	return p
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(apiKey string, opts ...Option) *Provider {
	return New("openai", DefaultOpenAIBaseURL, apiKey, opts...)
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Capabilities() aipostblog.Capabilities {
	return aipostblog.Capabilities{Streaming: true}
}

func (p *Provider) Generate(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderResponse, error) {
	httpResp, err := p.post(ctx, req, false)
	if err != nil {
		return aipostblog.ProviderResponse{}, err
	}

	var resp openai.ChatCompletionResponse
	if err := p.client.DecodeJSON(req.Model, httpResp, &resp); err != nil {
		return aipostblog.ProviderResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return aipostblog.ProviderResponse{}, aipostblog.NewProviderError(p.name, req.Model,
			aipostblog.KindMalformedResponse, httpResp.StatusCode, "empty choices in response", nil)
	}

	choice := resp.Choices[0]
	return aipostblog.ProviderResponse{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		Model:        resp.Model,
		FinishReason: aipostblog.NormalizeFinishReason(string(choice.FinishReason)),
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderStream, error) {
	httpResp, err := p.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return sse.New(httpResp.Body, DecodeFrame), nil
}

func (p *Provider) post(ctx context.Context, req aipostblog.ProviderRequest, stream bool) (*http.Response, error) {
	if p.apiKey == "" {
		return nil, aipostblog.NewProviderError(p.name, req.Model, aipostblog.KindAuthMissing, 0, "api key not configured", nil)
	}
	header := httpx.Header("Authorization", "Bearer "+p.apiKey)
	if stream {
		header.Set("Accept", "text/event-stream")
	}
	return p.client.PostJSON(ctx, req.Model, p.baseURL+"/chat/completions", header, p.buildRequest(req, stream))
}

func (p *Provider) buildRequest(req aipostblog.ProviderRequest, stream bool) openai.ChatCompletionRequest {
	req = req.WithDefaults()

	var msgs []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	body := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: wireTemperature(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        p.topP,
		Stream:      stream,
	}
	if stream && p.streamUsage {
		body.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return body
}

// wireTemperature keeps an explicit 0 on the wire; the request type omits
// zero values.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// DecodeFrame decodes one OpenAI-style stream chunk.
func DecodeFrame(data []byte) (sse.Frame, error) {
	var envelope struct {
		Error *openai.APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		msg := envelope.Error.Message
		if msg == "" {
			msg = "upstream stream error"
		}
		return sse.Frame{Err: msg}, nil
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return sse.Frame{}, err
	}
	if len(chunk.Choices) == 0 && chunk.Usage == nil {
		return sse.Frame{}, errors.New("openaicompat: chunk without choices or usage")
	}

	var f sse.Frame
	if len(chunk.Choices) > 0 {
		f.Delta = chunk.Choices[0].Delta.Content
		f.FinishReason = string(chunk.Choices[0].FinishReason)
	}
	if chunk.Usage != nil {
		f.Usage = &aipostblog.Usage{
			InputTokens:  int64(chunk.Usage.PromptTokens),
			OutputTokens: int64(chunk.Usage.CompletionTokens),
		}
	}
	return f, nil
}
