// Package anthropic is the adapter for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/provider/httpx"
	"github.com/kai200407/aipostblog/sse"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Provider is the Anthropic Messages API adapter.
type Provider struct {
	baseURL string
	apiKey  string
	client  httpx.Client
}

var _ aipostblog.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

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

// New creates a new Anthropic provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  httpx.Client{Backend: "anthropic", HTTP: http.DefaultClient},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Capabilities() aipostblog.Capabilities {
	return aipostblog.Capabilities{Streaming: true}
}

type apiRequest struct {
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string   `json:"stop_reason"`
	Usage      apiUsage `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderResponse, error) {
	httpResp, err := p.post(ctx, req, false)
	if err != nil {
		return aipostblog.ProviderResponse{}, err
	}

	var resp apiResponse
	if err := p.client.DecodeJSON(req.Model, httpResp, &resp); err != nil {
		return aipostblog.ProviderResponse{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if len(resp.Content) == 0 {
		return aipostblog.ProviderResponse{}, aipostblog.NewProviderError("anthropic", req.Model,
			aipostblog.KindMalformedResponse, httpResp.StatusCode, "empty content in response", nil)
	}

	return aipostblog.ProviderResponse{
		ID:           resp.ID,
		Content:      text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Model:        resp.Model,
		FinishReason: aipostblog.NormalizeFinishReason(resp.StopReason),
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
		return nil, aipostblog.NewProviderError("anthropic", req.Model, aipostblog.KindAuthMissing, 0, "api key not configured", nil)
	}
	req = req.WithDefaults()

	header := httpx.Header(
		"x-api-key", p.apiKey,
		"anthropic-version", apiVersion,
	)
	if stream {
		header.Set("Accept", "text/event-stream")
	}

	body := apiRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    []apiMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	return p.client.PostJSON(ctx, req.Model, p.baseURL+"/v1/messages", header, body)
}

// streamEvent covers the Messages API stream frames this adapter reads.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage apiUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *apiUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeFrame decodes one Messages API stream frame.
func DecodeFrame(data []byte) (sse.Frame, error) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return sse.Frame{}, err
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			return sse.Frame{Usage: &aipostblog.Usage{
				InputTokens:  ev.Message.Usage.InputTokens,
				OutputTokens: ev.Message.Usage.OutputTokens,
			}}, nil
		}
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Type == "text_delta" {
			return sse.Frame{Delta: ev.Delta.Text}, nil
		}
	case "message_delta":
		var f sse.Frame
		if ev.Delta != nil {
			f.FinishReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			f.Usage = &aipostblog.Usage{OutputTokens: ev.Usage.OutputTokens}
		}
		return f, nil
	case "message_stop":
		return sse.Frame{Done: true}, nil
	case "error":
		msg := "upstream stream error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		return sse.Frame{Err: msg}, nil
	}
	// ping, content_block_start, content_block_stop
	return sse.Frame{}, nil
}
