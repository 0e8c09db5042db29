// Package dashscope is the adapter for Alibaba DashScope (Qwen) text generation.
package dashscope

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/provider/httpx"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	generationPath = "/services/aigc/text-generation/generation"
)

// Provider is the DashScope adapter. It does not stream.
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

// New creates a new DashScope provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  httpx.Client{Backend: "dashscope", HTTP: http.DefaultClient},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "dashscope" }

func (p *Provider) Capabilities() aipostblog.Capabilities {
	return aipostblog.Capabilities{Streaming: false}
}

type dsRequest struct {
	Model      string       `json:"model"`
	Input      dsInput      `json:"input"`
	Parameters dsParameters `json:"parameters"`
}

type dsInput struct {
	Messages []dsMessage `json:"messages"`
}

type dsMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type dsParameters struct {
	ResultFormat string  `json:"result_format"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

type dsResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Choices []struct {
			Message      dsMessage `json:"message"`
			FinishReason string    `json:"finish_reason"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderResponse, error) {
	if p.apiKey == "" {
		return aipostblog.ProviderResponse{}, aipostblog.NewProviderError("dashscope", req.Model, aipostblog.KindAuthMissing, 0, "api key not configured", nil)
	}
	req = req.WithDefaults()

	var msgs []dsMessage
	if req.SystemPrompt != "" {
		msgs = append(msgs, dsMessage{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, dsMessage{Role: "user", Content: req.Prompt})

	body := dsRequest{
		Model: req.Model,
		Input: dsInput{Messages: msgs},
		Parameters: dsParameters{
			ResultFormat: "message",
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		},
	}

	httpResp, err := p.client.PostJSON(ctx, req.Model, p.baseURL+generationPath,
		httpx.Header("Authorization", "Bearer "+p.apiKey), body)
	if err != nil {
		return aipostblog.ProviderResponse{}, err
	}

	var resp dsResponse
	if err := p.client.DecodeJSON(req.Model, httpResp, &resp); err != nil {
		return aipostblog.ProviderResponse{}, err
	}
	if len(resp.Output.Choices) == 0 {
		return aipostblog.ProviderResponse{}, aipostblog.NewProviderError("dashscope", req.Model,
			aipostblog.KindMalformedResponse, httpResp.StatusCode, "empty choices in response", nil)
	}

	choice := resp.Output.Choices[0]
	return aipostblog.ProviderResponse{
		ID:           resp.RequestID,
		Content:      choice.Message.Content,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Model:        req.Model,
		FinishReason: aipostblog.NormalizeFinishReason(choice.FinishReason),
	}, nil
}

func (p *Provider) Stream(_ context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderStream, error) {
	return nil, aipostblog.NewProviderError("dashscope", req.Model, aipostblog.KindUnavailable, 0,
		"streaming not supported", aipostblog.ErrStreamingUnsupported)
}
