// Package zhipu is the adapter for Zhipu GLM models. The wire protocol is
// OpenAI-compatible; requests are authenticated with a short-lived HS256
// token derived from the "id.secret" API key.
package zhipu

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/provider/httpx"
	"github.com/kai200407/aipostblog/provider/openaicompat"
)

// DefaultBaseURL is the Zhipu open platform endpoint.
const DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// Provider composes openaicompat.Provider with token signing.
type Provider struct {
	inner *openaicompat.Provider
}

var _ aipostblog.Provider = (*Provider)(nil)

// Option configures the Zhipu provider.
type Option func(*config)

type config struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	limiter   *rate.Limiter
	nowFunc   func() time.Time
}

// WithBaseURL sets the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout bounds connection setup, the wait for response headers and
// each stall of the response body (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithBaseTransport sets the underlying HTTP transport (before signing).
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.transport = rt }
}

// WithRateLimit paces outbound requests.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *config) { c.limiter = l }
}

func withNowFunc(fn func() time.Time) Option {
	return func(c *config) { c.nowFunc = fn }
}

// New creates a Zhipu provider. The key must have the form "<id>.<secret>".
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey != "" {
		if _, err := parseAPIKey(apiKey); err != nil {
			return nil, aipostblog.NewProviderError("zhipu", "", aipostblog.KindAuthRejected, 0, "malformed api key", err)
		}
	}

	cfg := &config{
		baseURL: DefaultBaseURL,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	base := cfg.transport
	if base == nil {
		base = httpx.Transport(cfg.timeout)
	}
	signing := newSigningTransport(base)
	if cfg.nowFunc != nil {
		signing.nowFunc = cfg.nowFunc
	}

	innerOpts := []openaicompat.Option{
		openaicompat.WithHTTPClient(&http.Client{Transport: httpx.IdleTimeout(signing, cfg.timeout)}),
		openaicompat.WithTopP(0.7),
		openaicompat.WithStreamUsage(false),
	}
	if cfg.limiter != nil {
		innerOpts = append(innerOpts, openaicompat.WithRateLimit(cfg.limiter))
	}

	return &Provider{inner: openaicompat.New("zhipu", cfg.baseURL, apiKey, innerOpts...)}, nil
}

func (p *Provider) Name() string { return p.inner.Name() }

func (p *Provider) Capabilities() aipostblog.Capabilities { return p.inner.Capabilities() }

func (p *Provider) Generate(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderResponse, error) {
	return p.inner.Generate(ctx, req)
}

func (p *Provider) Stream(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderStream, error) {
	return p.inner.Stream(ctx, req)
}
