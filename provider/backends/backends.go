// Package backends builds the adapter factories for the supported backends
// from configuration.
package backends

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/provider/anthropic"
	"github.com/kai200407/aipostblog/provider/dashscope"
	"github.com/kai200407/aipostblog/provider/openaicompat"
	"github.com/kai200407/aipostblog/provider/zhipu"
)

// Backend ids.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	DashScope = "dashscope"
	Zhipu     = "zhipu"
)

// DefaultTimeout applies when a backend config has no timeout. It bounds
// connection setup, the wait for response headers and each stall of the body;
// a non-streaming generation must produce its headers within it.
const DefaultTimeout = 60 * time.Second

// envKeys are consulted when a backend config carries no api_key.
var envKeys = map[string]string{
	OpenAI:    "OPENAI_API_KEY",
	Anthropic: "ANTHROPIC_API_KEY",
	DashScope: "DASHSCOPE_API_KEY",
	Zhipu:     "ZHIPU_API_KEY",
}

// Option configures Factories.
type Option func(*options)

type options struct {
	getenv func(string) string
}

// WithGetenv overrides the environment lookup used for credential fallbacks.
func WithGetenv(fn func(string) string) Option {
	return func(o *options) { o.getenv = fn }
}

// Factories returns one factory per supported backend. A factory fails with
// ErrAuthMissing when its backend has no credential, so the router treats
// the backend's models as failed attempts.
func Factories(cfg aipostblog.Config, opts ...Option) map[string]aipostblog.AdapterFactory {
	o := options{getenv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}

	settings := func(id string) (aipostblog.BackendConfig, error) {
		b := cfg.Backends[id]
		if b.APIKey == "" {
			b.APIKey = o.getenv(envKeys[id])
		}
		if b.APIKey == "" {
			return b, fmt.Errorf("%w: set backends.%s.api_key or %s", aipostblog.ErrAuthMissing, id, envKeys[id])
		}
		if b.Timeout == 0 {
			b.Timeout = DefaultTimeout
		}
		return b, nil
	}

	return map[string]aipostblog.AdapterFactory{
		OpenAI: func() (aipostblog.Provider, error) {
			b, err := settings(OpenAI)
			if err != nil {
				return nil, err
			}
			base := b.BaseURL
			if base == "" {
				base = openaicompat.DefaultOpenAIBaseURL
			}
			opts := []openaicompat.Option{openaicompat.WithTimeout(b.Timeout)}
			if l := limiter(b); l != nil {
				opts = append(opts, openaicompat.WithRateLimit(l))
			}
			return openaicompat.New(OpenAI, base, b.APIKey, opts...), nil
		},
		Anthropic: func() (aipostblog.Provider, error) {
			b, err := settings(Anthropic)
			if err != nil {
				return nil, err
			}
			opts := []anthropic.Option{anthropic.WithTimeout(b.Timeout)}
			if b.BaseURL != "" {
				opts = append(opts, anthropic.WithBaseURL(b.BaseURL))
			}
			if l := limiter(b); l != nil {
				opts = append(opts, anthropic.WithRateLimit(l))
			}
			return anthropic.New(b.APIKey, opts...), nil
		},
		DashScope: func() (aipostblog.Provider, error) {
			b, err := settings(DashScope)
			if err != nil {
				return nil, err
			}
			opts := []dashscope.Option{dashscope.WithTimeout(b.Timeout)}
			if b.BaseURL != "" {
				opts = append(opts, dashscope.WithBaseURL(b.BaseURL))
			}
			if l := limiter(b); l != nil {
				opts = append(opts, dashscope.WithRateLimit(l))
			}
			return dashscope.New(b.APIKey, opts...), nil
		},
		Zhipu: func() (aipostblog.Provider, error) {
			b, err := settings(Zhipu)
			if err != nil {
				return nil, err
			}
			opts := []zhipu.Option{zhipu.WithTimeout(b.Timeout)}
			if b.BaseURL != "" {
				opts = append(opts, zhipu.WithBaseURL(b.BaseURL))
			}
			if l := limiter(b); l != nil {
				opts = append(opts, zhipu.WithRateLimit(l))
			}
			return zhipu.New(b.APIKey, opts...)
		},
	}
}

func limiter(b aipostblog.BackendConfig) *rate.Limiter {
	if b.RequestsPerSecond <= 0 {
		return nil
	}
	burst := b.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(b.RequestsPerSecond), burst)
}
