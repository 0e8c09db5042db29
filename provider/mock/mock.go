// Package mock provides a scriptable provider adapter for tests and examples.
package mock

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/kai200407/aipostblog"
)

// Provider is a mock provider adapter.
type Provider struct {
	name         string
	content      string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	streamCount  atomic.Int64
	closeCount   atomic.Int64
	staticErr    error
	usage        aipostblog.Usage
	responseFunc func(aipostblog.ProviderRequest) (aipostblog.ProviderResponse, error)

	streaming    bool
	streamErr    error
	streamEvents []aipostblog.StreamEvent
}

var _ aipostblog.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:      "mock",
		content:   "Hello from mock provider",
		usage:     aipostblog.Usage{InputTokens: 10, OutputTokens: 20},
		streaming: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the backend name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithContent sets the generated text.
func WithContent(s string) Option {
	return func(p *Provider) { p.content = s }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes every call return err.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithUsage sets the usage reported by the mock.
func WithUsage(u aipostblog.Usage) Option {
	return func(p *Provider) { p.usage = u }
}

// WithResponseFunc sets a custom Generate response.
func WithResponseFunc(fn func(aipostblog.ProviderRequest) (aipostblog.ProviderResponse, error)) Option {
	return func(p *Provider) { p.responseFunc = fn }
}

// WithStreaming sets the streaming capability.
func WithStreaming(enabled bool) Option {
	return func(p *Provider) { p.streaming = enabled }
}

// WithStreamError makes Stream fail with err before any event.
func WithStreamError(err error) Option {
	return func(p *Provider) { p.streamErr = err }
}

// WithStreamEvents scripts the events returned by Stream. The script is
// replayed verbatim; a script without a terminal event ends with io.EOF.
func WithStreamEvents(events ...aipostblog.StreamEvent) Option {
	return func(p *Provider) { p.streamEvents = events }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Capabilities() aipostblog.Capabilities {
	return aipostblog.Capabilities{Streaming: p.streaming}
}

func (p *Provider) Generate(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderResponse, error) {
	if err := p.wait(ctx); err != nil {
		return aipostblog.ProviderResponse{}, err
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return aipostblog.ProviderResponse{}, p.staticErr
	}

	if p.failAfter > 0 && int(count) > p.failAfter {
		return aipostblog.ProviderResponse{}, aipostblog.NewProviderError(p.name, req.Model, aipostblog.KindUnavailable, 503, "mock failure", nil)
	}

	if p.responseFunc != nil {
		return p.responseFunc(req)
	}

	return aipostblog.ProviderResponse{
		ID:           "mock-response-id",
		Content:      p.content,
		InputTokens:  p.usage.InputTokens,
		OutputTokens: p.usage.OutputTokens,
		Model:        req.Model,
		FinishReason: aipostblog.FinishStop,
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req aipostblog.ProviderRequest) (aipostblog.ProviderStream, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.streamCount.Add(1)

	if !p.streaming {
		return nil, aipostblog.ErrStreamingUnsupported
	}
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	if p.staticErr != nil {
		return nil, p.staticErr
	}

	events := p.streamEvents
	if events == nil {
		usage := p.usage
		events = []aipostblog.StreamEvent{
			{Type: aipostblog.EventToken, Content: p.content, Delta: p.content},
			{Type: aipostblog.EventDone, FinishReason: aipostblog.FinishStop, Usage: &usage},
		}
	}
	return &mockStream{ctx: ctx, events: events, latency: p.latency, closed: &p.closeCount}, nil
}

// CallCount returns the number of Generate calls.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

// StreamCount returns the number of Stream calls.
func (p *Provider) StreamCount() int64 { return p.streamCount.Load() }

// CloseCount returns the number of streams closed.
func (p *Provider) CloseCount() int64 { return p.closeCount.Load() }

func (p *Provider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mockStream struct {
	ctx     context.Context
	events  []aipostblog.StreamEvent
	index   int
	latency time.Duration
	closed  *atomic.Int64
	done    bool
}

func (s *mockStream) Next() (aipostblog.StreamEvent, error) {
	if s.done || s.index >= len(s.events) {
		return aipostblog.StreamEvent{}, io.EOF
	}
	if s.latency > 0 && s.index > 0 {
		select {
		case <-time.After(s.latency):
		case <-s.ctx.Done():
			return aipostblog.StreamEvent{}, s.ctx.Err()
		}
	}
	ev := s.events[s.index]
	s.index++
	return ev, nil
}

func (s *mockStream) Close() error {
	if !s.done {
		s.done = true
		s.closed.Add(1)
	}
	return nil
}
