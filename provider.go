package aipostblog

import "context"

// Generation parameter defaults applied when a request leaves them unset.
// A temperature of 0 is a valid setting, so only configuration can leave it
// unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// Provider is the interface that LLM backend adapters implement.
// Adapters perform exactly one upstream exchange per call and never retry.
type Provider interface {
	// Name returns the backend identifier (e.g. "openai", "zhipu").
	Name() string

	// Capabilities reports optional features of the adapter.
	Capabilities() Capabilities

	// Generate performs a blocking completion.
	Generate(ctx context.Context, req ProviderRequest) (ProviderResponse, error)

	// Stream opens a streaming completion. Adapters without streaming
	// return ErrStreamingUnsupported.
	Stream(ctx context.Context, req ProviderRequest) (ProviderStream, error)
}

// Capabilities describes optional adapter features.
type Capabilities struct {
	Streaming bool
}

// ProviderRequest is the request sent to a provider adapter.
type ProviderRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// WithDefaults fills unset generation parameters. Temperature is sent as
// given, including 0.
func (r ProviderRequest) WithDefaults() ProviderRequest {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// ProviderResponse is the normalized response from a provider adapter.
type ProviderResponse struct {
	ID           string
	Content      string
	InputTokens  int64
	OutputTokens int64
	Model        string
	FinishReason FinishReason
}

// ProviderStream is a pull-based sequence of normalized stream events.
type ProviderStream interface {
	// Next returns the next event. After the terminal done or error event
	// it returns io.EOF.
	Next() (StreamEvent, error)

	// Close releases the underlying transport.
	Close() error
}
