package aipostblog

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrUnknownModel         = errors.New("aipostblog: unknown model")
	ErrUnknownBackend       = errors.New("aipostblog: unknown backend")
	ErrAllModelsExhausted   = errors.New("aipostblog: all models exhausted")
	ErrQuotaExceeded        = errors.New("aipostblog: quota exceeded")
	ErrQuotaNotFound        = errors.New("aipostblog: quota not found")
	ErrTemplateNotFound     = errors.New("aipostblog: template not found")
	ErrStreamingUnsupported = errors.New("aipostblog: streaming not supported")

	ErrAuthMissing         = errors.New("aipostblog: credential missing")
	ErrAuthRejected        = errors.New("aipostblog: credential rejected")
	ErrRateLimited         = errors.New("aipostblog: rate limited by provider")
	ErrTimeout             = errors.New("aipostblog: provider timeout")
	ErrMalformedResponse   = errors.New("aipostblog: malformed provider response")
	ErrProviderUnavailable = errors.New("aipostblog: provider unavailable")
)

// ProviderErrorKind classifies an adapter failure.
type ProviderErrorKind int

const (
	KindUnavailable ProviderErrorKind = iota
	KindAuthMissing
	KindAuthRejected
	KindRateLimited
	KindTimeout
	KindMalformedResponse
)

func (k ProviderErrorKind) String() string {
	switch k {
	case KindAuthMissing:
		return "auth_missing"
	case KindAuthRejected:
		return "auth_rejected"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unavailable"
	}
}

func (k ProviderErrorKind) sentinel() error {
	switch k {
	case KindAuthMissing:
		return ErrAuthMissing
	case KindAuthRejected:
		return ErrAuthRejected
	case KindRateLimited:
		return ErrRateLimited
	case KindTimeout:
		return ErrTimeout
	case KindMalformedResponse:
		return ErrMalformedResponse
	default:
		return ErrProviderUnavailable
	}
}

// ProviderError is a failure reported by a provider adapter. It carries the raw
// upstream status and message for diagnostics.
type ProviderError struct {
	Backend string
	Model   string
	Kind    ProviderErrorKind
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "aipostblog: %s", e.Kind)
	if e.Backend != "" {
		fmt.Fprintf(&b, " backend=%s", e.Backend)
	}
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// NewProviderError builds a ProviderError.
func NewProviderError(backend, model string, kind ProviderErrorKind, status int, message string, cause error) *ProviderError {
	return &ProviderError{
		Backend: backend,
		Model:   model,
		Kind:    kind,
		Status:  status,
		Message: message,
		Err:     cause,
	}
}

// ExhaustedError is returned when every model of a fallback chain failed.
type ExhaustedError struct {
	Attempts []string
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("aipostblog: all models exhausted after %d attempt(s) [%s]: %v",
		len(e.Attempts), strings.Join(e.Attempts, ", "), e.LastErr)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.LastErr == nil {
		return []error{ErrAllModelsExhausted}
	}
	return []error{ErrAllModelsExhausted, e.LastErr}
}

// QuotaExceededError is an admission rejection.
type QuotaExceededError struct {
	UserID    string
	Remaining int64
	Estimated int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("aipostblog: quota exceeded for user %s: estimated %d, remaining %d",
		e.UserID, e.Estimated, e.Remaining)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// ProviderKind returns the kind of a ProviderError in err's chain.
func ProviderKind(err error) (ProviderErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
