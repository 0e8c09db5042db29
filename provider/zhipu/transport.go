package zhipu

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// signingTransport is an http.RoundTripper that reads the raw API key from
// the Authorization header and replaces it with a signed token.
type signingTransport struct {
	base    http.RoundTripper
	tokens  *tokenCache
	nowFunc func() time.Time
}

func newSigningTransport(base http.RoundTripper) *signingTransport {
	return &signingTransport{
		base:   base,
		tokens: newTokenCache(),
	}
}

func (t *signingTransport) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now()
}

// RoundTrip implements http.RoundTripper.
func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	authHeader := req.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("zhipu: missing Bearer authorization header")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	token, err := t.tokens.get(raw, t.now())
	if err != nil {
		return nil, fmt.Errorf("zhipu: %w", err)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}
