// Package httpx holds the HTTP exchange and error classification shared by
// the provider adapters.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kai200407/aipostblog"
)

// maxErrorBody bounds how much of an error response is read for diagnostics.
const maxErrorBody = 4096

// Client performs exactly one HTTP exchange per call.
type Client struct {
	Backend string
	HTTP    *http.Client
	// Limiter, if set, paces outbound requests. Waiting is not retrying.
	Limiter *rate.Limiter
}

// PostJSON marshals body, sends it and returns the response when the status is 2xx.
// Any other outcome is returned as a *aipostblog.ProviderError.
func (c *Client) PostJSON(ctx context.Context, model, url string, header http.Header, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("aipostblog: %s: marshal request: %w", c.Backend, err)
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, aipostblog.NewProviderError(c.Backend, model, aipostblog.KindTimeout, 0, "rate limiter wait", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("aipostblog: %s: create request: %w", c.Backend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(c.Backend, model, err)
	}

	if err := StatusError(c.Backend, model, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DecodeJSON decodes a success body into v, mapping failures to MalformedResponse.
// A body that stalls or is cut off by the context is a timeout instead.
func (c *Client) DecodeJSON(model string, resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		kind := aipostblog.KindMalformedResponse
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = aipostblog.KindTimeout
		}
		return aipostblog.NewProviderError(c.Backend, model, kind, resp.StatusCode, "decode response", err)
	}
	return nil
}

// TransportError classifies a failed round trip.
func TransportError(backend, model string, err error) error {
	kind := aipostblog.KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		kind = aipostblog.KindTimeout
	}
	return aipostblog.NewProviderError(backend, model, kind, 0, "", err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// StatusError returns nil for 2xx responses. Otherwise it drains and closes the
// body and classifies the status.
func StatusError(backend, model string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	var kind aipostblog.ProviderErrorKind
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = aipostblog.KindAuthRejected
	case http.StatusTooManyRequests:
		kind = aipostblog.KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = aipostblog.KindTimeout
	default:
		kind = aipostblog.KindUnavailable
	}
	return aipostblog.NewProviderError(backend, model, kind, resp.StatusCode, ErrorMessage(raw), nil)
}

// ErrorMessage extracts a human-readable message from a JSON error envelope,
// falling back to the raw body.
func ErrorMessage(raw []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var s string
			if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
				return s
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

// Header is a small helper for building request headers.
func Header(kv ...string) http.Header {
	h := make(http.Header, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}
