package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// NewHTTPClient returns a client for calls that may stream for a long time.
// The timeout bounds connection setup, the wait for response headers and
// every gap between body reads, never the exchange as a whole: a response
// that keeps producing data is read to the end.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: IdleTimeout(Transport(timeout), timeout)}
}

// Transport returns a copy of the default transport with dial, TLS handshake
// and response header waits bounded by timeout.
func Transport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if timeout <= 0 {
		return t
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	t.DialContext = dialer.DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// IdleTimeout wraps base so that a response body which delivers nothing for
// timeout is aborted. Reads then fail with an error whose Timeout method
// reports true.
func IdleTimeout(base http.RoundTripper, timeout time.Duration) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if timeout <= 0 {
		return base
	}
	return &idleTransport{base: base, timeout: timeout}
}

type idleTransport struct {
	base    http.RoundTripper
	timeout time.Duration
}

func (t *idleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	body := &idleBody{ReadCloser: resp.Body, timeout: t.timeout, cancel: cancel}
	body.timer = time.AfterFunc(t.timeout, body.expire)
	resp.Body = body
	return resp, nil
}

type idleBody struct {
	io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	expired atomic.Bool
}

func (b *idleBody) expire() {
	b.expired.Store(true)
	b.cancel()
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF && b.expired.Load() {
		return n, IdleTimeoutError{Idle: b.timeout}
	}
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// IdleTimeoutError reports a response body that stalled.
type IdleTimeoutError struct {
	Idle time.Duration
}

func (e IdleTimeoutError) Error() string {
	return "response body idle for " + e.Idle.String()
}

// Timeout reports true, so the error classifies like a net timeout.
func (e IdleTimeoutError) Timeout() bool { return true }
