package openaicompat_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ap "github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/provider/openaicompat"
)

func TestGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "length"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "sk-test")
	resp, err := p.Generate(context.Background(), ap.ProviderRequest{
		Model:        "gpt-4o-mini",
		SystemPrompt: "be brief",
		Prompt:       "hello",
		Temperature:  0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(3), resp.OutputTokens)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, ap.FinishLength, resp.FinishReason)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.InDelta(t, 0.7, got["temperature"], 0.0001)
	assert.EqualValues(t, 2000, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
}

func TestGenerateSendsZeroTemperature(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"id":"1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "k")
	_, err := p.Generate(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x", Temperature: 0})
	require.NoError(t, err)

	require.Contains(t, got, "temperature")
	assert.InDelta(t, 0, got["temperature"], 1e-9)
}

func TestGenerateErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   ap.ProviderErrorKind
		is     error
	}{
		{http.StatusUnauthorized, ap.KindAuthRejected, ap.ErrAuthRejected},
		{http.StatusForbidden, ap.KindAuthRejected, ap.ErrAuthRejected},
		{http.StatusTooManyRequests, ap.KindRateLimited, ap.ErrRateLimited},
		{http.StatusGatewayTimeout, ap.KindTimeout, ap.ErrTimeout},
		{http.StatusInternalServerError, ap.KindUnavailable, ap.ErrProviderUnavailable},
		{http.StatusBadRequest, ap.KindUnavailable, ap.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"upstream says no","type":"x"}}`)
			}))
			defer srv.Close()

			p := openaicompat.New("openai", srv.URL, "sk-test")
			_, err := p.Generate(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)

			var pe *ap.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.Status)
			assert.Equal(t, "upstream says no", pe.Message)
		})
	}
}

func TestGenerateMissingKey(t *testing.T) {
	p := openaicompat.New("openai", "http://unused.invalid", "")
	_, err := p.Generate(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	assert.ErrorIs(t, err, ap.ErrAuthMissing)
}

func TestGenerateMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "k")
	_, err := p.Generate(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	assert.ErrorIs(t, err, ap.ErrMalformedResponse)
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "k", openaicompat.WithTimeout(50*time.Millisecond))
	_, err := p.Generate(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	assert.ErrorIs(t, err, ap.ErrTimeout)
}

func TestStream(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		frames := []string{
			`{"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`{"id":"1","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
			`[DONE]`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "k")
	stream, err := p.Stream(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	require.NoError(t, err)
	defer stream.Close()

	var text string
	var done ap.StreamEvent
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		switch ev.Type {
		case ap.EventToken:
			text += ev.Delta
		case ap.EventDone:
			done = ev
		}
	}

	assert.Equal(t, "Hello", text)
	assert.Equal(t, ap.EventDone, done.Type)
	assert.Equal(t, ap.FinishStop, done.FinishReason)
	require.NotNil(t, done.Usage)
	assert.Equal(t, ap.Usage{InputTokens: 5, OutputTokens: 2}, *done.Usage)

	assert.Equal(t, true, got["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, got["stream_options"])
}

func TestStreamOutlastsTimeoutWhileTokensFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		flusher.Flush()
		for i := 0; i < 6; i++ {
			time.Sleep(100 * time.Millisecond)
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"t%d \"}}]}\n\n", i)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "k", openaicompat.WithTimeout(300*time.Millisecond))
	start := time.Now()
	stream, err := p.Stream(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	require.NoError(t, err)
	defer stream.Close()

	var tokens int
	var last ap.StreamEvent
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if ev.Type == ap.EventToken {
			tokens++
		}
		last = ev
	}

	assert.Greater(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, 6, tokens)
	assert.Equal(t, ap.EventDone, last.Type, last.Message)
}

func TestStreamStallEndsWithError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, `data: {"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hel"}}]}`+"\n\n")
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := openaicompat.New("openai", srv.URL, "k", openaicompat.WithTimeout(100*time.Millisecond))
	stream, err := p.Stream(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	require.NoError(t, err)
	defer stream.Close()

	var events []ap.StreamEvent
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.Equal(t, "Hel", events[0].Delta)
	assert.Equal(t, ap.EventError, events[1].Type)
	assert.Contains(t, events[1].Message, "idle")
}

func TestGenerateSlowBodyIsRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		flusher := w.(http.Flusher)
		body := `{"id":"1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`
		for i := 0; i < 4; i++ {
			part := body[i*len(body)/4 : (i+1)*len(body)/4]
			fmt.Fprint(w, part)
			flusher.Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "k", openaicompat.WithTimeout(100*time.Millisecond))
	resp, err := p.Generate(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestGenerateStalledBodyIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"1","model":"gpt-4o","choices":[`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := openaicompat.New("openai", srv.URL, "k", openaicompat.WithTimeout(50*time.Millisecond))
	_, err := p.Generate(context.Background(), ap.ProviderRequest{Model: "gpt-4o", Prompt: "x"})
	assert.ErrorIs(t, err, ap.ErrTimeout)
}

func TestDecodeFrameErrorEnvelope(t *testing.T) {
	f, err := openaicompat.DecodeFrame([]byte(`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`))
	require.NoError(t, err)
	assert.Equal(t, "context length exceeded", f.Err)

	_, err = openaicompat.DecodeFrame([]byte(`{"id":"x"}`))
	assert.Error(t, err)
}
