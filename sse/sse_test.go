package sse_test

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ap "github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/sse"
)

type testFrame struct {
	Delta  string `json:"delta"`
	Finish string `json:"finish"`
	In     int64  `json:"in"`
	Out    int64  `json:"out"`
	Error  string `json:"error"`
}

func decodeTest(data []byte) (sse.Frame, error) {
	var f testFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return sse.Frame{}, err
	}
	frame := sse.Frame{Delta: f.Delta, FinishReason: f.Finish, Err: f.Error}
	if f.In > 0 || f.Out > 0 {
		frame.Usage = &ap.Usage{InputTokens: f.In, OutputTokens: f.Out}
	}
	return frame, nil
}

// chunkReader returns each chunk from a separate Read call.
type chunkReader struct {
	chunks []string
	err    error
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

func collect(t *testing.T, s *sse.Stream) []ap.StreamEvent {
	t.Helper()
	var events []ap.StreamEvent
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
		require.Less(t, len(events), 100, "stream did not terminate")
	}
}

func TestSplitFrameIsReassembled(t *testing.T) {
	body := &chunkReader{chunks: []string{`data: {"delta":"hel`, `lo"}` + "\n\n"}}
	events := collect(t, sse.New(body, decodeTest))

	require.Len(t, events, 2)
	assert.Equal(t, ap.EventToken, events[0].Type)
	assert.Equal(t, "hello", events[0].Delta)
	assert.Equal(t, ap.EventDone, events[1].Type)
}

func TestMalformedFrameIsDropped(t *testing.T) {
	body := &chunkReader{chunks: []string{
		"data: {not json\n\n",
		`data: {"delta":"ok"}` + "\n\n",
	}}
	events := collect(t, sse.New(body, decodeTest))

	var tokens int
	for _, ev := range events {
		if ev.Type == ap.EventToken {
			tokens++
			assert.Equal(t, "ok", ev.Delta)
		}
	}
	assert.Equal(t, 1, tokens)
	assert.Equal(t, ap.EventDone, events[len(events)-1].Type)
}

func TestDoneMarkerCarriesUsage(t *testing.T) {
	raw := strings.Join([]string{
		": keep-alive",
		"event: message",
		`data: {"delta":"a"}`,
		"",
		`data: {"delta":"b","finish":"length","in":7,"out":2}`,
		"",
		"data: [DONE]",
		"",
		`data: {"delta":"ignored"}`,
		"",
	}, "\n")
	events := collect(t, sse.New(io.NopCloser(strings.NewReader(raw)), decodeTest))

	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Delta)
	assert.Equal(t, "b", events[1].Delta)
	done := events[2]
	assert.Equal(t, ap.EventDone, done.Type)
	assert.Equal(t, ap.FinishLength, done.FinishReason)
	require.NotNil(t, done.Usage)
	assert.Equal(t, ap.Usage{InputTokens: 7, OutputTokens: 2}, *done.Usage)
}

func TestMultiLineDataIsJoined(t *testing.T) {
	raw := "data: {\"delta\":\ndata: \"x\"}\n\n"
	events := collect(t, sse.New(io.NopCloser(strings.NewReader(raw)), decodeTest))

	require.Len(t, events, 2)
	assert.Equal(t, "x", events[0].Delta)
}

func TestTrailingFrameWithoutBlankLine(t *testing.T) {
	raw := `data: {"delta":"tail"}`
	events := collect(t, sse.New(io.NopCloser(strings.NewReader(raw)), decodeTest))

	require.Len(t, events, 2)
	assert.Equal(t, "tail", events[0].Delta)
	assert.Equal(t, ap.EventDone, events[1].Type)
	assert.Nil(t, events[1].Usage)
}

func TestTransportFailureEndsWithError(t *testing.T) {
	body := &chunkReader{
		chunks: []string{`data: {"delta":"par"}` + "\n\n"},
		err:    io.ErrUnexpectedEOF,
	}
	events := collect(t, sse.New(body, decodeTest))

	require.Len(t, events, 2)
	assert.Equal(t, ap.EventToken, events[0].Type)
	assert.Equal(t, ap.EventError, events[1].Type)
	assert.Contains(t, events[1].Message, "unexpected EOF")
}

func TestErrorEventCarriesReportedUsage(t *testing.T) {
	body := &chunkReader{
		chunks: []string{
			`data: {"in":12}` + "\n\n",
			`data: {"delta":"par","out":3}` + "\n\n",
		},
		err: io.ErrUnexpectedEOF,
	}
	events := collect(t, sse.New(body, decodeTest))

	require.Len(t, events, 2)
	assert.Equal(t, ap.EventError, events[1].Type)
	require.NotNil(t, events[1].Usage)
	assert.Equal(t, ap.Usage{InputTokens: 12, OutputTokens: 3}, *events[1].Usage)

	raw := `data: {"delta":"x"}` + "\n\n" + `data: {"error":"overloaded"}` + "\n\n"
	events = collect(t, sse.New(io.NopCloser(strings.NewReader(raw)), decodeTest))
	require.Len(t, events, 2)
	assert.Nil(t, events[1].Usage)
}

func TestInBandErrorFrame(t *testing.T) {
	raw := `data: {"delta":"x"}` + "\n\n" + `data: {"error":"overloaded"}` + "\n\n" + `data: {"delta":"y"}` + "\n\n"
	events := collect(t, sse.New(io.NopCloser(strings.NewReader(raw)), decodeTest))

	require.Len(t, events, 2)
	assert.Equal(t, ap.EventError, events[1].Type)
	assert.Equal(t, "overloaded", events[1].Message)
}

func TestOneByteReads(t *testing.T) {
	raw := `data: {"delta":"slow"}` + "\r\n\r\n"
	body := io.NopCloser(iotest.OneByteReader(strings.NewReader(raw)))
	events := collect(t, sse.New(body, decodeTest))

	require.Len(t, events, 2)
	assert.Equal(t, "slow", events[0].Delta)
}

func TestCloseReleasesBody(t *testing.T) {
	body := &chunkReader{chunks: []string{`data: {"delta":"a"}` + "\n\n", `data: {"delta":"b"}` + "\n\n"}}
	s := sse.New(body, decodeTest)

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Delta)

	require.NoError(t, s.Close())
	assert.True(t, body.closed)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}
