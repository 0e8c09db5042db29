// Package sse turns a backend's Server-Sent Events body into normalized
// stream events.
//
// Frames may arrive split across reads; they are buffered until the blank
// line that ends them. Frames the decoder rejects are dropped. Every stream
// ends with exactly one done or error event, after which Next returns io.EOF.
// Either terminal event carries the usage reported so far, if any.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/kai200407/aipostblog"
)

// Frame is what a backend-specific decoder extracts from one event payload.
type Frame struct {
	// Delta is generated text carried by the frame.
	Delta string
	// FinishReason is the backend-native stop reason, if reported.
	FinishReason string
	// Usage carries token counts; zero fields are not reported.
	Usage *aipostblog.Usage
	// Done marks the backend's end-of-stream frame.
	Done bool
	// Err is an error message sent in-band by the backend.
	Err string
}

// DecodeFunc decodes one event payload. An error drops the frame.
type DecodeFunc func(data []byte) (Frame, error)

// doneMarker is the OpenAI-style end-of-stream payload.
const doneMarker = "[DONE]"

// Stream is a pull-based normalizer over an SSE body. It reads from the body
// only when Next is called.
type Stream struct {
	reader *bufio.Reader
	body   io.ReadCloser
	decode DecodeFunc

	data     bytes.Buffer
	hasData  bool
	usage    aipostblog.Usage
	reported bool
	finish   string
	queue    []aipostblog.StreamEvent
	finished bool
}

var _ aipostblog.ProviderStream = (*Stream)(nil)

// New wraps body. The stream owns body and closes it on Close.
func New(body io.ReadCloser, decode DecodeFunc) *Stream {
	return &Stream{
		reader: bufio.NewReader(body),
		body:   body,
		decode: decode,
	}
}

// Next returns the next normalized event.
func (s *Stream) Next() (aipostblog.StreamEvent, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.finished {
			return aipostblog.StreamEvent{}, io.EOF
		}

		line, err := s.reader.ReadString('\n')
		if line != "" {
			s.handleLine(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.dispatch()
				s.complete()
			} else {
				s.fail(err.Error())
			}
		}
	}
}

// Close releases the body.
func (s *Stream) Close() error {
	s.finished = true
	s.queue = nil
	return s.body.Close()
}

func (s *Stream) handleLine(line string) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "":
		s.dispatch()
	case strings.HasPrefix(line, ":"):
		// comment
	case strings.HasPrefix(line, "data:"):
		value := strings.TrimPrefix(line, "data:")
		value = strings.TrimPrefix(value, " ")
		if s.hasData {
			s.data.WriteByte('\n')
		}
		s.data.WriteString(value)
		s.hasData = true
	default:
		// event:, id: and retry: fields carry nothing the decoders need.
	}
}

// dispatch decodes the buffered frame, if any.
func (s *Stream) dispatch() {
	if !s.hasData || s.finished {
		s.data.Reset()
		s.hasData = false
		return
	}
	payload := bytes.TrimSpace(s.data.Bytes())
	s.data.Reset()
	s.hasData = false

	if string(payload) == doneMarker {
		s.complete()
		return
	}

	frame, err := s.decode(payload)
	if err != nil {
		return
	}
	if frame.Err != "" {
		s.fail(frame.Err)
		return
	}
	if frame.Usage != nil {
		s.reported = true
		if frame.Usage.InputTokens > 0 {
			s.usage.InputTokens = frame.Usage.InputTokens
		}
		if frame.Usage.OutputTokens > 0 {
			s.usage.OutputTokens = frame.Usage.OutputTokens
		}
	}
	if frame.FinishReason != "" {
		s.finish = frame.FinishReason
	}
	if frame.Delta != "" {
		s.queue = append(s.queue, aipostblog.StreamEvent{
			Type:    aipostblog.EventToken,
			Content: frame.Delta,
			Delta:   frame.Delta,
		})
	}
	if frame.Done {
		s.complete()
	}
}

func (s *Stream) complete() {
	if s.finished {
		return
	}
	s.finished = true
	ev := aipostblog.StreamEvent{
		Type:         aipostblog.EventDone,
		FinishReason: aipostblog.NormalizeFinishReason(s.finish),
	}
	if s.reported {
		usage := s.usage
		ev.Usage = &usage
	}
	s.queue = append(s.queue, ev)
}

func (s *Stream) fail(message string) {
	if s.finished {
		return
	}
	s.finished = true
	ev := aipostblog.StreamEvent{
		Type:    aipostblog.EventError,
		Message: message,
	}
	if s.reported {
		usage := s.usage
		ev.Usage = &usage
	}
	s.queue = append(s.queue, ev)
}
