package aipostblog

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// RouterStream forwards one adapter's normalized events to the caller and
// settles quota exactly once, when the terminal event is read or on Close,
// whichever comes first.
//
// Next and Close must not be called concurrently. Cancel the context passed
// to RouteStream to interrupt a blocked Next.
type RouterStream struct {
	router   *Router
	ctx      context.Context
	plan     *routePlan
	inner    ProviderStream
	pending  *StreamEvent
	backend  string
	model    string
	attempts []string
	start    time.Time
	id       string

	content  strings.Builder
	reported Usage
	usage    Usage
	finish   FinishReason
	done     bool
	settled  bool
	closed   bool
	failure  error
	quota    *Quota
}

// Next returns the next event. After the terminal done or error event it
// returns io.EOF.
func (s *RouterStream) Next() (StreamEvent, error) {
	if s.done || s.closed {
		return StreamEvent{}, io.EOF
	}

	var ev StreamEvent
	if s.pending != nil {
		ev = *s.pending
		s.pending = nil
	} else {
		var err error
		ev, err = s.inner.Next()
		if err != nil {
			// The adapter ended without a terminal event.
			if errors.Is(err, io.EOF) {
				ev = StreamEvent{Type: EventDone, FinishReason: FinishStop}
			} else {
				ev = StreamEvent{Type: EventError, Message: err.Error()}
			}
		}
	}

	switch ev.Type {
	case EventToken:
		s.content.WriteString(ev.Delta)
	case EventDone:
		if ev.Usage != nil {
			s.reported = *ev.Usage
		}
		s.finish = ev.FinishReason
		if s.finish == "" {
			s.finish = FinishStop
		}
		s.done = true
		s.settle(false)
		usage := s.usage
		ev.Usage = &usage
	case EventError:
		if ev.Usage != nil {
			s.reported = *ev.Usage
		}
		s.done = true
		s.failure = errors.New(ev.Message)
		s.settle(true)
		usage := s.usage
		ev.Usage = &usage
	}

	return ev, nil
}

// Close releases the transport. A stream closed before its terminal event is
// charged for the text received so far.
func (s *RouterStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.done {
		s.failure = context.Canceled
		s.settle(true)
	}
	return s.inner.Close()
}

// Model returns the catalog model serving the stream.
func (s *RouterStream) Model() string { return s.model }

// Backend returns the backend serving the stream.
func (s *RouterStream) Backend() string { return s.backend }

// Attempts returns the models tried before and including the serving one.
func (s *RouterStream) Attempts() []string {
	return append([]string(nil), s.attempts...)
}

// Result summarizes the stream once it has settled.
func (s *RouterStream) Result() GenerationResult {
	return GenerationResult{
		ID:           s.id,
		Content:      s.content.String(),
		Model:        s.model,
		Backend:      s.backend,
		InputTokens:  s.usage.InputTokens,
		OutputTokens: s.usage.OutputTokens,
		FinishReason: s.finish,
		Attempts:     s.Attempts(),
		Cost:         s.router.cost(s.model, s.usage),
		Quota:        s.quota,
	}
}

func (s *RouterStream) settle(partial bool) {
	if s.settled {
		return
	}
	s.settled = true

	output := s.content.String()
	estimated := s.plan.estimateUsage(output)
	s.usage = s.reported
	if s.usage.InputTokens == 0 {
		s.usage.InputTokens = estimated.InputTokens
	}
	if s.usage.OutputTokens == 0 {
		s.usage.OutputTokens = estimated.OutputTokens
	}
	if partial && output == "" && s.reported.Total() == 0 {
		// Nothing was generated.
		s.usage = Usage{}
	}

	s.router.meter.OnResult(ResultEvent{
		Backend:   s.backend,
		Model:     s.model,
		Attempt:   len(s.attempts),
		Success:   s.failure == nil,
		Streaming: true,
		Duration:  time.Since(s.start),
		Usage:     s.usage,
		Cost:      s.router.cost(s.model, s.usage),
		Error:     s.failure,
	})

	s.quota = s.router.settle(s.ctx, s.plan, settlement{
		id:       s.id,
		model:    s.model,
		usage:    s.usage,
		output:   output,
		attempts: s.attempts,
		streamed: true,
		partial:  partial,
	})
}
