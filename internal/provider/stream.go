package provider

import (
	"errors"
	"io"
	"strings"
)

// EventType distinguishes stream events.
type EventType string

const (
	// EventTextDelta carries a fragment of assistant text.
	EventTextDelta EventType = "text"
	// EventToolCall carries one fully assembled tool call.
	EventToolCall EventType = "tool_call"
	// EventFinish is the last event of a step and carries the full response.
	EventFinish EventType = "finish"
)

// StreamEvent is one item produced by a Stream.
type StreamEvent struct {
	Type     EventType
	Text     string
	ToolCall *ToolCall
	Response *ChatResponse
}

// Stream iterates over the events of one completion step. Recv returns
// io.EOF after the finish event.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// Collect drains s and returns the finish response. onText, when set, sees
// every text fragment.
func Collect(s Stream, onText func(string)) (*ChatResponse, error) {
	defer s.Close()
	var (
		text  strings.Builder
		calls []ToolCall
		final *ChatResponse
	)
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.Text)
			if onText != nil {
				onText(ev.Text)
			}
		case EventToolCall:
			if ev.ToolCall != nil {
				calls = append(calls, *ev.ToolCall)
			}
		case EventFinish:
			final = ev.Response
		}
	}
	if final == nil {
		final = &ChatResponse{Content: text.String(), ToolCalls: calls, FinishReason: "stop"}
	}
	return final, nil
}

// ResponseStream replays a finished response as a stream: one text event,
// one event per tool call, then finish. Useful for non-streaming backends
// and scripted providers.
type ResponseStream struct {
	events []StreamEvent
	pos    int
}

// NewResponseStream builds a stream for resp.
func NewResponseStream(resp *ChatResponse) *ResponseStream {
	var events []StreamEvent
	if resp.Content != "" {
		events = append(events, StreamEvent{Type: EventTextDelta, Text: resp.Content})
	}
	for i := range resp.ToolCalls {
		tc := resp.ToolCalls[i]
		events = append(events, StreamEvent{Type: EventToolCall, ToolCall: &tc})
	}
	events = append(events, StreamEvent{Type: EventFinish, Response: resp})
	return &ResponseStream{events: events}
}

func (s *ResponseStream) Recv() (StreamEvent, error) {
	if s.pos >= len(s.events) {
		return StreamEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *ResponseStream) Close() error { return nil }
