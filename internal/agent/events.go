package agent

// EventType names a turn event delivered to an EventSink.
type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventFinish     EventType = "finish"
)

// Event is one streamed turn event. The gateway writes them as NDJSON lines.
type Event struct {
	Type       EventType      `json:"type"`
	ThreadID   string         `json:"threadId,omitempty"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	MessageID  string         `json:"messageId,omitempty"`
	Table      [][]any        `json:"table,omitempty"`
}

// EventSink receives turn events in order. It is called on the turn's
// goroutine.
type EventSink func(Event)

func (s EventSink) emit(ev Event) {
	if s != nil {
		s(ev)
	}
}
