package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/KafClaw/sheetclaw/internal/agent"
)

type ChatHandler struct {
	loop *agent.Loop
}

func NewChatHandler(loop *agent.Loop) *ChatHandler {
	return &ChatHandler{loop: loop}
}

// Chat handles POST /api/chat. Turn events are streamed as NDJSON; a turn
// that fails before its first event gets a plain 500 instead.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req agent.TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	req.ThreadID = agent.ResolveThreadID(req.ThreadID, req.Messages)

	stream := &ndjsonStream{w: w}
	if _, err := h.loop.RunTurn(r.Context(), req, stream.send); err != nil {
		switch {
		case stream.started:
			stream.send(agent.Event{Type: agent.EventError, ThreadID: req.ThreadID, Error: err.Error()})
		case errors.Is(err, agent.ErrNoUserMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("Chat turn failed", "thread", req.ThreadID, "request_id", GetRequestID(r), "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Internal Server Error",
				"details": err.Error(),
			})
		}
	}
}

// ndjsonStream writes one JSON object per line, sending headers with the
// first event.
type ndjsonStream struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	started bool
}

func (s *ndjsonStream) send(ev agent.Event) {
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.WriteHeader(http.StatusOK)
		s.enc = json.NewEncoder(s.w)
		s.started = true
	}
	if err := s.enc.Encode(ev); err != nil {
		slog.Debug("Chat stream write failed", "error", err)
		return
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
