package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/audit"
	"github.com/KafClaw/sheetclaw/internal/tables"
	"github.com/KafClaw/sheetclaw/internal/threads"
)

type ThreadHandler struct {
	store  *threads.Store
	ledger *approval.Ledger
	tables *tables.Cache
	audit  audit.Publisher
}

func NewThreadHandler(store *threads.Store, ledger *approval.Ledger, cache *tables.Cache, pub audit.Publisher) *ThreadHandler {
	return &ThreadHandler{store: store, ledger: ledger, tables: cache, audit: pub}
}

// messageView is a stored message with its table marker lifted out.
type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Table     [][]any   `json:"table,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newMessageView(m threads.Message) messageView {
	clean, table, _ := tables.ExtractMarker(m.Content)
	return messageView{ID: m.ID, Role: m.Role, Content: clean, Table: table, CreatedAt: m.CreatedAt}
}

// List handles GET /api/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListThreads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []threads.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": list})
}

// Create handles POST /api/threads
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	thread, err := h.store.CreateThread(r.Context(), uuid.NewString(), threads.TitleFrom(strings.TrimSpace(req.Message)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

// Get handles GET /api/threads/{id}
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	thread, err := h.store.GetThread(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, newMessageView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread":   thread,
		"messages": views,
	})
}

// Delete handles DELETE /api/threads/{id}
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.store.DeleteThread(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	cleared := h.ledger.ClearAll(id)
	h.tables.Delete(id)
	slog.Info("Thread deleted", "thread", id, "cleared_confirmations", cleared)
	audit.Emit(r.Context(), h.audit, audit.Event{
		Type:     audit.EventThreadDeleted,
		ThreadID: id,
		Detail:   map[string]any{"source": "api"},
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// Table handles GET /api/threads/{id}/table. The cache wins; otherwise the
// newest marker in the stored messages is used and cached.
func (h *ThreadHandler) Table(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if table, ok := h.tables.Get(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"table": table, "source": "cache"})
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if _, table, ok := tables.ExtractMarker(msgs[i].Content); ok {
			h.tables.Set(id, table)
			writeJSON(w, http.StatusOK, map[string]any{"table": table, "source": "history"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no table for thread")
}

type ConfirmationHandler struct {
	ledger *approval.Ledger
}

func NewConfirmationHandler(ledger *approval.Ledger) *ConfirmationHandler {
	return &ConfirmationHandler{ledger: ledger}
}

// List handles GET /api/threads/{id}/confirmations
func (h *ConfirmationHandler) List(w http.ResponseWriter, r *http.Request) {
	pending := h.ledger.Pending(chi.URLParam(r, "id"))
	if pending == nil {
		pending = []approval.PendingConfirmation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"confirmations": pending})
}

// Approve handles POST /api/threads/{id}/confirmations/{tool}/approve
func (h *ConfirmationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, tool := chi.URLParam(r, "id"), chi.URLParam(r, "tool")
	if !approval.IsGated(tool) {
		writeError(w, http.StatusBadRequest, "unknown gated tool: "+tool)
		return
	}
	if !h.ledger.Approve(id, tool) {
		writeError(w, http.StatusNotFound, "no pending confirmation")
		return
	}
	entry, _ := h.ledger.Get(id, tool)
	writeJSON(w, http.StatusOK, entry)
}

// Decline handles POST /api/threads/{id}/confirmations/{tool}/decline
func (h *ConfirmationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	id, tool := chi.URLParam(r, "id"), chi.URLParam(r, "tool")
	if !approval.IsGated(tool) {
		writeError(w, http.StatusBadRequest, "unknown gated tool: "+tool)
		return
	}
	if !h.ledger.Clear(id, tool) {
		writeError(w, http.StatusNotFound, "no pending confirmation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"declined": true})
}
