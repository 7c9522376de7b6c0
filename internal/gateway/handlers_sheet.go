package gateway

import (
	"errors"
	"net/http"
	"os"

	"github.com/KafClaw/sheetclaw/internal/grid"
)

type HealthHandler struct {
	sheet *grid.Store
}

func NewHealthHandler(sheet *grid.Store) *HealthHandler {
	return &HealthHandler{sheet: sheet}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "workbook": "ok"}
	if h.sheet == nil {
		resp["workbook"] = "unconfigured"
	} else if _, err := os.Stat(h.sheet.Path()); err != nil {
		resp["workbook"] = "missing"
		resp["status"] = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

type SheetHandler struct {
	sheet *grid.Store
}

func NewSheetHandler(sheet *grid.Store) *SheetHandler {
	return &SheetHandler{sheet: sheet}
}

// Read handles GET /api/sheet?range=
func (h *SheetHandler) Read(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("range")
	rows, err := h.sheet.Read(ref)
	if err != nil {
		if errors.Is(err, grid.ErrInvalidRef) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"range": grid.NormalizeRef(ref),
		"rows":  rows,
	})
}
