package approval

import (
	"fmt"
	"strings"

	"github.com/KafClaw/sheetclaw/internal/audit"
)

// Gated tool names, in the order natural-language confirmation scans them.
const (
	ToolWriteCell    = "writeCell"
	ToolWriteRange   = "writeRange"
	ToolWriteCells   = "writeCells"
	ToolDeleteThread = "deleteThread"
)

var gatedTools = []string{ToolWriteCell, ToolWriteRange, ToolWriteCells, ToolDeleteThread}

// GatedTools returns the gated tool names in scan order.
func GatedTools() []string {
	return append([]string(nil), gatedTools...)
}

// IsGated reports whether toolName requires a confirmation.
func IsGated(toolName string) bool {
	for _, name := range gatedTools {
		if name == toolName {
			return true
		}
	}
	return false
}

// Authorize runs the gate for one gated call. On success the confirmation is
// consumed and the caller must perform the mutation; any error leaves the
// ledger as it was, except for lazy expiry.
func (l *Ledger) Authorize(threadID, toolName string, args map[string]any) error {
	if strings.TrimSpace(threadID) == "" {
		return ErrMissingThread
	}

	l.mu.Lock()
	entry, expired := l.liveLocked(threadID, toolName)
	var (
		err   error
		field string
	)
	switch {
	case entry == nil:
		err = ErrConfirmationRequired
	case !entry.Approved:
		err = ErrAwaitingApproval
	default:
		var ok bool
		if field, ok = MatchParams(toolName, entry.Params, args); ok {
			delete(l.entries, entry.Key)
		} else {
			err = fmt.Errorf("%w: %s differs", ErrParamMismatch, field)
		}
	}
	l.mu.Unlock()

	if expired {
		l.emit(audit.EventConfirmationExpired, threadID, toolName, nil)
	}
	switch {
	case err == nil:
		l.emit(audit.EventConfirmationConsumed, threadID, toolName, nil)
	case field != "":
		l.emit(audit.EventConfirmationMismatch, threadID, toolName, map[string]any{"field": field})
	}
	return err
}
