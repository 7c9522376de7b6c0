package tools

import (
	"context"
	"fmt"

	"github.com/KafClaw/sheetclaw/internal/approval"
)

// ThreadDeleter removes a thread and its messages.
type ThreadDeleter interface {
	DeleteThread(ctx context.Context, id string) (bool, error)
}

// DeleteThreadTool deletes the active thread after confirmation.
type DeleteThreadTool struct {
	store     ThreadDeleter
	ledger    *approval.Ledger
	onDeleted func(threadID string)
}

// NewDeleteThreadTool creates the tool. onDeleted, when set, runs after a
// successful delete so callers can drop per-thread caches.
func NewDeleteThreadTool(store ThreadDeleter, ledger *approval.Ledger, onDeleted func(threadID string)) *DeleteThreadTool {
	return &DeleteThreadTool{store: store, ledger: ledger, onDeleted: onDeleted}
}

func (t *DeleteThreadTool) Name() string { return approval.ToolDeleteThread }
func (t *DeleteThreadTool) Tier() int    { return TierHighRisk }

func (t *DeleteThreadTool) Description() string {
	return "Delete the current conversation thread and all of its messages. Requires an approved askForConfirmation."
}

func (t *DeleteThreadTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *DeleteThreadTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	threadID := ThreadIDFrom(ctx)
	return runGated(ctx, t.ledger, t.Name(), params, func() (map[string]any, error) {
		deleted, err := t.store.DeleteThread(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return nil, fmt.Errorf("thread %s not found", threadID)
		}
		t.ledger.ClearAll(threadID)
		if t.onDeleted != nil {
			t.onDeleted(threadID)
		}
		return map[string]any{"threadId": threadID, "deleted": true}, nil
	})
}
