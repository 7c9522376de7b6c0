package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/KafClaw/sheetclaw/internal/approval"
)

// GatedToolNames lists the tools that require a confirmation, in the order
// natural-language approval scans them.
var GatedToolNames = approval.GatedTools()

// missingThread returns the MISSING_THREAD result when ctx carries no thread.
// Gated tools call it before validating their arguments.
func missingThread(ctx context.Context) (string, bool) {
	if strings.TrimSpace(ThreadIDFrom(ctx)) != "" {
		return "", false
	}
	return FailureResult(approval.CodeMissingThread, approval.ErrMissingThread.Error()), true
}

// runGated passes a call through the ledger and runs mutate only when an
// approved, matching confirmation was consumed. A mutate failure is returned
// both as a failure result and as an ExecutionError.
func runGated(ctx context.Context, ledger *approval.Ledger, toolName string, params map[string]any, mutate func() (map[string]any, error)) (string, error) {
	threadID := ThreadIDFrom(ctx)
	if err := ledger.Authorize(threadID, toolName, params); err != nil {
		slog.Debug("Gated tool blocked", "tool", toolName, "thread", threadID, "reason", approval.Code(err))
		return FailureResult(approval.Code(err), err.Error()), nil
	}

	result, err := mutate()
	if err != nil {
		slog.Warn("Confirmed action failed", "tool", toolName, "thread", threadID, "error", err)
		return FailureResult(CodeExecutionFailed, "The action was confirmed but could not be completed."),
			&ExecutionError{Op: toolName, Err: err}
	}
	if result == nil {
		result = map[string]any{}
	}
	result["success"] = true
	result["confirmed"] = true
	return encode(result), nil
}
