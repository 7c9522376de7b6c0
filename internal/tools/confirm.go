package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KafClaw/sheetclaw/internal/approval"
)

// ConfirmTool records a pending confirmation the user must approve before a
// gated tool may run.
type ConfirmTool struct {
	ledger *approval.Ledger
}

func NewConfirmTool(ledger *approval.Ledger) *ConfirmTool {
	return &ConfirmTool{ledger: ledger}
}

func (t *ConfirmTool) Name() string { return "askForConfirmation" }
func (t *ConfirmTool) Tier() int    { return TierWrite }

func (t *ConfirmTool) Description() string {
	return "Ask the user to confirm a modifying action before running it. " +
		"toolName must be the exact tool to run next and toolParamsJson the exact JSON arguments it will be called with."
}

func (t *ConfirmTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The question to show the user",
			},
			"action": map[string]any{
				"type":        "string",
				"description": "Short label for the action, e.g. \"Update cell\"",
			},
			"toolName": map[string]any{
				"type":        "string",
				"enum":        approval.GatedTools(),
				"description": "The tool that will run once the user approves",
			},
			"toolParamsJson": map[string]any{
				"type":        "string",
				"description": "JSON object with the exact arguments for toolName, e.g. {\"cell\":\"A1\",\"value\":\"Test\"}",
			},
		},
		"required": []string{"message", "action", "toolName", "toolParamsJson"},
	}
}

// ConfirmResult is echoed back so a UI can render the approval prompt.
type ConfirmResult struct {
	Success  bool           `json:"success"`
	Status   string         `json:"status"`
	Key      string         `json:"key"`
	Message  string         `json:"message"`
	Action   string         `json:"action"`
	ToolName string         `json:"toolName"`
	Params   map[string]any `json:"params"`
}

func (t *ConfirmTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	threadID := ThreadIDFrom(ctx)
	if strings.TrimSpace(threadID) == "" {
		return FailureResult(approval.CodeMissingThread, approval.ErrMissingThread.Error()), nil
	}
	toolName := GetString(params, "toolName", "")
	if !approval.IsGated(toolName) {
		return FailureResult(CodeValidationFailed,
			fmt.Sprintf("toolName must be one of %s", strings.Join(approval.GatedTools(), ", "))), nil
	}
	toolParams, err := parseToolParams(params["toolParamsJson"])
	if err != nil {
		return FailureResult(CodeValidationFailed, err.Error()), nil
	}
	message := GetString(params, "message", "")
	action := GetString(params, "action", toolName)

	key := t.ledger.Store(threadID, action, message, toolName, toolParams)
	return encode(ConfirmResult{
		Success:  true,
		Status:   "pending",
		Key:      key,
		Message:  message,
		Action:   action,
		ToolName: toolName,
		Params:   toolParams,
	}), nil
}

// parseToolParams accepts a JSON object string, an already-decoded object,
// or nothing (for parameterless tools).
func parseToolParams(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return x, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return map[string]any{}, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(x), &out); err != nil {
			return nil, fmt.Errorf("toolParamsJson must be a JSON object: %v", err)
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	}
	return nil, fmt.Errorf("toolParamsJson must be a JSON object string")
}

// DecodeConfirmResult parses a successful askForConfirmation result.
func DecodeConfirmResult(result string) (ConfirmResult, bool) {
	var r ConfirmResult
	if err := json.Unmarshal([]byte(result), &r); err != nil || !r.Success {
		return ConfirmResult{}, false
	}
	return r, true
}

// RegisterDefaults registers every spreadsheet, thread and confirmation tool.
func RegisterDefaults(r *Registry, sheet Sheet, threads ThreadDeleter, ledger *approval.Ledger, onThreadDeleted func(string)) {
	r.Register(NewWeatherTool())
	r.Register(NewConfirmTool(ledger))
	r.Register(NewReadSheetTool(sheet))
	r.Register(NewWriteCellTool(sheet, ledger))
	r.Register(NewWriteRangeTool(sheet, ledger))
	r.Register(NewWriteCellsTool(sheet, ledger))
	r.Register(NewDeleteThreadTool(threads, ledger, onThreadDeleted))
}
