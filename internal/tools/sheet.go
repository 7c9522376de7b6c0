package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/grid"
)

// Sheet is the grid store contract the sheet tools need.
type Sheet interface {
	Read(ref string) ([][]any, error)
	WriteCell(ref string, value any) error
	WriteRange(ref string, values [][]any) error
	WriteCells(updates []grid.CellUpdate) error
}

var scalarSchema = map[string]any{
	"type": []string{"string", "number"},
}

// ReadSheetTool reads cells from the first sheet.
type ReadSheetTool struct {
	sheet Sheet
}

func NewReadSheetTool(sheet Sheet) *ReadSheetTool {
	return &ReadSheetTool{sheet: sheet}
}

func (t *ReadSheetTool) Name() string { return "readSheet" }
func (t *ReadSheetTool) Tier() int    { return TierReadOnly }

func (t *ReadSheetTool) Description() string {
	return "Read the contents of the spreadsheet. Optionally limit to a range such as \"A1:B5\" or \"Sheet1!A1\"."
}

func (t *ReadSheetTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"range": map[string]any{
				"type":        "string",
				"description": "Range to read, e.g. \"A1:B5\" or \"Sheet1!A1\". Omit to read everything.",
			},
		},
	}
}

// SheetResult is the successful readSheet payload.
type SheetResult struct {
	Success bool    `json:"success"`
	Range   string  `json:"range,omitempty"`
	Rows    [][]any `json:"rows"`
}

func (t *ReadSheetTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	ref := GetString(params, "range", "")
	rows, err := t.sheet.Read(ref)
	if err != nil {
		return FailureResult(CodeExecutionFailed, fmt.Sprintf("could not read sheet: %v", err)), nil
	}
	if rows == nil {
		rows = [][]any{}
	}
	return encode(SheetResult{Success: true, Range: grid.NormalizeRef(ref), Rows: rows}), nil
}

// DecodeSheetResult extracts the rows from a successful readSheet result.
func DecodeSheetResult(result string) ([][]any, bool) {
	var r SheetResult
	if err := json.Unmarshal([]byte(result), &r); err != nil || !r.Success {
		return nil, false
	}
	return r.Rows, true
}

// WriteCellTool writes one cell after confirmation.
type WriteCellTool struct {
	sheet  Sheet
	ledger *approval.Ledger
}

func NewWriteCellTool(sheet Sheet, ledger *approval.Ledger) *WriteCellTool {
	return &WriteCellTool{sheet: sheet, ledger: ledger}
}

func (t *WriteCellTool) Name() string { return approval.ToolWriteCell }
func (t *WriteCellTool) Tier() int    { return TierHighRisk }

func (t *WriteCellTool) Description() string {
	return "Write a value to a single cell. Requires an approved askForConfirmation with the same cell and value."
}

func (t *WriteCellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cell": map[string]any{
				"type":        "string",
				"description": "Cell address, e.g. \"A1\"",
			},
			"value": scalarSchema,
		},
		"required": []string{"cell", "value"},
	}
}

func (t *WriteCellTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if res, missing := missingThread(ctx); missing {
		return res, nil
	}
	cell := GetString(params, "cell", "")
	if _, _, err := grid.ParseCell(cell); err != nil {
		return FailureResult(CodeValidationFailed, err.Error()), nil
	}
	value, ok := params["value"]
	if !ok {
		return FailureResult(CodeValidationFailed, "value is required"), nil
	}
	return runGated(ctx, t.ledger, t.Name(), params, func() (map[string]any, error) {
		if err := t.sheet.WriteCell(cell, value); err != nil {
			return nil, err
		}
		return map[string]any{"cell": grid.NormalizeRef(cell), "value": value}, nil
	})
}

// WriteRangeTool writes a 2-D block after confirmation.
type WriteRangeTool struct {
	sheet  Sheet
	ledger *approval.Ledger
}

func NewWriteRangeTool(sheet Sheet, ledger *approval.Ledger) *WriteRangeTool {
	return &WriteRangeTool{sheet: sheet, ledger: ledger}
}

func (t *WriteRangeTool) Name() string { return approval.ToolWriteRange }
func (t *WriteRangeTool) Tier() int    { return TierHighRisk }

func (t *WriteRangeTool) Description() string {
	return "Write a 2-D array of values starting at the top-left of a range. Requires an approved askForConfirmation with the same range and values."
}

func (t *WriteRangeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"range": map[string]any{
				"type":        "string",
				"description": "Target range, e.g. \"A1:B2\"",
			},
			"values": map[string]any{
				"type":        "array",
				"description": "Rows of cell values",
				"items": map[string]any{
					"type":  "array",
					"items": scalarSchema,
				},
			},
		},
		"required": []string{"range", "values"},
	}
}

func (t *WriteRangeTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if res, missing := missingThread(ctx); missing {
		return res, nil
	}
	ref := GetString(params, "range", "")
	if _, err := grid.ParseRange(ref); err != nil {
		return FailureResult(CodeValidationFailed, err.Error()), nil
	}
	values, ok := approval.ToRows(params["values"])
	if !ok || len(values) == 0 {
		return FailureResult(CodeValidationFailed, "values must be a non-empty array of rows"), nil
	}
	return runGated(ctx, t.ledger, t.Name(), params, func() (map[string]any, error) {
		if err := t.sheet.WriteRange(ref, values); err != nil {
			return nil, err
		}
		return map[string]any{"range": grid.NormalizeRef(ref), "rows": len(values)}, nil
	})
}

// WriteCellsTool writes a list of individual cells after confirmation.
type WriteCellsTool struct {
	sheet  Sheet
	ledger *approval.Ledger
}

func NewWriteCellsTool(sheet Sheet, ledger *approval.Ledger) *WriteCellsTool {
	return &WriteCellsTool{sheet: sheet, ledger: ledger}
}

func (t *WriteCellsTool) Name() string { return approval.ToolWriteCells }
func (t *WriteCellsTool) Tier() int    { return TierHighRisk }

func (t *WriteCellsTool) Description() string {
	return "Write several individual cells at once. Requires an approved askForConfirmation with the same updates in the same order."
}

func (t *WriteCellsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"updates": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"cell":  map[string]any{"type": "string"},
						"value": scalarSchema,
					},
					"required": []string{"cell", "value"},
				},
			},
		},
		"required": []string{"updates"},
	}
}

func (t *WriteCellsTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if res, missing := missingThread(ctx); missing {
		return res, nil
	}
	updates, ok := approval.ToUpdates(params["updates"])
	if !ok || len(updates) == 0 {
		return FailureResult(CodeValidationFailed, "updates must be a non-empty list of {cell, value}"), nil
	}
	for _, u := range updates {
		if _, _, err := grid.ParseCell(u.Cell); err != nil {
			return FailureResult(CodeValidationFailed, err.Error()), nil
		}
	}
	return runGated(ctx, t.ledger, t.Name(), params, func() (map[string]any, error) {
		if err := t.sheet.WriteCells(updates); err != nil {
			return nil, err
		}
		return map[string]any{"updated": len(updates)}, nil
	})
}
