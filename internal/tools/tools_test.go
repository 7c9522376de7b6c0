package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/grid"
	"github.com/KafClaw/sheetclaw/internal/threads"
)

type fixture struct {
	ctx      context.Context
	sheet    *grid.Store
	store    *threads.Store
	ledger   *approval.Ledger
	registry *Registry
	deleted  []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	sheet := grid.NewStore(filepath.Join(dir, "example.xlsx"))
	if err := sheet.Seed(false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store, err := threads.Open("", filepath.Join(dir, "threads.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		ctx:      WithThreadID(context.Background(), "t1"),
		sheet:    sheet,
		store:    store,
		ledger:   approval.NewLedger(0, nil),
		registry: NewRegistry(),
	}
	RegisterDefaults(f.registry, sheet, store, f.ledger, func(id string) { f.deleted = append(f.deleted, id) })
	return f
}

func (f *fixture) run(t *testing.T, name string, params map[string]any) string {
	t.Helper()
	out, err := f.registry.Execute(f.ctx, name, params)
	if err != nil {
		t.Fatalf("%s: unexpected error %v", name, err)
	}
	return out
}

func expectCode(t *testing.T, result, code string) {
	t.Helper()
	failure, ok := DecodeFailure(result)
	if !ok {
		t.Fatalf("expected failure %s, got %s", code, result)
	}
	if failure.ErrorCode != code {
		t.Fatalf("expected %s, got %s (%s)", code, failure.ErrorCode, failure.Message)
	}
}

func TestRegistry(t *testing.T) {
	f := newFixture(t)

	names := make([]string, 0)
	for _, tool := range f.registry.List() {
		names = append(names, tool.Name())
	}
	want := "askForConfirmation,deleteThread,getWeather,readSheet,writeCell,writeCells,writeRange"
	if strings.Join(names, ",") != want {
		t.Errorf("unexpected tool list %v", names)
	}

	if _, err := f.registry.Execute(f.ctx, "nonexistent", nil); err == nil {
		t.Error("expected error for unknown tool")
	}

	for _, name := range GatedToolNames {
		tool, ok := f.registry.Get(name)
		if !ok {
			t.Fatalf("gated tool %s not registered", name)
		}
		if ToolTier(tool) != TierHighRisk {
			t.Errorf("expected %s to be high risk", name)
		}
	}
}

func TestWeatherTool(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, "getWeather", map[string]any{"location": "Berlin"})
	if !strings.Contains(out, `"temperature":72`) || !strings.Contains(out, `"condition":"Sunny"`) {
		t.Errorf("unexpected weather %s", out)
	}
	expectCode(t, f.run(t, "getWeather", nil), CodeValidationFailed)
}

func TestReadSheetTool(t *testing.T) {
	f := newFixture(t)
	rows, ok := DecodeSheetResult(f.run(t, "readSheet", map[string]any{"range": "@Sheet1!A1:B2"}))
	if !ok {
		t.Fatal("expected sheet result")
	}
	if len(rows) != 2 || rows[1][1] != "Alice" {
		t.Errorf("unexpected rows %v", rows)
	}
	expectCode(t, f.run(t, "readSheet", map[string]any{"range": "nope"}), CodeExecutionFailed)
}

func TestWriteCellRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	args := map[string]any{"cell": "A1", "value": "Test"}

	expectCode(t, f.run(t, "writeCell", args), approval.CodeConfirmationRequired)

	f.run(t, "askForConfirmation", map[string]any{
		"message":        "Write Test to A1?",
		"action":         "Update cell",
		"toolName":       "writeCell",
		"toolParamsJson": `{"cell":"A1","value":"Test"}`,
	})
	expectCode(t, f.run(t, "writeCell", args), approval.CodeAwaitingApproval)

	f.ledger.Approve("t1", "writeCell")
	expectCode(t, f.run(t, "writeCell", map[string]any{"cell": "A1", "value": "Other"}), approval.CodeParamMismatch)

	out := f.run(t, "writeCell", args)
	if !strings.Contains(out, `"confirmed":true`) {
		t.Fatalf("expected confirmed result, got %s", out)
	}
	rows, _ := f.sheet.Read("A1")
	if rows[0][0] != "Test" {
		t.Errorf("expected A1=Test, got %v", rows[0][0])
	}
	if _, ok := f.ledger.Get("t1", "writeCell"); ok {
		t.Error("expected confirmation consumed")
	}
}

func TestGatedToolWithoutThread(t *testing.T) {
	f := newFixture(t)
	out, err := f.registry.Execute(context.Background(), "writeCell", map[string]any{"cell": "A1", "value": 1})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	expectCode(t, out, approval.CodeMissingThread)

	out, _ = f.registry.Execute(context.Background(), "askForConfirmation", map[string]any{"toolName": "writeCell"})
	expectCode(t, out, approval.CodeMissingThread)

	for name, params := range map[string]map[string]any{
		"writeCell":  {"cell": "not a cell"},
		"writeRange": {"range": "A1:B2:C3"},
		"writeCells": {"updates": "nope"},
	} {
		out, _ := f.registry.Execute(context.Background(), name, params)
		expectCode(t, out, approval.CodeMissingThread)
	}
}

func TestWriteRangeAndCells(t *testing.T) {
	f := newFixture(t)

	f.ledger.Store("t1", "Range", "?", "writeRange", map[string]any{"range": "F1:G1", "values": []any{[]any{"x", "1"}}})
	f.ledger.Approve("t1", "writeRange")
	out := f.run(t, "writeRange", map[string]any{"range": "f1:g1", "values": []any{[]any{"x", float64(1)}}})
	if _, failed := DecodeFailure(out); failed {
		t.Fatalf("writeRange failed: %s", out)
	}

	updates := []any{map[string]any{"cell": "D2", "value": "Refunded"}, map[string]any{"cell": "D5", "value": "Paid"}}
	f.ledger.Store("t1", "Cells", "?", "writeCells", map[string]any{"updates": updates})
	f.ledger.Approve("t1", "writeCells")
	out = f.run(t, "writeCells", map[string]any{"updates": updates})
	if !strings.Contains(out, `"updated":2`) {
		t.Fatalf("unexpected writeCells result %s", out)
	}

	rows, _ := f.sheet.Read("F1:G1")
	if rows[0][0] != "x" || rows[0][1] != float64(1) {
		t.Errorf("unexpected range contents %v", rows)
	}
	rows, _ = f.sheet.Read("D2:D5")
	if rows[0][0] != "Refunded" || rows[3][0] != "Paid" {
		t.Errorf("unexpected cells %v", rows)
	}

	expectCode(t, f.run(t, "writeRange", map[string]any{"range": "A1", "values": "nope"}), CodeValidationFailed)
	expectCode(t, f.run(t, "writeCells", map[string]any{"updates": []any{map[string]any{"cell": "??", "value": 1}}}), CodeValidationFailed)
}

func TestDeleteThreadTool(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.CreateThread(f.ctx, "t1", "Hello"); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.run(t, "askForConfirmation", map[string]any{
		"message": "Delete this chat?", "action": "Delete", "toolName": "deleteThread", "toolParamsJson": "{}",
	})
	f.ledger.Store("t1", "Update", "?", "writeCell", map[string]any{"cell": "A1", "value": 1})
	f.ledger.Approve("t1", "deleteThread")

	out := f.run(t, "deleteThread", nil)
	if !strings.Contains(out, `"deleted":true`) {
		t.Fatalf("unexpected result %s", out)
	}
	if th, _ := f.store.GetThread(f.ctx, "t1"); th != nil {
		t.Error("expected thread deleted")
	}
	if len(f.ledger.Pending("t1")) != 0 {
		t.Error("expected remaining confirmations cleared")
	}
	if len(f.deleted) != 1 || f.deleted[0] != "t1" {
		t.Errorf("expected delete hook, got %v", f.deleted)
	}
}

type failingSheet struct{ grid.Store }

func (*failingSheet) WriteCell(string, any) error { return errors.New("disk full") }

func TestExecutionFailureConsumesConfirmation(t *testing.T) {
	ledger := approval.NewLedger(0, nil)
	tool := NewWriteCellTool(&failingSheet{}, ledger)
	ctx := WithThreadID(context.Background(), "t1")
	args := map[string]any{"cell": "A1", "value": "x"}
	ledger.Store("t1", "Update", "?", "writeCell", args)
	ledger.Approve("t1", "writeCell")

	out, err := tool.Execute(ctx, args)
	if !IsExecutionError(err) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	expectCode(t, out, CodeExecutionFailed)
	if _, ok := ledger.Get("t1", "writeCell"); ok {
		t.Error("expected confirmation to stay consumed after failure")
	}
}

func TestConfirmToolValidation(t *testing.T) {
	f := newFixture(t)
	expectCode(t, f.run(t, "askForConfirmation", map[string]any{"toolName": "readSheet"}), CodeValidationFailed)
	expectCode(t, f.run(t, "askForConfirmation", map[string]any{"toolName": "writeCell", "toolParamsJson": "[1,2]"}), CodeValidationFailed)

	out := f.run(t, "askForConfirmation", map[string]any{
		"message": "Sure?", "action": "Update", "toolName": "writeCell",
		"toolParamsJson": map[string]any{"cell": "B2", "value": 5},
	})
	res, ok := DecodeConfirmResult(out)
	if !ok || res.Key != "t1:writeCell" || res.Status != "pending" || res.Params["cell"] != "B2" {
		t.Fatalf("unexpected confirm result %s", out)
	}
}
