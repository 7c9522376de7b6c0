package approval

import (
	"errors"
	"testing"
)

func TestAuthorizeStates(t *testing.T) {
	l, _ := newTestLedger(t)
	args := map[string]any{"cell": "A1", "value": "Test"}

	if err := l.Authorize("", ToolWriteCell, args); !errors.Is(err, ErrMissingThread) {
		t.Fatalf("expected ErrMissingThread, got %v", err)
	}
	if err := l.Authorize("t1", ToolWriteCell, args); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}

	l.Store("t1", "Update cell", "Write Test to A1?", ToolWriteCell, args)
	if err := l.Authorize("t1", ToolWriteCell, args); !errors.Is(err, ErrAwaitingApproval) {
		t.Fatalf("expected ErrAwaitingApproval, got %v", err)
	}

	l.Approve("t1", ToolWriteCell)
	if err := l.Authorize("t1", ToolWriteCell, args); err != nil {
		t.Fatalf("expected authorization, got %v", err)
	}
	if _, ok := l.Get("t1", ToolWriteCell); ok {
		t.Fatal("expected confirmation consumed")
	}
	if err := l.Authorize("t1", ToolWriteCell, args); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected one-shot consumption, got %v", err)
	}
}

func TestAuthorizeMismatchKeepsEntry(t *testing.T) {
	l, _ := newTestLedger(t)
	l.Store("t1", "Update", "?", ToolWriteCell, map[string]any{"cell": "A1", "value": "P"})
	l.Approve("t1", ToolWriteCell)

	err := l.Authorize("t1", ToolWriteCell, map[string]any{"cell": "A1", "value": "Q"})
	if !errors.Is(err, ErrParamMismatch) {
		t.Fatalf("expected ErrParamMismatch, got %v", err)
	}
	if Code(err) != CodeParamMismatch {
		t.Errorf("expected code %s, got %s", CodeParamMismatch, Code(err))
	}
	entry, ok := l.Get("t1", ToolWriteCell)
	if !ok || !entry.Approved {
		t.Fatalf("expected entry still present and approved, got %+v ok=%v", entry, ok)
	}
}

func TestAuthorizeNumericStringEquivalence(t *testing.T) {
	l, _ := newTestLedger(t)
	l.Store("t1", "Update", "?", ToolWriteCell, map[string]any{"cell": "A1", "value": float64(100)})
	l.Approve("t1", ToolWriteCell)

	if err := l.Authorize("t1", ToolWriteCell, map[string]any{"cell": "A1", "value": "100"}); err != nil {
		t.Fatalf("expected coerced match, got %v", err)
	}
}

func TestAuthorizeDeleteThreadHasNoParams(t *testing.T) {
	l, _ := newTestLedger(t)
	l.Store("t1", "Delete", "Delete this chat?", ToolDeleteThread, nil)
	l.Approve("t1", ToolDeleteThread)
	if err := l.Authorize("t1", ToolDeleteThread, map[string]any{"anything": true}); err != nil {
		t.Fatalf("expected deleteThread to authorize, got %v", err)
	}
}

func TestAuthorizeKeysAreIndependent(t *testing.T) {
	l, _ := newTestLedger(t)
	l.Store("t1", "Update", "?", ToolWriteCell, map[string]any{"cell": "A1", "value": 1})
	l.Approve("t1", ToolWriteCell)

	if err := l.Authorize("t2", ToolWriteCell, map[string]any{"cell": "A1", "value": 1}); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("approval leaked across threads: %v", err)
	}
	if err := l.Authorize("t1", ToolWriteRange, map[string]any{"range": "A1", "values": []any{[]any{1}}}); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("approval leaked across tools: %v", err)
	}
}

func TestCode(t *testing.T) {
	tests := map[error]string{
		ErrMissingThread:        CodeMissingThread,
		ErrConfirmationRequired: CodeConfirmationRequired,
		ErrAwaitingApproval:     CodeAwaitingApproval,
		errors.New("other"):     "",
	}
	for err, want := range tests {
		if got := Code(err); got != want {
			t.Errorf("Code(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestIsGated(t *testing.T) {
	for _, name := range GatedTools() {
		if !IsGated(name) {
			t.Errorf("expected %s gated", name)
		}
	}
	for _, name := range []string{"readSheet", "getWeather", "askForConfirmation"} {
		if IsGated(name) {
			t.Errorf("expected %s ungated", name)
		}
	}
}
