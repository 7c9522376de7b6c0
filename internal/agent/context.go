package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/KafClaw/sheetclaw/internal/provider"
	"github.com/KafClaw/sheetclaw/internal/tables"
	"github.com/KafClaw/sheetclaw/internal/threads"
	"github.com/KafClaw/sheetclaw/internal/tools"
)

// ContextBuilder assembles the system prompt and messages.
type ContextBuilder struct {
	registry *tools.Registry
	now      func() time.Time
}

// NewContextBuilder creates a new ContextBuilder.
func NewContextBuilder(registry *tools.Registry) *ContextBuilder {
	return &ContextBuilder{registry: registry, now: time.Now}
}

// BuildSystemPrompt describes the assistant, the spreadsheet and the
// confirmation protocol for the tools that mutate state.
func (b *ContextBuilder) BuildSystemPrompt() string {
	var parts []string

	parts = append(parts, fmt.Sprintf(`# SheetClaw

You are a helpful assistant with access to a spreadsheet (the first sheet of one workbook) and to the current chat thread.
Today is %s.

Use readSheet to look at the data before answering questions about it. Cell addresses use column letters and 1-based rows, e.g. "B2" or "A1:D5".`,
		b.now().Format("2006-01-02 (Monday)")))

	var gated []string
	for _, t := range b.registry.List() {
		if tools.ToolTier(t) == tools.TierHighRisk {
			gated = append(gated, "- "+t.Name())
		}
	}
	if len(gated) > 0 {
		parts = append(parts, `# Confirmation protocol

These tools change data and only run after the user approved the exact call:
`+strings.Join(gated, "\n")+`

1. Call askForConfirmation first with toolName set to the tool and toolParamsJson set to the exact JSON arguments you will use.
2. Stop and wait. The user approves in the next message (or through the UI).
3. Once approved, call the tool with exactly the same arguments. Any difference is rejected with PARAM_MISMATCH.
4. If a tool result reports CONFIRMATION_REQUIRED, AWAITING_APPROVAL or PARAM_MISMATCH, explain it to the user and ask again. Never retry silently.
5. If the user declines, do not call the tool.`)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

// BuildMessages converts stored or supplied history into model messages,
// removing table markers from the text.
func (b *ContextBuilder) BuildMessages(history []IncomingMessage) []provider.Message {
	out := make([]provider.Message, 0, len(history))
	for _, m := range history {
		role := provider.RoleUser
		if m.Role == threads.RoleAssistant {
			role = provider.RoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: tables.Strip(m.Content)})
	}
	return out
}
