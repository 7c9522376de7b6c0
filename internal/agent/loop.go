// Package agent runs conversation turns: thread resolution, confirmation
// intent, the streamed model step loop and persistence of the result.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/audit"
	"github.com/KafClaw/sheetclaw/internal/provider"
	"github.com/KafClaw/sheetclaw/internal/tables"
	"github.com/KafClaw/sheetclaw/internal/threads"
	"github.com/KafClaw/sheetclaw/internal/tools"
)

const (
	defaultMaxSteps = 5
	// MaxStepsNotice is appended when the model is still calling tools after
	// the last step.
	MaxStepsNotice = "Max iterations reached. Please try a simpler request."
	// EmptyReply is persisted when the model produced no text at all.
	EmptyReply = "Done."
)

// ErrNoUserMessage is returned for a turn without any user message.
var ErrNoUserMessage = errors.New("turn has no user message")

// ThreadStore is the persistence the loop needs.
type ThreadStore interface {
	GetThread(ctx context.Context, id string) (*threads.Thread, error)
	CreateThread(ctx context.Context, id, title string) (*threads.Thread, error)
	AppendMessage(ctx context.Context, m threads.Message) (bool, error)
	ListMessages(ctx context.Context, threadID string) ([]threads.Message, error)
}

// LoopOptions contains all dependencies for creating a Loop.
type LoopOptions struct {
	Provider           provider.LLMProvider
	Registry           *tools.Registry
	Ledger             *approval.Ledger
	Threads            ThreadStore
	Tables             *tables.Cache
	Audit              audit.Publisher
	Model              string
	MaxTokens          int
	Temperature        float64
	MaxSteps           int
	HistoryTokenBudget int
	Counter            TokenCounter
}

// Loop is the conversation turn controller.
type Loop struct {
	provider       provider.LLMProvider
	registry       *tools.Registry
	ledger         *approval.Ledger
	threads        ThreadStore
	tables         *tables.Cache
	audit          audit.Publisher
	contextBuilder *ContextBuilder
	model          string
	maxTokens      int
	temperature    float64
	maxSteps       int
	historyBudget  int
	counter        TokenCounter
}

// NewLoop creates a new agent loop.
func NewLoop(opts LoopOptions) *Loop {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	model := opts.Model
	if model == "" && opts.Provider != nil {
		model = opts.Provider.DefaultModel()
	}
	cache := opts.Tables
	if cache == nil {
		cache = tables.NewCache()
	}
	pub := opts.Audit
	if pub == nil {
		pub = audit.Nop{}
	}
	counter := opts.Counter
	if counter == nil && opts.HistoryTokenBudget > 0 {
		counter = NewTokenCounter()
	}
	return &Loop{
		provider:       opts.Provider,
		registry:       opts.Registry,
		ledger:         opts.Ledger,
		threads:        opts.Threads,
		tables:         cache,
		audit:          pub,
		contextBuilder: NewContextBuilder(opts.Registry),
		model:          model,
		maxTokens:      maxTokens,
		temperature:    opts.Temperature,
		maxSteps:       maxSteps,
		historyBudget:  opts.HistoryTokenBudget,
		counter:        counter,
	}
}

// IncomingMessage is one message of the history supplied with a turn.
type IncomingMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the input of one turn. The last user message in Messages
// is the new one.
type TurnRequest struct {
	ThreadID string            `json:"threadId,omitempty"`
	Messages []IncomingMessage `json:"messages"`
}

// TurnResult describes a finalized turn.
type TurnResult struct {
	ThreadID        string
	MessageID       string
	Text            string
	Table           [][]any
	Intent          Intent
	Steps           int
	MaxStepsReached bool
	ThreadDeleted   bool
	Usage           provider.Usage
}

// stepOutcome accumulates what the step loop produced.
type stepOutcome struct {
	texts         []string
	table         [][]any
	hasTable      bool
	steps         int
	exhausted     bool
	threadDeleted bool
	toolCalls     int
	usage         provider.Usage
}

// RunTurn processes one user message end to end. Every successful turn
// persists exactly one assistant message, unless the turn deleted its own
// thread.
func (l *Loop) RunTurn(ctx context.Context, req TurnRequest, sink EventSink) (*TurnResult, error) {
	latest, ok := lastUserMessage(req.Messages)
	if !ok {
		return nil, ErrNoUserMessage
	}
	threadID := ResolveThreadID(req.ThreadID, req.Messages)
	started := time.Now()
	slog.Info("Turn started", "thread", threadID, "messages", len(req.Messages))
	audit.Emit(ctx, l.audit, audit.Event{Type: audit.EventTurnStarted, ThreadID: threadID})

	intent := l.applyIntent(threadID, latest.Content)

	if err := l.persistUserMessage(ctx, threadID, latest); err != nil {
		return nil, l.failTurn(ctx, threadID, err)
	}

	messages := make([]provider.Message, 0, len(req.Messages)+1)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: l.contextBuilder.BuildSystemPrompt()})
	history := l.contextBuilder.BuildMessages(req.Messages)
	if l.historyBudget > 0 {
		history = trimHistory(history, l.historyBudget, l.counter)
	}
	messages = append(messages, history...)

	out, err := l.runSteps(ctx, threadID, messages, sink)
	if err != nil {
		return nil, l.failTurn(ctx, threadID, err)
	}

	result, err := l.finalize(ctx, threadID, out, sink)
	if err != nil {
		return nil, l.failTurn(ctx, threadID, err)
	}
	result.Intent = intent

	slog.Info("Turn finished",
		"thread", threadID,
		"steps", out.steps,
		"tool_calls", out.toolCalls,
		"max_steps_reached", out.exhausted,
		"duration_ms", time.Since(started).Milliseconds())
	audit.Emit(ctx, l.audit, audit.Event{
		Type:     audit.EventTurnFinished,
		ThreadID: threadID,
		Detail: map[string]any{
			"steps":             out.steps,
			"tool_calls":        out.toolCalls,
			"max_steps_reached": out.exhausted,
			"total_tokens":      out.usage.TotalTokens,
		},
	})
	return result, nil
}

// ProcessDirect runs a turn for content against the stored history of
// threadID. An empty threadID starts a new thread.
func (l *Loop) ProcessDirect(ctx context.Context, threadID, content string, sink EventSink) (*TurnResult, error) {
	if strings.TrimSpace(threadID) == "" {
		threadID = uuid.NewString()
	}
	stored, err := l.threads.ListMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := make([]IncomingMessage, 0, len(stored)+1)
	for _, m := range stored {
		history = append(history, IncomingMessage{ID: m.ID, Role: m.Role, Content: m.Content})
	}
	history = append(history, IncomingMessage{ID: uuid.NewString(), Role: threads.RoleUser, Content: content})
	return l.RunTurn(ctx, TurnRequest{ThreadID: threadID, Messages: history}, sink)
}

// applyIntent updates the ledger from the user's wording. Decline drops every
// pending request of the thread; confirm approves the first waiting one.
func (l *Loop) applyIntent(threadID, text string) Intent {
	intent := DetectIntent(text)
	switch intent {
	case IntentDecline:
		if n := l.ledger.ClearAll(threadID); n > 0 {
			slog.Info("Declined pending confirmations", "thread", threadID, "cleared", n)
		}
	case IntentConfirm:
		for _, name := range tools.GatedToolNames {
			entry, ok := l.ledger.Get(threadID, name)
			if !ok || entry.Approved {
				continue
			}
			if l.ledger.Approve(threadID, name) {
				slog.Info("Approved pending confirmation", "thread", threadID, "tool", name)
			}
			break
		}
	}
	return intent
}

func (l *Loop) persistUserMessage(ctx context.Context, threadID string, m IncomingMessage) error {
	thread, err := l.threads.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("get thread: %w", err)
	}
	if thread == nil {
		if _, err := l.threads.CreateThread(ctx, threadID, threads.TitleFrom(m.Content)); err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
	}
	id := m.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	msg := threads.Message{
		ID:       id,
		ThreadID: threadID,
		Role:     threads.RoleUser,
		Content:  m.Content,
	}
	_, err = l.threads.AppendMessage(ctx, msg)
	if errors.Is(err, threads.ErrMessageIDConflict) {
		msg.ID = uuid.NewString()
		slog.Warn("User message id already used by another thread, storing under a new id",
			"thread", threadID, "message_id", id, "new_id", msg.ID)
		_, err = l.threads.AppendMessage(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	return nil
}

// runSteps drives the model for up to maxSteps streamed steps, executing the
// requested tools one after another.
func (l *Loop) runSteps(ctx context.Context, threadID string, messages []provider.Message, sink EventSink) (*stepOutcome, error) {
	toolDefs := l.buildToolDefinitions()
	toolCtx := tools.WithThreadID(ctx, threadID)
	out := &stepOutcome{}

	for i := 0; i < l.maxSteps; i++ {
		out.steps++
		stream, err := l.provider.ChatStream(ctx, &provider.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			Model:       l.model,
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("LLM call failed: %w", err)
		}
		resp, err := provider.Collect(stream, func(delta string) {
			sink.emit(Event{Type: EventText, ThreadID: threadID, Text: delta})
		})
		if err != nil {
			return nil, fmt.Errorf("LLM stream failed: %w", err)
		}
		out.usage.PromptTokens += resp.Usage.PromptTokens
		out.usage.CompletionTokens += resp.Usage.CompletionTokens
		out.usage.TotalTokens += resp.Usage.TotalTokens

		if strings.TrimSpace(resp.Content) != "" {
			out.texts = append(out.texts, strings.TrimSpace(resp.Content))
		}
		if len(resp.ToolCalls) == 0 {
			return out, nil
		}

		messages = append(messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			out.toolCalls++
			sink.emit(Event{Type: EventToolCall, ThreadID: threadID, ToolCallID: tc.ID, Tool: tc.Name, Args: tc.Arguments})
			result := l.executeTool(toolCtx, threadID, tc, sink)
			sink.emit(Event{Type: EventToolResult, ThreadID: threadID, ToolCallID: tc.ID, Tool: tc.Name, Result: result})

			switch tc.Name {
			case "readSheet":
				if rows, ok := tools.DecodeSheetResult(result); ok {
					out.table, out.hasTable = rows, true
				}
			case approval.ToolDeleteThread:
				if _, failed := tools.DecodeFailure(result); !failed {
					out.threadDeleted = true
				}
			}

			messages = append(messages, provider.Message{
				Role:       provider.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	out.exhausted = true
	slog.Warn("Turn reached max steps", "thread", threadID, "max_steps", l.maxSteps)
	return out, nil
}

// executeTool runs one call and always returns a result for the model. A
// failure after a consumed confirmation is also surfaced as an error event.
func (l *Loop) executeTool(ctx context.Context, threadID string, tc provider.ToolCall, sink EventSink) string {
	start := time.Now()
	result, err := l.registry.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		sink.emit(Event{Type: EventError, ThreadID: threadID, ToolCallID: tc.ID, Tool: tc.Name, Error: err.Error()})
		if tools.IsExecutionError(err) {
			return result
		}
		slog.Warn("Tool call failed", "tool", tc.Name, "thread", threadID, "error", err)
		return tools.FailureResult(tools.CodeToolFailed, err.Error())
	}
	slog.Debug("Tool executed", "tool", tc.Name, "thread", threadID, "duration_ms", time.Since(start).Milliseconds())
	return result
}

// finalize assembles the reply, attaches the table marker and persists the
// assistant message.
func (l *Loop) finalize(ctx context.Context, threadID string, out *stepOutcome, sink EventSink) (*TurnResult, error) {
	text := strings.Join(out.texts, "\n\n")
	if out.exhausted {
		if text == "" {
			text = MaxStepsNotice
		} else {
			text += "\n\n" + MaxStepsNotice
		}
	}
	if text == "" {
		text = EmptyReply
	}

	result := &TurnResult{
		ThreadID:        threadID,
		Text:            text,
		Steps:           out.steps,
		MaxStepsReached: out.exhausted,
		ThreadDeleted:   out.threadDeleted,
		Usage:           out.usage,
	}

	if out.threadDeleted {
		l.tables.Delete(threadID)
		slog.Info("Thread deleted during turn, reply not persisted", "thread", threadID)
		sink.emit(Event{Type: EventFinish, ThreadID: threadID, Text: text})
		return result, nil
	}

	persisted := text
	if out.hasTable {
		l.tables.Set(threadID, out.table)
		withMarker, err := tables.AppendMarker(text, out.table)
		if err != nil {
			return nil, fmt.Errorf("encode table: %w", err)
		}
		persisted = withMarker
		result.Table = out.table
	}

	result.MessageID = uuid.NewString()
	if _, err := l.threads.AppendMessage(ctx, threads.Message{
		ID:       result.MessageID,
		ThreadID: threadID,
		Role:     threads.RoleAssistant,
		Content:  persisted,
	}); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	sink.emit(Event{
		Type:      EventFinish,
		ThreadID:  threadID,
		MessageID: result.MessageID,
		Text:      text,
		Table:     result.Table,
	})
	return result, nil
}

func (l *Loop) failTurn(ctx context.Context, threadID string, err error) error {
	slog.Error("Turn failed", "thread", threadID, "error", err)
	audit.Emit(ctx, l.audit, audit.Event{
		Type:     audit.EventTurnFailed,
		ThreadID: threadID,
		Detail:   map[string]any{"error": err.Error()},
	})
	return err
}

func (l *Loop) buildToolDefinitions() []provider.ToolDefinition {
	list := l.registry.List()
	defs := make([]provider.ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

func lastUserMessage(messages []IncomingMessage) (IncomingMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == threads.RoleUser {
			return messages[i], true
		}
	}
	return IncomingMessage{}, false
}
