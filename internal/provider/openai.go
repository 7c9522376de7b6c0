package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements LLMProvider on the OpenAI chat completions API,
// including Azure OpenAI deployments.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates a provider for OpenAI or any compatible base URL.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if apiBase != "" {
		cfg.BaseURL = strings.TrimSuffix(apiBase, "/")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), defaultModel: defaultModel}
}

// NewAzureProvider creates a provider for an Azure OpenAI deployment. Every
// request is routed to deployment regardless of the model name.
func NewAzureProvider(apiKey, endpoint, apiVersion, deployment string) *OpenAIProvider {
	cfg := openai.DefaultAzureConfig(apiKey, strings.TrimSuffix(endpoint, "/"))
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	if deployment == "" {
		deployment = "gpt-4o"
	}
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), defaultModel: deployment}
}

// DefaultModel returns the configured default model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// ChatStream starts a streamed completion.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req *ChatRequest) (Stream, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	apiReq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      convertMessages(req.Messages),
		Tools:         convertTools(req.Tools),
		MaxTokens:     req.MaxTokens,
		Temperature:   float32(req.Temperature),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	s, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return &openAIStream{src: s, asm: newToolCallAssembler()}, nil
}

type chunkSource interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// openAIStream turns completion chunks into StreamEvents. Tool calls arrive
// as fragments keyed by index and are emitted once the step ends.
type openAIStream struct {
	src     chunkSource
	asm     *toolCallAssembler
	pending []StreamEvent
	text    strings.Builder
	finish  string
	usage   Usage
	done    bool
}

func (s *openAIStream) Recv() (StreamEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return StreamEvent{}, io.EOF
		}

		chunk, err := s.src.Recv()
		if errors.Is(err, io.EOF) {
			s.finishStep()
			continue
		}
		if err != nil {
			return StreamEvent{}, fmt.Errorf("chat completion stream: %w", err)
		}
		if chunk.Usage != nil {
			s.usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				s.finish = string(choice.FinishReason)
			}
			for _, tc := range choice.Delta.ToolCalls {
				s.asm.add(tc)
			}
			if choice.Delta.Content != "" {
				s.text.WriteString(choice.Delta.Content)
				s.pending = append(s.pending, StreamEvent{Type: EventTextDelta, Text: choice.Delta.Content})
			}
		}
	}
}

func (s *openAIStream) finishStep() {
	calls := s.asm.calls()
	for i := range calls {
		tc := calls[i]
		s.pending = append(s.pending, StreamEvent{Type: EventToolCall, ToolCall: &tc})
	}
	finish := s.finish
	if finish == "" {
		finish = "stop"
	}
	s.pending = append(s.pending, StreamEvent{Type: EventFinish, Response: &ChatResponse{
		Content:      s.text.String(),
		ToolCalls:    calls,
		FinishReason: finish,
		Usage:        s.usage,
	}})
	s.done = true
}

func (s *openAIStream) Close() error {
	return s.src.Close()
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// toolCallAssembler joins streamed tool call fragments.
type toolCallAssembler struct {
	byIndex map[int]*partialCall
	next    int
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIndex: make(map[int]*partialCall)}
}

func (a *toolCallAssembler) add(tc openai.ToolCall) {
	idx := a.next
	if tc.Index != nil {
		idx = *tc.Index
	} else if tc.ID == "" && len(a.byIndex) > 0 {
		// Continuation fragment without an index belongs to the last call.
		idx = a.next - 1
	}
	pc, ok := a.byIndex[idx]
	if !ok {
		pc = &partialCall{}
		a.byIndex[idx] = pc
		if idx >= a.next {
			a.next = idx + 1
		}
	}
	if tc.ID != "" {
		pc.id = tc.ID
	}
	if tc.Function.Name != "" {
		pc.name = tc.Function.Name
	}
	pc.args.WriteString(tc.Function.Arguments)
}

func (a *toolCallAssembler) calls() []ToolCall {
	indexes := make([]int, 0, len(a.byIndex))
	for i := range a.byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		pc := a.byIndex[i]
		if pc.name == "" {
			continue
		}
		out = append(out, ToolCall{ID: pc.id, Name: pc.name, Arguments: parseArguments(pc.args.String())})
	}
	return out
}

func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Arguments)
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(argsJSON),
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func convertTools(defs []ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return out
}
