package agent

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/KafClaw/sheetclaw/internal/provider"
)

// messageOverhead approximates the per-message framing tokens of the chat
// format.
const messageOverhead = 4

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// CounterFunc adapts a function to TokenCounter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter returns a cl100k_base counter. The encoding is loaded on
// first use; when it cannot be loaded the counter falls back to a length
// estimate.
func NewTokenCounter() TokenCounter {
	return &tiktokenCounter{}
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("Tokenizer unavailable, using length estimate", "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return estimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// trimHistory drops the oldest messages until the rest fit in budget. The
// newest message is always kept. A non-positive budget disables trimming.
func trimHistory(history []provider.Message, budget int, counter TokenCounter) []provider.Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := counter.Count(history[i].Content) + messageOverhead
		if total+cost > budget && i < len(history)-1 {
			break
		}
		total += cost
		start = i
	}
	if start > 0 {
		slog.Debug("Trimmed history to token budget", "dropped", start, "kept", len(history)-start, "tokens", total)
	}
	return history[start:]
}
