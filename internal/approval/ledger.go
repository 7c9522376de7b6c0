// Package approval holds the confirmation ledger that gates dangerous tool
// calls behind an explicit, parameter-matched user approval.
package approval

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KafClaw/sheetclaw/internal/audit"
)

// DefaultTTL is how long a confirmation stays valid after it is stored.
const DefaultTTL = 5 * time.Minute

// PendingConfirmation is a stored request to run one gated tool with one
// exact argument set.
type PendingConfirmation struct {
	Key         string         `json:"key"`
	ThreadID    string         `json:"thread_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	ToolName    string         `json:"tool_name"`
	Params      map[string]any `json:"params"`
	CreatedAt   time.Time      `json:"created_at"`
	Approved    bool           `json:"approved"`
}

// Ledger stores at most one confirmation per (thread, tool). Expiry is lazy:
// entries are evicted when a read finds them past the TTL.
type Ledger struct {
	mu        sync.Mutex
	entries   map[string]*PendingConfirmation
	ttl       time.Duration
	now       func() time.Time
	publisher audit.Publisher
}

// NewLedger creates a ledger. A non-positive ttl uses DefaultTTL; publisher
// may be nil.
func NewLedger(ttl time.Duration, publisher audit.Publisher) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{
		entries:   make(map[string]*PendingConfirmation),
		ttl:       ttl,
		now:       time.Now,
		publisher: publisher,
	}
}

// SetClock replaces the time source. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// TTL returns the configured time-to-live.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// Key builds the ledger key for a thread and tool.
func Key(threadID, toolName string) string {
	return threadID + ":" + toolName
}

// Store inserts or replaces the confirmation for (threadID, toolName) with
// approved=false. Any previous entry under that key is discarded.
func (l *Ledger) Store(threadID, action, description, toolName string, params map[string]any) string {
	key := Key(threadID, toolName)
	entry := &PendingConfirmation{
		Key:         key,
		ThreadID:    threadID,
		Action:      action,
		Description: description,
		ToolName:    toolName,
		Params:      cloneParams(params),
	}

	l.mu.Lock()
	entry.CreatedAt = l.now()
	_, replaced := l.entries[key]
	l.entries[key] = entry
	l.mu.Unlock()

	l.emit(audit.EventConfirmationStored, threadID, toolName, map[string]any{"replaced": replaced, "action": action})
	return key
}

// Get returns a copy of the live entry for (threadID, toolName). An entry
// at or past its TTL is evicted and reported absent.
func (l *Ledger) Get(threadID, toolName string) (PendingConfirmation, bool) {
	l.mu.Lock()
	entry, expired := l.liveLocked(threadID, toolName)
	var out PendingConfirmation
	if entry != nil {
		out = entry.snapshot()
	}
	l.mu.Unlock()

	if expired {
		l.emit(audit.EventConfirmationExpired, threadID, toolName, nil)
	}
	return out, entry != nil
}

// Approve marks the live entry approved and reports whether one existed.
func (l *Ledger) Approve(threadID, toolName string) bool {
	l.mu.Lock()
	entry, expired := l.liveLocked(threadID, toolName)
	if entry != nil {
		entry.Approved = true
	}
	l.mu.Unlock()

	if expired {
		l.emit(audit.EventConfirmationExpired, threadID, toolName, nil)
	}
	if entry == nil {
		return false
	}
	l.emit(audit.EventConfirmationApproved, threadID, toolName, nil)
	return true
}

// Clear removes the entry regardless of state and reports whether one existed.
func (l *Ledger) Clear(threadID, toolName string) bool {
	key := Key(threadID, toolName)
	l.mu.Lock()
	_, ok := l.entries[key]
	delete(l.entries, key)
	l.mu.Unlock()

	if ok {
		l.emit(audit.EventConfirmationCleared, threadID, toolName, nil)
	}
	return ok
}

// ClearAll removes every entry for threadID and returns how many were dropped.
func (l *Ledger) ClearAll(threadID string) int {
	prefix := threadID + ":"
	var cleared []string

	l.mu.Lock()
	for key, entry := range l.entries {
		if strings.HasPrefix(key, prefix) && entry.ThreadID == threadID {
			cleared = append(cleared, entry.ToolName)
			delete(l.entries, key)
		}
	}
	l.mu.Unlock()

	sort.Strings(cleared)
	for _, tool := range cleared {
		l.emit(audit.EventConfirmationCleared, threadID, tool, nil)
	}
	return len(cleared)
}

// Pending lists the live entries for threadID ordered by tool name.
func (l *Ledger) Pending(threadID string) []PendingConfirmation {
	var out []PendingConfirmation
	var expired []string

	l.mu.Lock()
	now := l.now()
	for key, entry := range l.entries {
		if entry.ThreadID != threadID {
			continue
		}
		if l.expiredAt(entry, now) {
			delete(l.entries, key)
			expired = append(expired, entry.ToolName)
			continue
		}
		out = append(out, entry.snapshot())
	}
	l.mu.Unlock()

	for _, tool := range expired {
		l.emit(audit.EventConfirmationExpired, threadID, tool, nil)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out
}

// liveLocked returns the entry for the key, evicting it when expired.
// The caller must hold l.mu.
func (l *Ledger) liveLocked(threadID, toolName string) (entry *PendingConfirmation, expired bool) {
	key := Key(threadID, toolName)
	entry, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if l.expiredAt(entry, l.now()) {
		delete(l.entries, key)
		return nil, true
	}
	return entry, false
}

func (l *Ledger) expiredAt(entry *PendingConfirmation, now time.Time) bool {
	return now.Sub(entry.CreatedAt) >= l.ttl
}

func (l *Ledger) emit(eventType, threadID, toolName string, detail map[string]any) {
	audit.Emit(context.Background(), l.publisher, audit.Event{
		Type:     eventType,
		ThreadID: threadID,
		Tool:     toolName,
		Detail:   detail,
	})
}

func (p *PendingConfirmation) snapshot() PendingConfirmation {
	out := *p
	out.Params = cloneParams(p.Params)
	return out
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return maps.Clone(params)
}
