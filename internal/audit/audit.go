// Package audit publishes confirmation and turn lifecycle events.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event type constants.
const (
	EventConfirmationStored   = "confirmation.stored"
	EventConfirmationApproved = "confirmation.approved"
	EventConfirmationCleared  = "confirmation.cleared"
	EventConfirmationExpired  = "confirmation.expired"
	EventConfirmationConsumed = "confirmation.consumed"
	EventConfirmationMismatch = "confirmation.mismatch"
	EventTurnStarted          = "turn.started"
	EventTurnFinished         = "turn.finished"
	EventTurnFailed           = "turn.failed"
	EventThreadDeleted        = "thread.deleted"
)

// Event is the wire format for audit records.
type Event struct {
	Type      string         `json:"type"`
	ThreadID  string         `json:"thread_id"`
	Tool      string         `json:"tool,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher delivers audit events. Implementations must not block the caller
// for long; delivery failures are logged, never surfaced to the turn.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher writes events through slog.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher backed by logger (slog.Default when nil).
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	attrs := []any{"type", ev.Type, "thread", ev.ThreadID}
	if ev.Tool != "" {
		attrs = append(attrs, "tool", ev.Tool)
	}
	for k, v := range ev.Detail {
		attrs = append(attrs, k, v)
	}
	p.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Emit stamps ev and publishes it, logging delivery failures.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		slog.Warn("Audit publish failed", "type", ev.Type, "error", err)
	}
}
