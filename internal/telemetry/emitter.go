// Package telemetry carries link lifecycle events to observability backends and records linking metrics.
package telemetry

import (
	"context"
	"time"
)

// Event is one link lifecycle event (code issued, link created, link removed, ...).
type Event struct {
	Type       string
	AccountID  string
	ExternalID int64
	Source     string
	Metadata   string
	CreatedAt  time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
