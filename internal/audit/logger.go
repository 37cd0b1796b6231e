// Package audit records link lifecycle events. Recording is best-effort and never fails the caller.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linkgate/internal/audit/domain"
	auditrepo "linkgate/internal/audit/repository"
	"linkgate/internal/telemetry"
)

// Actions written by the linking service.
const (
	ActionCodeIssued   = "code_issued"
	ActionLinkCreated  = "link_created"
	ActionLinkReplaced = "link_replaced"
	ActionVerifyFailed = "verify_failed"
	ActionLinkRemoved  = "link_removed"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event for an account/external pair.
type AuditLogger interface {
	LogEvent(ctx context.Context, action, accountID string, externalID int64, metadata string)
}

// Logger implements AuditLogger on top of an optional repository and an optional event emitter.
type Logger struct {
	repo        auditrepo.Repository
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
	log         zerolog.Logger
	nowF        func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and mirrors events to emitter.
// Either may be nil. A nil ipExtractor falls back to IPFromContext.
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, ipExtractor IPExtractor, log zerolog.Logger) *Logger {
	if ipExtractor == nil {
		ipExtractor = IPFromContext
	}
	return &Logger{
		repo:        repo,
		emitter:     emitter,
		ipExtractor: ipExtractor,
		log:         log.With().Str("component", "audit").Logger(),
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent writes one audit entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, action, accountID string, externalID int64, metadata string) {
	if l == nil || (l.repo == nil && l.emitter == nil) {
		return
	}
	entry := &domain.Entry{
		ID:         uuid.New().String(),
		Action:     action,
		AccountID:  accountID,
		ExternalID: externalID,
		Source:     SourceFrom(ctx),
		IP:         l.ipExtractor(ctx),
		Metadata:   metadata,
		CreatedAt:  l.nowF(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.log.Warn().Err(err).Str("action", action).Str("account_id", accountID).Msg("failed to write audit entry")
		}
	}
	telemetry.EmitAsync(l.emitter, &telemetry.Event{
		Type:       action,
		AccountID:  accountID,
		ExternalID: externalID,
		Source:     entry.Source,
		Metadata:   metadata,
		CreatedAt:  entry.CreatedAt,
	}, l.log)
}
