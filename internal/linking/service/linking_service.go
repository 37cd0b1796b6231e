// Package service coordinates the link store, the pending code registry and persistence.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"linkgate/internal/audit"
	codepkg "linkgate/internal/linking/code"
	"linkgate/internal/linking/domain"
	"linkgate/internal/linking/pending"
	"linkgate/internal/linking/repository"
	"linkgate/internal/linking/store"
	"linkgate/internal/telemetry"
)

// Validation errors returned before any state is touched.
var (
	ErrInvalidAccount    = errors.New("linking: account id is required")
	ErrInvalidCodeFormat = errors.New("linking: malformed code")
	ErrInvalidExternalID = errors.New("linking: external id must be positive")
)

const tracerName = "linkgate/linking"

// CodeValidator checks the shape of a code. *code.Generator satisfies it.
type CodeValidator interface {
	Valid(code string) bool
}

// FlushRequester asks for an asynchronous save. *Flusher satisfies it.
type FlushRequester interface {
	RequestFlush()
}

// Deps holds the collaborators of a LinkingService. Flusher, Audit and Metrics may be nil.
type Deps struct {
	Links     *store.Store
	Codes     *pending.Registry
	Validator CodeValidator
	Flusher   FlushRequester
	Audit     audit.AuditLogger
	Metrics   *telemetry.LinkMetrics
	Log       zerolog.Logger
}

// LinkingService is the single entry point for transports: it issues and verifies codes,
// answers link lookups and removes links.
type LinkingService struct {
	links     *store.Store
	codes     *pending.Registry
	validator CodeValidator
	flusher   FlushRequester
	audit     audit.AuditLogger
	metrics   *telemetry.LinkMetrics
	log       zerolog.Logger
	tracer    trace.Tracer
	nowF      func() time.Time
}

// NewLinkingService returns a LinkingService wired to d.
func NewLinkingService(d Deps) *LinkingService {
	return &LinkingService{
		links:     d.Links,
		codes:     d.Codes,
		validator: d.Validator,
		flusher:   d.Flusher,
		audit:     d.Audit,
		metrics:   d.Metrics,
		log:       d.Log.With().Str("component", "linking").Logger(),
		tracer:    otel.Tracer(tracerName),
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// CodeTTL returns the lifetime of newly issued codes.
func (s *LinkingService) CodeTTL() time.Duration {
	return s.codes.TTL()
}

// Restore loads persisted links into the store. A failed load leaves the store empty.
func (s *LinkingService) Restore(ctx context.Context, repo repository.Repository) int {
	links, err := repo.Load(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load persisted links, starting empty")
		s.links.Restore(nil)
		return 0
	}
	n := s.links.Restore(links)
	s.log.Info().Int("links", n).Int("records", len(links)).Msg("links restored")
	return n
}

// IssueCode creates a fresh code for accountID, invalidating its previous one.
func (s *LinkingService) IssueCode(ctx context.Context, accountID, displayName string) (domain.PendingCode, error) {
	ctx, span := s.tracer.Start(ctx, "LinkingService.IssueCode")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountID))

	if accountID == "" {
		return domain.PendingCode{}, ErrInvalidAccount
	}
	p, err := s.codes.Issue(accountID, displayName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error().Err(err).Str("account_id", accountID).Msg("failed to issue code")
		return domain.PendingCode{}, fmt.Errorf("issue code: %w", err)
	}
	s.metrics.CodeIssued(ctx)
	s.logAudit(ctx, audit.ActionCodeIssued, accountID, 0, map[string]string{"display_name": displayName})
	s.log.Debug().Str("account_id", accountID).Time("expires_at", p.ExpiresAt).Msg("code issued")
	return p, nil
}

// VerifyCode redeems code for externalID. Malformed input returns a validation error without
// touching the registry; an unknown or expired code returns ok=false.
func (s *LinkingService) VerifyCode(ctx context.Context, code string, externalID int64) (domain.Link, bool, error) {
	ctx, span := s.tracer.Start(ctx, "LinkingService.VerifyCode")
	defer span.End()
	span.SetAttributes(attribute.Int64("external_id", externalID))

	code = codepkg.Normalize(code)
	if !s.validator.Valid(code) {
		s.metrics.VerifyAttempt(ctx, telemetry.VerifyInvalid)
		return domain.Link{}, false, ErrInvalidCodeFormat
	}
	if externalID <= 0 {
		s.metrics.VerifyAttempt(ctx, telemetry.VerifyInvalid)
		return domain.Link{}, false, ErrInvalidExternalID
	}

	p, ok := s.codes.Consume(code)
	if !ok {
		s.metrics.VerifyAttempt(ctx, telemetry.VerifyRejected)
		s.logAudit(ctx, audit.ActionVerifyFailed, "", externalID, nil)
		return domain.Link{}, false, nil
	}

	link := domain.Link{
		AccountID:   p.AccountID,
		ExternalID:  externalID,
		DisplayName: p.DisplayName,
		LinkedAt:    s.nowF(),
	}
	displaced := s.links.Link(link)
	s.requestFlush()

	s.metrics.VerifyAttempt(ctx, telemetry.VerifyLinked)
	for _, old := range displaced {
		s.logAudit(ctx, audit.ActionLinkReplaced, old.AccountID, old.ExternalID, nil)
	}
	s.logAudit(ctx, audit.ActionLinkCreated, link.AccountID, link.ExternalID, map[string]string{"display_name": link.DisplayName})
	s.log.Info().Str("account_id", link.AccountID).Int64("external_id", externalID).Int("displaced", len(displaced)).Msg("account linked")
	return link, true, nil
}

// IsLinked reports whether accountID has a link.
func (s *LinkingService) IsLinked(accountID string) bool {
	return s.links.IsLinked(accountID)
}

// ExternalID returns the external id linked to accountID.
func (s *LinkingService) ExternalID(accountID string) (int64, bool) {
	return s.links.ExternalOf(accountID)
}

// AccountID returns the account linked to externalID.
func (s *LinkingService) AccountID(externalID int64) (string, bool) {
	return s.links.AccountOf(externalID)
}

// LinkOf returns the link held by accountID.
func (s *LinkingService) LinkOf(accountID string) (domain.Link, bool) {
	return s.links.Get(accountID)
}

// LinkOfExternal returns the link held by externalID.
func (s *LinkingService) LinkOfExternal(externalID int64) (domain.Link, bool) {
	return s.links.GetByExternal(externalID)
}

// UnlinkAccount removes the link held by accountID along with any pending code it holds.
func (s *LinkingService) UnlinkAccount(ctx context.Context, accountID string) bool {
	s.codes.RevokeAccount(accountID)
	l, ok := s.links.UnlinkByAccount(accountID)
	if !ok {
		return false
	}
	s.afterUnlink(ctx, l, "account")
	return true
}

// UnlinkExternal removes the link held by externalID.
func (s *LinkingService) UnlinkExternal(ctx context.Context, externalID int64) bool {
	l, ok := s.links.UnlinkByExternal(externalID)
	if !ok {
		return false
	}
	s.afterUnlink(ctx, l, "external")
	return true
}

func (s *LinkingService) afterUnlink(ctx context.Context, l domain.Link, by string) {
	s.requestFlush()
	s.metrics.Unlinked(ctx, by)
	s.logAudit(ctx, audit.ActionLinkRemoved, l.AccountID, l.ExternalID, map[string]string{"by": by})
	s.log.Info().Str("account_id", l.AccountID).Int64("external_id", l.ExternalID).Str("by", by).Msg("account unlinked")
}

// CleanupExpired removes expired codes and returns how many were removed.
func (s *LinkingService) CleanupExpired(ctx context.Context) int {
	n := s.codes.Sweep(s.nowF())
	s.metrics.Swept(ctx, n)
	if n > 0 {
		s.log.Debug().Int("removed", n).Msg("expired codes removed")
	}
	return n
}

// Stats returns the current link and code counts.
func (s *LinkingService) Stats() domain.Stats {
	total, active, expired := s.codes.Counts(s.nowF())
	return domain.Stats{
		TotalLinks:   s.links.Len(),
		PendingCodes: total,
		ActiveCodes:  active,
		ExpiredCodes: expired,
	}
}

func (s *LinkingService) requestFlush() {
	if s.flusher != nil {
		s.flusher.RequestFlush()
	}
}

func (s *LinkingService) logAudit(ctx context.Context, action, accountID string, externalID int64, meta map[string]string) {
	if s.audit == nil {
		return
	}
	var metadata string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			metadata = string(b)
		}
	}
	s.audit.LogEvent(ctx, action, accountID, externalID, metadata)
}
