// Package handler serves the linking HTTP API on fiber.
package handler

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linkgate/internal/audit"
	auditdomain "linkgate/internal/audit/domain"
	"linkgate/internal/gate"
	"linkgate/internal/linking/domain"
	"linkgate/internal/linking/service"
)

// LocalsClientIP is the fiber Locals key under which the server stores the resolved client IP.
const LocalsClientIP = "client_ip"

const (
	msgInvalidJSON     = "Invalid JSON format"
	msgInternal        = "Internal server error"
	msgInvalidOrExpire = "Invalid or expired code"
	msgNotLinked       = "No linked account found"
	healthTimeout      = 2 * time.Second
	defaultAuditLimit  = 50
	maxAuditLimit      = 500
)

var displayNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)

// Linker is the part of the linking service the API uses. *service.LinkingService satisfies it.
type Linker interface {
	IssueCode(ctx context.Context, accountID, displayName string) (domain.PendingCode, error)
	VerifyCode(ctx context.Context, code string, externalID int64) (domain.Link, bool, error)
	LinkOf(accountID string) (domain.Link, bool)
	LinkOfExternal(externalID int64) (domain.Link, bool)
	UnlinkAccount(ctx context.Context, accountID string) bool
	UnlinkExternal(ctx context.Context, externalID int64) bool
	Stats() domain.Stats
	CodeTTL() time.Duration
}

// Joiner decides join attempts. *gate.Gate satisfies it.
type Joiner interface {
	OnJoin(ctx context.Context, accountID, displayName string) (gate.Decision, error)
}

// Pinger reports whether the persistence backend is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AuditReader lists audit entries. *auditrepo.PostgresRepository satisfies it.
type AuditReader interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*auditdomain.Entry, error)
}

// Info describes the running service for health and stats replies.
type Info struct {
	Name         string
	Version      string
	RateRequests int
	RateWindow   time.Duration
	StartedAt    time.Time
}

// LinkHandler implements the /api endpoints.
type LinkHandler struct {
	linker Linker
	joiner Joiner
	pinger Pinger
	audits AuditReader
	info   Info
	log    zerolog.Logger
	nowF   func() time.Time
}

// NewLinkHandler returns a LinkHandler. pinger may be nil.
func NewLinkHandler(linker Linker, joiner Joiner, pinger Pinger, info Info, log zerolog.Logger) *LinkHandler {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	return &LinkHandler{
		linker: linker,
		joiner: joiner,
		pinger: pinger,
		info:   info,
		log:    log.With().Str("component", "http").Logger(),
		nowF:   time.Now,
	}
}

// WithAudit enables GET /api/audit backed by r.
func (h *LinkHandler) WithAudit(r AuditReader) *LinkHandler {
	h.audits = r
	return h
}

// Register mounts the handlers on r. Every route except /health runs protect first, in order.
func (h *LinkHandler) Register(r fiber.Router, protect ...fiber.Handler) {
	add := func(method, path string, fn fiber.Handler) {
		handlers := append(append([]fiber.Handler{}, protect...), fn)
		r.Add(method, path, handlers...)
	}
	r.Get("/health", h.Health)
	add(fiber.MethodPost, "/codes", h.CreateCode)
	add(fiber.MethodPost, "/verify", h.Verify)
	add(fiber.MethodGet, "/links", h.GetLink)
	add(fiber.MethodDelete, "/links", h.DeleteLink)
	add(fiber.MethodPost, "/join", h.Join)
	add(fiber.MethodGet, "/stats", h.Stats)
	add(fiber.MethodGet, "/audit", h.Audit)
}

// WriteError sends an ErrorResponse.
func WriteError(c *fiber.Ctx, status int, msg, details string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:     msg,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	})
}

func (h *LinkHandler) CreateCode(c *fiber.Ctx) error {
	var req CodeRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, fiber.StatusBadRequest, msgInvalidJSON, "")
	}
	accountID, errResp := validateAccount(req)
	if errResp != "" {
		return WriteError(c, fiber.StatusBadRequest, errResp, accountDetails(errResp))
	}

	p, err := h.linker.IssueCode(h.requestContext(c), accountID, req.DisplayName)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("issue code failed")
		return WriteError(c, fiber.StatusInternalServerError, msgInternal, "")
	}
	return c.JSON(CodeResponse{
		Code:             p.Code,
		ExpiresAt:        p.ExpiresAt.UnixMilli(),
		ExpiresInSeconds: int64(h.linker.CodeTTL() / time.Second),
		DisplayName:      p.DisplayName,
		AccountID:        p.AccountID,
	})
}

func (h *LinkHandler) Verify(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, fiber.StatusBadRequest, msgInvalidJSON, "")
	}
	if req.ExternalID <= 0 {
		return WriteError(c, fiber.StatusBadRequest, "Invalid external_id", "external_id must be a positive number")
	}

	l, ok, err := h.linker.VerifyCode(h.requestContext(c), req.Code, req.ExternalID)
	switch {
	case errors.Is(err, service.ErrInvalidCodeFormat):
		return WriteError(c, fiber.StatusBadRequest, "Invalid code format", "code must contain only A-Z and 0-9")
	case errors.Is(err, service.ErrInvalidExternalID):
		return WriteError(c, fiber.StatusBadRequest, "Invalid external_id", "external_id must be a positive number")
	case err != nil:
		h.log.Error().Err(err).Msg("verify failed")
		return WriteError(c, fiber.StatusInternalServerError, msgInternal, "")
	case !ok:
		return c.Status(fiber.StatusBadRequest).JSON(VerifyFailure{Success: false, Error: msgInvalidOrExpire, Code: req.Code})
	}
	return c.JSON(VerifyResponse{
		Success:     true,
		DisplayName: l.DisplayName,
		AccountID:   l.AccountID,
		ExternalID:  l.ExternalID,
		LinkedAt:    l.LinkedAt.UnixMilli(),
	})
}

func (h *LinkHandler) GetLink(c *fiber.Ctx) error {
	externalID, accountID, present, errMsg := linkQuery(c)
	if errMsg != "" {
		return WriteError(c, fiber.StatusBadRequest, errMsg, "")
	}
	if !present {
		return c.JSON(LinksSummary{
			TotalLinks: h.linker.Stats().TotalLinks,
			Endpoint:   "links",
			Usage:      "Add ?external_id=ID or ?account_id=UUID to check a specific link",
		})
	}

	var (
		l  domain.Link
		ok bool
	)
	if externalID != 0 {
		l, ok = h.linker.LinkOfExternal(externalID)
	} else {
		l, ok = h.linker.LinkOf(accountID)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(LinkResponse{
			Linked: false, AccountID: accountID, ExternalID: externalID, Error: msgNotLinked,
		})
	}
	return c.JSON(LinkResponse{
		Linked:      true,
		DisplayName: l.DisplayName,
		AccountID:   l.AccountID,
		ExternalID:  l.ExternalID,
		LinkedAt:    l.LinkedAt.UnixMilli(),
	})
}

func (h *LinkHandler) DeleteLink(c *fiber.Ctx) error {
	externalID, accountID, present, errMsg := linkQuery(c)
	if errMsg != "" {
		return WriteError(c, fiber.StatusBadRequest, errMsg, "")
	}
	if !present {
		return WriteError(c, fiber.StatusBadRequest, "Missing external_id or account_id parameter", "")
	}

	ctx := h.requestContext(c)
	var ok bool
	if externalID != 0 {
		ok = h.linker.UnlinkExternal(ctx, externalID)
	} else {
		ok = h.linker.UnlinkAccount(ctx, accountID)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(UnlinkResponse{Success: false, Error: msgNotLinked})
	}
	return c.JSON(UnlinkResponse{
		Success: true, Message: "Successfully unlinked", AccountID: accountID, ExternalID: externalID,
	})
}

func (h *LinkHandler) Join(c *fiber.Ctx) error {
	var req JoinRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, fiber.StatusBadRequest, msgInvalidJSON, "")
	}
	accountID, errResp := validateAccount(req)
	if errResp != "" {
		return WriteError(c, fiber.StatusBadRequest, errResp, accountDetails(errResp))
	}

	d, err := h.joiner.OnJoin(h.requestContext(c), accountID, req.DisplayName)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("join check failed")
		return WriteError(c, fiber.StatusInternalServerError, msgInternal, "")
	}
	resp := JoinResponse{Allowed: d.Allowed, ExternalID: d.ExternalID, Code: d.Code, Message: d.Message}
	if !d.ExpiresAt.IsZero() {
		resp.ExpiresAt = d.ExpiresAt.UnixMilli()
	}
	return c.JSON(resp)
}

func (h *LinkHandler) Health(c *fiber.Ctx) error {
	now := h.nowF()
	resp := HealthResponse{
		Status:        "OK",
		Service:       ServiceInfo{Name: h.info.Name, Version: h.info.Version},
		API:           h.apiInfo(),
		Statistics:    statistics(h.linker.Stats()),
		Timestamp:     now.UnixMilli(),
		UptimeSeconds: int64(now.Sub(h.info.StartedAt) / time.Second),
	}
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()
		if err := h.pinger.PingContext(ctx); err != nil {
			h.log.Warn().Err(err).Msg("health ping failed")
			resp.Status = "UNAVAILABLE"
			resp.Error = "storage unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}
	return c.JSON(resp)
}

func (h *LinkHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(StatsResponse{
		Statistics: statistics(h.linker.Stats()),
		API:        h.apiInfo(),
		Timestamp:  h.nowF().UnixMilli(),
	})
}

func (h *LinkHandler) Audit(c *fiber.Ctx) error {
	if h.audits == nil {
		return WriteError(c, fiber.StatusNotFound, "Audit log not configured", "set DATABASE_URL to record audit entries")
	}
	id, err := uuid.Parse(c.Query("account_id"))
	if err != nil {
		return WriteError(c, fiber.StatusBadRequest, "Invalid account_id parameter", "")
	}
	limit := c.QueryInt("limit", defaultAuditLimit)
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}
	entries, err := h.audits.ListByAccount(c.UserContext(), id.String(), limit)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", id.String()).Msg("list audit failed")
		return WriteError(c, fiber.StatusInternalServerError, msgInternal, "")
	}
	resp := AuditResponse{AccountID: id.String(), Entries: make([]AuditEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, AuditEntry{
			ID:         e.ID,
			Action:     e.Action,
			ExternalID: e.ExternalID,
			Source:     e.Source,
			IP:         e.IP,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt.UnixMilli(),
		})
	}
	return c.JSON(resp)
}

func (h *LinkHandler) apiInfo() APIInfo {
	return APIInfo{
		Version:   h.info.Version,
		RateLimit: RateLimitInfo{Requests: h.info.RateRequests, WindowMs: h.info.RateWindow.Milliseconds()},
	}
}

func (h *LinkHandler) requestContext(c *fiber.Ctx) context.Context {
	ip, _ := c.Locals(LocalsClientIP).(string)
	if ip == "" {
		ip = c.IP()
	}
	return audit.WithOrigin(c.UserContext(), audit.SourceHTTP, ip)
}

func statistics(s domain.Stats) Statistics {
	return Statistics{
		TotalLinks:   s.TotalLinks,
		PendingCodes: s.PendingCodes,
		ActiveCodes:  s.ActiveCodes,
		ExpiredCodes: s.ExpiredCodes,
	}
}

const (
	errInvalidName = "Invalid display name"
	errInvalidUUID = "Invalid UUID format"
)

// validateAccount returns the canonical account id, or an error message.
func validateAccount(req CodeRequest) (string, string) {
	if !displayNameRe.MatchString(req.DisplayName) {
		return "", errInvalidName
	}
	id, err := uuid.Parse(req.AccountID)
	if err != nil {
		return "", errInvalidUUID
	}
	return id.String(), ""
}

func accountDetails(msg string) string {
	if msg == errInvalidName {
		return "display_name must be 3-16 characters (a-z, A-Z, 0-9, _)"
	}
	return ""
}

// linkQuery reads ?external_id= or ?account_id=. external_id wins when both are set.
func linkQuery(c *fiber.Ctx) (externalID int64, accountID string, present bool, errMsg string) {
	if raw := c.Query("external_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, "", true, "Invalid external_id parameter"
		}
		return id, "", true, ""
	}
	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return 0, "", true, "Invalid account_id parameter"
		}
		return 0, id.String(), true, ""
	}
	return 0, "", false, ""
}
