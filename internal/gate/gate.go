// Package gate is the boundary a game host calls on join and from its player and admin commands.
package gate

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"linkgate/internal/audit"
	"linkgate/internal/linking/domain"
)

// ErrAlreadyLinked is returned by PlayerCode for an account that already has a link.
var ErrAlreadyLinked = errors.New("gate: account already linked")

// Linker is the part of the linking service the gate uses. *service.LinkingService satisfies it.
type Linker interface {
	IssueCode(ctx context.Context, accountID, displayName string) (domain.PendingCode, error)
	LinkOf(accountID string) (domain.Link, bool)
	UnlinkAccount(ctx context.Context, accountID string) bool
	CleanupExpired(ctx context.Context) int
	Stats() domain.Stats
	CodeTTL() time.Duration
}

// Config controls join checks.
type Config struct {
	CheckOnJoin bool
	KickMessage string
	BotUsername string
}

// Decision is the outcome of a join attempt. Code and ExpiresAt are set only when denied.
type Decision struct {
	Allowed    bool
	ExternalID int64
	Code       string
	ExpiresAt  time.Time
	Message    string
}

// Status describes an account's link.
type Status struct {
	AccountID   string
	Linked      bool
	ExternalID  int64
	DisplayName string
	LinkedAt    time.Time
}

// Gate applies the join policy and serves host commands.
type Gate struct {
	linker Linker
	cfg    Config
	log    zerolog.Logger
}

// New returns a Gate.
func New(linker Linker, cfg Config, log zerolog.Logger) *Gate {
	return &Gate{linker: linker, cfg: cfg, log: log.With().Str("component", "gate").Logger()}
}

// OnJoin decides whether accountID may join. A denied account receives a fresh code.
func (g *Gate) OnJoin(ctx context.Context, accountID, displayName string) (Decision, error) {
	ctx = hostContext(ctx)
	if l, ok := g.linker.LinkOf(accountID); ok {
		return Decision{Allowed: true, ExternalID: l.ExternalID, Message: "Welcome, " + displayName + "!"}, nil
	}
	if !g.cfg.CheckOnJoin {
		return Decision{Allowed: true, Message: "Welcome, " + displayName + "!"}, nil
	}
	p, err := g.linker.IssueCode(ctx, accountID, displayName)
	if err != nil {
		return Decision{}, err
	}
	g.log.Info().Str("account_id", accountID).Str("display_name", displayName).Msg("join denied, code issued")
	return Decision{
		Allowed:   false,
		Code:      p.Code,
		ExpiresAt: p.ExpiresAt,
		Message:   g.RenderKick(p.Code),
	}, nil
}

// RenderKick fills the kick message template for code.
func (g *Gate) RenderKick(code string) string {
	minutes := int(g.linker.CodeTTL().Round(time.Minute) / time.Minute)
	r := strings.NewReplacer(
		"%code%", code,
		"%bot_username%", g.cfg.BotUsername,
		"%minutes%", strconv.Itoa(minutes),
	)
	return r.Replace(g.cfg.KickMessage)
}

// PlayerStatus reports the caller's own link.
func (g *Gate) PlayerStatus(accountID string) Status {
	return g.status(accountID)
}

// PlayerCode issues a code for an unlinked caller.
func (g *Gate) PlayerCode(ctx context.Context, accountID, displayName string) (domain.PendingCode, error) {
	if _, ok := g.linker.LinkOf(accountID); ok {
		return domain.PendingCode{}, ErrAlreadyLinked
	}
	return g.linker.IssueCode(hostContext(ctx), accountID, displayName)
}

// PlayerUnlink removes the caller's link. It returns false when none existed.
func (g *Gate) PlayerUnlink(ctx context.Context, accountID string) bool {
	return g.linker.UnlinkAccount(hostContext(ctx), accountID)
}

// AdminStats returns link and code counts.
func (g *Gate) AdminStats() domain.Stats {
	return g.linker.Stats()
}

// AdminCheck reports the link of any account.
func (g *Gate) AdminCheck(accountID string) Status {
	return g.status(accountID)
}

// AdminUnlink removes the link of any account.
func (g *Gate) AdminUnlink(ctx context.Context, accountID string) bool {
	ok := g.linker.UnlinkAccount(hostContext(ctx), accountID)
	g.log.Info().Str("account_id", accountID).Bool("was_linked", ok).Msg("admin unlink")
	return ok
}

// AdminCleanup sweeps expired codes and returns the removed and remaining pending counts.
func (g *Gate) AdminCleanup(ctx context.Context) (removed, remaining int) {
	removed = g.linker.CleanupExpired(hostContext(ctx))
	return removed, g.linker.Stats().PendingCodes
}

func (g *Gate) status(accountID string) Status {
	l, ok := g.linker.LinkOf(accountID)
	if !ok {
		return Status{AccountID: accountID}
	}
	return Status{
		AccountID:   accountID,
		Linked:      true,
		ExternalID:  l.ExternalID,
		DisplayName: l.DisplayName,
		LinkedAt:    l.LinkedAt,
	}
}

func hostContext(ctx context.Context) context.Context {
	if audit.SourceFrom(ctx) != audit.SourceSystem {
		return ctx
	}
	return audit.WithOrigin(ctx, audit.SourceHost, "")
}
