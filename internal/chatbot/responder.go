// Package chatbot implements the linking commands shared by the chat-platform bots.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"linkgate/internal/audit"
	"linkgate/internal/linking/domain"
	"linkgate/internal/linking/service"
)

// Linker is the part of the linking service the bots need.
type Linker interface {
	VerifyCode(ctx context.Context, code string, externalID int64) (domain.Link, bool, error)
	LinkOfExternal(externalID int64) (domain.Link, bool)
	CodeTTL() time.Duration
}

// Options configures a Responder.
type Options struct {
	// Prefix starts every command ("/" on Telegram, "!" on Discord).
	Prefix string
	// Source tags audit entries (audit.SourceTelegram, audit.SourceDiscord).
	Source string
	// ReplyToPlainText answers non-command messages with the unknown-command hint.
	ReplyToPlainText bool
}

// Responder turns a chat message into a reply.
type Responder struct {
	linker Linker
	opts   Options
	log    zerolog.Logger
}

// NewResponder returns a Responder backed by linker.
func NewResponder(linker Linker, opts Options, log zerolog.Logger) *Responder {
	if opts.Prefix == "" {
		opts.Prefix = "/"
	}
	return &Responder{linker: linker, opts: opts, log: log.With().Str("component", "chatbot").Logger()}
}

// Handle returns the reply for a message sent by externalID. handled is false when the message
// should be ignored.
func (r *Responder) Handle(ctx context.Context, externalID int64, text string) (reply string, handled bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.opts.Prefix) {
		if r.opts.ReplyToPlainText && text != "" {
			return r.unknown(), true
		}
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(text, r.opts.Prefix))
	if len(fields) == 0 {
		return r.unknown(), true
	}
	cmd := strings.ToLower(fields[0])
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	switch cmd {
	case "start":
		return r.start(externalID), true
	case "link":
		return r.link(ctx, externalID, args), true
	case "help":
		return r.help(), true
	case "status":
		return r.status(externalID), true
	default:
		return r.unknown(), true
	}
}

func (r *Responder) start(externalID int64) string {
	if l, ok := r.linker.LinkOfExternal(externalID); ok {
		return fmt.Sprintf("Welcome back!\n\nYour account is linked to player *%s*.\n\n%s", nameOf(l), r.commandList())
	}
	return fmt.Sprintf("Welcome to the account linking bot!\n\nYour chat account is not linked yet.\n\n"+
		"To link it:\n1. Join the server\n2. You will be disconnected with a linking code\n3. Send %slink YOUR_CODE here\n\n%s",
		r.opts.Prefix, r.commandList())
}

func (r *Responder) link(ctx context.Context, externalID int64, args []string) string {
	if len(args) != 1 {
		return fmt.Sprintf("Wrong format.\n\nUse: %slink YOUR_CODE", r.opts.Prefix)
	}
	if l, ok := r.linker.LinkOfExternal(externalID); ok {
		return fmt.Sprintf("Your chat account is already linked to player *%s*.", nameOf(l))
	}

	ctx = audit.WithOrigin(ctx, r.opts.Source, "")
	l, ok, err := r.linker.VerifyCode(ctx, args[0], externalID)
	switch {
	case errors.Is(err, service.ErrInvalidCodeFormat):
		return fmt.Sprintf("That does not look like a linking code.\n\nUse: %slink YOUR_CODE", r.opts.Prefix)
	case err != nil:
		r.log.Error().Err(err).Int64("external_id", externalID).Msg("verify failed")
		return "Something went wrong, please try again later."
	case !ok:
		return fmt.Sprintf("*Invalid or expired code.*\n\nTry again:\n1. Join the server\n2. Get a new linking code\n3. Send %slink NEW_CODE", r.opts.Prefix)
	}
	r.log.Info().Int64("external_id", externalID).Str("account_id", l.AccountID).Msg("linked via chat")
	return fmt.Sprintf("*Linked!*\n\nYour chat account is now linked to player *%s*.\n\nYou can join the server now.", nameOf(l))
}

func (r *Responder) help() string {
	minutes := int(r.linker.CodeTTL().Round(time.Minute) / time.Minute)
	return fmt.Sprintf("*Account linking bot*\n\n%s\n\n*How to link:*\n1. Try to join the server\n"+
		"2. You will be disconnected with a linking code\n3. Send %slink YOUR_CODE here\n4. Join again\n\n"+
		"Codes are valid for %d minutes.", r.commandList(), r.opts.Prefix, minutes)
}

func (r *Responder) status(externalID int64) string {
	l, ok := r.linker.LinkOfExternal(externalID)
	if !ok {
		return fmt.Sprintf("*Link status: not linked*\n\nUse %shelp to see how to link.", r.opts.Prefix)
	}
	return fmt.Sprintf("*Link status: active*\n\nPlayer: *%s*\nAccount: `%s`\nLinked: %s",
		nameOf(l), l.AccountID, l.LinkedAt.UTC().Format(time.RFC3339))
}

func (r *Responder) unknown() string {
	return fmt.Sprintf("Unknown command.\n\nUse %shelp to see available commands.", r.opts.Prefix)
}

func (r *Responder) commandList() string {
	p := r.opts.Prefix
	return fmt.Sprintf("*Commands:*\n%sstart - welcome\n%slink CODE - link your account\n%shelp - show help\n%sstatus - show link status",
		p, p, p, p)
}

func nameOf(l domain.Link) string {
	if l.DisplayName != "" {
		return l.DisplayName
	}
	return l.AccountID
}
