package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Responder answers a message sent by externalID. *chatbot.Responder satisfies it.
type Responder interface {
	Handle(ctx context.Context, externalID int64, text string) (reply string, handled bool)
}

// Bot polls getUpdates and answers linking commands.
type Bot struct {
	client      *Client
	responder   Responder
	log         zerolog.Logger
	pollTimeout time.Duration
	idleDelay   time.Duration
	errorDelay  time.Duration
	offset      int64
}

// NewBot returns a Bot using client and responder.
func NewBot(client *Client, responder Responder, pollTimeout time.Duration, log zerolog.Logger) *Bot {
	return &Bot{
		client:      client,
		responder:   responder,
		log:         log.With().Str("component", "telegram").Logger(),
		pollTimeout: pollTimeout,
		idleDelay:   time.Second,
		errorDelay:  5 * time.Second,
	}
}

// Run verifies the token and polls until ctx is cancelled. It returns an error only when
// the token check fails.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: token check: %w", err)
	}
	b.log.Info().Str("bot", me.Username).Msg("telegram bot polling")

	for {
		updates, err := b.client.GetUpdates(ctx, b.offset, b.pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.log.Warn().Err(err).Msg("getUpdates failed")
			if !sleep(ctx, b.errorDelay) {
				return nil
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			b.handle(ctx, u)
		}
		if !sleep(ctx, b.idleDelay) {
			return nil
		}
	}
}

func (b *Bot) handle(ctx context.Context, u Update) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot || m.Text == "" {
		return
	}
	b.log.Debug().Int64("external_id", m.From.ID).Str("username", m.From.Username).Msg("message received")
	reply, ok := b.responder.Handle(ctx, m.From.ID, m.Text)
	if !ok {
		return
	}
	if err := b.client.SendMessage(ctx, m.Chat.ID, reply); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", m.Chat.ID).Msg("sendMessage failed")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
