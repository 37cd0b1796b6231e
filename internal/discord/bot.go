// Package discord runs the linking commands over a Discord gateway session.
package discord

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Prefix starts every Discord command.
const Prefix = "!"

const handleTimeout = 10 * time.Second

// Responder answers a message sent by externalID. *chatbot.Responder satisfies it.
type Responder interface {
	Handle(ctx context.Context, externalID int64, text string) (reply string, handled bool)
}

// Bot manages the Discord session lifecycle and command dispatch.
type Bot struct {
	session   *discordgo.Session
	responder Responder
	log       zerolog.Logger
}

// NewBot creates a bot for token. It returns nil, nil when token is empty.
func NewBot(token string, responder Responder, log zerolog.Logger) (*Bot, error) {
	log = log.With().Str("component", "discord").Logger()
	if token == "" {
		log.Info().Msg("no discord token configured, bot disabled")
		return nil, nil
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{session: s, responder: responder, log: log}
	s.AddHandler(b.onMessageCreate)
	return b, nil
}

// Start opens the gateway connection.
func (b *Bot) Start() error {
	if b == nil || b.session == nil {
		return nil
	}
	if err := b.session.Open(); err != nil {
		return err
	}
	b.log.Info().Msg("discord bot connected")
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() {
	if b == nil || b.session == nil {
		return
	}
	_ = b.session.Close()
	b.log.Info().Msg("discord bot disconnected")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	reply, ok := b.handleMessage(ctx, selfID, m)
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.log.Warn().Err(err).Str("channel_id", m.ChannelID).Msg("send reply failed")
	}
}

func (b *Bot) handleMessage(ctx context.Context, selfID string, m *discordgo.MessageCreate) (string, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return "", false
	}
	if m.Author.ID == selfID || m.Author.Bot {
		return "", false
	}
	if len(m.Content) == 0 || m.Content[:1] != Prefix {
		return "", false
	}
	externalID, ok := ExternalID(m.Author.ID)
	if !ok {
		b.log.Warn().Str("author_id", m.Author.ID).Msg("unusable author id")
		return "", false
	}
	return b.responder.Handle(ctx, externalID, m.Content)
}

// ExternalID parses a Discord snowflake into a positive external id.
func ExternalID(snowflake string) (int64, bool) {
	id, err := strconv.ParseInt(snowflake, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
