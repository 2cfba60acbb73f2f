package discord

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"coinbot/internal/commands"
)

const (
	reactSuccess   = "✅"
	reactWarning   = "⚠️"
	commandTimeout = 30 * time.Second
)

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

type Bot struct {
	session   *discordgo.Session
	router    *commands.Router
	log       *slog.Logger
	clearWait time.Duration

	mu       sync.Mutex
	ctx      context.Context
	inflight commands.Inflight
}

// Mention is the reply-text form of a Discord user mention.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

func New(token string, router *commands.Router, logger *slog.Logger, clearWait time.Duration) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		session:   session,
		router:    router,
		log:       logger.With("transport", "discord"),
		clearWait: clearWait,
	}
	session.AddHandler(b.onMessageCreate)
	return b, nil
}

func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	b.log.Info("discord connected")
	<-ctx.Done()
	b.inflight.CloseAndWait()
	return b.session.Close()
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	req, ok := b.request(m.Message)
	if !ok {
		return
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	b.inflight.Go(func() {
		b.handle(ctx, m.Message, req)
	})
}

// request turns a message into a router request. Mentions keep the order
// they appear in the text.
func (b *Bot) request(m *discordgo.Message) (commands.Request, bool) {
	name, args, ok := commands.Parse(m.Content, b.router.Prefix())
	if !ok {
		return commands.Request{}, false
	}
	if _, known := commands.Resolve(name); !known {
		return commands.Request{}, false
	}
	return commands.Request{
		UserID:   m.Author.ID,
		Command:  name,
		Args:     args,
		Mentions: mentionIDs(m.Content),
	}, true
}

func mentionIDs(content string) []string {
	var ids []string
	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		ids = append(ids, match[1])
	}
	return ids
}

func (b *Bot) handle(parent context.Context, m *discordgo.Message, req commands.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), commandTimeout)
	defer cancel()
	log := b.log.With("channel", m.ChannelID, "user_id", req.UserID, "command", req.Command)

	pending, err := b.session.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:   b.router.PendingText(req.Command),
		Reference: m.Reference(),
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error("send pending reply failed", "err", err)
		return
	}

	reply, err := b.router.Handle(ctx, req)
	if err != nil {
		reply = commands.Reply{Text: commands.InternalErrorText, Outcome: commands.OutcomeWarning}
	}

	edit := discordgo.NewMessageEdit(m.ChannelID, pending.ID).SetContent(reply.Text)
	edit.AllowedMentions = &discordgo.MessageAllowedMentions{Users: reply.Mentions}
	if _, err := b.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		log.Error("edit reply failed", "err", err)
	}

	emoji := reactSuccess
	if reply.Outcome == commands.OutcomeWarning {
		emoji = reactWarning
	}
	if err := b.session.MessageReactionAdd(m.ChannelID, m.ID, emoji, discordgo.WithContext(ctx)); err != nil {
		log.Warn("add reaction failed", "err", err)
	}

	if reply.Transient && b.clearWait > 0 {
		select {
		case <-time.After(b.clearWait):
		case <-parent.Done():
		}
		if err := b.session.MessageReactionRemove(m.ChannelID, m.ID, emoji, "@me", discordgo.WithContext(ctx)); err != nil {
			log.Warn("remove reaction failed", "err", err)
		}
	}
}
