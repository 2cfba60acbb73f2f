// Package whatsapp connects the command router to a WhatsApp account through
// whatsmeow. The device session lives in a SQL container so the pairing
// survives restarts.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"coinbot/internal/commands"
)

const commandTimeout = 30 * time.Second

type Options struct {
	// ReactionClearWait is how long a transient reply keeps its reaction.
	ReactionClearWait time.Duration
	// QROut receives the pairing QR code. Defaults to stdout.
	QROut io.Writer
}

type Bot struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	router    *commands.Router
	log       *slog.Logger
	opts      Options

	mu       sync.Mutex
	ctx      context.Context
	inflight commands.Inflight
}

func New(ctx context.Context, container *sqlstore.Container, router *commands.Router, logger *slog.Logger, opts Options) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QROut == nil {
		opts.QROut = os.Stdout
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}
	b := &Bot{
		client:    whatsmeow.NewClient(device, newLogger(logger, "whatsmeow")),
		container: container,
		router:    router,
		log:       logger.With("transport", "whatsapp"),
		opts:      opts,
	}
	b.client.AddEventHandler(b.handleEvent)
	return b, nil
}

// Run connects, pairing by QR code on first start, and blocks until ctx is
// done. In-flight commands finish before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if b.client.Store.ID == nil {
		qrChan, err := b.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp qr channel: %w", err)
		}
		if err := b.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
		for item := range qrChan {
			switch item.Event {
			case "code":
				b.log.Info("scan the QR code to pair the bot")
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, b.opts.QROut)
			default:
				b.log.Info("whatsapp pairing event", "event", item.Event)
			}
		}
	} else if err := b.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}

	<-ctx.Done()
	b.client.Disconnect()
	b.inflight.CloseAndWait()
	return nil
}

func (b *Bot) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		b.mu.Lock()
		ctx := b.ctx
		b.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		b.inflight.Go(func() {
			b.handleMessage(ctx, v)
		})
	case *events.Connected:
		b.log.Info("whatsapp connected")
	case *events.LoggedOut:
		b.log.Warn("whatsapp session logged out", "reason", v.Reason.String())
	}
}

func (b *Bot) handleMessage(parent context.Context, evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	name, args, ok := commands.Parse(messageText(evt.Message), b.router.Prefix())
	if !ok {
		return
	}
	if _, known := commands.Resolve(name); !known {
		return
	}

	// The reply and reactions must outlive a shutdown signal that arrives
	// mid-command.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), commandTimeout)
	defer cancel()

	chat := evt.Info.Chat
	sender := evt.Info.Sender.ToNonAD()
	log := b.log.With("chat", chat.String(), "user_id", sender.String(), "command", name)

	pending, err := b.client.SendMessage(ctx, chat,
		quoting(replyMessage(b.router.PendingText(name), nil), evt.Info.ID, sender.String(), evt.Message))
	if err != nil {
		log.Error("send pending reply failed", "err", err)
		return
	}

	reply, err := b.router.Handle(ctx, commands.Request{
		UserID:   sender.String(),
		Command:  name,
		Args:     args,
		Mentions: mentionedJIDs(evt.Message),
	})
	if err != nil {
		reply = commands.Reply{Text: commands.InternalErrorText, Outcome: commands.OutcomeWarning}
	}

	edit := b.client.BuildEdit(chat, pending.ID, replyMessage(reply.Text, reply.Mentions))
	if _, err := b.client.SendMessage(ctx, chat, edit); err != nil {
		log.Error("edit reply failed", "err", err)
	}
	b.react(ctx, log, chat, sender, evt.Info.ID, reactionFor(reply.Outcome))

	if reply.Transient && b.opts.ReactionClearWait > 0 {
		select {
		case <-time.After(b.opts.ReactionClearWait):
		case <-parent.Done():
		}
		b.react(ctx, log, chat, sender, evt.Info.ID, "")
	}
}

func (b *Bot) react(ctx context.Context, log *slog.Logger, chat, sender types.JID, id types.MessageID, emoji string) {
	msg := b.client.BuildReaction(chat, sender, id, emoji)
	if _, err := b.client.SendMessage(ctx, chat, msg); err != nil {
		log.Warn("send reaction failed", "emoji", emoji, "err", err)
	}
}

func (b *Bot) Close() error {
	return b.container.Close()
}
