// Package assistant wires the inbound pipeline: authorization and mention
// gating, the command table, the rule interpreter with its LLM fallback,
// the processor and the reply.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/agendabot/pkg/agendabot/channels"
	"github.com/jholhewres/agendabot/pkg/agendabot/control"
	"github.com/jholhewres/agendabot/pkg/agendabot/intent"
	"github.com/jholhewres/agendabot/pkg/agendabot/interpreter"
	"github.com/jholhewres/agendabot/pkg/agendabot/llm"
	"github.com/jholhewres/agendabot/pkg/agendabot/processor"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// MsgFallbackError is sent when the fallback interpreter fails.
const MsgFallbackError = "Houve um erro ao processar sua mensagem. Tente novamente mais tarde."

// Fallback interprets messages no rule matched. *llm.Client implements it.
type Fallback interface {
	Interpret(ctx context.Context, req llm.Request) (intent.Intent, error)
}

// Config tunes the pipeline.
type Config struct {
	// AutoRead marks handled messages as read when the channel supports it.
	AutoRead bool

	// RespondToGroups enables group conversations.
	RespondToGroups bool

	// SendTimeout bounds each outgoing send.
	SendTimeout time.Duration
}

// Bot processes incoming messages one at a time.
type Bot struct {
	store     *store.Store
	channel   channels.Channel
	control   *control.Table
	processor *processor.Processor
	fallback  Fallback
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Bot. fallback may be nil, in which case unmatched messages
// get the fixed "not understood" reply.
func New(s *store.Store, ch channels.Channel, fallback Fallback, cfg Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Bot{
		store:     s,
		channel:   ch,
		control:   control.New(s, logger),
		processor: processor.New(s, logger),
		fallback:  fallback,
		cfg:       cfg,
		logger:    logger.With("component", "assistant"),
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (b *Bot) SetClock(now func() time.Time) { b.now = now }

// Run consumes the channel until ctx ends or the channel closes its stream.
func (b *Bot) Run(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-b.channel.Receive():
			if !ok {
				return nil
			}
			b.HandleMessage(ctx, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HandleMessage runs one message through the pipeline.
func (b *Bot) HandleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	start := time.Now()
	logger := b.logger.With(
		"request_id", uuid.NewString(),
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"from", msg.From,
	)

	settings := b.store.Settings()
	if msg.From == "" || sameUser(msg.From, settings.Self) || strings.TrimSpace(msg.Content) == "" {
		return
	}
	if msg.IsGroup && !b.cfg.RespondToGroups {
		return
	}

	isAdmin := settings.IsAdmin(msg.From)
	if !isAdmin && !b.store.Exists(msg.From) {
		logger.Debug("message ignored (not authorized)")
		return
	}

	if msg.IsGroup && b.store.Ensure(msg.ChatID) {
		logger.Info("group registered")
		if err := b.store.Commit(ctx); err != nil {
			logger.Error("failed to persist group", "error", err)
		}
	}

	conv, ok := b.store.Get(msg.ChatID)
	if !ok {
		logger.Debug("message ignored (no conversation record)")
		return
	}

	text := msg.Content
	if msg.IsGroup {
		mentioned := isMentioned(msg.Mentions, settings.Self)
		if !conv.FreemodeOn() && !mentioned {
			return
		}
		if mentioned {
			text = stripMention(text, settings.Self)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	logger.Info("incoming message", "content_preview", truncate(text, 50), "is_group", msg.IsGroup)

	if b.cfg.AutoRead {
		if rm, ok := b.channel.(channels.ReadMarker); ok {
			if err := rm.MarkRead(ctx, msg); err != nil {
				logger.Warn("failed to mark message as read", "error", err)
			}
		}
	}

	expiration := b.trackExpiration(ctx, msg, conv.Configs.Expiration, logger)

	reply, handled, err := b.control.Handle(ctx, control.Request{
		ConversationID: msg.ChatID,
		Sender:         msg.From,
		IsAdmin:        isAdmin,
		Text:           text,
	})
	if err != nil {
		logger.Error("command failed", "error", err)
	}
	if handled {
		b.send(ctx, msg.ChatID, reply.Text, expiration, logger)
		logger.Info("command processed", "duration_ms", time.Since(start).Milliseconds())
		return
	}

	if !settings.Listen || !conv.Configs.Listen {
		logger.Debug("message ignored (listen off)")
		return
	}

	now := b.now()
	in, matched := interpreter.Interpret(text, now, conv)
	source := "rules"
	if !matched {
		source = "llm"
		in, err = b.interpretFallback(ctx, text, now, msg.ChatID)
		if err != nil {
			logger.Error("fallback interpretation failed", "error", err)
			b.send(ctx, msg.ChatID, MsgFallbackError, expiration, logger)
			return
		}
	}

	res, err := b.processor.Apply(ctx, msg.ChatID, msg.From, in)
	if err != nil {
		logger.Error("failed to apply intent", "intent", in.Type, "error", err)
	}
	b.send(ctx, msg.ChatID, res.Text, expiration, logger)

	logger.Info("message processed",
		"source", source,
		"intent", in.Type,
		"mutated", res.Mutated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ---------- Internal ----------

func (b *Bot) interpretFallback(ctx context.Context, text string, now time.Time, conversationID string) (intent.Intent, error) {
	if b.fallback == nil {
		return intent.Text(processor.MsgUnknown), nil
	}
	conv, ok := b.store.Get(conversationID)
	if !ok {
		return intent.Intent{}, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}
	return b.fallback.Interpret(ctx, llm.Request{Text: text, Now: now, Conversation: conv})
}

// trackExpiration records the chat's disappearing-messages TTL when it
// changed and returns the value to reply with.
func (b *Bot) trackExpiration(ctx context.Context, msg *channels.IncomingMessage, current int, logger *slog.Logger) int {
	if msg.Expiration == current {
		return current
	}
	_ = b.store.Update(msg.ChatID, func(c *store.Conversation) error {
		c.Configs.Expiration = msg.Expiration
		return nil
	})
	if err := b.store.Commit(ctx); err != nil {
		logger.Error("failed to persist expiration", "error", err)
	}
	logger.Debug("expiration updated", "seconds", msg.Expiration)
	return msg.Expiration
}

func (b *Bot) send(ctx context.Context, to, text string, expiration int, logger *slog.Logger) {
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout)
	defer cancel()

	err := b.channel.Send(ctx, to, &channels.OutgoingMessage{Content: text, Expiration: expiration})
	if err != nil {
		logger.Error("failed to send reply", "error", err)
	}
}

// userPart returns the user portion of an identifier, dropping the server
// and any device suffix ("5511...:12@s.whatsapp.net" → "5511...").
func userPart(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	return id
}

func sameUser(a, b string) bool {
	return a != "" && b != "" && userPart(a) == userPart(b)
}

func isMentioned(mentions []string, self string) bool {
	for _, m := range mentions {
		if sameUser(m, self) {
			return true
		}
	}
	return false
}

func stripMention(text, self string) string {
	return strings.ReplaceAll(text, "@"+userPart(self), "")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
