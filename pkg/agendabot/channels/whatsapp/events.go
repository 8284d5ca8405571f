package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/jholhewres/agendabot/pkg/agendabot/channels"
)

// handleEvent is the whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.connected.Store(true)
		self := w.SelfID()
		w.logger.Info("connected", "jid", self)
		w.hookMu.Lock()
		hook := w.onConnected
		w.hookMu.Unlock()
		if hook != nil && self != "" {
			hook(self)
		}

	case *events.Disconnected:
		w.connected.Store(false)
		w.logger.Warn("disconnected, waiting for auto-reconnect")

	case *events.StreamReplaced:
		w.connected.Store(false)
		w.logger.Warn("stream replaced by another client")

	case *events.LoggedOut:
		w.connected.Store(false)
		w.logger.Error("logged out, pairing required", "reason", evt.Reason.String())
		if w.client != nil && w.client.Store != nil {
			if err := w.client.Store.Delete(w.ctx); err != nil {
				w.logger.Warn("failed to clear session", "error", err)
			}
		}
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("QR login failed", "error", err)
			}
		}()

	case *events.PairSuccess:
		w.logger.Info("paired", "jid", evt.ID.ToNonAD().String())

	case *events.TemporaryBan:
		w.logger.Error("temporarily banned", "code", evt.Code.String(), "expire", evt.Expire)
	}
}

// handleMessageEvt converts a whatsmeow message into an IncomingMessage.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.Chat.Server == types.BroadcastServer {
		return
	}

	content, ctxInfo := extractText(evt.Message)
	if content == "" {
		return
	}

	sender := w.resolveLID(evt.Info.Sender.ToNonAD())
	chat := evt.Info.Chat.ToNonAD()
	if !evt.Info.IsGroup {
		chat = sender
	}

	msg := &channels.IncomingMessage{
		ID:         string(evt.Info.ID),
		Channel:    "whatsapp",
		From:       sender.String(),
		FromName:   evt.Info.PushName,
		ChatID:     chat.String(),
		IsGroup:    evt.Info.IsGroup,
		Content:    content,
		Expiration: int(ctxInfo.GetExpiration()),
		Timestamp:  evt.Info.Timestamp,
	}
	for _, m := range ctxInfo.GetMentionedJID() {
		jid, err := types.ParseJID(m)
		if err != nil {
			continue
		}
		msg.Mentions = append(msg.Mentions, w.resolveLID(jid).String())
	}

	w.emitMessage(msg)
}

// resolveLID maps a LID to its phone-number JID when the mapping is known.
func (w *WhatsApp) resolveLID(jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer || w.client == nil || w.client.Store == nil {
		return jid
	}
	alt, err := w.client.Store.GetAltJID(w.ctx, jid)
	if err != nil || alt.IsEmpty() {
		return jid
	}
	return alt.ToNonAD()
}

// ---------- Helpers ----------

// extractText returns the text of a plain or extended text message and its
// context info (nil for plain conversation messages).
func extractText(msg *waE2E.Message) (string, *waE2E.ContextInfo) {
	if msg == nil {
		return "", nil
	}
	if text := msg.GetConversation(); text != "" {
		return text, nil
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText(), ext.GetContextInfo()
	}
	return "", nil
}

// buildTextMessage builds an outgoing text message. A positive expiration
// makes it a disappearing message.
func buildTextMessage(text string, expiration int) *waE2E.Message {
	if expiration <= 0 {
		return &waE2E.Message{Conversation: proto.String(text)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				Expiration: proto.Uint32(uint32(expiration)),
			},
		},
	}
}

// parseJID accepts a full JID or a bare phone number.
func parseJID(s string) (types.JID, error) {
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("not a phone number or JID: %q", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
