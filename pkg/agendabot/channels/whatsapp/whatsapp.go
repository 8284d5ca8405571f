// Package whatsapp implements the WhatsApp channel using whatsmeow.
//
// The session is kept in a SQLite database; on first start the pairing QR
// code is streamed to subscribers (the serve command renders it in the
// terminal). Replies carry the chat's disappearing-messages expiration.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/jholhewres/agendabot/pkg/agendabot/channels"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// SessionDB is the path of the SQLite session database.
	SessionDB string

	// DeviceName is shown in WhatsApp's linked devices list.
	DeviceName string
}

// VersionCache persists the newest known WhatsApp web protocol version.
type VersionCache interface {
	LoadWAVersion() [3]uint32
	SaveWAVersion(ctx context.Context, v [3]uint32) error
}

// QREvent is a pairing event delivered to subscribers.
type QREvent struct {
	// Type is "code", "success", "timeout" or "error".
	Type string

	// Code is the raw QR payload (Type == "code").
	Code string

	// Message is a human-readable description.
	Message string
}

// WhatsApp implements channels.Channel and channels.ReadMarker.
type WhatsApp struct {
	cfg      Config
	versions VersionCache
	client   *whatsmeow.Client
	logger   *slog.Logger

	messages       chan *channels.IncomingMessage
	messagesClosed atomic.Bool
	connected      atomic.Bool

	qrMu        sync.Mutex
	qrObservers []chan QREvent

	hookMu      sync.Mutex
	onConnected func(self string)

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp channel. versions may be nil.
func New(cfg Config, versions VersionCache, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "AgendaBot"
	}
	return &WhatsApp{
		cfg:      cfg,
		versions: versions,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
		ctx:      context.Background(),
	}
}

// OnConnected registers fn to run with the bot's own JID each time the
// connection is established.
func (w *WhatsApp) OnConnected(fn func(self string)) {
	w.hookMu.Lock()
	defer w.hookMu.Unlock()
	w.onConnected = fn
}

// SubscribeQR registers a receiver for pairing events. The returned
// function unsubscribes.
func (w *WhatsApp) SubscribeQR() (<-chan QREvent, func()) {
	ch := make(chan QREvent, 8)
	w.qrMu.Lock()
	w.qrObservers = append(w.qrObservers, ch)
	w.qrMu.Unlock()

	return ch, func() {
		w.qrMu.Lock()
		defer w.qrMu.Unlock()
		for i, obs := range w.qrObservers {
			if obs == ch {
				w.qrObservers = append(w.qrObservers[:i], w.qrObservers[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

func (w *WhatsApp) notifyQR(evt QREvent) {
	w.qrMu.Lock()
	defer w.qrMu.Unlock()
	for _, ch := range w.qrObservers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ---------- Channel Interface ----------

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect opens the session store and connects. Without a stored session
// the QR login runs in the background and Connect returns immediately.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	if err := os.MkdirAll(filepath.Dir(w.cfg.SessionDB), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", w.cfg.SessionDB),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := container.GetFirstDevice(w.ctx)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	w.applyVersion(w.ctx)
	store.SetOSInfo(w.cfg.DeviceName, [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		w.logger.Info("no existing session, QR code required")
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("QR login failed", "error", err)
			}
		}()
		return nil
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	w.logger.Info("connecting with existing session", "jid", w.SelfID())
	return nil
}

// Disconnect closes the connection and the message stream.
func (w *WhatsApp) Disconnect() error {
	w.connected.Store(false)
	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}
	w.logger.Info("disconnected")
	return nil
}

// Send delivers a text message to the JID to.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() || w.client == nil {
		return channels.ErrChannelDisconnected
	}
	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}
	if _, err := w.client.SendMessage(ctx, jid, buildTextMessage(msg.Content, msg.Expiration)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive returns the incoming message stream.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected reports whether the session is connected.
func (w *WhatsApp) IsConnected() bool {
	return w.connected.Load()
}

// MarkRead sends a read receipt for msg.
func (w *WhatsApp) MarkRead(ctx context.Context, msg *channels.IncomingMessage) error {
	if !w.connected.Load() || w.client == nil {
		return nil
	}
	chat, err := parseJID(msg.ChatID)
	if err != nil {
		return err
	}
	sender := chat
	if msg.IsGroup {
		if sender, err = parseJID(msg.From); err != nil {
			return err
		}
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return w.client.MarkRead(ctx, []types.MessageID{types.MessageID(msg.ID)}, ts, chat, sender)
}

// SelfID returns the bot's own JID without device suffix, or "" before
// pairing.
func (w *WhatsApp) SelfID() string {
	if w.client == nil || w.client.Store == nil || w.client.Store.ID == nil {
		return ""
	}
	return w.client.Store.ID.ToNonAD().String()
}

// ---------- Internal ----------

// loginWithQR runs the pairing flow, forwarding codes to subscribers.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return nil
			}
			switch evt.Event {
			case "code":
				w.logger.Info("QR code ready, scan it with WhatsApp")
				w.notifyQR(QREvent{Type: "code", Code: evt.Code, Message: "Scan the QR code with WhatsApp"})
			case "success":
				w.logger.Info("login successful")
				w.notifyQR(QREvent{Type: "success", Message: "WhatsApp linked"})
				return nil
			case "timeout":
				w.notifyQR(QREvent{Type: "timeout", Message: "QR code expired"})
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					w.notifyQR(QREvent{Type: "error", Message: evt.Error.Error()})
					return fmt.Errorf("QR login error: %w", evt.Error)
				}
			}
		}
	}
}

// emitMessage queues msg for the consumer, dropping it when the buffer is
// full.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}
	select {
	case w.messages <- msg:
	case <-w.ctx.Done():
	default:
		w.logger.Warn("message channel full, dropping message", "from", msg.From)
	}
}
