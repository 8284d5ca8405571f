// Package channels defines the messaging transport abstraction. Each
// transport (WhatsApp, local console) implements Channel; the assistant
// consumes IncomingMessage values and replies through Send.
package channels

import (
	"context"
	"errors"
	"time"
)

// ErrChannelDisconnected is returned when sending on a channel that is not connected.
var ErrChannelDisconnected = errors.New("channel disconnected")

// Sender delivers outgoing messages.
type Sender interface {
	// Send delivers msg to the conversation identified by to.
	Send(ctx context.Context, to string, msg *OutgoingMessage) error
}

// Channel is a bidirectional messaging transport.
type Channel interface {
	Sender

	// Name returns the channel identifier (e.g. "whatsapp", "console").
	Name() string

	// Connect establishes the connection. Blocks until ready or ctx ends.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Receive returns the stream of incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected reports whether the channel is connected.
	IsConnected() bool
}

// ReadMarker is implemented by channels that support read receipts.
type ReadMarker interface {
	MarkRead(ctx context.Context, msg *IncomingMessage) error
}

// IncomingMessage is a text message received from a channel.
type IncomingMessage struct {
	// ID is the transport message ID.
	ID string

	// Channel is the name of the channel the message arrived on.
	Channel string

	// From is the individual sender identifier.
	From string

	// FromName is the sender's display name, when known.
	FromName string

	// ChatID is the conversation identifier (the sender for direct
	// messages, the group for group messages).
	ChatID string

	// IsGroup reports whether ChatID is a group.
	IsGroup bool

	// Content is the message text.
	Content string

	// Mentions lists identifiers mentioned in the message.
	Mentions []string

	// Expiration is the disappearing-messages TTL of the chat in seconds,
	// when the message carries one.
	Expiration int

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// OutgoingMessage is a text message to send.
type OutgoingMessage struct {
	// Content is the message text.
	Content string

	// Expiration sets the disappearing-messages TTL in seconds (0 = none).
	Expiration int
}
