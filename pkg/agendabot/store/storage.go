package store

import (
	"context"
	"errors"
)

// ErrCorrupt is returned by a Storage when a persisted document exists but
// cannot be decoded. The Store recovers from it by resetting to defaults.
var ErrCorrupt = errors.New("corrupt document")

// Storage persists the settings document and the conversation records.
// Implementations: FileStorage (JSON files), SQLStorage (SQLite, PostgreSQL).
type Storage interface {
	// LoadSettings decodes the stored settings over into, so keys missing
	// from the stored document keep the defaults already in into.
	// found is false when nothing is stored yet.
	LoadSettings(ctx context.Context, into *Settings) (found bool, err error)

	// SaveSettings replaces the stored settings.
	SaveSettings(ctx context.Context, s Settings) error

	// LoadConversations returns every stored record. Missing configuration
	// keys take the NewConversation defaults.
	LoadConversations(ctx context.Context) (map[string]*Conversation, error)

	// SaveConversations replaces the stored records with the snapshot.
	SaveConversations(ctx context.Context, snapshot map[string]Conversation) error

	// Close releases underlying resources.
	Close() error
}
