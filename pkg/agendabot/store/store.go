// Package store holds the per-conversation records (configs, tasks, events)
// and the global settings, and persists them through a pluggable Storage.
//
// All access goes through the Store's closures so index validation and the
// mutation that depends on it happen in the same critical section.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrNotFound is returned when a conversation record does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the in-memory source of truth shared by the message pipeline and
// the reminder sweep.
type Store struct {
	storage Storage
	logger  *slog.Logger

	mu            sync.Mutex
	settings      Settings
	conversations map[string]*Conversation

	// commitMu serializes Commit so snapshots reach storage in order.
	commitMu sync.Mutex
}

// New creates a Store backed by storage. defaults seed the settings document
// when none is stored.
func New(storage Storage, defaults Settings, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage:       storage,
		logger:        logger.With("component", "store"),
		settings:      defaults,
		conversations: make(map[string]*Conversation),
	}
}

// Load reads settings and records from storage, fills missing keys with
// defaults and persists the healed documents. Corrupt documents are logged
// and replaced by defaults.
func (s *Store) Load(ctx context.Context) error {
	settings := s.Settings()
	defaults := settings
	if _, err := s.storage.LoadSettings(ctx, &settings); err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return fmt.Errorf("loading settings: %w", err)
		}
		s.logger.Error("settings document is corrupt, resetting to defaults", "error", err)
		settings = defaults
	}
	if settings.Admins == nil {
		settings.Admins = []string{}
	}

	conversations, err := s.storage.LoadConversations(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return fmt.Errorf("loading conversations: %w", err)
		}
		s.logger.Error("conversation data is corrupt, resetting to defaults", "error", err)
		conversations = make(map[string]*Conversation)
	}

	for id, c := range conversations {
		heal(id, c, settings.Timezone)
	}

	s.mu.Lock()
	s.settings = settings
	s.conversations = conversations
	s.mu.Unlock()

	s.logger.Info("store loaded", "conversations", len(conversations))

	if err := s.storage.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	return s.Commit(ctx)
}

// heal fills keys absent from older or hand-edited records.
func heal(id string, c *Conversation, timezone string) {
	if c.Tasks == nil {
		c.Tasks = []Task{}
	}
	if c.Events == nil {
		c.Events = []Event{}
	}
	if c.Configs.Timezone == "" {
		c.Configs.Timezone = timezone
	}
	if IsGroup(id) && c.Configs.Freemode == nil {
		off := false
		c.Configs.Freemode = &off
	}
}

// ---------- Settings ----------

// Settings returns a copy of the global settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.settings
	out.Admins = append([]string(nil), s.settings.Admins...)
	return out
}

// UpdateSettings mutates the settings and persists them.
func (s *Store) UpdateSettings(ctx context.Context, fn func(*Settings)) error {
	s.mu.Lock()
	fn(&s.settings)
	snapshot := s.settings
	snapshot.Admins = append([]string(nil), s.settings.Admins...)
	s.mu.Unlock()

	if err := s.storage.SaveSettings(ctx, snapshot); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// ---------- Conversations ----------

// Exists reports whether a record exists for id.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[id]
	return ok
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return c.Clone(), true
}

// Ensure creates a default record for id if missing. It reports whether a
// record was created. The caller commits.
func (s *Store) Ensure(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; ok {
		return false
	}
	s.conversations[id] = NewConversation(s.settings.Timezone, IsGroup(id))
	return true
}

// Delete removes the record for id. It reports whether one existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	return true
}

// IDs returns all conversation identifiers in sorted order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Update runs fn with exclusive access to the record for id.
func (s *Store) Update(id string, fn func(c *Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	return fn(c)
}

// Each runs fn for every record while holding the lock. Settings are
// passed read-only.
func (s *Store) Each(fn func(id string, c *Conversation, settings Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fn(id, s.conversations[id], s.settings)
	}
}

// Snapshot returns a deep copy of every record.
func (s *Store) Snapshot() map[string]Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Conversation, len(s.conversations))
	for id, c := range s.conversations {
		out[id] = c.Clone()
	}
	return out
}

// Commit persists the current records. The snapshot is taken and written
// under commitMu, so concurrent commits cannot reorder.
func (s *Store) Commit(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.storage.SaveConversations(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("saving conversations: %w", err)
	}
	return nil
}

// Close closes the underlying storage.
func (s *Store) Close() error {
	return s.storage.Close()
}
