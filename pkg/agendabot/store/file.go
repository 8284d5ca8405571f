// Package store – file.go provides the JSON file Storage: config.json holds
// the settings document and data.json the conversation records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	settingsFile = "config.json"
	dataFile     = "data.json"
)

// FileStorage persists the store as two JSON documents in a directory.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage creates a file-based storage rooted at dir.
// Creates the directory if it doesn't exist.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// DataPath returns the path of the conversations document.
func (s *FileStorage) DataPath() string { return filepath.Join(s.dir, dataFile) }

// SettingsPath returns the path of the settings document.
func (s *FileStorage) SettingsPath() string { return filepath.Join(s.dir, settingsFile) }

// LoadSettings implements Storage.
func (s *FileStorage) LoadSettings(_ context.Context, into *Settings) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, found, err := s.read(settingsFile)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return true, fmt.Errorf("parsing %s: %w: %v", settingsFile, ErrCorrupt, err)
	}
	return true, nil
}

// SaveSettings implements Storage.
func (s *FileStorage) SaveSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(settingsFile, settings)
}

// LoadConversations implements Storage. Each record is decoded over a
// default record so absent keys keep their defaults.
func (s *FileStorage) LoadConversations(_ context.Context) (map[string]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, found, err := s.read(dataFile)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Conversation)
	if !found {
		return out, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w: %v", dataFile, ErrCorrupt, err)
	}
	for id, doc := range raw {
		c := NewConversation("", IsGroup(id))
		c.Configs.Freemode = nil
		if err := json.Unmarshal(doc, c); err != nil {
			return nil, fmt.Errorf("parsing record %q: %w: %v", id, ErrCorrupt, err)
		}
		out[id] = c
	}
	return out, nil
}

// SaveConversations implements Storage.
func (s *FileStorage) SaveConversations(_ context.Context, snapshot map[string]Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(dataFile, snapshot)
}

// Close implements Storage.
func (s *FileStorage) Close() error { return nil }

// ---------- Internal ----------

// read returns the file contents (caller must hold mu).
func (s *FileStorage) read(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, true, nil
}

// write replaces the file atomically (caller must hold mu).
func (s *FileStorage) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
