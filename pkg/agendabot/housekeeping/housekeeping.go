// Package housekeeping writes periodic snapshots of the store and removes
// stale snapshot files.
package housekeeping

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/scheduler"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// JobName identifies the housekeeping job in the scheduler.
const JobName = "housekeeping"

const snapshotSuffix = "_agendabot.json"

// Snapshot is the document written for each run.
type Snapshot struct {
	CreatedAt     time.Time                     `json:"created_at"`
	Settings      store.Settings                `json:"settings"`
	Conversations map[string]store.Conversation `json:"conversations"`
}

// Housekeeper snapshots a Store into a backup directory.
type Housekeeper struct {
	store         *store.Store
	dir           string
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a Housekeeper writing into dir and keeping snapshots up to
// retentionDays older than the newest one.
func New(s *store.Store, dir string, retentionDays int, logger *slog.Logger) *Housekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Housekeeper{
		store:         s,
		dir:           dir,
		retentionDays: retentionDays,
		logger:        logger.With("component", "housekeeping"),
		now:           time.Now,
	}
}

// SetClock overrides the time source.
func (h *Housekeeper) SetClock(now func() time.Time) { h.now = now }

// Run writes a snapshot and cleans old ones.
func (h *Housekeeper) Run(ctx context.Context) error {
	path, err := h.Snapshot(ctx)
	if err != nil {
		return err
	}
	removed, err := CleanOld(h.dir, h.retentionDays)
	if err != nil {
		return err
	}
	h.logger.Info("housekeeping complete", "snapshot", filepath.Base(path), "removed", removed)
	return nil
}

// Snapshot writes the current store contents and returns the file path.
func (h *Housekeeper) Snapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(h.dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	now := h.now().UTC()
	doc := Snapshot{
		CreatedAt:     now,
		Settings:      h.store.Settings(),
		Conversations: h.store.Snapshot(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(h.dir, now.Format("20060102-150405")+snapshotSuffix)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

// CleanOld removes regular files in dir whose modification time is more
// than retentionDays before the newest file's. The newest file is never
// removed. A missing directory is not an error.
func CleanOld(dir string, retentionDays int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	type file struct {
		path  string
		mtime time.Time
	}
	var (
		files  []file
		newest time.Time
	)
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{filepath.Join(dir, e.Name()), info.ModTime()})
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	if len(files) == 0 {
		return 0, nil
	}

	limit := newest.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, f := range files {
		if !f.mtime.Before(limit) {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(f.path), err)
		}
		removed++
	}
	return removed, nil
}

// Job wraps Run as a scheduler job.
func (h *Housekeeper) Job(schedule string) scheduler.Job {
	if schedule == "" {
		schedule = "@daily"
	}
	return scheduler.Job{
		Name:     JobName,
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run:      h.Run,
	}
}
