// Package config defines the agendabot configuration file, its defaults and
// the resolution of secrets from the environment and the OS keyring.
package config

import (
	"path/filepath"
	"time"
)

// Storage backends.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the top-level configuration.
type Config struct {
	// Name identifies the instance in logs.
	Name string `yaml:"name"`

	// DataDir holds the store, the WhatsApp session and backups.
	DataDir string `yaml:"data_dir"`

	// PIDFile records the running instance. Defaults to <data_dir>/agendabot.pid.
	PIDFile string `yaml:"pid_file"`

	// Timezone is applied to new conversations (IANA name or UTC offset).
	Timezone string `yaml:"timezone"`

	// Admins lists identifiers allowed to authorize users.
	Admins []string `yaml:"admins"`

	Logging      LoggingConfig      `yaml:"logging"`
	Storage      StorageConfig      `yaml:"storage"`
	LLM          LLMConfig          `yaml:"llm"`
	WhatsApp     WhatsAppConfig     `yaml:"whatsapp"`
	Reminders    RemindersConfig    `yaml:"reminders"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "json", "sqlite" or "postgres".
	Backend string `yaml:"backend"`

	JSON     JSONStorageConfig     `yaml:"json"`
	SQLite   SQLiteStorageConfig   `yaml:"sqlite"`
	Postgres PostgresStorageConfig `yaml:"postgres"`
}

// JSONStorageConfig configures the document backend.
type JSONStorageConfig struct {
	// Dir holds config.json and data.json. Defaults to data_dir.
	Dir string `yaml:"dir"`
}

// SQLiteStorageConfig configures the SQLite backend.
type SQLiteStorageConfig struct {
	// Path defaults to <data_dir>/agendabot.db.
	Path string `yaml:"path"`
}

// PostgresStorageConfig configures the PostgreSQL backend.
type PostgresStorageConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LLMConfig configures the fallback interpreter.
type LLMConfig struct {
	// Enabled turns the fallback on. Without it unmatched messages get the
	// fixed "not understood" reply.
	Enabled bool `yaml:"enabled"`

	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// WhatsAppConfig configures the WhatsApp channel.
type WhatsAppConfig struct {
	// SessionDB is the whatsmeow session database. Defaults to
	// <data_dir>/whatsapp.db.
	SessionDB string `yaml:"session_db"`

	// DeviceName is shown in WhatsApp's linked devices list.
	DeviceName string `yaml:"device_name"`

	// AutoRead sends read receipts for handled messages.
	AutoRead bool `yaml:"auto_read"`

	// RespondToGroups enables group conversations.
	RespondToGroups bool `yaml:"respond_to_groups"`
}

// RemindersConfig configures the reminder sweep.
type RemindersConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HousekeepingConfig configures store snapshots and their cleanup.
type HousekeepingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or descriptor.
	Schedule string `yaml:"schedule"`

	// RetentionDays keeps snapshots this many days older than the newest.
	RetentionDays int `yaml:"retention_days"`
}

// DefaultConfig returns the configuration used for absent keys.
func DefaultConfig() *Config {
	return &Config{
		Name:     "agendabot",
		DataDir:  "./data",
		Timezone: "America/Sao_Paulo",
		Admins:   []string{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: BackendJSON,
			Postgres: PostgresStorageConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		LLM: LLMConfig{
			Enabled: true,
			BaseURL: "https://api.openai.com/v1",
			APIKey:  "${AGENDABOT_API_KEY}",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			DeviceName:      "AgendaBot",
			AutoRead:        true,
			RespondToGroups: true,
		},
		Reminders: RemindersConfig{
			Interval: 60 * time.Second,
		},
		Housekeeping: HousekeepingConfig{
			Enabled:       true,
			Schedule:      "@daily",
			RetentionDays: 2,
		},
	}
}

// PIDPath returns the effective PID file path.
func (c *Config) PIDPath() string {
	if c.PIDFile != "" {
		return c.PIDFile
	}
	return filepath.Join(c.DataDir, "agendabot.pid")
}

// JSONDir returns the effective document backend directory.
func (c *Config) JSONDir() string {
	if c.Storage.JSON.Dir != "" {
		return c.Storage.JSON.Dir
	}
	return c.DataDir
}

// SQLitePath returns the effective SQLite backend path.
func (c *Config) SQLitePath() string {
	if c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.DataDir, "agendabot.db")
}

// SessionDBPath returns the effective WhatsApp session database path.
func (c *Config) SessionDBPath() string {
	if c.WhatsApp.SessionDB != "" {
		return c.WhatsApp.SessionDB
	}
	return filepath.Join(c.DataDir, "whatsapp.db")
}

// BackupDir returns the directory receiving store snapshots.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}
