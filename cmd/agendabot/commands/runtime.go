package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/agendabot/pkg/agendabot/assistant"
	"github.com/jholhewres/agendabot/pkg/agendabot/config"
	"github.com/jholhewres/agendabot/pkg/agendabot/llm"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// resolveConfig loads the config from --config or the standard locations.
// When none exists and interactive is set, it offers the setup wizard.
func resolveConfig(cmd *cobra.Command, interactive bool) (*config.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, configPath, nil
	}

	if found := config.FindConfigFile(); found != "" {
		cfg, err := config.Load(found)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, found, nil
	}

	if !interactive {
		return config.DefaultConfig(), "", nil
	}

	fmt.Println()
	fmt.Println("No configuration file found.")
	fmt.Println()

	run := true
	err := huh.NewConfirm().
		Title("Run the setup wizard now?").
		Value(&run).
		Run()
	if err != nil && !errors.Is(err, huh.ErrUserAborted) {
		return nil, "", err
	}
	if !run || err != nil {
		fmt.Println("Run 'agendabot setup' or 'agendabot config init' to create the configuration.")
		return nil, "", fmt.Errorf("configuration required before starting")
	}

	path, err := runInteractiveSetup()
	if err != nil {
		return nil, "", fmt.Errorf("setup: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger from the config and --verbose.
func newLogger(cmd *cobra.Command, cfg *config.Config, w io.Writer, floor slog.Level) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := floor
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = max(level, slog.LevelWarn)
	case "error":
		level = max(level, slog.LevelError)
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("instance", cfg.Name)
}

// openStorage opens the configured persistence backend.
func openStorage(cfg *config.Config) (store.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return store.OpenSQLite(cfg.SQLitePath())
	case config.BackendPostgres:
		return store.OpenPostgres(store.PostgresConfig{
			DSN:             cfg.Storage.Postgres.DSN,
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
	default:
		return store.NewFileStorage(cfg.JSONDir())
	}
}

// openStore opens the backend, loads the store and adds the configured
// administrators to the stored settings.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	storage, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	defaults := store.DefaultSettings()
	defaults.Timezone = cfg.Timezone

	st := store.New(storage, defaults, logger)
	if err := st.Load(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}

	if err := addAdmins(ctx, st, normalizeIDs(cfg.Admins)...); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// addAdmins appends ids missing from the stored administrator list.
func addAdmins(ctx context.Context, st *store.Store, ids ...string) error {
	settings := st.Settings()
	var missing []string
	for _, id := range ids {
		if !settings.IsAdmin(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return st.UpdateSettings(ctx, func(s *store.Settings) {
		s.Admins = append(s.Admins, missing...)
	})
}

// normalizeIDs turns bare phone numbers into WhatsApp user JIDs.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !strings.Contains(id, "@") {
			id = normalizePhone(id) + "@s.whatsapp.net"
		}
		out = append(out, id)
	}
	return out
}

// normalizePhone keeps only digits.
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// newFallback returns the LLM interpreter, or nil when disabled or no API
// key is available.
func newFallback(cfg *config.Config, logger *slog.Logger) assistant.Fallback {
	if !cfg.LLM.Enabled || cfg.LLM.APIKey == "" {
		return nil
	}
	return llm.New(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
}

// versionCache keeps the WhatsApp protocol version in the store settings.
type versionCache struct {
	store *store.Store
}

func (v versionCache) LoadWAVersion() [3]uint32 {
	return v.store.Settings().WAVersion
}

func (v versionCache) SaveWAVersion(ctx context.Context, version [3]uint32) error {
	return v.store.UpdateSettings(ctx, func(s *store.Settings) {
		s.WAVersion = version
	})
}
