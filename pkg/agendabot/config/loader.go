package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR}, ${VAR:-default}, ${VAR:?error} and $VAR.
//
// Groups: 1 = name (braced), 2 = modifier ("-" or "?"), 3 = default or
// error message, 4 = name (bare).
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// Load reads a YAML configuration file. .env files are loaded and
// environment references expanded before parsing; relative paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, filepath.Dir(path))
	checkFilePermissions(path)
	return cfg, nil
}

// Parse overlays YAML onto DefaultConfig. Keys absent from data keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("config: storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Reminders.Interval < 0 {
		return fmt.Errorf("config: reminders.interval must be positive")
	}
	if c.Housekeeping.RetentionDays < 0 {
		return fmt.Errorf("config: housekeeping.retention_days must not be negative")
	}
	return nil
}

// Save writes cfg as YAML with owner-only permissions. The API key is
// written as an environment reference when it came from the environment.
func Save(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.LLM.APIKey = sanitizeSecret(cfg.LLM.APIKey, EnvAPIKey, EnvOpenAIKey)

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches the standard locations and returns the first
// existing file, or "".
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"agendabot.yaml",
		"agendabot.yml",
		"configs/config.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "agendabot", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// IsEnvReference reports whether s is an unexpanded environment reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

// ---------- Internal ----------

// loadEnvFiles loads .env files without overriding the environment.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces environment references. Unset plain references are
// kept as-is; an unset ${VAR:?msg} is an error.
func expandEnvVars(input string) (string, error) {
	var missing error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		name, modifier, value, bare := m[1], m[2], m[3], m[4]

		if bare != "" {
			if v, ok := os.LookupEnv(bare); ok {
				return v
			}
			return match
		}

		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		switch modifier {
		case "-":
			return value
		case "?":
			if missing == nil {
				if value == "" {
					value = "required environment variable not set"
				}
				missing = fmt.Errorf("config error: %s - %s", name, value)
			}
			return ""
		}
		return match
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

// resolveRelativePaths makes file paths absolute relative to the config
// file's directory, expanding ~.
func resolveRelativePaths(cfg *Config, dir string) {
	cfg.DataDir = resolvePath(cfg.DataDir, dir)
	cfg.PIDFile = resolvePath(cfg.PIDFile, dir)
	cfg.Storage.JSON.Dir = resolvePath(cfg.Storage.JSON.Dir, dir)
	cfg.Storage.SQLite.Path = resolvePath(cfg.Storage.SQLite.Path, dir)
	cfg.WhatsApp.SessionDB = resolvePath(cfg.WhatsApp.SessionDB, dir)
}

func resolvePath(path, dir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// sanitizeSecret replaces a value taken from one of envVars with a
// reference to it.
func sanitizeSecret(value string, envVars ...string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	for _, name := range envVars {
		if os.Getenv(name) == value {
			return "${" + name + "}"
		}
	}
	return value
}

// checkFilePermissions warns when the config file is readable by others.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
