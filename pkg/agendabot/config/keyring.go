package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// Environment variables holding the LLM API key, in priority order.
const (
	EnvAPIKey    = "AGENDABOT_API_KEY"
	EnvOpenAIKey = "OPENAI_API_KEY"
)

const (
	keyringService = "agendabot"
	keyringAPIKey  = "api_key"
)

// StoreAPIKey saves the LLM API key in the OS keyring.
func StoreAPIKey(value string) error {
	if err := keyring.Set(keyringService, keyringAPIKey, value); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the LLM API key from the OS keyring.
func DeleteAPIKey() error {
	return keyring.Delete(keyringService, keyringAPIKey)
}

func keyringAPIKeyValue() string {
	v, err := keyring.Get(keyringService, keyringAPIKey)
	if err != nil {
		return ""
	}
	return v
}

// ResolveAPIKey fills cfg.LLM.APIKey from, in order: the environment, the
// OS keyring, the config value. It returns the source used ("env",
// "keyring", "config") or "" when no key is available.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	for _, name := range []string{EnvAPIKey, EnvOpenAIKey} {
		if v := os.Getenv(name); v != "" {
			cfg.LLM.APIKey = v
			logger.Debug("API key loaded from environment", "var", name)
			return "env"
		}
	}

	if v := keyringAPIKeyValue(); v != "" {
		cfg.LLM.APIKey = v
		logger.Debug("API key loaded from OS keyring")
		return "keyring"
	}

	if cfg.LLM.APIKey != "" && !IsEnvReference(cfg.LLM.APIKey) {
		logger.Debug("API key loaded from config")
		return "config"
	}

	cfg.LLM.APIKey = ""
	if cfg.LLM.Enabled {
		logger.Warn("no API key found, LLM fallback disabled",
			"hint", "set one with: agendabot config set-key")
	}
	return ""
}

// ReadPassword reads a line from the terminal without echo, falling back to
// plain stdin when it is not a terminal.
func ReadPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	var buf [1024]byte
	n, err := os.Stdin.Read(buf[:])
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(string(buf[:n]), "\r\n"), nil
}
