package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds application configuration. The upstream credential is taken
// from the environment only and never from the config file.
type Config struct {
	ListenAddr  string `toml:"listen_addr"`
	UpstreamURL string `toml:"upstream_url"`
	Model       string `toml:"model"`

	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`

	// RetentionMessages caps stored history entries per session (two per turn).
	RetentionMessages  int      `toml:"retention_messages"`
	TurnTimeoutSeconds int      `toml:"turn_timeout_seconds"`
	AllowedOrigins     []string `toml:"allowed_origins"`

	// ArchivePath enables the SQLite turn transcript when non-empty.
	ArchivePath string `toml:"archive_path"`

	LogDir string `toml:"log_dir"`
	Debug  bool   `toml:"debug"`

	APIKey string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		UpstreamURL:        "https://api.openai.com/v1/chat/completions",
		Model:              "gpt-4o-mini",
		Temperature:        0.7,
		MaxTokens:          450,
		RetentionMessages:  20,
		TurnTimeoutSeconds: 60,
		AllowedOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		LogDir:             "logs",
	}
}

// Load reads the optional TOML file at path over the defaults and picks the
// credential up from the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	return cfg, nil
}

// TurnTimeout returns the configured bound on one whole turn.
func (c Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}
