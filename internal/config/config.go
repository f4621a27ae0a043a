// Package config holds the typed configuration surface for notshoutbox:
// an optional YAML file overridden by CLI flags (grounded on
// balookrd-outline-cli-ws/internal/config's yaml-tagged structs and
// Validate method).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs the server accepts. Zero value fields are
// filled in by Defaults before Validate runs.
type Config struct {
	ListenAddr       string `yaml:"listen_addr"`
	HistoryLimit     int    `yaml:"history_limit"`
	NewClientBacklog int    `yaml:"new_client_backlog"`
	ReadBufferSize   int    `yaml:"read_buffer_size"`
	MetricsAddr      string `yaml:"metrics_addr"` // "" disables the metrics listener
	LogLevel         string `yaml:"log_level"`     // "debug", "info", "warn", "error"
}

// Defaults returns the configuration spec.md assumes when no flags or file
// are supplied: listen on :8080, 50-message history, 5-message new-client
// backlog, 4096-byte read buffer, metrics disabled, info logging.
func Defaults() Config {
	return Config{
		ListenAddr:       ":8080",
		HistoryLimit:     50,
		NewClientBacklog: 5,
		ReadBufferSize:   4096,
		MetricsAddr:      "",
		LogLevel:         "info",
	}
}

// Load reads a YAML file at path and merges it over Defaults. An empty path
// returns Defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks invariants the loop and listener rely on.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("config: history_limit must be positive, got %d", c.HistoryLimit)
	}
	if c.NewClientBacklog < 0 {
		return fmt.Errorf("config: new_client_backlog must not be negative, got %d", c.NewClientBacklog)
	}
	if c.NewClientBacklog > c.HistoryLimit {
		return fmt.Errorf("config: new_client_backlog (%d) exceeds history_limit (%d)", c.NewClientBacklog, c.HistoryLimit)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("config: read_buffer_size must be positive, got %d", c.ReadBufferSize)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
