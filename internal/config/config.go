// Package config loads the parcours client configuration from a YAML file
// with environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProductionAPIURL is used when a production host is configured with a
	// localhost API URL.
	ProductionAPIURL = "https://api.maconsulting.fr/api"
	// DefaultAPIURL is the development backend (cmd/server).
	DefaultAPIURL = "http://localhost:4000/api"
)

var productionHosts = map[string]bool{
	"maconsulting.fr":     true,
	"www.maconsulting.fr": true,
	"app.maconsulting.fr": true,
}

// Config holds all client configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Quest   QuestConfig   `yaml:"quest"`
}

type APIConfig struct {
	BaseURL    string `yaml:"base_url"`
	PublicHost string `yaml:"public_host"`
	Timeout    string `yaml:"timeout"`
}

// StoreConfig selects the local key-value backend: memory, sqlite or redis.
type StoreConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

type QuestConfig struct {
	SyncDebounce string `yaml:"sync_debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultAPIURL,
			Timeout: "30s",
		},
		Store: StoreConfig{
			Backend:  "sqlite",
			Path:     filepath.Join(defaultDataDir(), "parcours.db"),
			RedisURL: "redis://localhost:6379/0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Quest: QuestConfig{
			SyncDebounce: "900ms",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "parcours")
	}
	return ".parcours"
}

// Load reads path (a missing file yields defaults) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PARCOURS_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("PARCOURS_PUBLIC_HOST"); v != "" {
		c.API.PublicHost = v
	}
	if v := os.Getenv("PARCOURS_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("PARCOURS_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("PARCOURS_REDIS_URL"); v != "" {
		c.Store.RedisURL = v
	}
	if v := os.Getenv("PARCOURS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PARCOURS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks enumerated fields and durations.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if _, err := c.APITimeout(); err != nil {
		return err
	}
	if _, err := c.SyncDebounce(); err != nil {
		return err
	}
	return nil
}

// APIBaseURL is the effective backend URL after the production override.
func (c *Config) APIBaseURL() string {
	return ResolveAPIBaseURL(c.API.BaseURL, c.API.PublicHost)
}

func (c *Config) APITimeout() (time.Duration, error) {
	return parseDuration("api.timeout", c.API.Timeout, 30*time.Second)
}

func (c *Config) SyncDebounce() (time.Duration, error) {
	return parseDuration("quest.sync_debounce", c.Quest.SyncDebounce, 900*time.Millisecond)
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}

// ResolveAPIBaseURL returns configured with trailing slashes trimmed, falling
// back to DefaultAPIURL when empty. A recognized production host never talks
// to a localhost API: it gets ProductionAPIURL instead.
func ResolveAPIBaseURL(configured, host string) string {
	base := strings.TrimRight(strings.TrimSpace(configured), "/")
	if base == "" {
		base = DefaultAPIURL
	}
	if IsProductionHost(host) && looksLocal(base) {
		return ProductionAPIURL
	}
	return base
}

// IsProductionHost reports whether host (optionally with a port) is one of
// the platform's public hostnames.
func IsProductionHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h, "]") {
		h = h[:i]
	}
	return productionHosts[h]
}

func looksLocal(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.Contains(raw, "localhost") || strings.Contains(raw, "127.0.0.1")
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "0.0.0.0", "::1":
		return true
	}
	return false
}
