// Package config contains everything related to configuration
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrLastProvider rejects disabling the only enabled provider.
var ErrLastProvider = errors.New("cannot disable the last enabled provider")

// ProviderSettings holds per-provider configuration.
type ProviderSettings struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey,omitempty"`
}

// Config holds the application configuration. The JSON-tagged fields live in
// the config file; the rest are runtime knobs sourced from the environment.
type Config struct {
	RefreshInterval  int                         `json:"refreshInterval"`
	StartOnLogin     bool                        `json:"startOnLogin"`
	EnabledProviders []string                    `json:"enabledProviders"`
	Providers        map[string]ProviderSettings `json:"providerSettings,omitempty"`

	WarningThreshold  float64       `json:"-"`
	CriticalThreshold float64       `json:"-"`
	FetchTimeout      time.Duration `json:"-"`
}

// Default returns the configuration used before any file or environment
// override is applied.
func Default() Config {
	return Config{
		RefreshInterval:   DefaultRefreshIntervalMinutes,
		EnabledProviders:  []string{"claude"},
		Providers:         make(map[string]ProviderSettings),
		WarningThreshold:  DefaultWarningThreshold,
		CriticalThreshold: DefaultCriticalThreshold,
		FetchTimeout:      30 * time.Second,
	}
}

// RefreshDuration returns the refresh interval as a duration.
func (c Config) RefreshDuration() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Minute
}

// IsProviderEnabled reports whether the provider id is in the enabled list.
func (c Config) IsProviderEnabled(id string) bool {
	for _, enabled := range c.EnabledProviders {
		if enabled == id {
			return true
		}
	}
	return false
}

// ProviderAPIKey returns the configured API key override for the provider,
// or "" when none is set.
func (c Config) ProviderAPIKey(id string) string {
	return c.Providers[id].APIKey
}

// setProviderEnabled updates both the ordered enabled list and the
// per-provider settings entry.
func (c *Config) setProviderEnabled(id string, enabled bool) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderSettings)
	}
	settings := c.Providers[id]
	settings.Enabled = enabled
	c.Providers[id] = settings

	if enabled {
		if !c.IsProviderEnabled(id) {
			c.EnabledProviders = append(c.EnabledProviders, id)
		}
		return
	}
	kept := c.EnabledProviders[:0]
	for _, existing := range c.EnabledProviders {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	c.EnabledProviders = kept
}

// normalize repairs values an external editor may have broken.
func (c *Config) normalize() {
	if c.RefreshInterval < MinRefreshIntervalMinutes || c.RefreshInterval > MaxRefreshIntervalMinutes {
		c.RefreshInterval = DefaultRefreshIntervalMinutes
	}
	if len(c.EnabledProviders) == 0 {
		c.EnabledProviders = []string{"claude"}
	}
	seen := make(map[string]bool, len(c.EnabledProviders))
	deduped := c.EnabledProviders[:0]
	for _, id := range c.EnabledProviders {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, id)
	}
	c.EnabledProviders = deduped
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderSettings)
	}
}

// applyEnv layers environment overrides on top of the loaded values.
func (c *Config) applyEnv() {
	c.RefreshInterval = getEnvInt(EnvRefreshInterval, c.RefreshInterval)
	c.WarningThreshold = getEnvFloat(EnvWarningThreshold, c.WarningThreshold)
	c.CriticalThreshold = getEnvFloat(EnvCriticalThreshold, c.CriticalThreshold)
	c.FetchTimeout = getEnvDuration(EnvFetchTimeout, c.FetchTimeout)
	if c.RefreshInterval < MinRefreshIntervalMinutes || c.RefreshInterval > MaxRefreshIntervalMinutes {
		c.RefreshInterval = DefaultRefreshIntervalMinutes
	}
}

// clone returns a deep copy so callers cannot mutate shared state.
func (c Config) clone() Config {
	out := c
	out.EnabledProviders = append([]string(nil), c.EnabledProviders...)
	out.Providers = make(map[string]ProviderSettings, len(c.Providers))
	for id, settings := range c.Providers {
		out.Providers[id] = settings
	}
	return out
}

// Load reads configuration from .env files, the config file, and
// environment variables.
func Load() (Config, error) {
	loadDotenv()
	path := getEnvString(EnvConfigPath, DefaultPath())
	return LoadFile(path)
}

// LoadFile reads the config file at path, falling back to defaults when it
// does not exist.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

// SaveFile writes the config file atomically via a temp file rename.
func SaveFile(path string, cfg Config) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// DefaultPath returns the config file location for the platform.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "quotabar", "config.json")
		}
		return filepath.Join(home, "AppData", "Roaming", "quotabar", "config.json")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "quotabar", "config.json")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "quotabar", "config.json")
		}
		return filepath.Join(home, ".config", "quotabar", "config.json")
	}
}

// loadDotenv loads the first .env file found in the candidate locations.
func loadDotenv() {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}
}

// envPaths returns a list of paths to check for .env files.
func envPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	paths = append(paths, filepath.Join(filepath.Dir(DefaultPath()), ".env"))
	return paths
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
