package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	key := "TEST_ENV_STRING"
	val := "test_value"
	os.Setenv(key, val)
	defer os.Unsetenv(key)

	if got := getEnvString(key, "default"); got != val {
		t.Errorf("getEnvString() = %q, want %q", got, val)
	}

	if got := getEnvString("NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_ENV_INT"

	tests := []struct {
		name       string
		envVal     string
		defaultVal int
		want       int
	}{
		{"Valid", "7", 5, 7},
		{"Invalid", "seven", 5, 5},
		{"Empty", "", 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(key, tt.envVal)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnvInt(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	key := "TEST_ENV_FLOAT"

	tests := []struct {
		name       string
		envVal     string
		defaultVal float64
		want       float64
	}{
		{"Valid", "70.5", 80, 70.5},
		{"Invalid", "many", 80, 80},
		{"Empty", "", 80, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(key, tt.envVal)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnvFloat(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_ENV_DURATION"

	tests := []struct {
		name       string
		envVal     string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"ValidDuration", "1m", time.Second, time.Minute},
		{"ValidSeconds", "60", time.Second, 60 * time.Second},
		{"Invalid", "invalid", time.Second, time.Second},
		{"Empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(key, tt.envVal)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnvDuration(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir")

	if err := ensureDir(path); err != nil {
		t.Fatalf("ensureDir() failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("directory was not created")
	}

	if err := ensureDir(""); err != nil {
		t.Error("ensureDir(\"\") should not error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.RefreshInterval != DefaultRefreshIntervalMinutes {
		t.Errorf("RefreshInterval = %d, want %d", cfg.RefreshInterval, DefaultRefreshIntervalMinutes)
	}
	if !reflect.DeepEqual(cfg.EnabledProviders, []string{"claude"}) {
		t.Errorf("EnabledProviders = %v, want [claude]", cfg.EnabledProviders)
	}
	if cfg.WarningThreshold != DefaultWarningThreshold {
		t.Errorf("WarningThreshold = %v, want %v", cfg.WarningThreshold, DefaultWarningThreshold)
	}
	if cfg.CriticalThreshold != DefaultCriticalThreshold {
		t.Errorf("CriticalThreshold = %v, want %v", cfg.CriticalThreshold, DefaultCriticalThreshold)
	}
	if cfg.RefreshDuration() != 5*time.Minute {
		t.Errorf("RefreshDuration() = %v, want 5m", cfg.RefreshDuration())
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.RefreshInterval != DefaultRefreshIntervalMinutes {
		t.Errorf("RefreshInterval = %d, want default", cfg.RefreshInterval)
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() should fail on invalid JSON")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	want := Default()
	want.RefreshInterval = 15
	want.StartOnLogin = true
	want.EnabledProviders = []string{"openai", "claude"}
	want.Providers = map[string]ProviderSettings{
		"openai": {Enabled: true, APIKey: "sk-test-123"},
		"claude": {Enabled: true},
	}

	if err := SaveFile(path, want); err != nil {
		t.Fatalf("SaveFile() failed: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if got.RefreshInterval != want.RefreshInterval {
		t.Errorf("RefreshInterval = %d, want %d", got.RefreshInterval, want.RefreshInterval)
	}
	if got.StartOnLogin != want.StartOnLogin {
		t.Errorf("StartOnLogin = %v, want %v", got.StartOnLogin, want.StartOnLogin)
	}
	if !reflect.DeepEqual(got.EnabledProviders, want.EnabledProviders) {
		t.Errorf("EnabledProviders = %v, want %v", got.EnabledProviders, want.EnabledProviders)
	}
	if !reflect.DeepEqual(got.Providers, want.Providers) {
		t.Errorf("Providers = %v, want %v", got.Providers, want.Providers)
	}
}

func TestConfig_FileUsesCamelCase(t *testing.T) {
	data, err := json.Marshal(Default())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	raw := string(data)
	for _, key := range []string{"refreshInterval", "startOnLogin", "enabledProviders"} {
		if !strings.Contains(raw, `"`+key+`"`) {
			t.Errorf("serialized config missing %q key: %s", key, raw)
		}
	}
	if strings.Contains(raw, "Threshold") {
		t.Errorf("runtime-only fields leaked into the file: %s", raw)
	}
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	os.Setenv(EnvRefreshInterval, "7")
	os.Setenv(EnvWarningThreshold, "70.5")
	os.Setenv(EnvFetchTimeout, "10s")
	defer os.Unsetenv(EnvRefreshInterval)
	defer os.Unsetenv(EnvWarningThreshold)
	defer os.Unsetenv(EnvFetchTimeout)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.RefreshInterval != 7 {
		t.Errorf("RefreshInterval = %d, want 7", cfg.RefreshInterval)
	}
	if cfg.WarningThreshold != 70.5 {
		t.Errorf("WarningThreshold = %v, want 70.5", cfg.WarningThreshold)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
}

func TestConfig_Normalize(t *testing.T) {
	cfg := Config{
		RefreshInterval:  0,
		EnabledProviders: []string{"claude", "", "claude", "openai"},
	}
	cfg.normalize()

	if cfg.RefreshInterval != DefaultRefreshIntervalMinutes {
		t.Errorf("RefreshInterval = %d, want default", cfg.RefreshInterval)
	}
	if !reflect.DeepEqual(cfg.EnabledProviders, []string{"claude", "openai"}) {
		t.Errorf("EnabledProviders = %v, want deduped", cfg.EnabledProviders)
	}
	if cfg.Providers == nil {
		t.Error("Providers map was not initialized")
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	os.Unsetenv(EnvRefreshInterval)

	store, err := NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func waitForEvent(t *testing.T, events <-chan Event, want EventType) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event type %d", want)
		}
	}
}

func TestStore_SetRefreshInterval(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetRefreshInterval(0); err == nil {
		t.Error("SetRefreshInterval(0) should fail")
	}
	if err := store.SetRefreshInterval(10); err != nil {
		t.Fatalf("SetRefreshInterval(10) failed: %v", err)
	}
	if got := store.Get().RefreshInterval; got != 10 {
		t.Errorf("RefreshInterval = %d, want 10", got)
	}

	// Verify the change was persisted
	onDisk, err := LoadFile(store.Path())
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if onDisk.RefreshInterval != 10 {
		t.Errorf("persisted RefreshInterval = %d, want 10", onDisk.RefreshInterval)
	}
}

func TestStore_LastProviderGuard(t *testing.T) {
	store := newTestStore(t)

	err := store.SetProviderEnabled("claude", false)
	if !errors.Is(err, ErrLastProvider) {
		t.Fatalf("SetProviderEnabled() = %v, want ErrLastProvider", err)
	}

	if err := store.SetProviderEnabled("openai", true); err != nil {
		t.Fatalf("SetProviderEnabled(openai) failed: %v", err)
	}
	if err := store.SetProviderEnabled("claude", false); err != nil {
		t.Fatalf("SetProviderEnabled(claude, false) failed: %v", err)
	}

	cfg := store.Get()
	if !reflect.DeepEqual(cfg.EnabledProviders, []string{"openai"}) {
		t.Errorf("EnabledProviders = %v, want [openai]", cfg.EnabledProviders)
	}
	if cfg.Providers["claude"].Enabled {
		t.Error("claude settings still marked enabled")
	}
}

func TestStore_SetProviderOrder(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetProviderOrder(nil); err == nil {
		t.Error("SetProviderOrder(nil) should fail")
	}
	if err := store.SetProviderOrder([]string{"claude", "claude"}); err == nil {
		t.Error("SetProviderOrder() with duplicates should fail")
	}

	if err := store.SetProviderOrder([]string{"gemini", "claude"}); err != nil {
		t.Fatalf("SetProviderOrder() failed: %v", err)
	}
	if got := store.Get().EnabledProviders; !reflect.DeepEqual(got, []string{"gemini", "claude"}) {
		t.Errorf("EnabledProviders = %v, want [gemini claude]", got)
	}
}

func TestStore_SetProviderAPIKey(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetProviderAPIKey("openai", "sk-test-456"); err != nil {
		t.Fatalf("SetProviderAPIKey() failed: %v", err)
	}
	if got := store.Get().ProviderAPIKey("openai"); got != "sk-test-456" {
		t.Errorf("ProviderAPIKey() = %q, want %q", got, "sk-test-456")
	}

	if err := store.SetProviderAPIKey("openai", ""); err != nil {
		t.Fatalf("SetProviderAPIKey(\"\") failed: %v", err)
	}
	if got := store.Get().ProviderAPIKey("openai"); got != "" {
		t.Errorf("ProviderAPIKey() = %q, want cleared", got)
	}
}

func TestStore_ExternalChangeReload(t *testing.T) {
	os.Unsetenv(EnvRefreshInterval)
	path := filepath.Join(t.TempDir(), "config.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	defer func() { _ = store.Close() }()
	waitForEvent(t, store.Events(), EventLoaded)

	external := Default()
	external.RefreshInterval = 42
	if err := SaveFile(path, external); err != nil {
		t.Fatalf("SaveFile() failed: %v", err)
	}

	waitForEvent(t, store.Events(), EventChanged)
	if got := store.Get().RefreshInterval; got != 42 {
		t.Errorf("RefreshInterval after external change = %d, want 42", got)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := newTestStore(t)

	cfg := store.Get()
	cfg.EnabledProviders[0] = "mutated"
	cfg.Providers["claude"] = ProviderSettings{APIKey: "sneaky"}

	fresh := store.Get()
	if fresh.EnabledProviders[0] != "claude" {
		t.Error("Get() exposed internal slice")
	}
	if fresh.ProviderAPIKey("claude") != "" {
		t.Error("Get() exposed internal map")
	}
}
