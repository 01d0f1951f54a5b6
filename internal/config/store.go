package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/quotabar/internal/logger"
)

// EventType defines the type of config store event.
type EventType int

const (
	EventLoaded EventType = iota
	EventChanged
	EventError
)

// Event represents a config store event.
type Event struct {
	Type  EventType
	Error error
}

// Store owns the persisted configuration file. It saves every mutation and
// reloads when an external writer (installer, editor) changes the file.
type Store struct {
	mu            sync.RWMutex
	cfg           Config
	filePath      string
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
}

// NewStore loads the config file (creating it with defaults when missing)
// and starts watching it for external changes.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		filePath = getEnvString(EnvConfigPath, DefaultPath())
	}

	s := &Store{
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	if err := ensureDir(filepath.Dir(filePath)); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg, err := LoadFile(filePath)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := SaveFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("failed to create config file: %w", err)
		}
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventLoaded})
	return s, nil
}

// Events returns the event channel for subscribing to config changes.
func (s *Store) Events() <-chan Event {
	return s.eventChan
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.filePath
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// SetRefreshInterval updates the refresh interval in minutes.
func (s *Store) SetRefreshInterval(minutes int) error {
	if minutes < MinRefreshIntervalMinutes || minutes > MaxRefreshIntervalMinutes {
		return fmt.Errorf("refresh interval must be between %d and %d minutes",
			MinRefreshIntervalMinutes, MaxRefreshIntervalMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.RefreshInterval = minutes
	return s.saveLocked()
}

// SetStartOnLogin updates the start-on-login flag.
func (s *Store) SetStartOnLogin(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.StartOnLogin = enabled
	return s.saveLocked()
}

// SetProviderEnabled enables or disables a provider. Disabling the last
// enabled provider is rejected with ErrLastProvider.
func (s *Store) SetProviderEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !enabled && len(s.cfg.EnabledProviders) == 1 && s.cfg.EnabledProviders[0] == id {
		return ErrLastProvider
	}
	s.cfg.setProviderEnabled(id, enabled)
	return s.saveLocked()
}

// SetProviderOrder replaces the ordered enabled-provider list.
func (s *Store) SetProviderOrder(order []string) error {
	if len(order) == 0 {
		return errors.New("provider order cannot be empty")
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if id == "" || seen[id] {
			return fmt.Errorf("invalid provider order entry: %q", id)
		}
		seen[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.EnabledProviders = append([]string(nil), order...)
	for _, id := range order {
		s.cfg.setProviderEnabled(id, true)
	}
	return s.saveLocked()
}

// SetProviderAPIKey stores an API key override for the provider. An empty
// key clears the override.
func (s *Store) SetProviderAPIKey(id, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Providers == nil {
		s.cfg.Providers = make(map[string]ProviderSettings)
	}
	settings := s.cfg.Providers[id]
	settings.APIKey = key
	s.cfg.Providers[id] = settings
	return s.saveLocked()
}

// saveLocked persists the current config. Callers must hold the lock.
func (s *Store) saveLocked() error {
	return SaveFile(s.filePath, s.cfg)
}

// startWatcher starts the file system watcher.
func (s *Store) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory (to catch file creation/deletion)
	dir := filepath.Dir(s.filePath)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *Store) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Debounce rapid changes
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, func() {
					s.handleFileChange()
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads the config after an external change.
func (s *Store) handleFileChange() {
	cfg, err := LoadFile(s.filePath)
	if err != nil {
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.sendEvent(Event{Type: EventChanged})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Store) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher and cleans up resources.
func (s *Store) Close() error {
	close(s.stopChan)

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}

	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
