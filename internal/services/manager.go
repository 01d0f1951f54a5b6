// Package services coordinates the background agents behind one facade.
// The manager owns the config store, the provider registry, the refresh
// pipelines, and the notification agent, and fans their events out to
// subscribers.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/quotabar/internal/autostart"
	"github.com/j-veylop/quotabar/internal/config"
	"github.com/j-veylop/quotabar/internal/logger"
	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/providers"
	"github.com/j-veylop/quotabar/internal/sanitize"
	"github.com/j-veylop/quotabar/internal/secrets"
	"github.com/j-veylop/quotabar/internal/services/notify"
	"github.com/j-veylop/quotabar/internal/services/refresh"
)

type (
	// UsageUpdatedEvent is emitted when a provider publishes a fresh
	// usage snapshot.
	UsageUpdatedEvent struct {
		Snapshot   *models.UsageSnapshot
		ProviderID string
	}

	// ProviderStateEvent is emitted when a provider's fetch state changes.
	ProviderStateEvent struct {
		ProviderID string
		Status     models.ProviderStatus
	}

	// ConfigChangedEvent is emitted when settings change, whether through
	// the facade or an external edit of the config file.
	ConfigChangedEvent struct {
		Config config.Config
	}

	// LoginEvent carries the outcome message of a login attempt.
	LoginEvent struct {
		ProviderID string
		Message    string
	}

	// ErrorEvent is emitted when a background agent reports an error.
	ErrorEvent struct {
		Error   error
		Service string
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (UsageUpdatedEvent) isServiceEvent()  {}
func (ProviderStateEvent) isServiceEvent() {}
func (ConfigChangedEvent) isServiceEvent() {}
func (LoginEvent) isServiceEvent()         {}
func (ErrorEvent) isServiceEvent()         {}

// Config controls how the manager wires its collaborators.
type Config struct {
	// ConfigPath overrides the settings file location. Empty selects the
	// platform default.
	ConfigPath string

	// ProviderDeps overrides provider collaborators. Zero fields keep
	// production defaults.
	ProviderDeps providers.Deps

	// Notifier overrides desktop notification delivery.
	Notifier func(title, body string)

	// FetchOnStart controls whether pipelines fetch immediately instead
	// of waiting for the first tick.
	FetchOnStart bool
}

// DefaultConfig returns the production manager configuration.
func DefaultConfig() Config {
	return Config{FetchOnStart: true}
}

// Manager coordinates all services and provides a unified interface.
type Manager struct {
	mu          sync.RWMutex
	configStore *config.Store
	registry    *providers.Registry
	refresh     *refresh.Service
	notifier    *notify.Agent
	store       secrets.Store
	eventChan   chan ServiceEvent
	stopChan    chan struct{}
	subscribers []chan<- ServiceEvent
	closed      bool
}

// NewManager creates the service stack and starts the refresh pipelines
// for every enabled provider.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		eventChan: make(chan ServiceEvent, 100),
		stopChan:  make(chan struct{}),
	}

	store, err := config.NewStore(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config store: %w", err)
	}
	m.configStore = store
	settings := store.Get()

	deps := cfg.ProviderDeps
	if deps.Store == nil {
		deps.Store = secrets.NewKeyringStore(secrets.DefaultService)
	}
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: settings.FetchTimeout}
	}
	if deps.APIKey == nil {
		deps.APIKey = func(id string) string {
			return m.configStore.Get().ProviderAPIKey(id)
		}
	}
	m.store = deps.Store
	m.registry = providers.NewRegistry(deps)

	m.notifier = notify.New(notify.Config{
		WarningThreshold:  settings.WarningThreshold,
		CriticalThreshold: settings.CriticalThreshold,
		ProviderName:      m.providerName,
		Notifier:          cfg.Notifier,
	})

	m.refresh = refresh.New(refresh.Config{
		Interval: func() time.Duration {
			return m.configStore.Get().RefreshDuration()
		},
		FetchTimeout: settings.FetchTimeout,
		FetchOnStart: cfg.FetchOnStart,
	}, m.enabledFetchers())

	go m.routeEvents()

	logger.Info("service manager started",
		"config", store.Path(),
		"providers", settings.EnabledProviders)
	return m, nil
}

// providerName resolves a provider id to its display name.
func (m *Manager) providerName(id string) string {
	if p, ok := m.registry.Get(id); ok {
		return p.Metadata().Name
	}
	return id
}

// enabledFetchers returns the registry providers currently enabled in the
// config, in config order.
func (m *Manager) enabledFetchers() []refresh.Fetcher {
	settings := m.configStore.Get()
	fetchers := make([]refresh.Fetcher, 0, len(settings.EnabledProviders))
	for _, id := range settings.EnabledProviders {
		if p, ok := m.registry.Get(id); ok {
			fetchers = append(fetchers, p)
		}
	}
	return fetchers
}

// routeEvents pumps collaborator events to subscribers until Close.
func (m *Manager) routeEvents() {
	for {
		select {
		case event := <-m.refresh.Events():
			m.handleRefreshEvent(event)
		case event := <-m.configStore.Events():
			m.handleConfigEvent(event)
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) handleRefreshEvent(event refresh.Event) {
	switch event.Type {
	case refresh.EventSnapshotUpdated:
		m.notifier.Observe(event.ProviderID, event.Snapshot)
		m.broadcast(UsageUpdatedEvent{
			Snapshot:   event.Snapshot,
			ProviderID: event.ProviderID,
		})
	case refresh.EventStateChanged:
		if status, ok := m.refresh.Status(event.ProviderID); ok {
			m.broadcast(ProviderStateEvent{
				ProviderID: event.ProviderID,
				Status:     status,
			})
		}
	case refresh.EventFetchFailed:
		// A missing credential is a state, not an error surface.
		if !providers.IsNotAuthenticated(event.Error) {
			m.broadcast(ErrorEvent{Service: "refresh", Error: event.Error})
		}
	}
}

func (m *Manager) handleConfigEvent(event config.Event) {
	switch event.Type {
	case config.EventLoaded, config.EventChanged:
		m.refresh.SetProviders(m.enabledFetchers())
		m.broadcast(ConfigChangedEvent{Config: m.configStore.Get()})
	case config.EventError:
		m.broadcast(ErrorEvent{Service: "config", Error: event.Error})
	}
}

// GetConfig returns the current settings.
func (m *Manager) GetConfig() config.Config {
	return m.configStore.Get()
}

// SetRefreshInterval updates the poll interval in minutes. Running
// pipelines pick the new interval up at their next tick.
func (m *Manager) SetRefreshInterval(minutes int) error {
	if err := m.configStore.SetRefreshInterval(minutes); err != nil {
		return err
	}
	m.broadcast(ConfigChangedEvent{Config: m.configStore.Get()})
	return nil
}

// SetStartOnLogin persists the flag and applies the platform autostart
// entry.
func (m *Manager) SetStartOnLogin(enabled bool) error {
	if err := m.configStore.SetStartOnLogin(enabled); err != nil {
		return err
	}
	var err error
	if enabled {
		err = autostart.Enable()
	} else {
		err = autostart.Disable()
	}
	if err != nil {
		return fmt.Errorf("failed to apply autostart: %w", err)
	}
	m.broadcast(ConfigChangedEvent{Config: m.configStore.Get()})
	return nil
}

// IsAutostartEnabled reports whether the platform autostart entry exists.
func (m *Manager) IsAutostartEnabled() bool {
	return autostart.IsEnabled()
}

// SetProviderEnabled enables or disables a provider and reconciles the
// refresh pipelines. Disabling the last enabled provider is rejected with
// config.ErrLastProvider.
func (m *Manager) SetProviderEnabled(id string, enabled bool) error {
	if _, ok := m.registry.Get(id); !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}
	if err := m.configStore.SetProviderEnabled(id, enabled); err != nil {
		return err
	}
	m.refresh.SetProviders(m.enabledFetchers())
	m.broadcast(ConfigChangedEvent{Config: m.configStore.Get()})
	return nil
}

// SetProviderOrder replaces the ordered enabled-provider list.
func (m *Manager) SetProviderOrder(order []string) error {
	for _, id := range order {
		if _, ok := m.registry.Get(id); !ok {
			return fmt.Errorf("unknown provider: %s", id)
		}
	}
	if err := m.configStore.SetProviderOrder(order); err != nil {
		return err
	}
	m.refresh.SetProviders(m.enabledFetchers())
	m.broadcast(ConfigChangedEvent{Config: m.configStore.Get()})
	return nil
}

// SetProviderAPIKey stores a key in the settings carve-out and writes it
// through to the credential store. An empty key clears both.
func (m *Manager) SetProviderAPIKey(id, key string) error {
	if _, ok := m.registry.Get(id); !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}
	if key != "" {
		if err := sanitize.ValidateInput(key); err != nil {
			return fmt.Errorf("invalid API key: %w", err)
		}
	}
	if err := m.configStore.SetProviderAPIKey(id, key); err != nil {
		return err
	}

	if key == "" {
		if err := m.store.Delete(id); err != nil {
			return err
		}
		logger.Info("api key cleared", "provider", id)
	} else {
		secret := secrets.FromString(key)
		defer secret.Zero()
		if err := m.store.Put(id, secret); err != nil {
			return err
		}
		logger.Info("api key updated", "provider", id, "key", sanitize.Token(key))
	}

	m.broadcast(ConfigChangedEvent{Config: m.configStore.Get()})
	m.refresh.Trigger(id)
	return nil
}

// Providers lists provider metadata in registry order.
func (m *Manager) Providers() []models.ProviderMetadata {
	return m.registry.Metadata()
}

// IsProviderAvailable reports whether a credential can be resolved for
// the provider without touching the network.
func (m *Manager) IsProviderAvailable(ctx context.Context, id string) (bool, error) {
	p, ok := m.registry.Get(id)
	if !ok {
		return false, fmt.Errorf("unknown provider: %s", id)
	}
	return p.IsAvailable(ctx)
}

// FetchProviderUsage fetches usage for one provider on the caller's
// goroutine. When the provider's pipeline already has a fetch in flight
// the call waits for that result instead of doubling the request.
func (m *Manager) FetchProviderUsage(ctx context.Context, id string) (*models.UsageSnapshot, error) {
	p, ok := m.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
	if status, tracked := m.refresh.Status(id); tracked && status.State == models.FetchFetching {
		return m.awaitRefresh(ctx, id)
	}
	return p.FetchUsage(ctx)
}

// awaitRefresh waits for an in-flight pipeline fetch to settle and
// returns its outcome.
func (m *Manager) awaitRefresh(ctx context.Context, id string) (*models.UsageSnapshot, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, ok := m.refresh.Status(id)
			if !ok {
				return nil, fmt.Errorf("unknown provider: %s", id)
			}
			switch status.State {
			case models.FetchFetching:
				continue
			case models.FetchFailed:
				return nil, errors.New(status.LastError)
			default:
				return m.refresh.Snapshot(id), nil
			}
		}
	}
}

// LoginProvider acquires a credential for the provider. The outcome
// message reaches subscribers as a LoginEvent, and a usable credential
// triggers an immediate refresh.
func (m *Manager) LoginProvider(ctx context.Context, id string) error {
	p, ok := m.registry.Get(id)
	if !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}
	msg, err := p.Login(ctx)
	if err != nil {
		return err
	}

	logger.Info("login", "provider", id, "result", msg)
	m.broadcast(LoginEvent{ProviderID: id, Message: msg})
	if available, _ := p.IsAvailable(ctx); available {
		m.refresh.Trigger(id)
	}
	return nil
}

// LogoutProvider removes the stored credential, clears the cached
// snapshot, and re-arms notifications. Logging out twice is a no-op.
func (m *Manager) LogoutProvider(ctx context.Context, id string) error {
	p, ok := m.registry.Get(id)
	if !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}
	if err := p.Logout(ctx); err != nil {
		return err
	}

	m.refresh.ClearSnapshot(id)
	m.notifier.Reset(id)
	logger.Info("logged out", "provider", id)
	return nil
}

// ReloadToken re-scans credential sources for every provider and reports
// whether any credential turned up.
func (m *Manager) ReloadToken(ctx context.Context) bool {
	found := false
	for _, id := range m.registry.IDs() {
		if p, ok := m.registry.Get(id); ok && p.ReloadToken(ctx) {
			found = true
		}
	}
	return found
}

// TriggerRefresh requests an immediate background refresh of one
// provider. A refresh already in flight absorbs the request.
func (m *Manager) TriggerRefresh(id string) {
	m.refresh.Trigger(id)
}

// TriggerRefreshAll requests an immediate background refresh of every
// enabled provider.
func (m *Manager) TriggerRefreshAll() {
	m.refresh.TriggerAll()
}

// CachedUsage returns the last published snapshot for a provider, or nil.
func (m *Manager) CachedUsage(id string) *models.UsageSnapshot {
	return m.refresh.Snapshot(id)
}

// AllUsage returns every cached snapshot keyed by provider id.
func (m *Manager) AllUsage() map[string]*models.UsageSnapshot {
	return m.refresh.Snapshots()
}

// ProviderStatus returns a provider's refresh state.
func (m *Manager) ProviderStatus(id string) (models.ProviderStatus, bool) {
	return m.refresh.Status(id)
}

// ProviderStatuses returns the refresh state of every tracked provider.
func (m *Manager) ProviderStatuses() map[string]models.ProviderStatus {
	return m.refresh.Statuses()
}

// AgentStatuses summarizes the background agents for the info pane.
func (m *Manager) AgentStatuses() map[string]models.AgentStatus {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()

	state := models.AgentRunning
	if closed {
		state = models.AgentStopped
	}
	return map[string]models.AgentStatus{
		"refresh": state,
		"notify":  state,
		"config":  state,
	}
}

// Events returns the manager's aggregated event channel.
func (m *Manager) Events() <-chan ServiceEvent {
	return m.eventChan
}

// Subscribe registers a new event channel. The returned function removes
// the subscription and closes the channel.
func (m *Manager) Subscribe() (<-chan ServiceEvent, func()) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, func() { m.unsubscribe(ch) }
}

func (m *Manager) unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// WaitForEvent returns a command that waits for the next service event.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// broadcast sends an event to the manager channel and all subscribers
// without blocking.
func (m *Manager) broadcast(event ServiceEvent) {
	select {
	case m.eventChan <- event:
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// Close shuts down the agents and closes every subscriber channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopChan)

	var errs []error
	if err := m.refresh.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.configStore.Close(); err != nil {
		errs = append(errs, err)
	}

	m.mu.Lock()
	for _, sub := range m.subscribers {
		close(sub)
	}
	m.subscribers = nil
	m.mu.Unlock()

	logger.Info("service manager stopped")
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
