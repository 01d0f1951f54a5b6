// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"sync"
	"time"

	"github.com/j-veylop/quotabar/internal/config"
	"github.com/j-veylop/quotabar/internal/models"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"
)

// historyLimit caps the per-provider usage history ring.
const historyLimit = 120

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	ID        string
	Type      NotificationType
	Message   string
	CreatedAt time.Time
	Duration  time.Duration
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// LoadingState tracks loading states for different resources.
type LoadingState struct {
	Initial bool
	Usage   bool
	Config  bool
}

// State is the shared application state behind the TUI. All access goes
// through its methods; the zero value is not usable.
type State struct {
	mu sync.RWMutex

	Providers     []models.ProviderMetadata
	SelectedIndex int

	usage    map[string]*models.UsageSnapshot
	statuses map[string]models.ProviderStatus
	history  map[string][]float64
	config   config.Config

	Loading LoadingState

	LastUpdated time.Time

	notifications   []Notification
	notificationSeq int
}

// NewState creates an empty application state.
func NewState() *State {
	return &State{
		Providers:     make([]models.ProviderMetadata, 0),
		usage:         make(map[string]*models.UsageSnapshot),
		statuses:      make(map[string]models.ProviderStatus),
		history:       make(map[string][]float64),
		notifications: make([]Notification, 0),
		Loading: LoadingState{
			Initial: true,
		},
	}
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch resource {
	case "initial":
		s.Loading.Initial = loading
	case "usage":
		s.Loading.Usage = loading
	case "config":
		s.Loading.Config = loading
	}
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Loading.Initial ||
		s.Loading.Usage ||
		s.Loading.Config
}

// IsInitialLoading returns true if initial data is still loading.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial
}

// GetLoadingResources returns a list of currently loading resources.
func (s *State) GetLoadingResources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resources []string
	if s.Loading.Initial {
		resources = append(resources, "initial")
	}
	if s.Loading.Usage {
		resources = append(resources, "usage")
	}
	if s.Loading.Config {
		resources = append(resources, "config")
	}
	return resources
}

// SetProviders replaces the provider list and keeps the selection in range.
func (s *State) SetProviders(providers []models.ProviderMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Providers = providers
	if s.SelectedIndex >= len(providers) {
		s.SelectedIndex = max(len(providers)-1, 0)
	}
}

// GetProviders returns a copy of the provider list.
func (s *State) GetProviders() []models.ProviderMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers := make([]models.ProviderMetadata, len(s.Providers))
	copy(providers, s.Providers)
	return providers
}

// GetProviderCount returns the number of providers.
func (s *State) GetProviderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Providers)
}

// SelectedProvider returns the provider under the cursor.
func (s *State) SelectedProvider() (models.ProviderMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.SelectedIndex < 0 || s.SelectedIndex >= len(s.Providers) {
		return models.ProviderMetadata{}, false
	}
	return s.Providers[s.SelectedIndex], true
}

// SetUsage stores a provider snapshot and appends to its history ring.
func (s *State) SetUsage(id string, snapshot *models.UsageSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usage[id] = snapshot
	s.LastUpdated = time.Now()

	if snapshot != nil && snapshot.Primary != nil {
		ring := append(s.history[id], snapshot.Primary.DisplayPercent())
		if len(ring) > historyLimit {
			ring = ring[len(ring)-historyLimit:]
		}
		s.history[id] = ring
	}
}

// ClearUsage drops a provider's snapshot and history, for logout.
func (s *State) ClearUsage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.usage, id)
	delete(s.history, id)
}

// GetUsage returns the cached snapshot for a provider, or nil.
func (s *State) GetUsage(id string) *models.UsageSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[id]
}

// GetHistory returns a copy of the provider's primary-window history.
func (s *State) GetHistory(id string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.history[id]
	if !ok {
		return nil
	}
	out := make([]float64, len(ring))
	copy(out, ring)
	return out
}

// SetStatus records a provider's refresh status.
func (s *State) SetStatus(id string, status models.ProviderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
}

// GetStatus returns a provider's refresh status.
func (s *State) GetStatus(id string) (models.ProviderStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[id]
	return status, ok
}

// SetConfig stores the active configuration.
func (s *State) SetConfig(cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// GetConfig returns the active configuration.
func (s *State) GetConfig() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// GetSelectedIndex returns the currently selected provider index.
func (s *State) GetSelectedIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SelectedIndex
}

// SetSelectedIndex updates the selected provider index.
func (s *State) SetSelectedIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SelectedIndex = idx
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := time.Now().Format("20060102150405") + "-" + string(rune('A'+s.notificationSeq%26))

	notification := Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	}

	s.notifications = append(s.notifications, notification)

	// Keep only the last 10 notifications
	if len(s.notifications) > 10 {
		s.notifications = s.notifications[len(s.notifications)-10:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Clear expired inline when reading
	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}

	return active
}

// ClearAllNotifications removes all notifications.
func (s *State) ClearAllNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make([]Notification, 0)
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  0,
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// GetLastUpdated returns the last time usage data arrived.
func (s *State) GetLastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastUpdated
}

// TimeSinceUpdate returns the duration since the last update.
func (s *State) TimeSinceUpdate() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.LastUpdated.IsZero() {
		return 0
	}
	return time.Since(s.LastUpdated)
}
