package app

import (
	"time"

	"github.com/j-veylop/quotabar/internal/config"
	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/services"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// InitialLoadCompleteMsg signals that initial data loading is complete.
type InitialLoadCompleteMsg struct{}

// ProvidersLoadedMsg contains the initial data pull from the service
// manager: known providers, active config, and whatever the refresh
// pipelines have already cached.
type ProvidersLoadedMsg struct {
	Providers []models.ProviderMetadata
	Config    config.Config
	Usage     map[string]*models.UsageSnapshot
	Statuses  map[string]models.ProviderStatus
}

// UsageFetchedMsg contains the result of a direct usage fetch.
type UsageFetchedMsg struct {
	ProviderID string
	Snapshot   *models.UsageSnapshot
	Error      error
}

// LoginResultMsg contains the outcome of a login attempt.
type LoginResultMsg struct {
	ProviderID string
	Error      error
}

// LogoutResultMsg contains the outcome of a logout.
type LogoutResultMsg struct {
	ProviderID string
	Error      error
}

// APIKeySavedMsg confirms an API key write or clear.
type APIKeySavedMsg struct {
	ProviderID string
	Cleared    bool
	Error      error
}

// ProviderToggledMsg contains the outcome of enabling or disabling a
// provider.
type ProviderToggledMsg struct {
	ProviderID string
	Enabled    bool
	Error      error
}

// ProvidersReorderedMsg contains the outcome of a provider reorder.
type ProvidersReorderedMsg struct {
	Order []string
	Error error
}

// TokensReloadedMsg reports whether a credential re-probe found any
// provider with usable credentials.
type TokensReloadedMsg struct {
	Found bool
}

// AutostartToggledMsg contains the outcome of a start-on-login toggle.
type AutostartToggledMsg struct {
	Enabled bool
	Error   error
}

// RefreshMsg requests a usage refresh. An empty ProviderID refreshes all
// enabled providers.
type RefreshMsg struct {
	ProviderID string
}

// EditAPIKeyMsg opens the inline API key editor for a provider.
type EditAPIKeyMsg struct {
	ProviderID string
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Type     NotificationType
	Message  string
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearNotificationsMsg requests clearing all notifications.
type ClearNotificationsMsg struct{}

// ClearExpiredNotificationsMsg triggers clearing of expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionMsg delivers the service event channel and its cancel
// function after a successful subscription.
type SubscriptionMsg struct {
	Channel <-chan services.ServiceEvent
	Cancel  func()
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// QuitMsg requests the application to quit.
type QuitMsg struct{}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}
