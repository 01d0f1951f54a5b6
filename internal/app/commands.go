package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/quotabar/internal/services"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = 2 * time.Second

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second

	// fetchTimeout bounds manager calls issued from UI commands.
	fetchTimeout = 30 * time.Second
)

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// defaultTickCmd returns a command that sends a TickMsg after the default interval.
func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// loadProvidersCmd returns a command that pulls providers, config, and the
// pipeline caches from the manager.
func loadProvidersCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		return ProvidersLoadedMsg{
			Providers: mgr.Providers(),
			Config:    mgr.GetConfig(),
			Usage:     mgr.AllUsage(),
			Statuses:  mgr.ProviderStatuses(),
		}
	}
}

// fetchUsageCmd returns a command that fetches usage for one provider on
// demand, outside the pipeline cadence.
func fetchUsageCmd(mgr *services.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		snapshot, err := mgr.FetchProviderUsage(ctx, id)
		return UsageFetchedMsg{
			ProviderID: id,
			Snapshot:   snapshot,
			Error:      err,
		}
	}
}

// triggerRefreshCmd returns a command that nudges one provider's pipeline.
func triggerRefreshCmd(mgr *services.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		mgr.TriggerRefresh(id)
		return StartLoadingMsg{Resource: "usage"}
	}
}

// triggerRefreshAllCmd returns a command that nudges every pipeline.
func triggerRefreshAllCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		mgr.TriggerRefreshAll()
		return StartLoadingMsg{Resource: "usage"}
	}
}

// loginCmd returns a command that runs a provider's login flow.
func loginCmd(mgr *services.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		err := mgr.LoginProvider(ctx, id)
		return LoginResultMsg{ProviderID: id, Error: err}
	}
}

// logoutCmd returns a command that clears a provider's credentials.
func logoutCmd(mgr *services.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		err := mgr.LogoutProvider(ctx, id)
		return LogoutResultMsg{ProviderID: id, Error: err}
	}
}

// saveAPIKeyCmd returns a command that stores or clears a provider API key.
func saveAPIKeyCmd(mgr *services.Manager, id, key string) tea.Cmd {
	return func() tea.Msg {
		err := mgr.SetProviderAPIKey(id, key)
		return APIKeySavedMsg{
			ProviderID: id,
			Cleared:    key == "",
			Error:      err,
		}
	}
}

// toggleProviderCmd returns a command that enables or disables a provider.
func toggleProviderCmd(mgr *services.Manager, id string, enabled bool) tea.Cmd {
	return func() tea.Msg {
		err := mgr.SetProviderEnabled(id, enabled)
		return ProviderToggledMsg{
			ProviderID: id,
			Enabled:    enabled,
			Error:      err,
		}
	}
}

// reorderProvidersCmd returns a command that persists a new provider order.
func reorderProvidersCmd(mgr *services.Manager, order []string) tea.Cmd {
	return func() tea.Msg {
		err := mgr.SetProviderOrder(order)
		return ProvidersReorderedMsg{Order: order, Error: err}
	}
}

// reloadTokensCmd returns a command that re-probes provider credentials.
func reloadTokensCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		return TokensReloadedMsg{Found: mgr.ReloadToken(ctx)}
	}
}

// toggleAutostartCmd returns a command that flips start-on-login.
func toggleAutostartCmd(mgr *services.Manager, enabled bool) tea.Cmd {
	return func() tea.Msg {
		err := mgr.SetStartOnLogin(enabled)
		return AutostartToggledMsg{Enabled: enabled, Error: err}
	}
}

// subscribeToServicesCmd returns a command that subscribes to service events.
func subscribeToServicesCmd(mgr *services.Manager) tea.Cmd {
	ch, cancel := mgr.Subscribe()
	return func() tea.Msg {
		return SubscriptionMsg{Channel: ch, Cancel: cancel}
	}
}

// waitForServiceEventCmd returns a command that waits for the next service event.
func waitForServiceEventCmd(ch <-chan services.ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ServiceEventMsg{Event: event}
	}
}

// WaitForServiceEvent is the public version for use in models.
func WaitForServiceEvent(ch <-chan services.ServiceEvent) tea.Cmd {
	return services.WaitForEvent(ch)
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

// notifySuccessCmd returns a command that adds a success notification.
func notifySuccessCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationSuccess,
			Message:  message,
			Duration: DefaultNotificationDuration,
		}
	}
}

// notifyErrorCmd returns a command that adds an error notification.
func notifyErrorCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationError,
			Message:  message,
			Duration: LongNotificationDuration,
		}
	}
}

// notifyWarningCmd returns a command that adds a warning notification.
func notifyWarningCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationWarning,
			Message:  message,
			Duration: DefaultNotificationDuration,
		}
	}
}

// notifyInfoCmd returns a command that adds an info notification.
func notifyInfoCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationInfo,
			Message:  message,
			Duration: QuickNotificationDuration,
		}
	}
}

// delayedCmd returns a command that sends a message after a delay.
func delayedCmd(delay time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return msg
	})
}

// batchCmds combines multiple commands into one.
func batchCmds(cmds ...tea.Cmd) tea.Cmd {
	return tea.Batch(cmds...)
}

// quitCmd returns a command that quits the application.
func quitCmd() tea.Cmd {
	return tea.Quit
}

// Commands provides a public interface to the command functions.
type Commands struct {
	manager *services.Manager
}

// NewCommands creates a new Commands instance.
func NewCommands(mgr *services.Manager) *Commands {
	return &Commands{manager: mgr}
}

// Tick returns a tick command with the specified interval.
func (c *Commands) Tick(interval time.Duration) tea.Cmd {
	return tickCmd(interval)
}

// DefaultTick returns a tick command with the default interval.
func (c *Commands) DefaultTick() tea.Cmd {
	return defaultTickCmd()
}

// LoadProviders returns a command that loads providers and cached usage.
func (c *Commands) LoadProviders() tea.Cmd {
	return loadProvidersCmd(c.manager)
}

// FetchUsage returns a command that fetches usage for one provider.
func (c *Commands) FetchUsage(id string) tea.Cmd {
	return fetchUsageCmd(c.manager, id)
}

// Refresh returns a command that nudges one provider's pipeline.
func (c *Commands) Refresh(id string) tea.Cmd {
	return triggerRefreshCmd(c.manager, id)
}

// RefreshAll returns a command that nudges every pipeline.
func (c *Commands) RefreshAll() tea.Cmd {
	return triggerRefreshAllCmd(c.manager)
}

// Login returns a command that runs a provider's login flow.
func (c *Commands) Login(id string) tea.Cmd {
	return loginCmd(c.manager, id)
}

// Logout returns a command that clears a provider's credentials.
func (c *Commands) Logout(id string) tea.Cmd {
	return logoutCmd(c.manager, id)
}

// SaveAPIKey returns a command that stores or clears a provider API key.
func (c *Commands) SaveAPIKey(id, key string) tea.Cmd {
	return saveAPIKeyCmd(c.manager, id, key)
}

// ToggleProvider returns a command that enables or disables a provider.
func (c *Commands) ToggleProvider(id string, enabled bool) tea.Cmd {
	return toggleProviderCmd(c.manager, id, enabled)
}

// ReorderProviders returns a command that persists a new provider order.
func (c *Commands) ReorderProviders(order []string) tea.Cmd {
	return reorderProvidersCmd(c.manager, order)
}

// ReloadTokens returns a command that re-probes provider credentials.
func (c *Commands) ReloadTokens() tea.Cmd {
	return reloadTokensCmd(c.manager)
}

// ToggleAutostart returns a command that flips start-on-login.
func (c *Commands) ToggleAutostart(enabled bool) tea.Cmd {
	return toggleAutostartCmd(c.manager, enabled)
}

// SubscribeToServices returns a command that subscribes to service events.
func (c *Commands) SubscribeToServices() tea.Cmd {
	return subscribeToServicesCmd(c.manager)
}

// NotifySuccess returns a command that adds a success notification.
func (c *Commands) NotifySuccess(message string) tea.Cmd {
	return notifySuccessCmd(message)
}

// NotifyError returns a command that adds an error notification.
func (c *Commands) NotifyError(message string) tea.Cmd {
	return notifyErrorCmd(message)
}

// NotifyWarning returns a command that adds a warning notification.
func (c *Commands) NotifyWarning(message string) tea.Cmd {
	return notifyWarningCmd(message)
}

// NotifyInfo returns a command that adds an info notification.
func (c *Commands) NotifyInfo(message string) tea.Cmd {
	return notifyInfoCmd(message)
}

// ClearNotification returns a command that removes a notification after a delay.
func (c *Commands) ClearNotification(id string, delay time.Duration) tea.Cmd {
	return clearNotificationCmd(id, delay)
}

// Quit returns a command that quits the application.
func (c *Commands) Quit() tea.Cmd {
	return quitCmd()
}

// Delayed returns a command that sends a message after a delay.
func (c *Commands) Delayed(delay time.Duration, msg tea.Msg) tea.Cmd {
	return delayedCmd(delay, msg)
}

// Batch combines multiple commands into one.
func (c *Commands) Batch(cmds ...tea.Cmd) tea.Cmd {
	return batchCmds(cmds...)
}
