// Package app implements the main Bubble Tea application model.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/quotabar/internal/config"
	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/services"
	"github.com/j-veylop/quotabar/internal/ui/components"
	"github.com/j-veylop/quotabar/internal/ui/styles"
)

// animationTickMsg drives the loading shimmer while fetches are in flight.
type animationTickMsg time.Time

func animationTickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*80, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	Up           key.Binding
	Down         key.Binding
	MoveUp       key.Binding
	MoveDown     key.Binding
	Refresh      key.Binding
	RefreshAll   key.Binding
	Login        key.Binding
	Logout       key.Binding
	EditKey      key.Binding
	Toggle       key.Binding
	ReloadTokens key.Binding
	Autostart    key.Binding
	Help         key.Binding
	Quit         key.Binding
	Enter        key.Binding
	Escape       key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	km := KeyMap{}
	km = setProviderKeys(km)
	km = setActionKeys(km)
	km = setNavigationKeys(km)
	return km
}

func setProviderKeys(k KeyMap) KeyMap {
	k.Refresh = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh"))
	k.RefreshAll = key.NewBinding(key.WithKeys("R", "ctrl+r"), key.WithHelp("R", "refresh all"))
	k.Login = key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "login"))
	k.Logout = key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "logout"))
	k.EditKey = key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "set api key"))
	k.Toggle = key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "enable/disable"))
	k.ReloadTokens = key.NewBinding(key.WithKeys("O"), key.WithHelp("O", "reload tokens"))
	return k
}

func setActionKeys(k KeyMap) KeyMap {
	k.Autostart = key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start on login"))
	k.Help = key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help"))
	k.Quit = key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit"))
	return k
}

func setNavigationKeys(k KeyMap) KeyMap {
	k.Up = key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up"))
	k.Down = key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down"))
	k.MoveUp = key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up"))
	k.MoveDown = key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down"))
	k.Enter = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm"))
	k.Escape = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel"))
	return k
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Login, k.EditKey, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.MoveUp, k.MoveDown},
		{k.Refresh, k.RefreshAll, k.Login, k.Logout},
		{k.EditKey, k.Toggle, k.ReloadTokens, k.Autostart},
		{k.Help, k.Quit},
	}
}

// Styles defines the application styles.
type Styles struct {
	// Header styles
	Header lipgloss.Style

	// Notification styles
	NotificationSuccess lipgloss.Style
	NotificationError   lipgloss.Style
	NotificationWarning lipgloss.Style
	NotificationInfo    lipgloss.Style

	// Content styles
	Content lipgloss.Style
	Help    lipgloss.Style
	Spinner lipgloss.Style
	Toast   lipgloss.Style

	// Common styles
	Title     lipgloss.Style
	Subtle    lipgloss.Style
	Highlight lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
}

// DefaultStyles returns the default application styles.
func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	success := lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warning := lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FF8C00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"}
	info := lipgloss.AdaptiveColor{Light: "#0087D7", Dark: "#5FAFFF"}

	s := Styles{}
	s.Header = lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).BorderForeground(subtle)

	s.NotificationSuccess = lipgloss.NewStyle().Foreground(success).Padding(0, 1)
	s.NotificationError = lipgloss.NewStyle().Foreground(errorColor).Bold(true).Padding(0, 1)
	s.NotificationWarning = lipgloss.NewStyle().Foreground(warning).Padding(0, 1)
	s.NotificationInfo = lipgloss.NewStyle().Foreground(info).Padding(0, 1)

	s.Content = lipgloss.NewStyle().Padding(1, 2)
	s.Help = lipgloss.NewStyle().Foreground(subtle).Padding(0, 1)
	s.Spinner = lipgloss.NewStyle().Foreground(highlight)
	s.Toast = styles.ToastStyle

	s.Title = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	s.Subtle = lipgloss.NewStyle().Foreground(subtle)
	s.Highlight = lipgloss.NewStyle().Foreground(highlight)
	s.Error = lipgloss.NewStyle().Foreground(errorColor)
	s.Success = lipgloss.NewStyle().Foreground(success)
	s.Warning = lipgloss.NewStyle().Foreground(warning)

	return s
}

// Model is the main application model.
type Model struct {
	// Shared state
	state    *State
	services *services.Manager
	commands *Commands
	keymap   KeyMap
	styles   Styles

	// UI components
	spinner  spinner.Model
	keyInput textinput.Model

	// Window dimensions
	width  int
	height int

	// UI state
	showHelp       bool
	ready          bool
	editing        bool
	editingID      string
	editingName    string
	animationFrame int

	// Service subscription
	eventChannel <-chan services.ServiceEvent
	unsubscribe  func()
}

// NewModel initializes a new application model.
func NewModel(mgr *services.Manager) *Model {
	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	// API key entry never echoes the typed value
	ti := textinput.New()
	ti.Prompt = "> "
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.CharLimit = 256

	m := &Model{
		state:    NewState(),
		services: mgr,
		commands: NewCommands(mgr),
		keymap:   DefaultKeyMap(),
		styles:   DefaultStyles(),
		spinner:  s,
		keyInput: ti,
		showHelp: false,
		ready:    false,
	}

	return m
}

// GetState returns the application state.
func (m *Model) GetState() *State {
	return m.state
}

// GetServices returns the service manager.
func (m *Model) GetServices() *services.Manager {
	return m.services
}

// GetCommands returns the commands helper.
func (m *Model) GetCommands() *Commands {
	return m.commands
}

// GetKeyMap returns the key bindings.
func (m *Model) GetKeyMap() KeyMap {
	return m.keymap
}

// GetStyles returns the application styles.
func (m *Model) GetStyles() Styles {
	return m.styles
}

// IsReady returns true if the model is ready (window size received).
func (m *Model) IsReady() bool {
	return m.ready
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	m.state.SetLoadingNotification("Loading...")

	cmds := []tea.Cmd{
		m.spinner.Tick,
		defaultTickCmd(),
		animationTickCmd(),
	}

	if m.services != nil {
		cmds = append(cmds, subscribeToServicesCmd(m.services))
		cmds = append(cmds, loadProvidersCmd(m.services))
	}

	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg, tea.KeyMsg, spinner.TickMsg:
		if cmd := m.handleTeaMsg(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	default:
		if appCmds := m.handleAppMsg(msg); len(appCmds) > 0 {
			cmds = append(cmds, appCmds...)
		}
		// Cursor blink and other input-internal messages
		if m.editing {
			var cmd tea.Cmd
			m.keyInput, cmd = m.keyInput.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleTeaMsg(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case spinner.TickMsg:
		return m.handleSpinnerTick(msg)
	}
	return nil
}

func (m *Model) handleAppMsg(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case TickMsg:
		cmds = append(cmds, m.handleTick())
	case animationTickMsg:
		if cmd := m.handleAnimationTick(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	case SubscriptionMsg:
		cmds = append(cmds, m.handleSubscription(msg)...)
	case ServiceEventMsg:
		cmds = append(cmds, m.handleServiceEventMsg(msg)...)
	case ProvidersLoadedMsg:
		m.handleProvidersLoaded(msg)
	case UsageFetchedMsg:
		cmds = append(cmds, m.handleUsageFetched(msg)...)
	case LoginResultMsg:
		cmds = append(cmds, m.handleLoginResult(msg)...)
	case LogoutResultMsg:
		cmds = append(cmds, m.handleLogoutResult(msg)...)
	case APIKeySavedMsg:
		cmds = append(cmds, m.handleAPIKeySaved(msg)...)
	case ProviderToggledMsg:
		cmds = append(cmds, m.handleProviderToggled(msg)...)
	case ProvidersReorderedMsg:
		if msg.Error != nil {
			cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to reorder providers: %v", msg.Error)))
		}
	case TokensReloadedMsg:
		cmds = append(cmds, m.handleTokensReloaded(msg)...)
	case AutostartToggledMsg:
		cmds = append(cmds, m.handleAutostartToggled(msg)...)
	case AddNotificationMsg:
		cmds = append(cmds, m.handleAddNotification(msg)...)
	case RemoveNotificationMsg:
		m.state.RemoveNotification(msg.ID)
	case ClearNotificationsMsg:
		m.state.ClearAllNotifications()
	case ClearExpiredNotificationsMsg:
		m.state.ClearExpiredNotifications()
	case StartLoadingMsg:
		m.handleStartLoading(msg)
		cmds = append(cmds, animationTickCmd())
	case StopLoadingMsg:
		m.handleStopLoading(msg)
	case ErrorMsg:
		cmds = append(cmds, notifyErrorCmd(msg.Error.Error()))
	case RefreshMsg:
		cmds = append(cmds, m.handleRefresh(msg)...)
	case EditAPIKeyMsg:
		cmds = append(cmds, m.handleEditAPIKey(msg)...)
	case ToggleHelpMsg:
		m.showHelp = !m.showHelp
	case QuitMsg:
		cmds = append(cmds, quitCmd())
	}
	return cmds
}

func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
}

func (m *Model) handleSpinnerTick(msg spinner.TickMsg) tea.Cmd {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return cmd
}

func (m *Model) handleTick() tea.Cmd {
	m.state.ClearExpiredNotifications()
	return defaultTickCmd()
}

func (m *Model) handleAnimationTick() tea.Cmd {
	m.animationFrame++
	if m.state.AnyLoading() || m.anyFetching() {
		return animationTickCmd()
	}
	return nil
}

// anyFetching reports whether any provider pipeline is mid-fetch.
func (m *Model) anyFetching() bool {
	for _, p := range m.state.GetProviders() {
		if status, ok := m.state.GetStatus(p.ID); ok && status.State == models.FetchFetching {
			return true
		}
	}
	return false
}

func (m *Model) handleSubscription(msg SubscriptionMsg) []tea.Cmd {
	var cmds []tea.Cmd
	m.eventChannel = msg.Channel
	m.unsubscribe = msg.Cancel
	cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
	return cmds
}

func (m *Model) handleServiceEventMsg(msg ServiceEventMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if cmd := m.handleServiceEvent(msg.Event); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if m.eventChannel != nil {
		cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
	}
	return cmds
}

func (m *Model) handleServiceEvent(event services.ServiceEvent) tea.Cmd {
	switch e := event.(type) {
	case services.UsageUpdatedEvent:
		m.state.SetUsage(e.ProviderID, e.Snapshot)
		return func() tea.Msg { return StopLoadingMsg{Resource: "usage"} }

	case services.ProviderStateEvent:
		m.state.SetStatus(e.ProviderID, e.Status)
		if e.Status.State == models.FetchFetching {
			return animationTickCmd()
		}

	case services.ConfigChangedEvent:
		m.state.SetConfig(e.Config)
		m.state.SetProviders(orderProviders(m.state.GetProviders(), e.Config))

	case services.LoginEvent:
		return notifyInfoCmd(fmt.Sprintf("[%s] %s", e.ProviderID, e.Message))

	case services.ErrorEvent:
		return notifyErrorCmd(fmt.Sprintf("[%s] %v", e.Service, e.Error))
	}

	return nil
}

func (m *Model) handleProvidersLoaded(msg ProvidersLoadedMsg) {
	m.state.SetLoading("initial", false)
	m.state.SetConfig(msg.Config)
	m.state.SetProviders(orderProviders(msg.Providers, msg.Config))

	for id, snapshot := range msg.Usage {
		m.state.SetUsage(id, snapshot)
	}
	for id, status := range msg.Statuses {
		m.state.SetStatus(id, status)
	}

	if !m.state.AnyLoading() {
		m.state.ClearLoadingNotification()
	}
}

func (m *Model) handleUsageFetched(msg UsageFetchedMsg) []tea.Cmd {
	var cmds []tea.Cmd
	m.state.SetLoading("usage", false)
	if msg.Error != nil {
		cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to fetch %s usage: %v", msg.ProviderID, msg.Error)))
		return cmds
	}
	m.state.SetUsage(msg.ProviderID, msg.Snapshot)
	if !m.state.AnyLoading() {
		m.state.ClearLoadingNotification()
	}
	return cmds
}

func (m *Model) handleLoginResult(msg LoginResultMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if msg.Error != nil {
		cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Login failed for %s: %v", msg.ProviderID, msg.Error)))
	}
	// The outcome message arrives separately as a LoginEvent.
	return cmds
}

func (m *Model) handleLogoutResult(msg LogoutResultMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if msg.Error != nil {
		cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Logout failed for %s: %v", msg.ProviderID, msg.Error)))
		return cmds
	}
	m.state.ClearUsage(msg.ProviderID)
	cmds = append(cmds, notifySuccessCmd(fmt.Sprintf("Logged out of %s", msg.ProviderID)))
	return cmds
}

func (m *Model) handleAPIKeySaved(msg APIKeySavedMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if msg.Error != nil {
		cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to save API key: %v", msg.Error)))
		return cmds
	}
	if msg.Cleared {
		m.state.ClearUsage(msg.ProviderID)
		cmds = append(cmds, notifySuccessCmd(fmt.Sprintf("API key cleared for %s", msg.ProviderID)))
	} else {
		cmds = append(cmds, notifySuccessCmd(fmt.Sprintf("API key saved for %s", msg.ProviderID)))
	}
	return cmds
}

func (m *Model) handleProviderToggled(msg ProviderToggledMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if msg.Error != nil {
		cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to toggle %s: %v", msg.ProviderID, msg.Error)))
		return cmds
	}
	if msg.Enabled {
		cmds = append(cmds, notifySuccessCmd(fmt.Sprintf("Enabled %s", msg.ProviderID)))
	} else {
		cmds = append(cmds, notifySuccessCmd(fmt.Sprintf("Disabled %s", msg.ProviderID)))
	}
	return cmds
}

func (m *Model) handleTokensReloaded(msg TokensReloadedMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if msg.Found {
		cmds = append(cmds, notifySuccessCmd("Credentials found, refreshing"))
		if m.services != nil {
			cmds = append(cmds, triggerRefreshAllCmd(m.services))
		}
	} else {
		cmds = append(cmds, notifyInfoCmd("No credentials found"))
	}
	return cmds
}

func (m *Model) handleAutostartToggled(msg AutostartToggledMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if msg.Error != nil {
		cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to update start on login: %v", msg.Error)))
		return cmds
	}
	if msg.Enabled {
		cmds = append(cmds, notifySuccessCmd("Start on login enabled"))
	} else {
		cmds = append(cmds, notifySuccessCmd("Start on login disabled"))
	}
	return cmds
}

func (m *Model) handleAddNotification(msg AddNotificationMsg) []tea.Cmd {
	var cmds []tea.Cmd
	id := m.state.AddNotification(msg.Type, msg.Message, msg.Duration)
	if msg.Duration > 0 {
		cmds = append(cmds, clearNotificationCmd(id, msg.Duration))
	}
	return cmds
}

func (m *Model) handleStartLoading(msg StartLoadingMsg) {
	m.state.SetLoading(msg.Resource, true)
	m.state.SetLoadingNotification("Refreshing...")
}

func (m *Model) handleStopLoading(msg StopLoadingMsg) {
	m.state.SetLoading(msg.Resource, false)
	if !m.state.AnyLoading() {
		m.state.ClearLoadingNotification()
	}
}

func (m *Model) handleRefresh(msg RefreshMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if m.services == nil {
		return cmds
	}

	if msg.ProviderID == "" {
		cmds = append(cmds, triggerRefreshAllCmd(m.services))
	} else {
		cmds = append(cmds, triggerRefreshCmd(m.services, msg.ProviderID))
	}
	return cmds
}

func (m *Model) handleEditAPIKey(msg EditAPIKeyMsg) []tea.Cmd {
	name := msg.ProviderID
	for _, p := range m.state.GetProviders() {
		if p.ID == msg.ProviderID {
			name = p.Name
			break
		}
	}
	return []tea.Cmd{m.startEditing(msg.ProviderID, name)}
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	if m.editing {
		return m.handleEditingKey(msg)
	}

	switch {
	case key.Matches(msg, m.keymap.Quit):
		if m.unsubscribe != nil {
			m.unsubscribe()
			m.unsubscribe = nil
		}
		return tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		return nil

	case key.Matches(msg, m.keymap.Up):
		m.moveSelection(-1)
		return nil

	case key.Matches(msg, m.keymap.Down):
		m.moveSelection(1)
		return nil

	case key.Matches(msg, m.keymap.MoveUp):
		return m.reorderSelected(-1)

	case key.Matches(msg, m.keymap.MoveDown):
		return m.reorderSelected(1)

	case key.Matches(msg, m.keymap.Refresh):
		if provider, ok := m.state.SelectedProvider(); ok && m.services != nil {
			return triggerRefreshCmd(m.services, provider.ID)
		}
		return nil

	case key.Matches(msg, m.keymap.RefreshAll):
		if m.services != nil {
			return triggerRefreshAllCmd(m.services)
		}
		return nil

	case key.Matches(msg, m.keymap.Login):
		if provider, ok := m.state.SelectedProvider(); ok && m.services != nil {
			return loginCmd(m.services, provider.ID)
		}
		return nil

	case key.Matches(msg, m.keymap.Logout):
		if provider, ok := m.state.SelectedProvider(); ok && m.services != nil {
			return logoutCmd(m.services, provider.ID)
		}
		return nil

	case key.Matches(msg, m.keymap.EditKey):
		if provider, ok := m.state.SelectedProvider(); ok {
			return m.startEditing(provider.ID, provider.Name)
		}
		return nil

	case key.Matches(msg, m.keymap.Toggle):
		if provider, ok := m.state.SelectedProvider(); ok && m.services != nil {
			enabled := m.state.GetConfig().IsProviderEnabled(provider.ID)
			return toggleProviderCmd(m.services, provider.ID, !enabled)
		}
		return nil

	case key.Matches(msg, m.keymap.ReloadTokens):
		if m.services != nil {
			return reloadTokensCmd(m.services)
		}
		return nil

	case key.Matches(msg, m.keymap.Autostart):
		if m.services != nil {
			return toggleAutostartCmd(m.services, !m.state.GetConfig().StartOnLogin)
		}
		return nil

	case key.Matches(msg, m.keymap.Escape):
		if m.showHelp {
			m.showHelp = false
			return nil
		}
	}

	return nil
}

// handleEditingKey routes keys to the API key input while editing.
func (m *Model) handleEditingKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keymap.Escape):
		m.stopEditing()
		return nil

	case key.Matches(msg, m.keymap.Enter):
		id := m.editingID
		value := strings.TrimSpace(m.keyInput.Value())
		m.stopEditing()
		if m.services != nil {
			return saveAPIKeyCmd(m.services, id, value)
		}
		return nil
	}

	var cmd tea.Cmd
	m.keyInput, cmd = m.keyInput.Update(msg)
	return cmd
}

func (m *Model) startEditing(id, name string) tea.Cmd {
	m.editing = true
	m.editingID = id
	m.editingName = name
	m.keyInput.SetValue("")
	m.keyInput.Placeholder = "paste key, leave empty to clear"
	m.keyInput.Focus()
	return textinput.Blink
}

func (m *Model) stopEditing() {
	m.editing = false
	m.editingID = ""
	m.editingName = ""
	m.keyInput.Blur()
	m.keyInput.SetValue("")
}

func (m *Model) moveSelection(delta int) {
	count := m.state.GetProviderCount()
	if count == 0 {
		return
	}
	idx := (m.state.GetSelectedIndex() + delta + count) % count
	m.state.SetSelectedIndex(idx)
}

// reorderSelected moves the selected provider within the enabled order.
// Disabled providers sit below the enabled block and cannot be moved.
func (m *Model) reorderSelected(delta int) tea.Cmd {
	if m.services == nil {
		return nil
	}
	provider, ok := m.state.SelectedProvider()
	if !ok {
		return nil
	}

	order := append([]string(nil), m.state.GetConfig().EnabledProviders...)
	idx := -1
	for i, id := range order {
		if id == provider.ID {
			idx = i
			break
		}
	}
	target := idx + delta
	if idx < 0 || target < 0 || target >= len(order) {
		return nil
	}

	order[idx], order[target] = order[target], order[idx]
	m.state.SetSelectedIndex(m.state.GetSelectedIndex() + delta)
	return reorderProvidersCmd(m.services, order)
}

// orderProviders sorts providers enabled-first in config order, disabled
// providers after in registry order.
func orderProviders(providers []models.ProviderMetadata, cfg config.Config) []models.ProviderMetadata {
	byID := make(map[string]models.ProviderMetadata, len(providers))
	for _, p := range providers {
		byID[p.ID] = p
	}

	ordered := make([]models.ProviderMetadata, 0, len(providers))
	for _, id := range cfg.EnabledProviders {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	for _, p := range providers {
		if _, ok := byID[p.ID]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// View renders the application UI.
func (m *Model) View() string {
	var b strings.Builder

	if m.width > 0 {
		b.WriteString(m.renderHeader())
		b.WriteString("\n")
	}

	if !m.ready {
		b.WriteString(m.styles.Content.Render(fmt.Sprintf("%s Loading...", m.spinner.View())))
		return b.String()
	}

	b.WriteString(m.renderProviderList())

	if m.editing {
		b.WriteString("\n")
		b.WriteString(m.renderKeyEditor())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	mainView := b.String()

	if m.showHelp {
		// Render help modal
		helpView := m.renderHelp()
		mainView = m.overlayCentered(mainView, helpView)
	}

	notifications := m.renderNotifications()

	if len(notifications) > 0 {
		return m.overlayToasts(mainView, notifications)
	}

	return mainView
}

func (m *Model) renderHeader() string {
	title := m.styles.Title.Render("QuotaBar")
	subtitle := m.styles.Subtle.Render("AI provider usage monitor")

	left := fmt.Sprintf("%s  %s", title, subtitle)

	cfg := m.state.GetConfig()
	right := ""
	if cfg.RefreshInterval > 0 {
		right = m.styles.Subtle.Render(fmt.Sprintf("every %dm", cfg.RefreshInterval))
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return m.styles.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) renderProviderList() string {
	providers := m.state.GetProviders()

	cardWidth := max(m.width-6, 40)

	var rows []string

	titleIcon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	rows = append(rows, fmt.Sprintf("%s %s", titleIcon, styles.CardTitleStyle.Render("Provider Usage")))

	if len(providers) == 0 {
		rows = append(rows, "")
		emptyIcon := lipgloss.NewStyle().Foreground(styles.Subtle).Render("○")
		rows = append(rows, fmt.Sprintf("  %s %s", emptyIcon, styles.HelpStyle.Render("No providers loaded")))

		return styles.CardStyle.Width(cardWidth).Render(
			lipgloss.JoinVertical(lipgloss.Left, rows...),
		)
	}

	dividerWidth := max(cardWidth-8, 20)
	divider := lipgloss.NewStyle().Foreground(styles.Subtle).Render(
		"  ├" + strings.Repeat("─", dividerWidth) + "┤",
	)

	rows = append(rows, "")

	selected := m.state.GetSelectedIndex()
	for i, p := range providers {
		rows = append(rows, m.renderProviderRow(p, i == selected, cardWidth-4))
		if i < len(providers)-1 {
			rows = append(rows, "")
			rows = append(rows, divider)
			rows = append(rows, "")
		}
	}

	return styles.CardStyle.Width(cardWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) renderProviderRow(p models.ProviderMetadata, selected bool, width int) string {
	var lines []string

	lines = append(lines, m.renderProviderHeader(p, selected))

	enabled := m.state.GetConfig().IsProviderEnabled(p.ID)
	if !enabled {
		lines = append(lines, styles.HelpStyle.Render("    press o to enable"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, "")

	contentWidth := max(width-4, 20)
	status, _ := m.state.GetStatus(p.ID)
	usage := m.state.GetUsage(p.ID)

	switch {
	case usage != nil:
		lines = append(lines, m.renderUsageWindows(p, usage, contentWidth)...)
	case status.State == models.FetchFetching:
		lines = append(lines, "  "+components.SimpleUsageBarLoading(p.ID, contentWidth, m.animationFrame))
	case status.LastError != "":
		lines = append(lines, styles.ErrorTextStyle.Render("    "+status.LastError))
		lines = append(lines, styles.HelpStyle.Render("    press l to login or e to set an API key"))
	default:
		lines = append(lines, styles.HelpStyle.Render("    no data yet, press r to refresh"))
	}

	if selected {
		if sparkline := m.renderHistorySparkline(p.ID, contentWidth); sparkline != "" {
			lines = append(lines, "")
			lines = append(lines, sparkline)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderProviderHeader(p models.ProviderMetadata, selected bool) string {
	selectionPrefix := "  "
	if selected {
		selectionPrefix = styles.FocusedStyle.Render("▸ ")
	}

	icon := styles.GetProviderStyle(p.ID).Render(styles.ProviderIcon(p.ID))
	name := styles.GetProviderStyle(p.ID).Bold(true).Render(p.Name)

	enabled := m.state.GetConfig().IsProviderEnabled(p.ID)
	if !enabled {
		return fmt.Sprintf("%s%s %s %s",
			selectionPrefix, icon, name, styles.DisabledTextStyle.Render("disabled"))
	}

	return fmt.Sprintf("%s%s %s %s", selectionPrefix, icon, name, m.renderStatusChip(p.ID))
}

func (m *Model) renderStatusChip(id string) string {
	status, ok := m.state.GetStatus(id)
	if !ok {
		return styles.HelpStyle.Render("·")
	}

	switch status.State {
	case models.FetchFetching:
		return m.spinner.View() + styles.HelpStyle.Render(" fetching")
	case models.FetchSucceeded:
		return styles.SuccessTextStyle.Render("✓ " + formatAgo(status.LastUpdated))
	case models.FetchFailed:
		return styles.ErrorTextStyle.Render("✗ failed")
	default:
		return styles.HelpStyle.Render("·")
	}
}

func (m *Model) renderUsageWindows(p models.ProviderMetadata, usage *models.UsageSnapshot, width int) []string {
	var lines []string

	labelWidth := 4
	resetWidth := 20
	barWidth := max(width-labelWidth-resetWidth-12, 10)

	for _, sw := range usage.Windows() {
		w := sw.Window
		label := lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(labelWidth).
			Render(components.SlotLabel(sw.Slot, w.WindowMinutes))

		bar := components.RenderGradientBar(w.DisplayPercent(), barWidth)
		pct := styles.GetUsageStyle(w.UsedPercent).
			Width(5).
			Align(lipgloss.Right).
			Render(fmt.Sprintf("%.0f%%", w.DisplayPercent()))

		reset := components.FormatReset(w.ResetsAt, w.ResetDescription, time.Now())
		resetStr := styles.HelpStyle.Render(reset)

		lines = append(lines, fmt.Sprintf("    %s %s %s  %s", label, bar, pct, resetStr))
	}

	if usage.Identity != nil {
		identity := identityLine(usage.Identity)
		if identity != "" {
			lines = append(lines, styles.HelpStyle.Render("    "+identity))
		}
	}

	return lines
}

func (m *Model) renderHistorySparkline(id string, width int) string {
	history := m.state.GetHistory(id)
	if len(history) < 2 {
		return ""
	}

	sparkWidth := min(len(history), max(width-12, 10))
	spark := components.RenderUsageSparkline(history, sparkWidth)
	return fmt.Sprintf("    %s %s", styles.HelpStyle.Render("history"), spark)
}

func identityLine(identity *models.IdentitySnapshot) string {
	var parts []string
	if identity.Email != "" {
		parts = append(parts, identity.Email)
	}
	if identity.Plan != "" {
		parts = append(parts, identity.Plan)
	}
	if identity.Organization != "" {
		parts = append(parts, identity.Organization)
	}
	return strings.Join(parts, " · ")
}

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

func (m *Model) renderKeyEditor() string {
	title := styles.FocusedStyle.Render(fmt.Sprintf("API key for %s", m.editingName))
	hint := styles.HelpStyle.Render("enter saves, esc cancels")

	content := lipgloss.JoinVertical(lipgloss.Left, title, m.keyInput.View(), hint)
	return styles.FocusedBorderStyle.Width(max(m.width-6, 40)).Render(content)
}

func (m *Model) renderFooter() string {
	var entries []string
	for _, binding := range m.keymap.ShortHelp() {
		entries = append(entries, fmt.Sprintf("%s %s",
			styles.HelpKeyStyle.Render(binding.Help().Key),
			styles.HelpDescStyle.Render(binding.Help().Desc)))
	}

	sep := styles.HelpSeparatorStyle.Render(" · ")
	return m.styles.Help.Render(strings.Join(entries, sep))
}

func (m *Model) renderNotifications() []string {
	notifications := m.state.GetNotifications()
	if len(notifications) == 0 {
		return nil
	}

	var toasts []string
	for _, n := range notifications {
		var style lipgloss.Style
		var prefix string

		switch n.Type {
		case NotificationSuccess:
			style = m.styles.NotificationSuccess
			prefix = "[OK]"
		case NotificationError:
			style = m.styles.NotificationError
			prefix = "[ERR]"
		case NotificationWarning:
			style = m.styles.NotificationWarning
			prefix = "[WARN]"
		case NotificationInfo:
			style = m.styles.NotificationInfo
			prefix = "[INFO]"
		case NotificationLoading:
			style = m.styles.NotificationInfo
			prefix = m.spinner.View()
		}

		content := style.Render(fmt.Sprintf("%s %s", prefix, n.Message))
		toast := m.styles.Toast.Render(content)
		toasts = append(toasts, toast)
	}

	return toasts
}

func (m *Model) overlayCentered(mainView string, overlay string) string {
	mainLines := strings.Split(mainView, "\n")
	overlayLines := strings.Split(overlay, "\n")

	overlayHeight := len(overlayLines)
	overlayWidth := lipgloss.Width(overlay)

	// Calculate center position
	y := (m.height - overlayHeight) / 2
	x := (m.width - overlayWidth) / 2

	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}

	for i, overlayLine := range overlayLines {
		mainY := y + i
		if mainY >= len(mainLines) {
			break
		}

		mainLine := mainLines[mainY]

		// Truncate main line to the start of the overlay
		left := ansi.Truncate(mainLine, x, "")

		// Skip 'x + overlayWidth' visual cells for the right part
		right := ansi.TruncateLeft(mainLine, x+overlayWidth, "")

		// If the line was shorter than the overlay start, pad it
		if lipgloss.Width(left) < x {
			left += strings.Repeat(" ", x-lipgloss.Width(left))
		}

		mainLines[mainY] = left + overlayLine + right
	}

	return strings.Join(mainLines, "\n")
}

func (m *Model) overlayToasts(mainView string, toasts []string) string {
	if len(toasts) == 0 {
		return mainView
	}

	toastStack := lipgloss.JoinVertical(lipgloss.Right, toasts...)
	toastLines := strings.Split(toastStack, "\n")
	mainLines := strings.Split(mainView, "\n")

	toastWidth := lipgloss.Width(toastStack)
	startX := max(m.width-toastWidth-2, 0)

	startY := 2

	for i, toastLine := range toastLines {
		lineIdx := startY + i
		if lineIdx >= len(mainLines) {
			break
		}

		mainLine := mainLines[lineIdx]
		mainLineWidth := lipgloss.Width(mainLine)

		if mainLineWidth < startX {
			padding := strings.Repeat(" ", startX-mainLineWidth)
			mainLines[lineIdx] = mainLine + padding + toastLine
		} else {
			truncated := ansi.Truncate(mainLine, startX, "")
			mainLines[lineIdx] = truncated + toastLine
		}
	}

	return strings.Join(mainLines, "\n")
}

func (m *Model) renderHelp() string {
	var lines []string

	lines = append(lines, m.styles.Title.Render("Keyboard Shortcuts"))
	lines = append(lines, "")

	lines = append(lines, m.styles.Highlight.Render("Navigation"))
	lines = append(lines, "  j/k, ↑/↓   Select provider")
	lines = append(lines, "  J/K        Move provider in the list")
	lines = append(lines, "")

	lines = append(lines, m.styles.Highlight.Render("Providers"))
	lines = append(lines, "  r          Refresh selected")
	lines = append(lines, "  R          Refresh all")
	lines = append(lines, "  l          Login")
	lines = append(lines, "  L          Logout")
	lines = append(lines, "  e          Set API key")
	lines = append(lines, "  o          Enable/disable")
	lines = append(lines, "  O          Reload tokens")
	lines = append(lines, "")

	lines = append(lines, m.styles.Highlight.Render("General"))
	lines = append(lines, "  s          Toggle start on login")
	lines = append(lines, "  ?          Toggle help")
	lines = append(lines, "  q/Ctrl+C   Quit")

	lines = append(lines, "")
	lines = append(lines, m.styles.Subtle.Render("Press ? or Esc to close"))

	return styles.HelpPanelStyle.Render(strings.Join(lines, "\n"))
}
