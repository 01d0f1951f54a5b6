// Package notify raises desktop notifications when a provider's usage
// crosses the warning or critical threshold.
package notify

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/j-veylop/quotabar/internal/logger"
	"github.com/j-veylop/quotabar/internal/models"
)

// Tier is the alert level derived from a window's raw used percentage.
type Tier int

const (
	TierNone Tier = iota
	TierWarning
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierWarning:
		return "warning"
	case TierCritical:
		return "critical"
	default:
		return "none"
	}
}

// Config holds thresholds and optional hooks. ProviderName maps an id to
// its display name; Notifier replaces desktop dispatch in tests.
type Config struct {
	WarningThreshold  float64
	CriticalThreshold float64
	ProviderName      func(id string) string
	Notifier          func(title, body string)
}

// Agent tracks the last-seen tier per (provider, window slot) and fires
// only when a slot's tier increases. Dropping below a threshold re-arms
// the slot, so sustained high usage notifies once per crossing.
type Agent struct {
	mu       sync.Mutex
	config   Config
	lastTier map[string]map[string]Tier
}

// New builds the agent. Zero thresholds fall back to the shared warning
// and critical levels.
func New(config Config) *Agent {
	if config.WarningThreshold <= 0 {
		config.WarningThreshold = models.WarningPercent
	}
	if config.CriticalThreshold <= 0 {
		config.CriticalThreshold = models.CriticalPercent
	}
	if config.Notifier == nil {
		config.Notifier = desktopNotify
	}
	return &Agent{
		config:   config,
		lastTier: make(map[string]map[string]Tier),
	}
}

// Observe compares each window slot of the snapshot against the last-seen
// tier for that provider and fires on increases. It never blocks on I/O.
func (a *Agent) Observe(providerID string, snapshot *models.UsageSnapshot) {
	if snapshot == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	slots := a.lastTier[providerID]
	if slots == nil {
		slots = make(map[string]Tier)
		a.lastTier[providerID] = slots
	}

	seen := make(map[string]bool, 3)
	for _, sw := range snapshot.Windows() {
		seen[sw.Slot] = true
		tier := a.tierFor(sw.Window.UsedPercent)
		if tier > slots[sw.Slot] {
			a.dispatch(providerID, sw.Slot, sw.Window, tier)
		}
		slots[sw.Slot] = tier
	}

	// A slot missing from the new snapshot re-arms.
	for slot := range slots {
		if !seen[slot] {
			delete(slots, slot)
		}
	}
}

// Reset forgets a provider's tier state. Used on logout.
func (a *Agent) Reset(providerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.lastTier, providerID)
}

func (a *Agent) tierFor(percent float64) Tier {
	switch {
	case percent >= a.config.CriticalThreshold:
		return TierCritical
	case percent >= a.config.WarningThreshold:
		return TierWarning
	default:
		return TierNone
	}
}

func (a *Agent) dispatch(providerID, slot string, window *models.RateWindow, tier Tier) {
	name := providerID
	if a.config.ProviderName != nil {
		if n := a.config.ProviderName(providerID); n != "" {
			name = n
		}
	}

	label := window.ResetDescription
	if label == "" {
		label = slot
	}
	title := fmt.Sprintf("%s usage %s", name, tier)
	body := fmt.Sprintf("%s at %.0f%%", label, window.DisplayPercent())

	logger.Info("usage threshold crossed",
		"provider", providerID,
		"slot", slot,
		"tier", tier.String(),
		"percent", window.DisplayPercent())
	a.config.Notifier(title, body)
}

// desktopNotify posts through beeep without blocking the observer.
func desktopNotify(title, body string) {
	go func() {
		if err := beeep.Notify(title, body, ""); err != nil {
			logger.Error("failed to send notification", "error", err)
		}
	}()
}
