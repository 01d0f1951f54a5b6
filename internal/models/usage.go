// Package models defines data structures and domain types.
package models

import "time"

// Threshold levels shared by RateWindow checks and the notification agent.
const (
	WarningPercent  = 80.0
	CriticalPercent = 95.0
)

// RateWindow represents one quota dimension (session, weekly, model-specific)
// within a usage snapshot. Values are immutable once constructed.
type RateWindow struct {
	ResetsAt         *time.Time `json:"resetsAt,omitempty"`
	ResetDescription string     `json:"resetDescription,omitempty"`
	WindowMinutes    int64      `json:"windowMinutes,omitempty"`
	UsedPercent      float64    `json:"usedPercent"`
}

// DisplayPercent clamps the used percentage to [0, 100] for presentation.
// The stored value is left untouched so threshold checks see the raw number.
func (w RateWindow) DisplayPercent() float64 {
	return ClampPercent(w.UsedPercent)
}

// IsWarning reports whether usage is at or above the warning level.
func (w RateWindow) IsWarning() bool {
	return w.UsedPercent >= WarningPercent
}

// IsCritical reports whether usage is at or above the critical level.
func (w RateWindow) IsCritical() bool {
	return w.UsedPercent >= CriticalPercent
}

// ClampPercent bounds a percentage to [0, 100].
func ClampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// IdentitySnapshot carries descriptive account information. It is never used
// as a credential.
type IdentitySnapshot struct {
	Email        string `json:"email,omitempty"`
	Plan         string `json:"plan,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Window slot labels, in snapshot order.
const (
	SlotPrimary   = "primary"
	SlotSecondary = "secondary"
	SlotTertiary  = "tertiary"
)

// UsageSnapshot is a point-in-time read of a provider's rate-limit state.
// Each successful poll produces a fresh snapshot that replaces the previous
// one; snapshots are never merged.
type UsageSnapshot struct {
	UpdatedAt time.Time         `json:"updatedAt"`
	Identity  *IdentitySnapshot `json:"identity,omitempty"`
	Primary   *RateWindow       `json:"primary,omitempty"`
	Secondary *RateWindow       `json:"secondary,omitempty"`
	Tertiary  *RateWindow       `json:"tertiary,omitempty"`
}

// NewUsageSnapshot returns an empty snapshot stamped with the current time.
func NewUsageSnapshot() *UsageSnapshot {
	return &UsageSnapshot{UpdatedAt: time.Now().UTC()}
}

// SlotWindow holds a rate window together with its slot label, for callers
// that iterate a snapshot's populated windows.
type SlotWindow struct {
	Slot   string
	Window *RateWindow
}

// Windows returns the populated windows in slot order.
func (s *UsageSnapshot) Windows() []SlotWindow {
	var out []SlotWindow
	if s.Primary != nil {
		out = append(out, SlotWindow{Slot: SlotPrimary, Window: s.Primary})
	}
	if s.Secondary != nil {
		out = append(out, SlotWindow{Slot: SlotSecondary, Window: s.Secondary})
	}
	if s.Tertiary != nil {
		out = append(out, SlotWindow{Slot: SlotTertiary, Window: s.Tertiary})
	}
	return out
}

// MaxUsage returns the highest raw used percentage across all windows,
// or 0 when no window is populated.
func (s *UsageSnapshot) MaxUsage() float64 {
	max := 0.0
	for _, sw := range s.Windows() {
		if sw.Window.UsedPercent > max {
			max = sw.Window.UsedPercent
		}
	}
	return max
}

// HasWarning reports whether any window is at warning level.
func (s *UsageSnapshot) HasWarning() bool {
	for _, sw := range s.Windows() {
		if sw.Window.IsWarning() {
			return true
		}
	}
	return false
}

// HasCritical reports whether any window is at critical level.
func (s *UsageSnapshot) HasCritical() bool {
	for _, sw := range s.Windows() {
		if sw.Window.IsCritical() {
			return true
		}
	}
	return false
}
