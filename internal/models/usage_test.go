package models

import (
	"testing"
	"time"
)

func TestRateWindow_DisplayPercent(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want float64
	}{
		{"Zero", 0, 0},
		{"Normal", 45.5, 45.5},
		{"Boundary", 100, 100},
		{"OverLimit", 112.4, 100},
		{"Negative", -3.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := RateWindow{UsedPercent: tt.pct}
			if got := w.DisplayPercent(); got != tt.want {
				t.Errorf("DisplayPercent() = %v, want %v", got, tt.want)
			}
			// The stored value must not be clamped.
			if w.UsedPercent != tt.pct {
				t.Errorf("UsedPercent mutated to %v, want %v", w.UsedPercent, tt.pct)
			}
		})
	}
}

func TestRateWindow_ThresholdLevels(t *testing.T) {
	if (RateWindow{UsedPercent: 79.9}).IsWarning() {
		t.Error("79.9 should not be warning")
	}
	if !(RateWindow{UsedPercent: 80.0}).IsWarning() {
		t.Error("80.0 should be warning")
	}
	if (RateWindow{UsedPercent: 94.9}).IsCritical() {
		t.Error("94.9 should not be critical")
	}
	if !(RateWindow{UsedPercent: 95.0}).IsCritical() {
		t.Error("95.0 should be critical")
	}
	if !(RateWindow{UsedPercent: 120.0}).IsCritical() {
		t.Error("out-of-range values still count as critical")
	}
}

func TestUsageSnapshot_MaxUsage(t *testing.T) {
	s := NewUsageSnapshot()
	if got := s.MaxUsage(); got != 0 {
		t.Errorf("empty snapshot MaxUsage() = %v, want 0", got)
	}

	s.Primary = &RateWindow{UsedPercent: 45.0}
	s.Secondary = &RateWindow{UsedPercent: 80.0}
	s.Tertiary = &RateWindow{UsedPercent: 30.0}
	if got := s.MaxUsage(); got != 80.0 {
		t.Errorf("MaxUsage() = %v, want 80.0", got)
	}
}

func TestUsageSnapshot_Windows(t *testing.T) {
	s := &UsageSnapshot{
		UpdatedAt: time.Now(),
		Primary:   &RateWindow{UsedPercent: 10},
		Tertiary:  &RateWindow{UsedPercent: 30},
	}

	windows := s.Windows()
	if len(windows) != 2 {
		t.Fatalf("Windows() returned %d entries, want 2", len(windows))
	}
	if windows[0].Slot != SlotPrimary {
		t.Errorf("windows[0].Slot = %q, want %q", windows[0].Slot, SlotPrimary)
	}
	if windows[1].Slot != SlotTertiary {
		t.Errorf("windows[1].Slot = %q, want %q", windows[1].Slot, SlotTertiary)
	}
}

func TestUsageSnapshot_WarningDetection(t *testing.T) {
	normal := &UsageSnapshot{
		Primary:   &RateWindow{UsedPercent: 50},
		Secondary: &RateWindow{UsedPercent: 60},
	}
	if normal.HasWarning() || normal.HasCritical() {
		t.Error("50/60 snapshot should be below both thresholds")
	}

	warning := &UsageSnapshot{
		Primary:   &RateWindow{UsedPercent: 85},
		Secondary: &RateWindow{UsedPercent: 60},
	}
	if !warning.HasWarning() {
		t.Error("85% primary should be warning")
	}
	if warning.HasCritical() {
		t.Error("85% primary should not be critical")
	}

	critical := &UsageSnapshot{
		Primary:   &RateWindow{UsedPercent: 50},
		Secondary: &RateWindow{UsedPercent: 98},
	}
	if !critical.HasWarning() {
		t.Error("98% is also warning")
	}
	if !critical.HasCritical() {
		t.Error("98% secondary should be critical")
	}
}

func TestProviderMetadata_SupportsAuth(t *testing.T) {
	meta := ProviderMetadata{
		ID:          "claude",
		Name:        "Claude",
		AuthMethods: []AuthMethod{AuthOAuth},
	}

	if !meta.SupportsAuth(AuthOAuth) {
		t.Error("claude should support oauth")
	}
	if meta.SupportsAuth(AuthCookie) {
		t.Error("claude should not support cookie auth")
	}
}

func TestFetchState_String(t *testing.T) {
	tests := []struct {
		state FetchState
		want  string
	}{
		{FetchIdle, "idle"},
		{FetchFetching, "fetching"},
		{FetchSucceeded, "succeeded"},
		{FetchFailed, "failed"},
		{FetchState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("FetchState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
