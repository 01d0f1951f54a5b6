package notify

import (
	"strings"
	"testing"

	"github.com/j-veylop/quotabar/internal/models"
)

type recordedNote struct {
	title string
	body  string
}

func recordingAgent(config Config) (*Agent, *[]recordedNote) {
	notes := &[]recordedNote{}
	config.Notifier = func(title, body string) {
		*notes = append(*notes, recordedNote{title: title, body: body})
	}
	return New(config), notes
}

func snapshotWithPrimary(percent float64) *models.UsageSnapshot {
	s := models.NewUsageSnapshot()
	s.Primary = &models.RateWindow{UsedPercent: percent, ResetDescription: "5h session limit"}
	return s
}

func TestAgent_EdgeTriggeredSequence(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	for _, percent := range []float64{70, 85, 90, 85, 96} {
		agent.Observe("claude", snapshotWithPrimary(percent))
	}

	if len(*notes) != 2 {
		t.Fatalf("notifications = %d, want 2", len(*notes))
	}
	if !strings.Contains((*notes)[0].title, "warning") {
		t.Errorf("first notification title = %q, want warning", (*notes)[0].title)
	}
	if !strings.Contains((*notes)[1].title, "critical") {
		t.Errorf("second notification title = %q, want critical", (*notes)[1].title)
	}
}

func TestAgent_JumpStraightToCritical(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	agent.Observe("claude", snapshotWithPrimary(96))

	if len(*notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(*notes))
	}
	if !strings.Contains((*notes)[0].title, "critical") {
		t.Errorf("notification title = %q, want critical", (*notes)[0].title)
	}
}

func TestAgent_SlotsAreIndependent(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	first := models.NewUsageSnapshot()
	first.Primary = &models.RateWindow{UsedPercent: 85, ResetDescription: "5h session limit"}
	first.Secondary = &models.RateWindow{UsedPercent: 20, ResetDescription: "Weekly limit"}
	agent.Observe("claude", first)

	if len(*notes) != 1 {
		t.Fatalf("notifications = %d, want 1 after first snapshot", len(*notes))
	}

	second := models.NewUsageSnapshot()
	second.Primary = &models.RateWindow{UsedPercent: 85, ResetDescription: "5h session limit"}
	second.Secondary = &models.RateWindow{UsedPercent: 96, ResetDescription: "Weekly limit"}
	agent.Observe("claude", second)

	if len(*notes) != 2 {
		t.Fatalf("notifications = %d, want 2 after secondary crossing", len(*notes))
	}
	if !strings.Contains((*notes)[1].body, "Weekly limit") {
		t.Errorf("second notification body = %q, want weekly window named", (*notes)[1].body)
	}
}

func TestAgent_ProvidersAreIndependent(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	agent.Observe("claude", snapshotWithPrimary(85))
	agent.Observe("openai", snapshotWithPrimary(85))

	if len(*notes) != 2 {
		t.Errorf("notifications = %d, want one per provider", len(*notes))
	}
}

func TestAgent_AbsentSlotRearms(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	agent.Observe("claude", snapshotWithPrimary(85))

	// Primary vanishes for one snapshot, then returns still high.
	middle := models.NewUsageSnapshot()
	middle.Secondary = &models.RateWindow{UsedPercent: 10, ResetDescription: "Weekly limit"}
	agent.Observe("claude", middle)

	agent.Observe("claude", snapshotWithPrimary(85))

	if len(*notes) != 2 {
		t.Errorf("notifications = %d, want re-fire after slot returned", len(*notes))
	}
}

func TestAgent_Reset(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	agent.Observe("claude", snapshotWithPrimary(85))
	agent.Reset("claude")
	agent.Observe("claude", snapshotWithPrimary(85))

	if len(*notes) != 2 {
		t.Errorf("notifications = %d, want re-fire after reset", len(*notes))
	}
}

func TestAgent_NilSnapshotIgnored(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	agent.Observe("claude", nil)

	if len(*notes) != 0 {
		t.Errorf("notifications = %d, want 0 for nil snapshot", len(*notes))
	}
}

func TestAgent_CustomThresholds(t *testing.T) {
	agent, notes := recordingAgent(Config{WarningThreshold: 50, CriticalThreshold: 90})

	agent.Observe("claude", snapshotWithPrimary(55))

	if len(*notes) != 1 {
		t.Fatalf("notifications = %d, want 1 at custom warning level", len(*notes))
	}
	if !strings.Contains((*notes)[0].title, "warning") {
		t.Errorf("notification title = %q, want warning", (*notes)[0].title)
	}
}

func TestAgent_TitleAndBody(t *testing.T) {
	agent, notes := recordingAgent(Config{
		ProviderName: func(id string) string {
			if id == "claude" {
				return "Claude"
			}
			return ""
		},
	})

	agent.Observe("claude", snapshotWithPrimary(85))

	if len(*notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(*notes))
	}
	note := (*notes)[0]
	if note.title != "Claude usage warning" {
		t.Errorf("title = %q, want %q", note.title, "Claude usage warning")
	}
	if !strings.Contains(note.body, "5h session limit") {
		t.Errorf("body = %q, want window label present", note.body)
	}
	if !strings.Contains(note.body, "85%") {
		t.Errorf("body = %q, want percent present", note.body)
	}
}

func TestAgent_OverflowPercentClampedInBody(t *testing.T) {
	agent, notes := recordingAgent(Config{})

	agent.Observe("claude", snapshotWithPrimary(130))

	if len(*notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(*notes))
	}
	if !strings.Contains((*notes)[0].body, "100%") {
		t.Errorf("body = %q, want clamped percent", (*notes)[0].body)
	}
}
