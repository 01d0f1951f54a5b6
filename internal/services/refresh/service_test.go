package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/providers"
)

// stubFetcher is a controllable Fetcher. When block is set, FetchUsage
// waits until the channel is closed or the context is canceled.
type stubFetcher struct {
	id    string
	block chan struct{}

	mu        sync.Mutex
	available bool
	snapshot  *models.UsageSnapshot
	err       error
	calls     int
}

func (f *stubFetcher) ID() string {
	return f.id
}

func (f *stubFetcher) IsAvailable(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available, nil
}

func (f *stubFetcher) FetchUsage(ctx context.Context) (*models.UsageSnapshot, error) {
	f.mu.Lock()
	f.calls++
	snapshot, err := f.snapshot, f.err
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, err
}

func (f *stubFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func snapshotWith(percent float64) *models.UsageSnapshot {
	s := models.NewUsageSnapshot()
	s.Primary = &models.RateWindow{UsedPercent: percent}
	return s
}

func testConfig() Config {
	return Config{
		Interval:     func() time.Duration { return time.Hour },
		FetchTimeout: 2 * time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func collectEvents(s *Service) []Event {
	var out []Event
	for {
		select {
		case e := <-s.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, typ EventType, id string) bool {
	for _, e := range events {
		if e.Type == typ && e.ProviderID == id {
			return true
		}
	}
	return false
}

func TestService_FetchOnStart(t *testing.T) {
	stub := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(42)}
	cfg := testConfig()
	cfg.FetchOnStart = true

	s := New(cfg, []Fetcher{stub})
	defer func() { _ = s.Close() }()

	waitFor(t, 3*time.Second, func() bool {
		return s.Snapshot("claude") != nil
	})

	snapshot := s.Snapshot("claude")
	if snapshot.Primary.UsedPercent != 42 {
		t.Errorf("Snapshot().Primary.UsedPercent = %v, want 42", snapshot.Primary.UsedPercent)
	}
	status, ok := s.Status("claude")
	if !ok || status.State != models.FetchSucceeded {
		t.Errorf("Status() = %+v, want succeeded", status)
	}
	if status.LastUpdated.IsZero() {
		t.Error("Status().LastUpdated is zero after success")
	}

	events := collectEvents(s)
	if !hasEvent(events, EventSnapshotUpdated, "claude") {
		t.Error("missing snapshot-updated event")
	}
	if !hasEvent(events, EventStateChanged, "claude") {
		t.Error("missing state-changed event")
	}
}

func TestService_Trigger_Coalescing(t *testing.T) {
	block := make(chan struct{})
	stub := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(10), block: block}

	s := New(testConfig(), []Fetcher{stub})
	defer func() { _ = s.Close() }()

	s.Trigger("claude")
	waitFor(t, 3*time.Second, func() bool { return stub.callCount() == 1 })

	// Lands while the first fetch is in flight; must be dropped.
	s.Trigger("claude")
	time.Sleep(50 * time.Millisecond)
	close(block)

	waitFor(t, 3*time.Second, func() bool {
		status, _ := s.Status("claude")
		return status.State == models.FetchSucceeded
	})
	if got := stub.callCount(); got != 1 {
		t.Errorf("fetch count = %d, want 1 (second trigger coalesced)", got)
	}

	// After the fetch resolves, a new trigger runs again.
	s.Trigger("claude")
	waitFor(t, 3*time.Second, func() bool { return stub.callCount() == 2 })
}

func TestService_FailureKeepsLastSnapshot(t *testing.T) {
	stub := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(55)}

	s := New(testConfig(), []Fetcher{stub})
	defer func() { _ = s.Close() }()

	s.Trigger("claude")
	waitFor(t, 3*time.Second, func() bool { return s.Snapshot("claude") != nil })

	stub.setErr(providers.NewError(providers.KindNetworkFailure, "claude", "connection refused"))
	s.Trigger("claude")
	waitFor(t, 3*time.Second, func() bool {
		status, _ := s.Status("claude")
		return status.State == models.FetchFailed
	})

	snapshot := s.Snapshot("claude")
	if snapshot == nil || snapshot.Primary.UsedPercent != 55 {
		t.Errorf("Snapshot() = %+v, want last known-good kept", snapshot)
	}
	status, _ := s.Status("claude")
	if status.LastError == "" {
		t.Error("Status().LastError empty after failure")
	}

	events := collectEvents(s)
	if !hasEvent(events, EventFetchFailed, "claude") {
		t.Error("missing fetch-failed event")
	}
}

func TestService_UnavailableProviderFails(t *testing.T) {
	stub := &stubFetcher{id: "openai", available: false}

	s := New(testConfig(), []Fetcher{stub})
	defer func() { _ = s.Close() }()

	s.Trigger("openai")
	waitFor(t, 3*time.Second, func() bool {
		status, _ := s.Status("openai")
		return status.State == models.FetchFailed
	})

	if got := stub.callCount(); got != 0 {
		t.Errorf("FetchUsage called %d times for unavailable provider, want 0", got)
	}

	var failure *Event
	for _, e := range collectEvents(s) {
		if e.Type == EventFetchFailed {
			ev := e
			failure = &ev
		}
	}
	if failure == nil {
		t.Fatal("missing fetch-failed event")
	}
	if !providers.IsNotAuthenticated(failure.Error) {
		t.Errorf("failure error = %v, want not-authenticated", failure.Error)
	}
}

func TestService_CloseCancelsInFlight(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	stub := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(33), block: block}

	s := New(testConfig(), []Fetcher{stub})

	s.Trigger("claude")
	waitFor(t, 3*time.Second, func() bool { return stub.callCount() == 1 })

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if s.Snapshot("claude") != nil {
		t.Error("canceled fetch published a snapshot")
	}
	if hasEvent(collectEvents(s), EventSnapshotUpdated, "claude") {
		t.Error("canceled fetch emitted snapshot-updated event")
	}
}

func TestService_SetProviders_AddRemove(t *testing.T) {
	a := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(20)}
	b := &stubFetcher{id: "openai", available: true, snapshot: snapshotWith(30)}

	cfg := testConfig()
	cfg.FetchOnStart = true
	s := New(cfg, []Fetcher{a, b})
	defer func() { _ = s.Close() }()

	waitFor(t, 3*time.Second, func() bool {
		return s.Snapshot("claude") != nil && s.Snapshot("openai") != nil
	})

	s.SetProviders([]Fetcher{a})
	if s.Snapshot("openai") != nil {
		t.Error("removed provider still has a snapshot")
	}
	if _, ok := s.Status("openai"); ok {
		t.Error("removed provider still has a status")
	}

	calls := b.callCount()
	s.Trigger("openai")
	time.Sleep(50 * time.Millisecond)
	if b.callCount() != calls {
		t.Error("Trigger() on removed provider still fetched")
	}

	c := &stubFetcher{id: "gemini", available: true, snapshot: snapshotWith(40)}
	s.SetProviders([]Fetcher{a, c})
	waitFor(t, 3*time.Second, func() bool {
		return s.Snapshot("gemini") != nil
	})
}

func TestService_ClearSnapshot(t *testing.T) {
	stub := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(88)}

	s := New(testConfig(), []Fetcher{stub})
	defer func() { _ = s.Close() }()

	s.Trigger("claude")
	waitFor(t, 3*time.Second, func() bool { return s.Snapshot("claude") != nil })

	s.ClearSnapshot("claude")
	if s.Snapshot("claude") != nil {
		t.Error("ClearSnapshot() left a snapshot")
	}
	status, ok := s.Status("claude")
	if !ok || status.State != models.FetchIdle {
		t.Errorf("Status() = %+v, want idle after clear", status)
	}
}

func TestService_PipelinesAreIndependent(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	slow := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(10), block: block}
	fast := &stubFetcher{id: "openai", available: true, snapshot: snapshotWith(20)}

	s := New(testConfig(), []Fetcher{slow, fast})
	defer func() { _ = s.Close() }()

	s.Trigger("claude")
	waitFor(t, 3*time.Second, func() bool { return slow.callCount() == 1 })

	// The blocked claude fetch must not hold up openai.
	s.Trigger("openai")
	waitFor(t, 3*time.Second, func() bool { return s.Snapshot("openai") != nil })

	if s.Snapshot("claude") != nil {
		t.Error("blocked fetch published early")
	}
}

func TestService_TriggerAll(t *testing.T) {
	a := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(20)}
	b := &stubFetcher{id: "openai", available: true, snapshot: snapshotWith(30)}

	s := New(testConfig(), []Fetcher{a, b})
	defer func() { _ = s.Close() }()

	s.TriggerAll()
	waitFor(t, 3*time.Second, func() bool {
		return s.Snapshot("claude") != nil && s.Snapshot("openai") != nil
	})

	snapshots := s.Snapshots()
	if len(snapshots) != 2 {
		t.Errorf("Snapshots() returned %d entries, want 2", len(snapshots))
	}
}

func TestService_TickerRefetches(t *testing.T) {
	stub := &stubFetcher{id: "claude", available: true, snapshot: snapshotWith(15)}
	cfg := Config{
		Interval:     func() time.Duration { return 25 * time.Millisecond },
		FetchTimeout: time.Second,
	}

	s := New(cfg, []Fetcher{stub})
	defer func() { _ = s.Close() }()

	waitFor(t, 3*time.Second, func() bool { return stub.callCount() >= 2 })
}
