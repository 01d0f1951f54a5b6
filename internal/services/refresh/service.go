// Package refresh runs the per-provider usage polling pipelines.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/j-veylop/quotabar/internal/logger"
	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/providers"
	"github.com/j-veylop/quotabar/internal/sanitize"
)

// EventType defines the type of refresh event.
type EventType int

const (
	// EventSnapshotUpdated indicates a provider published a fresh snapshot.
	EventSnapshotUpdated EventType = iota
	// EventFetchFailed indicates a fetch attempt failed.
	EventFetchFailed
	// EventStateChanged indicates a provider's fetch state moved.
	EventStateChanged
)

// Event is a refresh service event.
type Event struct {
	Error      error
	Snapshot   *models.UsageSnapshot
	ProviderID string
	State      models.FetchState
	Type       EventType
}

// Fetcher is the provider surface the service drives. *providers.Provider
// satisfies it.
type Fetcher interface {
	ID() string
	IsAvailable(ctx context.Context) (bool, error)
	FetchUsage(ctx context.Context) (*models.UsageSnapshot, error)
}

// Config holds the refresh service settings. Interval is consulted before
// every ticker reset, so setting changes apply without a restart.
type Config struct {
	Interval     func() time.Duration
	FetchTimeout time.Duration
	FetchOnStart bool
}

type providerState struct {
	fetcher  Fetcher
	snapshot *models.UsageSnapshot
	status   models.ProviderStatus
	fetching bool
	stop     chan struct{}
}

// Service runs one polling pipeline per enabled provider. Each provider's
// snapshot is written only by its own pipeline; readers share an RWMutex.
type Service struct {
	config    Config
	eventChan chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	providers map[string]*providerState
	closed    bool
}

// New creates the service and starts a pipeline for every fetcher.
func New(config Config, fetchers []Fetcher) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		config:    config,
		eventChan: make(chan Event, 100),
		ctx:       ctx,
		cancel:    cancel,
		providers: make(map[string]*providerState),
	}
	s.SetProviders(fetchers)
	return s
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Snapshot returns the cached snapshot for a provider, or nil.
func (s *Service) Snapshot(id string) *models.UsageSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.providers[id]; ok {
		return ps.snapshot
	}
	return nil
}

// Snapshots returns all cached snapshots keyed by provider id.
func (s *Service) Snapshots() map[string]*models.UsageSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*models.UsageSnapshot, len(s.providers))
	for id, ps := range s.providers {
		if ps.snapshot != nil {
			result[id] = ps.snapshot
		}
	}
	return result
}

// Status returns a provider's refresh status.
func (s *Service) Status(id string) (models.ProviderStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.providers[id]; ok {
		return ps.status, true
	}
	return models.ProviderStatus{}, false
}

// Statuses returns every provider's refresh status keyed by id.
func (s *Service) Statuses() map[string]models.ProviderStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]models.ProviderStatus, len(s.providers))
	for id, ps := range s.providers {
		result[id] = ps.status
	}
	return result
}

// ClearSnapshot drops a provider's snapshot and resets its state to idle.
// Used on logout.
func (s *Service) ClearSnapshot(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.providers[id]
	if !ok {
		return
	}
	ps.snapshot = nil
	ps.status = models.ProviderStatus{State: models.FetchIdle}
	s.sendEvent(Event{
		Type:       EventStateChanged,
		ProviderID: id,
		State:      models.FetchIdle,
	})
}

// Trigger requests an immediate refresh for one provider. Triggers landing
// while that provider's fetch is in flight are dropped, not queued.
func (s *Service) Trigger(id string) {
	s.mu.Lock()
	ps, ok := s.providers[id]
	if !ok || s.closed || ps.fetching {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.refresh(ps)
	}()
}

// TriggerAll requests an immediate refresh for every provider.
func (s *Service) TriggerAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Trigger(id)
	}
}

// SetProviders reconciles the pipeline set against the given fetchers:
// new providers get a pipeline, removed ones are stopped and forgotten.
func (s *Service) SetProviders(fetchers []Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	keep := make(map[string]bool, len(fetchers))
	for _, f := range fetchers {
		keep[f.ID()] = true
		if _, ok := s.providers[f.ID()]; ok {
			continue
		}
		ps := &providerState{
			fetcher: f,
			status:  models.ProviderStatus{State: models.FetchIdle},
			stop:    make(chan struct{}),
		}
		s.providers[f.ID()] = ps
		s.wg.Add(1)
		go s.runPipeline(ps)
	}

	for id, ps := range s.providers {
		if !keep[id] {
			close(ps.stop)
			delete(s.providers, id)
		}
	}
}

// runPipeline is one provider's polling goroutine.
func (s *Service) runPipeline(ps *providerState) {
	defer s.wg.Done()

	if s.config.FetchOnStart {
		s.refresh(ps)
	}

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refresh(ps)
			ticker.Reset(s.interval())
		case <-ps.stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// refresh runs one fetch attempt. The per-provider fetching flag makes the
// attempt exclusive; concurrent ticks and triggers are dropped.
func (s *Service) refresh(ps *providerState) {
	id := ps.fetcher.ID()

	s.mu.Lock()
	if ps.fetching || s.closed {
		s.mu.Unlock()
		return
	}
	ps.fetching = true
	ps.status.State = models.FetchFetching
	s.sendEvent(Event{
		Type:       EventStateChanged,
		ProviderID: id,
		State:      models.FetchFetching,
	})
	s.mu.Unlock()

	snapshot, err := s.fetchOnce(ps)

	s.mu.Lock()
	defer s.mu.Unlock()
	ps.fetching = false

	// A fetch resolving after shutdown must not publish.
	if s.ctx.Err() != nil {
		return
	}

	if err != nil {
		switch {
		case providers.IsNotAuthenticated(err):
			logger.Debug("provider not authenticated", "provider", id)
		case providers.IsRetryable(err):
			logger.Warn("fetch failed, will retry on next tick", "provider", id, "error", err)
		default:
			logger.Error("fetch failed", "provider", id, "error", err)
		}

		// The last known-good snapshot stays in place.
		ps.status.State = models.FetchFailed
		ps.status.LastError = sanitize.Redact(err.Error())
		s.sendEvent(Event{
			Type:       EventStateChanged,
			ProviderID: id,
			State:      models.FetchFailed,
		})
		s.sendEvent(Event{
			Type:       EventFetchFailed,
			ProviderID: id,
			State:      models.FetchFailed,
			Error:      err,
		})
		return
	}

	ps.snapshot = snapshot
	ps.status.State = models.FetchSucceeded
	ps.status.LastError = ""
	ps.status.LastUpdated = snapshot.UpdatedAt
	s.sendEvent(Event{
		Type:       EventStateChanged,
		ProviderID: id,
		State:      models.FetchSucceeded,
	})
	s.sendEvent(Event{
		Type:       EventSnapshotUpdated,
		ProviderID: id,
		State:      models.FetchSucceeded,
		Snapshot:   snapshot,
	})
}

func (s *Service) fetchOnce(ps *providerState) (*models.UsageSnapshot, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout())
	defer cancel()

	available, err := ps.fetcher.IsAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, providers.NewError(providers.KindNotAuthenticated, ps.fetcher.ID(), "no credential available")
	}
	return ps.fetcher.FetchUsage(ctx)
}

func (s *Service) interval() time.Duration {
	if s.config.Interval != nil {
		if d := s.config.Interval(); d > 0 {
			return d
		}
	}
	return 5 * time.Minute
}

func (s *Service) fetchTimeout() time.Duration {
	if s.config.FetchTimeout > 0 {
		return s.config.FetchTimeout
	}
	return 30 * time.Second
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops every pipeline and waits for in-flight fetches to resolve.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}
