package models

import "time"

// AgentStatus describes the lifecycle state of a background agent.
type AgentStatus int

const (
	AgentIdle AgentStatus = iota
	AgentRunning
	AgentError
	AgentStopped
)

// String returns a human-readable agent status.
func (s AgentStatus) String() string {
	switch s {
	case AgentIdle:
		return "idle"
	case AgentRunning:
		return "running"
	case AgentError:
		return "error"
	case AgentStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FetchState is the per-provider refresh state machine.
type FetchState int

const (
	FetchIdle FetchState = iota
	FetchFetching
	FetchSucceeded
	FetchFailed
)

// String returns a human-readable fetch state.
func (s FetchState) String() string {
	switch s {
	case FetchIdle:
		return "idle"
	case FetchFetching:
		return "fetching"
	case FetchSucceeded:
		return "succeeded"
	case FetchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProviderStatus is a provider's current refresh state as surfaced to
// observers. LastError is already sanitized when set.
type ProviderStatus struct {
	LastUpdated time.Time  `json:"lastUpdated"`
	LastError   string     `json:"lastError,omitempty"`
	State       FetchState `json:"state"`
}
