package breaker

import (
	"sync"
	"time"
)

// Status is the admission state of one circuit breaker.
type Status string

const (
	// Closed: the dependency is healthy, calls flow through.
	Closed Status = "closed"

	// Open: the dependency tripped the failure threshold; calls are
	// refused until the recovery timeout elapses.
	Open Status = "open"

	// HalfOpen: the recovery timeout elapsed and a single probing call
	// has been admitted; the next reported outcome decides the state.
	HalfOpen Status = "half-open"
)

// Settings fixes the trip behavior for one named dependency.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that trips
	// closed -> open.
	FailureThreshold int

	// RecoveryTimeout is the cool-down after the last failure before
	// open -> half-open is permitted.
	RecoveryTimeout time.Duration
}

// DefaultSettings returns the per-dependency defaults. Tolerance
// decreases with the downstream cost of repeated failure: publishing
// duplicate or partial content is costlier than a redundant search.
func DefaultSettings() map[string]Settings {
	return map[string]Settings{
		"search-provider": {FailureThreshold: 5, RecoveryTimeout: 10 * time.Second},
		"ai-provider":     {FailureThreshold: 3, RecoveryTimeout: 30 * time.Second},
		"publish-target":  {FailureThreshold: 2, RecoveryTimeout: 5 * time.Second},
	}
}

// State is a point-in-time snapshot of one breaker.
type State struct {
	Service           string `json:"service"`
	Status            Status `json:"status"`
	FailureCount      int    `json:"failureCount"`
	FailureThreshold  int    `json:"failureThreshold"`
	LastFailureAt     int64  `json:"lastFailureAt,omitempty"`
	RecoveryTimeoutMs int64  `json:"recoveryTimeoutMs"`
}

type circuit struct {
	settings     Settings
	status       Status
	failureCount int
	lastFailure  time.Time
}

// Registry tracks one circuit breaker per named dependency. It is
// shared mutable state across all jobs, so every operation takes the
// registry lock. Breaker state is not persisted; it is a liveness
// heuristic and resets on process restart.
//
// The registry is advisory: work functions consult Allow before calling
// a dependency and report the outcome afterwards. The orchestrator
// never gates job submission on it.
type Registry struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	now      func() time.Time
}

// NewRegistry creates a registry with one breaker per configured
// service. Services not present in settings are always admitted.
func NewRegistry(settings map[string]Settings) *Registry {
	circuits := make(map[string]*circuit, len(settings))
	for service, s := range settings {
		circuits[service] = &circuit{
			settings: s,
			status:   Closed,
		}
	}
	return &Registry{
		circuits: circuits,
		now:      time.Now,
	}
}

// Allow reports whether a call to the service may proceed.
//
// Closed admits. Open admits only once the recovery timeout has elapsed
// since the last failure, flipping the breaker to half-open as it does.
// Half-open admits the probing call; the caller must report its outcome.
// An unknown service is always admitted (fail-open on missing config).
func (r *Registry) Allow(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[service]
	if !ok {
		return true
	}

	if c.status == Open {
		if r.now().Sub(c.lastFailure) > c.settings.RecoveryTimeout {
			c.status = HalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess fully closes the breaker: a single success, including
// a half-open probe, resets the failure count and the status.
func (r *Registry) RecordSuccess(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[service]
	if !ok {
		return
	}
	c.failureCount = 0
	c.status = Closed
}

// RecordFailure counts one failure against the service. Reaching the
// threshold trips the breaker open. A failure while half-open re-opens
// it immediately: the probe failing means the dependency is still
// unhealthy, so it must not take threshold-many probes to re-trip.
func (r *Registry) RecordFailure(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[service]
	if !ok {
		return
	}

	c.failureCount++
	c.lastFailure = r.now()

	if c.status == HalfOpen || c.failureCount >= c.settings.FailureThreshold {
		c.status = Open
	}
}

// Snapshot returns the current state of every configured breaker.
func (r *Registry) Snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]State, 0, len(r.circuits))
	for service, c := range r.circuits {
		s := State{
			Service:           service,
			Status:            c.status,
			FailureCount:      c.failureCount,
			FailureThreshold:  c.settings.FailureThreshold,
			RecoveryTimeoutMs: c.settings.RecoveryTimeout.Milliseconds(),
		}
		if !c.lastFailure.IsZero() {
			s.LastFailureAt = c.lastFailure.UnixMilli()
		}
		states = append(states, s)
	}
	return states
}
