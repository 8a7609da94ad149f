package loadbalancer

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/types"
)

// ErrInvalidBackend is returned by NewBackend for non-positive Weight or
// MaxConcurrent.
var ErrInvalidBackend = errors.New("loadbalancer: weight and max_concurrent must be positive")

// Backend is a single routable target. Active and Stats are mutated on
// every request start/completion under the backend's own mutex.
type Backend struct {
	mu sync.Mutex

	id            string
	endpoint      string
	weight        int
	maxConcurrent int

	active       int
	healthy      bool
	probeHealthy bool // ANDed with success-rate-derived health; see pkg/health wiring
	stats        types.BackendStats
}

// NewBackend constructs a Backend; new backends start healthy, matching a
// success rate of 1.0 before any completion is recorded.
func NewBackend(id, endpoint string, weight, maxConcurrent int) (*Backend, error) {
	if weight <= 0 || maxConcurrent <= 0 {
		return nil, ErrInvalidBackend
	}
	return &Backend{
		id:            id,
		endpoint:      endpoint,
		weight:        weight,
		maxConcurrent: maxConcurrent,
		healthy:       true,
		probeHealthy:  true,
	}, nil
}

// ID returns the backend's stable key.
func (b *Backend) ID() string { return b.id }

// Endpoint returns the opaque endpoint string consumed by transport.Port.
func (b *Backend) Endpoint() string { return b.endpoint }

// Weight returns the backend's weighted-round-robin weight.
func (b *Backend) Weight() int { return b.weight }

// TryAcquire increments Active and reports true if the backend has spare
// capacity (Active < MaxConcurrent); otherwise it reports false without
// mutating state. Every successful TryAcquire must be paired with Release.
func (b *Backend) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active >= b.maxConcurrent {
		return false
	}
	b.active++
	metrics.BackendActiveConnections.WithLabelValues(b.id).Set(float64(b.active))
	return true
}

// Release decrements Active. A no-op if Active is already 0, guarding
// against a double-release bug from leaking the invariant negative.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active > 0 {
		b.active--
	}
	metrics.BackendActiveConnections.WithLabelValues(b.id).Set(float64(b.active))
}

// ActiveCount returns the current in-flight count.
func (b *Backend) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// RecordCompletion updates the running stats for a finished request and
// recomputes Healthy from the success ratio against healthyThreshold; the
// flag only flips at completion of a request, never mid-flight.
func (b *Backend) RecordCompletion(success bool, latency time.Duration, healthyThreshold float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Total++
	if success {
		b.stats.Success++
		metrics.BackendRequestsTotal.WithLabelValues(b.id, "success").Inc()
	} else {
		b.stats.Failure++
		metrics.BackendRequestsTotal.WithLabelValues(b.id, "failure").Inc()
	}
	b.stats.TotalTime += latency
	b.stats.LastLatency = latency
	metrics.BackendLatencySeconds.WithLabelValues(b.id).Observe(latency.Seconds())

	b.healthy = b.stats.SuccessRate() > healthyThreshold
	b.publishHealth()
}

// SetProbeHealthy records the outcome of an active health probe (pkg/health
// enrichment). The backend's externally visible IsHealthy is the logical AND
// of the success-rate-derived flag and this probe flag, so a probe failure
// alone is enough to mark a backend unhealthy even while its success rate
// still clears healthyThreshold, and a probe success cannot paper over a
// success-rate trip on its own.
func (b *Backend) SetProbeHealthy(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeHealthy = ok
	b.publishHealth()
}

// publishHealth exports the combined health gauge. Caller holds b.mu.
func (b *Backend) publishHealth() {
	healthy := b.healthy && b.probeHealthy
	v := 0.0
	if healthy {
		v = 1.0
	}
	metrics.BackendHealthy.WithLabelValues(b.id).Set(v)
}

// IsHealthy reports the combined (success-rate AND probe) health.
func (b *Backend) IsHealthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthy && b.probeHealthy
}

// HasCapacity reports whether Active < MaxConcurrent without acquiring.
func (b *Backend) HasCapacity() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active < b.maxConcurrent
}

// Snapshot is a point-in-time, lock-free copy of a Backend's observable
// state, for strategies and the LoadBalancer's metrics accessors.
type Snapshot struct {
	ID            string
	Endpoint      string
	Weight        int
	MaxConcurrent int
	Active        int
	Healthy       bool
	Stats         types.BackendStats
}

// Snapshot copies out the backend's current state under its lock.
func (b *Backend) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		ID:            b.id,
		Endpoint:      b.endpoint,
		Weight:        b.weight,
		MaxConcurrent: b.maxConcurrent,
		Active:        b.active,
		Healthy:       b.healthy && b.probeHealthy,
		Stats:         b.stats,
	}
}
