package loadbalancer

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrNoEligibleBackend is raised by a Strategy when no backend is both
// healthy and under capacity.
var ErrNoEligibleBackend = errors.New("loadbalancer: no healthy server with capacity")

// Strategy selects the next backend id to dispatch a request to. Next is
// the only required operation; a strategy that also needs to react to pool
// structure changes or completion outcomes implements the optional
// PoolChangeObserver / CompletionObserver interfaces below, which
// LoadBalancer probes for via type assertion — the Go idiom for optional
// lifecycle hooks a base template would otherwise call.
type Strategy interface {
	Next(pool *BackendPool) (string, error)
}

// PoolChangeObserver is implemented by strategies that cache derived
// indices over the pool (RoundRobin's ordered id list, WeightedRoundRobin's
// per-round quotas) and need to rebuild them when backends are added or
// removed.
type PoolChangeObserver interface {
	OnPoolChanged(pool *BackendPool)
}

// CompletionObserver is implemented by strategies that consume completion
// metrics (LeastTime's cached fastest backend).
type CompletionObserver interface {
	OnCompletion(backendID string, success bool, latency time.Duration)
}

// eligible reports whether a backend snapshot may receive a request:
// healthy and strictly under its concurrency cap.
func eligible(s Snapshot) bool {
	return s.Healthy && s.Active < s.MaxConcurrent
}

// --- LeastConnections -------------------------------------------------

// LeastConnections picks the eligible backend with the fewest in-flight
// requests. Ties are broken by pool registration order (the first backend
// encountered during the scan wins), stable per call.
type LeastConnections struct{}

// Next implements Strategy.
func (LeastConnections) Next(pool *BackendPool) (string, error) {
	best := ""
	bestActive := -1
	for _, b := range pool.Snapshot() {
		s := b.Snapshot()
		if !eligible(s) {
			continue
		}
		if bestActive == -1 || s.Active < bestActive {
			best = s.ID
			bestActive = s.Active
		}
	}
	if best == "" {
		return "", ErrNoEligibleBackend
	}
	return best, nil
}

// --- RoundRobin ---------------------------------------------------------

// RoundRobin advances a cursor over an ordered id list, skipping unhealthy
// or at-capacity backends, bounded to one full rotation to preserve
// fairness under concurrent access.
type RoundRobin struct {
	mu     sync.Mutex
	ids    []string
	cursor int
}

// NewRoundRobin returns a RoundRobin strategy. Callers register it with a
// pool via pool.Subscribe(func() { s.OnPoolChanged(pool) }) and must call OnPoolChanged once
// up front to index the pool's initial backends.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// OnPoolChanged implements PoolChangeObserver: rebuilds the ordered id list
// from the pool's current registration order.
func (r *RoundRobin) OnPoolChanged(pool *BackendPool) {
	ids := make([]string, 0, pool.Len())
	for _, b := range pool.Snapshot() {
		ids = append(ids, b.ID())
	}
	r.mu.Lock()
	r.ids = ids
	if r.cursor >= len(ids) {
		r.cursor = 0
	}
	r.mu.Unlock()
}

// Next implements Strategy.
func (r *RoundRobin) Next(pool *BackendPool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.ids)
	if n == 0 {
		return "", ErrNoEligibleBackend
	}

	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		id := r.ids[idx]
		b, ok := pool.Get(id)
		if !ok {
			continue
		}
		if eligible(b.Snapshot()) {
			r.cursor = (idx + 1) % n
			return id, nil
		}
	}
	return "", ErrNoEligibleBackend
}

// --- WeightedRoundRobin ---------------------------------------------------

// WeightedRoundRobin gives backend i a per-round quota of
// weight_i/min_weight selections, advancing a cursor and
// resetting per-backend counters when every quota in the round is spent.
type WeightedRoundRobin struct {
	mu     sync.Mutex
	ids    []string
	quota  map[string]int
	used   map[string]int
	cursor int
}

// NewWeightedRoundRobin returns a WeightedRoundRobin strategy.
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{quota: make(map[string]int), used: make(map[string]int)}
}

// OnPoolChanged implements PoolChangeObserver: recomputes each backend's
// per-round quota as weight/min(weight) across the pool.
func (w *WeightedRoundRobin) OnPoolChanged(pool *BackendPool) {
	snaps := pool.Snapshot()
	ids := make([]string, 0, len(snaps))
	minWeight := 0
	for _, b := range snaps {
		s := b.Snapshot()
		ids = append(ids, s.ID)
		if minWeight == 0 || s.Weight < minWeight {
			minWeight = s.Weight
		}
	}

	quota := make(map[string]int, len(snaps))
	used := make(map[string]int, len(snaps))
	if minWeight > 0 {
		for _, b := range snaps {
			s := b.Snapshot()
			q := s.Weight / minWeight
			if q < 1 {
				q = 1
			}
			quota[s.ID] = q
		}
	}

	w.mu.Lock()
	w.ids = ids
	w.quota = quota
	w.used = used
	w.cursor = 0
	w.mu.Unlock()
}

// Next implements Strategy.
func (w *WeightedRoundRobin) Next(pool *BackendPool) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.ids)
	if n == 0 {
		return "", ErrNoEligibleBackend
	}

	// Two passes around the ring: quotas may all be exhausted within the
	// first pass if some eligible backends were skipped for health/cap.
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < n; i++ {
			idx := (w.cursor + i) % n
			id := w.ids[idx]

			if w.used[id] >= w.quota[id] {
				continue
			}
			b, ok := pool.Get(id)
			if !ok || !eligible(b.Snapshot()) {
				continue
			}

			w.used[id]++
			w.cursor = (idx + 1) % n
			if w.roundComplete() {
				for k := range w.used {
					w.used[k] = 0
				}
			}
			return id, nil
		}
		// Quotas exhausted without completing a round (e.g. some
		// backends ineligible all pass): reset and try once more.
		for k := range w.used {
			w.used[k] = 0
		}
	}
	return "", ErrNoEligibleBackend
}

// roundComplete reports whether every backend has used its full quota.
// Caller holds w.mu.
func (w *WeightedRoundRobin) roundComplete() bool {
	for _, id := range w.ids {
		if w.used[id] < w.quota[id] {
			return false
		}
	}
	return true
}

// --- LeastTime ------------------------------------------------------------

// LeastTime caches the backend with the lowest latency seen on any
// successful completion; failed completions are ignored, and the cache only
// changes when a faster latency is seen. Next returns the cached backend
// while it is healthy and under capacity, falls back to a uniform random
// healthy-and-capable backend when no cache is set or the cached one is
// ineligible, and to any backend at all if none are eligible.
type LeastTime struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	minLatency time.Duration
	minID      string
	haveMin    bool
}

// NewLeastTime returns a LeastTime strategy. rnd may be nil to use a new
// source seeded from the current time; tests pass a seeded *rand.Rand for
// determinism.
func NewLeastTime(rnd *rand.Rand) *LeastTime {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &LeastTime{rnd: rnd}
}

// OnCompletion implements CompletionObserver.
func (l *LeastTime) OnCompletion(backendID string, success bool, latency time.Duration) {
	if !success {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.haveMin || latency < l.minLatency {
		l.minLatency = latency
		l.minID = backendID
		l.haveMin = true
	}
}

// Next implements Strategy.
func (l *LeastTime) Next(pool *BackendPool) (string, error) {
	l.mu.Lock()
	cachedID, haveMin := l.minID, l.haveMin
	l.mu.Unlock()

	if haveMin {
		if b, ok := pool.Get(cachedID); ok && eligible(b.Snapshot()) {
			return cachedID, nil
		}
	}

	snaps := pool.Snapshot()
	var healthy []Snapshot
	for _, b := range snaps {
		s := b.Snapshot()
		if eligible(s) {
			healthy = append(healthy, s)
		}
	}
	if len(healthy) > 0 {
		return healthy[l.rnd.Intn(len(healthy))].ID, nil
	}
	if len(snaps) > 0 {
		return snaps[l.rnd.Intn(len(snaps))].Snapshot().ID, nil
	}
	return "", ErrNoEligibleBackend
}
