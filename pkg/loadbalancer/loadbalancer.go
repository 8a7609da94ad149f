package loadbalancer

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/ballast/pkg/breaker"
	"github.com/cuemby/ballast/pkg/clock"
	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/transport"
	"github.com/cuemby/ballast/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNoCapacity is the policy-reject error surfaced when the
// selected backend cannot accept another in-flight request.
var ErrNoCapacity = errors.New("loadbalancer: no capacity")

// ErrInvalidConfig is returned by New for a malformed Options value.
var ErrInvalidConfig = errors.New("loadbalancer: invalid configuration")

// StrategyName identifies one of the four built-in selection strategies.
type StrategyName string

const (
	StrategyLeastConnections   StrategyName = "least_connections"
	StrategyRoundRobin         StrategyName = "round_robin"
	StrategyWeightedRoundRobin StrategyName = "weighted_round_robin"
	StrategyLeastTime          StrategyName = "least_time"
)

// NewStrategy builds a built-in Strategy by name and, if it implements
// PoolChangeObserver, subscribes it to pool so its indices stay current.
func NewStrategy(name StrategyName, pool *BackendPool) (Strategy, error) {
	var s Strategy
	switch name {
	case StrategyLeastConnections, "":
		s = LeastConnections{}
	case StrategyRoundRobin:
		s = NewRoundRobin()
	case StrategyWeightedRoundRobin:
		s = NewWeightedRoundRobin()
	case StrategyLeastTime:
		s = NewLeastTime(nil)
	default:
		return nil, ErrInvalidConfig
	}
	if obs, ok := s.(PoolChangeObserver); ok {
		pool.Subscribe(func() { obs.OnPoolChanged(pool) })
		obs.OnPoolChanged(pool)
	}
	return s, nil
}

// BackendSpec describes one backend to register at construction time.
type BackendSpec struct {
	ID            string
	Endpoint      string
	Weight        int
	MaxConcurrent int
}

// Options configures a LoadBalancer: selection strategy, per-request
// timeout, the backend roster, and the success-rate threshold that flips a
// backend's health flag.
type Options struct {
	Name             string
	Strategy         StrategyName
	Timeout          time.Duration
	HealthyThreshold float64
	Backends         []BackendSpec
	Transport        transport.Port
	Clock            clock.Clock
	// Admission, if set, is consulted on every Handle call after
	// Strategy.Next has picked a backend, keyed by that backend's id; a
	// denied request is rejected with ErrNoCapacity and never sent.
	Admission *Admission
	// Headers, if set, is applied to every request before it is sent.
	Headers *types.HeaderManipulation
}

// LoadBalancer owns a BackendPool and a single Strategy, and dispatches
// requests. No global state: the transport.Port and clock.Clock are
// constructor-injected.
type LoadBalancer struct {
	name             string
	pool             *BackendPool
	strategy         Strategy
	transport        transport.Port
	timeout          time.Duration
	healthyThreshold float64
	clock            clock.Clock
	admission        *Admission
	headers          *types.HeaderManipulation
	logger           zerolog.Logger
}

// New validates opts and constructs a LoadBalancer with its backends
// pre-registered.
func New(opts Options) (*LoadBalancer, error) {
	if opts.HealthyThreshold < 0 || opts.HealthyThreshold > 1 {
		return nil, ErrInvalidConfig
	}
	if opts.Timeout <= 0 {
		return nil, ErrInvalidConfig
	}
	if len(opts.Backends) == 0 {
		return nil, ErrInvalidConfig
	}
	if opts.Transport == nil {
		return nil, ErrInvalidConfig
	}

	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}

	pool := NewBackendPool()
	strategy, err := NewStrategy(opts.Strategy, pool)
	if err != nil {
		return nil, err
	}

	lb := &LoadBalancer{
		name:             opts.Name,
		pool:             pool,
		strategy:         strategy,
		transport:        opts.Transport,
		timeout:          opts.Timeout,
		healthyThreshold: opts.HealthyThreshold,
		clock:            c,
		admission:        opts.Admission,
		headers:          opts.Headers,
		logger:           log.WithComponent("loadbalancer"),
	}

	for _, spec := range opts.Backends {
		if err := lb.AddServer(spec); err != nil {
			return nil, err
		}
	}
	return lb, nil
}

// AddServer registers a new backend and notifies the strategy to rebuild
// any cached indices so a newly added backend is reachable immediately.
func (lb *LoadBalancer) AddServer(spec BackendSpec) error {
	b, err := NewBackend(spec.ID, spec.Endpoint, spec.Weight, spec.MaxConcurrent)
	if err != nil {
		return err
	}
	if err := lb.pool.Add(b); err != nil {
		return err
	}
	metrics.BackendHealthy.WithLabelValues(spec.ID).Set(1)
	lb.logger.Info().Str("backend", spec.ID).Str("endpoint", spec.Endpoint).Msg("backend registered")
	return nil
}

// RemoveServer deregisters a backend.
func (lb *LoadBalancer) RemoveServer(id string) error {
	return lb.pool.Remove(id)
}

// Handle dispatches req to the backend the Strategy selects. active is
// incremented before the call and decremented on every
// exit path; stats are updated for every request that reaches the
// transport, whether it succeeds or fails. Requests rejected before
// dispatch (no eligible backend, admission denied, no capacity) leave the
// backend's stats untouched.
func (lb *LoadBalancer) Handle(ctx context.Context, req types.Request) (types.Response, error) {
	id, err := lb.strategy.Next(lb.pool)
	if err != nil {
		metrics.LoadBalancerRejectionsTotal.WithLabelValues("no_eligible_backend").Inc()
		return types.Response{}, err
	}

	backend, ok := lb.pool.Get(id)
	if !ok {
		metrics.LoadBalancerRejectionsTotal.WithLabelValues("unknown_backend").Inc()
		return types.Response{}, ErrUnknownBackend
	}

	if lb.admission != nil && !lb.admission.Allow(id) {
		metrics.LoadBalancerRejectionsTotal.WithLabelValues("admission_denied").Inc()
		return types.Response{}, ErrNoCapacity
	}

	if !backend.TryAcquire() {
		metrics.LoadBalancerRejectionsTotal.WithLabelValues("no_capacity").Inc()
		return types.Response{}, ErrNoCapacity
	}
	defer backend.Release()

	if lb.headers != nil {
		req = applyHeaderManipulation(req, *lb.headers)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, lb.timeout)
	defer cancel()

	start := lb.clock.Now()
	resp, sendErr := lb.transport.Send(deadlineCtx, backend.Endpoint(), req)
	latency := lb.clock.Now() - start

	success := sendErr == nil
	backend.RecordCompletion(success, latency, lb.healthyThreshold)

	if obs, ok := lb.strategy.(CompletionObserver); ok {
		obs.OnCompletion(id, success, latency)
	}

	if sendErr != nil {
		lb.logger.Warn().Str("backend", id).Err(sendErr).Msg("backend request failed")
		return types.Response{}, sendErr
	}
	return resp, nil
}

// GetHealthyServers returns the ids of all currently healthy backends, in
// registration order.
func (lb *LoadBalancer) GetHealthyServers() []string {
	var ids []string
	for _, b := range lb.pool.Snapshot() {
		if b.IsHealthy() {
			ids = append(ids, b.ID())
		}
	}
	return ids
}

// TrafficStat is one backend's completion counters, for TrafficMetrics.
type TrafficStat struct {
	Total       int64
	Success     int64
	Failure     int64
	SuccessRate float64
}

// TrafficMetrics returns per-backend completion counters.
func (lb *LoadBalancer) TrafficMetrics() map[string]TrafficStat {
	out := make(map[string]TrafficStat)
	for _, b := range lb.pool.Snapshot() {
		s := b.Snapshot()
		out[s.ID] = TrafficStat{
			Total:       s.Stats.Total,
			Success:     s.Stats.Success,
			Failure:     s.Stats.Failure,
			SuccessRate: s.Stats.SuccessRate(),
		}
	}
	return out
}

// PerformanceStat is one backend's latency view, for PerformanceMetrics.
type PerformanceStat struct {
	AverageLatency time.Duration
	LastLatency    time.Duration
	Active         int
}

// PerformanceMetrics returns per-backend latency and concurrency counters.
func (lb *LoadBalancer) PerformanceMetrics() map[string]PerformanceStat {
	out := make(map[string]PerformanceStat)
	for _, b := range lb.pool.Snapshot() {
		s := b.Snapshot()
		out[s.ID] = PerformanceStat{
			AverageLatency: s.Stats.AverageLatency(),
			LastLatency:    s.Stats.LastLatency,
			Active:         s.Active,
		}
	}
	return out
}

// HealthMetrics returns each backend's current combined health flag.
func (lb *LoadBalancer) HealthMetrics() map[string]bool {
	out := make(map[string]bool)
	for _, b := range lb.pool.Snapshot() {
		out[b.ID()] = b.IsHealthy()
	}
	return out
}

// UpdateProbeHealth feeds an active health-check result (pkg/health) into a
// backend's combined health flag; see Backend.SetProbeHealthy for the AND
// semantics.
func (lb *LoadBalancer) UpdateProbeHealth(id string, ok bool) {
	if b, found := lb.pool.Get(id); found {
		b.SetProbeHealthy(ok)
	}
}

// WrapWithBreaker returns send wrapped in the circuit breaker b: each call
// of the returned function runs send through b.Run, and yields ErrOpen
// without calling send while b short-circuits. It is an optional
// composition rather than a built-in one: Handle does not use it, and it
// is not a constructor option, because the breaker's result type
// (types.Response) and the decision of which backends get one are caller
// concerns.
func WrapWithBreaker(b *breaker.Breaker[types.Response], send func(ctx context.Context) (types.Response, error)) func(ctx context.Context) (types.Response, error) {
	return func(ctx context.Context) (types.Response, error) {
		_, value, err := b.Run(func() (types.Response, error) {
			return send(ctx)
		})
		return value, err
	}
}
