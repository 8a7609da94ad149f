package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Load balancer metrics
	BackendActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ballast_backend_active_connections",
			Help: "Current number of in-flight requests per backend",
		},
		[]string{"backend"},
	)

	BackendHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ballast_backend_healthy",
			Help: "Whether a backend is currently considered healthy (1) or not (0)",
		},
		[]string{"backend"},
	)

	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_backend_requests_total",
			Help: "Total requests dispatched per backend, by outcome",
		},
		[]string{"backend", "outcome"},
	)

	BackendLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ballast_backend_latency_seconds",
			Help:    "Observed request latency per backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	LoadBalancerRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_load_balancer_rejections_total",
			Help: "Requests rejected by the load balancer before dispatch, by reason",
		},
		[]string{"reason"},
	)

	// Circuit breaker metrics
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ballast_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		},
		[]string{"breaker"},
	)

	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_breaker_transitions_total",
			Help: "Total circuit breaker state transitions, by target state",
		},
		[]string{"breaker", "to"},
	)

	// Rate limiter metrics
	RateLimiterAllowedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_rate_limiter_allowed_total",
			Help: "Total admitted requests per rate limiter",
		},
		[]string{"limiter"},
	)

	RateLimiterDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_rate_limiter_denied_total",
			Help: "Total denied requests per rate limiter",
		},
		[]string{"limiter"},
	)

	// Consistent hash ring metrics
	RingKeyMovesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_ring_key_moves_total",
			Help: "Total vnode positions reassigned to another server by ring server deletions",
		},
		[]string{"ring"},
	)

	RingServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ballast_ring_servers_total",
			Help: "Current number of servers on the ring",
		},
		[]string{"ring"},
	)

	// Task queue / worker metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ballast_queue_depth",
			Help: "Current number of pending items in a priority queue bucket",
		},
		[]string{"queue", "priority"},
	)

	TaskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ballast_task_duration_seconds",
			Help:    "Observed worker task execution duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	TaskRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_task_retries_total",
			Help: "Total task retry attempts taken by a worker",
		},
		[]string{"worker"},
	)

	// Request hedging metrics
	HedgeWinnerTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_hedge_winner_total",
			Help: "Which attempt (A, B) won a hedged request",
		},
		[]string{"hedge", "winner"},
	)

	HedgeTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_hedge_timeouts_total",
			Help: "Total hedged requests where neither attempt completed within the overall deadline",
		},
		[]string{"hedge"},
	)
)

func init() {
	prometheus.MustRegister(
		BackendActiveConnections,
		BackendHealthy,
		BackendRequestsTotal,
		BackendLatencySeconds,
		LoadBalancerRejectionsTotal,
		BreakerState,
		BreakerTransitionsTotal,
		RateLimiterAllowedTotal,
		RateLimiterDeniedTotal,
		RingKeyMovesTotal,
		RingServersTotal,
		QueueDepth,
		TaskDurationSeconds,
		TaskRetriesTotal,
		HedgeWinnerTotal,
		HedgeTimeoutsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
