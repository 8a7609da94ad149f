/*
Package types defines the small set of data structures shared across
ballast's components: the abstract Request/Response pair the load balancer
and transport port exchange, TransportError's error-kind classification,
BackendStats' derived success-rate and latency fields, and the
RateLimitUnit used by rate limiter configuration.

Component-owned types (Backend, CircuitBreaker state, Ring, TaskQueue item)
live in their own packages rather than here — this package holds only the
types genuinely shared across package boundaries.
*/
package types
