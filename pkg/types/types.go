package types

import (
	"net/http"
	"time"
)

// Request is the abstract inbound unit the load balancer dispatches and the
// HTTP-client port sends. Method follows net/http conventions.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

// Response is the abstract outcome of sending a Request to a backend.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// ErrorKind classifies why a transport-level send failed.
type ErrorKind string

const (
	ErrorKindNetwork  ErrorKind = "network"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindProtocol ErrorKind = "protocol"
)

// TransportError wraps a failed send with its classification, so Retry can
// filter on Kind without string-matching error messages.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendStats tracks the running counters behind a Backend's derived
// health and latency fields. Mutated on every request completion; callers
// needing consistent reads should do so under the owning Backend's lock.
type BackendStats struct {
	Total       int64
	Success     int64
	Failure     int64
	TotalTime   time.Duration
	LastLatency time.Duration
}

// SuccessRate returns Success/(Success+Failure), or 1.0 before any
// completion has been recorded.
func (s *BackendStats) SuccessRate() float64 {
	completed := s.Success + s.Failure
	if completed == 0 {
		return 1.0
	}
	return float64(s.Success) / float64(completed)
}

// AverageLatency returns TotalTime/Total, or 0 before any completion.
func (s *BackendStats) AverageLatency() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Total)
}

// HeaderManipulation describes additive/overwrite/removal header rules
// applied to a request before it is forwarded to a backend.
type HeaderManipulation struct {
	Add    map[string]string
	Set    map[string]string
	Remove []string
}

// RateLimitUnit is a window-length unit name accepted by rate limiter
// configuration.
type RateLimitUnit string

const (
	UnitSecond RateLimitUnit = "second"
	UnitMinute RateLimitUnit = "minute"
	UnitHour   RateLimitUnit = "hour"
	UnitDay    RateLimitUnit = "day"
)

// WindowMillis maps a RateLimitUnit to its length in milliseconds, or
// returns false for an unrecognized unit (a construction error upstream).
func (u RateLimitUnit) WindowMillis() (int64, bool) {
	switch u {
	case UnitSecond:
		return int64(time.Second / time.Millisecond), true
	case UnitMinute:
		return int64(time.Minute / time.Millisecond), true
	case UnitHour:
		return int64(time.Hour / time.Millisecond), true
	case UnitDay:
		return int64(24 * time.Hour / time.Millisecond), true
	default:
		return 0, false
	}
}

// ToHTTPHeader converts a flat header map into an http.Header, used by the
// net/http-backed transport.Port implementation.
func ToHTTPHeader(h map[string]string) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}

// FromHTTPHeader flattens an http.Header back into a single-valued map.
func FromHTTPHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
