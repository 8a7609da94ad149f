/*
Admission and header manipulation, adapted from an ingress proxy's
middleware layer. Admission is a coarse per-key token-bucket throttle
(golang.org/x/time/rate). LoadBalancer.Handle consults it after the strategy
has picked a backend, keyed by that backend's id, and before the request is
sent. It is independent of the fixed/sliding-window rate limiters in
pkg/ratelimit, which implement the hard per-window count a token bucket
cannot express; the load balancer does not call those.
applyHeaderManipulation is the same Add/Set/Remove rule application an
ingress proxy's header middleware would use, minus the http.Request
coupling — it operates on types.Request's flat header map instead.
*/
package loadbalancer

import (
	"sync"

	"github.com/cuemby/ballast/pkg/types"
	"golang.org/x/time/rate"
)

// Admission is a per-key token-bucket throttle.
type Admission struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewAdmission returns an Admission throttling each key to rps requests/sec
// with the given burst allowance.
func NewAdmission(rps float64, burst int) *Admission {
	return &Admission{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a request for key may proceed, lazily creating the
// key's bucket on first use.
func (a *Admission) Allow(key string) bool {
	a.mu.Lock()
	limiter, exists := a.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(a.rps, a.burst)
		a.limiters[key] = limiter
	}
	a.mu.Unlock()
	return limiter.Allow()
}

// Cleanup discards all buckets once the tracked key count exceeds
// maxEntries, bounding memory for a long-lived process with high key
// cardinality.
func (a *Admission) Cleanup(maxEntries int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.limiters) > maxEntries {
		a.limiters = make(map[string]*rate.Limiter)
	}
}

// applyHeaderManipulation applies Add/Set/Remove rules to req's headers
// and returns the modified copy. Add only fills a header that isn't
// already present; Set always overwrites; Remove deletes unconditionally.
func applyHeaderManipulation(req types.Request, rules types.HeaderManipulation) types.Request {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}

	for k, v := range rules.Add {
		if _, present := headers[k]; !present {
			headers[k] = v
		}
	}
	for k, v := range rules.Set {
		headers[k] = v
	}
	for _, k := range rules.Remove {
		delete(headers, k)
	}

	req.Headers = headers
	return req
}
