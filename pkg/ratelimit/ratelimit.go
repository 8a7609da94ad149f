/*
Package ratelimit implements fixed-window and sliding-window per-key rate
limiters. Both share the blacklist/metrics plumbing but
keep independent admission algorithms, each a small mutex-guarded counter
struct with a narrow read/write API rather than exposing its internals.
*/
package ratelimit

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/ballast/pkg/clock"
	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/types"
)

// ErrInvalidConfig is returned by constructors when limit/unit are invalid.
var ErrInvalidConfig = errors.New("ratelimit: invalid configuration")

// keyCounters is the shared blacklist/accounting embedded by both limiters.
type keyCounters struct {
	mu        sync.Mutex
	blacklist map[string]struct{}
	allowed   map[string]int64
	denied    map[string]int64
}

func newKeyCounters() keyCounters {
	return keyCounters{
		blacklist: make(map[string]struct{}),
		allowed:   make(map[string]int64),
		denied:    make(map[string]int64),
	}
}

func (k *keyCounters) isBlacklisted(key string) bool {
	_, ok := k.blacklist[key]
	return ok
}

func (k *keyCounters) accountAllow(name, key string) {
	k.allowed[key]++
	metrics.RateLimiterAllowedTotal.WithLabelValues(name).Inc()
}

func (k *keyCounters) accountDeny(name, key string) {
	k.denied[key]++
	metrics.RateLimiterDeniedTotal.WithLabelValues(name).Inc()
}

// Blacklist adds key to the deny-list; all subsequent allow(key) calls are
// denied (and accounted as such) until Allowlist removes it.
func (k *keyCounters) Blacklist(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.blacklist[key] = struct{}{}
}

// Allowlist removes key from the deny-list.
func (k *keyCounters) Allowlist(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.blacklist, key)
}

// BadActors returns keys whose denied count exceeds their allowed count.
func (k *keyCounters) BadActors() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var bad []string
	for key, denied := range k.denied {
		if denied > k.allowed[key] {
			bad = append(bad, key)
		}
	}
	sort.Strings(bad)
	return bad
}

// FixedWindow is a per-key counter sharing a single window-start timestamp
// across all keys.
type FixedWindow struct {
	keyCounters
	name   string
	limit  int64
	window time.Duration
	clock  clock.Clock

	winMu sync.Mutex
	start int64 // wall millis
	count map[string]int64
}

// NewFixedWindow builds a FixedWindow limiter admitting up to limit calls
// per key within one window of unit's length.
func NewFixedWindow(name string, unit types.RateLimitUnit, limit int64, c clock.Clock) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, ErrInvalidConfig
	}
	ms, ok := unit.WindowMillis()
	if !ok {
		return nil, ErrInvalidConfig
	}
	if c == nil {
		c = clock.Real{}
	}
	return &FixedWindow{
		keyCounters: newKeyCounters(),
		name:        name,
		limit:       limit,
		window:      time.Duration(ms) * time.Millisecond,
		clock:       c,
		start:       c.WallNow(),
		count:       make(map[string]int64),
	}, nil
}

// advanceIfStale resets the shared window when wall time lies outside
// [start, start+window], before it or past it. Caller holds winMu.
func (f *FixedWindow) advanceIfStale(now int64) {
	if now < f.start || now > f.start+f.window.Milliseconds() {
		f.count = make(map[string]int64)
		f.start = now
	}
}

// Allow reports whether key may proceed, incrementing its counter on
// admission and accounting the outcome for metrics/BadActors either way.
func (f *FixedWindow) Allow(key string) bool {
	f.mu.Lock()
	blacklisted := f.isBlacklisted(key)
	f.mu.Unlock()

	if blacklisted {
		f.mu.Lock()
		f.accountDeny(f.name, key)
		f.mu.Unlock()
		return false
	}

	f.winMu.Lock()
	now := f.clock.WallNow()
	f.advanceIfStale(now)

	allow := f.count[key] < f.limit
	if allow {
		f.count[key]++
	}
	f.winMu.Unlock()

	f.mu.Lock()
	if allow {
		f.accountAllow(f.name, key)
	} else {
		f.accountDeny(f.name, key)
	}
	f.mu.Unlock()

	return allow
}

// Remaining returns limit - count(key), clamped to 0, advancing the window
// first if stale.
func (f *FixedWindow) Remaining(key string) int64 {
	f.winMu.Lock()
	defer f.winMu.Unlock()
	f.advanceIfStale(f.clock.WallNow())
	r := f.limit - f.count[key]
	if r < 0 {
		return 0
	}
	return r
}

// TimeUntilReset returns milliseconds until start+window, clamped at 0.
func (f *FixedWindow) TimeUntilReset() int64 {
	f.winMu.Lock()
	defer f.winMu.Unlock()
	remaining := f.start + f.window.Milliseconds() - f.clock.WallNow()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SlidingWindow tracks an ordered list of admission timestamps per key.
// The start boundary is inclusive: a timestamp exactly
// equal to now-window still counts against the key.
type SlidingWindow struct {
	keyCounters
	name   string
	limit  int64
	window time.Duration
	clock  clock.Clock

	tsMu sync.Mutex
	ts   map[string][]int64
}

// NewSlidingWindow builds a SlidingWindow limiter admitting up to limit
// calls per key within any rolling window of unit's length.
func NewSlidingWindow(name string, unit types.RateLimitUnit, limit int64, c clock.Clock) (*SlidingWindow, error) {
	if limit <= 0 {
		return nil, ErrInvalidConfig
	}
	ms, ok := unit.WindowMillis()
	if !ok {
		return nil, ErrInvalidConfig
	}
	if c == nil {
		c = clock.Real{}
	}
	return &SlidingWindow{
		keyCounters: newKeyCounters(),
		name:        name,
		limit:       limit,
		window:      time.Duration(ms) * time.Millisecond,
		clock:       c,
		ts:          make(map[string][]int64),
	}, nil
}

// prune drops timestamps strictly below now-window. Caller holds tsMu.
func (s *SlidingWindow) prune(key string, now int64) {
	cutoff := now - s.window.Milliseconds()
	list := s.ts[key]
	i := 0
	for i < len(list) && list[i] < cutoff {
		i++
	}
	if i > 0 {
		s.ts[key] = append([]int64{}, list[i:]...)
	}
}

// Allow admits key if its in-window count is below limit, pruning stale
// entries before the final check when the key is initially at limit.
func (s *SlidingWindow) Allow(key string) bool {
	s.mu.Lock()
	blacklisted := s.isBlacklisted(key)
	s.mu.Unlock()

	if blacklisted {
		s.mu.Lock()
		s.accountDeny(s.name, key)
		s.mu.Unlock()
		return false
	}

	s.tsMu.Lock()
	now := s.clock.WallNow()
	allow := false
	if int64(len(s.ts[key])) < s.limit {
		s.ts[key] = append(s.ts[key], now)
		allow = true
	} else {
		s.prune(key, now)
		if int64(len(s.ts[key])) < s.limit {
			s.ts[key] = append(s.ts[key], now)
			allow = true
		}
	}
	s.tsMu.Unlock()

	s.mu.Lock()
	if allow {
		s.accountAllow(s.name, key)
	} else {
		s.accountDeny(s.name, key)
	}
	s.mu.Unlock()

	return allow
}

// Remaining returns limit - in-window-count(key), without mutating state.
func (s *SlidingWindow) Remaining(key string) int64 {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	now := s.clock.WallNow()
	cutoff := now - s.window.Milliseconds()
	var count int64
	for _, t := range s.ts[key] {
		if t >= cutoff {
			count++
		}
	}
	r := s.limit - count
	if r < 0 {
		return 0
	}
	return r
}
