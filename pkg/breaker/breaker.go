/*
Package breaker implements the Closed/Open/Half-Open circuit breaker state
machine. All three mutating paths — Closed accounting, the Open cooldown
check, and Half-Open probe counting — run under a single mutex per call.
*/
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/ballast/pkg/clock"
	"github.com/cuemby/ballast/pkg/metrics"
)

// State is one of the breaker's three states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// ErrOpen is returned as-is (never raised as a panic) when a call is
// short-circuited because the breaker is Open or a freshly-tripped
// Half-Open probe.
var ErrOpen = errors.New("breaker: circuit open")

// ErrInvalidConfig is returned by New when the configuration can't produce a
// usable breaker.
var ErrInvalidConfig = errors.New("breaker: invalid configuration")

// Config configures a Breaker. FailureThreshold is compared against
// failure/(success+failure) and must be in (0,1]: 1 trips only once every
// recorded call has failed. 0 is
// rejected rather than accepted as "trips on the first failure" — the
// entry check is closedRate() >= FailureThreshold, and a rate of exactly 0
// (no failures yet) would already satisfy >= 0, tripping the breaker on its
// very first success instead.
type Config struct {
	Name             string
	FailureThreshold float64
	Cooldown         time.Duration
	ProbeBudget      int
	Clock            clock.Clock
}

// Op is the operation a Breaker protects.
type Op[T any] func() (T, error)

// Breaker guards calls to a fallible operation, tripping Open when the
// observed failure rate crosses FailureThreshold and probing recovery in
// Half-Open after Cooldown elapses.
type Breaker[T any] struct {
	name             string
	failureThreshold float64
	cooldown         time.Duration
	probeBudget      int
	clock            clock.Clock

	mu    sync.Mutex
	state State

	closedSuccess int64
	closedFailure int64

	halfSuccess int64
	halfFailure int64

	openedAt time.Duration
}

// New validates cfg and returns a ready Breaker in the Closed state.
func New[T any](cfg Config) (*Breaker[T], error) {
	if cfg.FailureThreshold <= 0 || cfg.FailureThreshold > 1 {
		return nil, ErrInvalidConfig
	}
	if cfg.Cooldown <= 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.ProbeBudget <= 0 {
		return nil, ErrInvalidConfig
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	return &Breaker[T]{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		probeBudget:      cfg.ProbeBudget,
		clock:            c,
		state:            Closed,
	}, nil
}

// Run attempts op, serializing state transitions around the call. ok
// reports whether op actually ran (false means the breaker short-circuited
// with ErrOpen). The operation's own error, if any, is returned as-is in
// err — Run never wraps it.
func (b *Breaker[T]) Run(op Op[T]) (ok bool, value T, err error) {
	if !b.admit() {
		var zero T
		metrics.BreakerState.WithLabelValues(b.name).Set(stateValue(b.currentState()))
		return false, zero, ErrOpen
	}

	value, err = op()
	b.record(err == nil)
	return true, value, err
}

// admit applies the state-entry logic, checked on entry to every new call,
// and reports whether the call may proceed.
func (b *Breaker[T]) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if b.closedRate() >= b.failureThreshold && (b.closedSuccess+b.closedFailure) > 0 {
			b.trip()
			return false
		}
		return true

	case Open:
		if b.clock.Now()-b.openedAt >= b.cooldown {
			b.state = HalfOpen
			b.halfSuccess, b.halfFailure = 0, 0
			metrics.BreakerTransitionsTotal.WithLabelValues(b.name, "half_open").Inc()
			return true
		}
		return false

	case HalfOpen:
		if b.halfSuccess+b.halfFailure >= int64(b.probeBudget) {
			rate := float64(b.halfFailure) / float64(b.halfSuccess+b.halfFailure)
			if rate <= b.failureThreshold {
				b.state = Closed
				b.closedSuccess, b.closedFailure = 0, 0
				metrics.BreakerTransitionsTotal.WithLabelValues(b.name, "closed").Inc()
				return true
			}
			b.trip()
			return false
		}
		return true
	}
	return false
}

func (b *Breaker[T]) closedRate() float64 {
	total := b.closedSuccess + b.closedFailure
	if total == 0 {
		return 0
	}
	return float64(b.closedFailure) / float64(total)
}

// trip transitions Closed or Half-Open -> Open. Caller holds b.mu.
func (b *Breaker[T]) trip() {
	b.state = Open
	b.openedAt = b.clock.Now()
	metrics.BreakerTransitionsTotal.WithLabelValues(b.name, "open").Inc()
}

// record applies a call outcome to the counters for whichever state the
// call ran in, and handles the Half-Open budget-exhaustion transition.
func (b *Breaker[T]) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if success {
			b.closedSuccess++
		} else {
			b.closedFailure++
		}

	case HalfOpen:
		// Budget-exhaustion transitions (Closed/Open) are decided in admit()
		// on the next call after the probe budget is reached, per the
		// worked example in spec.md §8: reaching the budget doesn't itself
		// decide the outcome, the following call's entry check does.
		if success {
			b.halfSuccess++
		} else {
			b.halfFailure++
		}

	case Open:
		// Unreachable: admit() always flips Open to HalfOpen before
		// letting a call through, so record() never sees Open.
	}

	metrics.BreakerState.WithLabelValues(b.name).Set(stateValue(b.state))
}

func (b *Breaker[T]) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed with all counters zeroed.
func (b *Breaker[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.closedSuccess, b.closedFailure = 0, 0
	b.halfSuccess, b.halfFailure = 0, 0
	metrics.BreakerTransitionsTotal.WithLabelValues(b.name, "closed").Inc()
}

// TimeUntilHalfOpen returns how long until an Open breaker becomes
// Half-Open-eligible, or 0 if not Open or already eligible.
func (b *Breaker[T]) TimeUntilHalfOpen() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return 0
	}
	elapsed := b.clock.Now() - b.openedAt
	remaining := b.cooldown - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot is a point-in-time metrics view: state, counters, derived rate,
// and when the breaker last opened.
type Snapshot struct {
	State         State
	ClosedSuccess int64
	ClosedFailure int64
	HalfSuccess   int64
	HalfFailure   int64
	FailureRate   float64
	OpenedAt      time.Duration
}

// Snapshot returns the breaker's current counters and derived failure rate
// for whichever state it's in.
func (b *Breaker[T]) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:         b.state,
		ClosedSuccess: b.closedSuccess,
		ClosedFailure: b.closedFailure,
		HalfSuccess:   b.halfSuccess,
		HalfFailure:   b.halfFailure,
		OpenedAt:      b.openedAt,
	}
	switch b.state {
	case HalfOpen:
		if total := b.halfSuccess + b.halfFailure; total > 0 {
			s.FailureRate = float64(b.halfFailure) / float64(total)
		}
	default:
		s.FailureRate = b.closedRate()
	}
	return s
}

func stateValue(s State) float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	}
	return -1
}
