/*
Package retry wraps a fallible operation with bounded attempts and optional
exponential backoff. It is a higher-order function rather than
a decorator with closure state: many languages express retry as a function
decorator, but Go expresses the same contract as a Policy value whose Run
method takes the operation, rather than mutating global state.
*/
package retry

import (
	"context"
	"errors"
	"time"
)

// Kind classifies an error so Policy can decide whether to retry it.
// Callers compare their own errors' Kind (e.g. types.TransportError.Kind)
// against the configured Kinds set.
type Kind string

// Op is the operation retry wraps. ctx carries cancellation; attempt is the
// zero-based attempt number, useful for logging.
type Op func(ctx context.Context, attempt int) error

// Classifier extracts a Kind from an error so Policy knows whether it is
// retryable. Errors a Classifier cannot classify are treated as
// non-retryable and propagate immediately.
type Classifier func(err error) (Kind, bool)

// Policy is a configured retry wrapper: a record whose recognized options
// are enumerated rather than left as free-form arguments.
type Policy struct {
	// Attempts is the number of additional attempts after the first
	// attempt (N=0 means one attempt, no retries). Total invocations = Attempts+1.
	Attempts int
	// BaseDelay is the sleep before the first retry.
	BaseDelay time.Duration
	// Exponential doubles BaseDelay on each subsequent retry when true.
	Exponential bool
	// Kinds is the set of error kinds that trigger a retry. Errors whose
	// kind is not in this set propagate immediately without sleeping.
	Kinds []Kind
	// Classify extracts a Kind from an error. Required.
	Classify Classifier
}

var errNoClassifier = errors.New("retry: Policy.Classify must be set")

// Run invokes op, retrying on classified errors up to Attempts additional
// times. The last error is surfaced verbatim. Sleeps honor ctx
// cancellation.
func (p Policy) Run(ctx context.Context, op Op) error {
	if p.Classify == nil {
		return errNoClassifier
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= p.Attempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		kind, classified := p.Classify(lastErr)
		if !classified || !p.kindAllowed(kind) {
			return lastErr
		}

		if attempt == p.Attempts {
			break
		}

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		if p.Exponential {
			delay *= 2
		}
	}

	return lastErr
}

func (p Policy) kindAllowed(k Kind) bool {
	for _, allowed := range p.Kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
