/*
Package timeoutpolicy bounds a suspending operation with a deadline and an
optional fallback. It mirrors retry's shape — a Policy value with a Run
method — so the two compose as retry(timeout(op)): a bounded-retry call
with a per-attempt deadline.
*/
package timeoutpolicy

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the deadline elapses and no Fallback is set.
var ErrTimeout = errors.New("timeoutpolicy: deadline exceeded")

// Op is the operation Policy bounds. It must honor ctx cancellation.
type Op[T any] func(ctx context.Context) (T, error)

// Policy is a configured timeout wrapper.
type Policy[T any] struct {
	// Timeout is the deadline applied to Op.
	Timeout time.Duration
	// Fallback runs with the original context (not the expired one) when
	// Timeout elapses. If nil, Run surfaces ErrTimeout instead.
	Fallback Op[T]
}

// Run invokes op with a deadline of p.Timeout. On expiry it runs Fallback
// with ctx (the caller's original, un-timed-out context) if set, otherwise
// returns ErrTimeout. Cancellation is forwarded to op: once the deadline
// fires, op's derived context is cancelled so it can abort promptly.
func (p Policy[T]) Run(ctx context.Context, op Op[T]) (T, error) {
	var zero T

	deadlineCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(deadlineCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-deadlineCtx.Done():
		if errors.Is(deadlineCtx.Err(), context.Canceled) && ctx.Err() != nil {
			// The caller's own context was cancelled, not our deadline.
			return zero, ctx.Err()
		}
		if p.Fallback != nil {
			return p.Fallback(ctx)
		}
		return zero, ErrTimeout
	}
}
