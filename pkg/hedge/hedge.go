/*
Package hedge implements request hedging: a delayed duplicate attempt
racing the original, keeping whichever finishes first and falling
back to the other if the winner failed. Follows the "issue request, honor
cancellation on every exit path" shape an ingress proxy uses, generalized
from a single attempt to two racing ones.
*/
package hedge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/metrics"
)

// ErrTimeout is returned when neither attempt completes within
// OverallTimeout.
var ErrTimeout = errors.New("hedge: overall deadline exceeded")

// Op is the operation hedge races two instances of.
type Op func(ctx context.Context) (any, error)

// Policy configures a hedged call.
type Policy struct {
	Name string
	// Delay is how long request() waits for the first attempt before
	// starting a second.
	Delay time.Duration
	// OverallTimeout bounds the entire call, including Delay.
	OverallTimeout time.Duration
}

type attemptResult struct {
	label string
	value any
	err   error
}

// Request runs op, starting a second attempt after Delay if the first
// hasn't completed, and returns whichever finishes first. If the winner
// failed and the other attempt is still running, Request awaits it as a
// fallback. Any still-pending attempt is cancelled before Request returns.
func (p Policy) Request(ctx context.Context, op Op) (any, error) {
	callID := uuid.NewString()
	logger := log.WithComponent("hedge").With().Str("hedge", p.Name).Str("call_id", callID).Logger()

	overallCtx, overallCancel := context.WithTimeout(ctx, p.OverallTimeout)
	defer overallCancel()

	aCtx, aCancel := context.WithCancel(overallCtx)
	defer aCancel()
	aCh := make(chan attemptResult, 1)
	go func() {
		v, err := op(aCtx)
		aCh <- attemptResult{label: "A", value: v, err: err}
	}()

	select {
	case r := <-aCh:
		return p.resolve(r, nil, nil)
	case <-time.After(p.Delay):
	case <-overallCtx.Done():
		metrics.HedgeTimeoutsTotal.WithLabelValues(p.Name).Inc()
		return nil, ErrTimeout
	}

	logger.Debug().Msg("first attempt still pending after delay, starting hedge")
	bCtx, bCancel := context.WithCancel(overallCtx)
	defer bCancel()
	bCh := make(chan attemptResult, 1)
	go func() {
		v, err := op(bCtx)
		bCh <- attemptResult{label: "B", value: v, err: err}
	}()

	select {
	case r := <-aCh:
		return p.resolve(r, bCh, bCancel)
	case r := <-bCh:
		return p.resolve(r, aCh, aCancel)
	case <-overallCtx.Done():
		// Prefer an already-available result over a spurious Timeout: the
		// deadline and a completion can fire in the same instant.
		select {
		case r := <-aCh:
			return p.resolve(r, bCh, bCancel)
		case r := <-bCh:
			return p.resolve(r, aCh, aCancel)
		default:
		}
		aCancel()
		bCancel()
		metrics.HedgeTimeoutsTotal.WithLabelValues(p.Name).Inc()
		return nil, ErrTimeout
	}
}

// resolve handles a winning attemptResult. If it succeeded, the loser (if
// any) is cancelled and dropped. If it failed, the loser channel (if
// non-nil) is awaited as a fallback, bounded by the same overall deadline
// via the channel's own context.
func (p Policy) resolve(winner attemptResult, loserCh <-chan attemptResult, cancelLoser context.CancelFunc) (any, error) {
	if winner.err == nil {
		metrics.HedgeWinnerTotal.WithLabelValues(p.Name, winner.label).Inc()
		if cancelLoser != nil {
			cancelLoser()
		}
		return winner.value, nil
	}

	if loserCh == nil {
		return nil, winner.err
	}

	fallback := <-loserCh
	metrics.HedgeWinnerTotal.WithLabelValues(p.Name, fallback.label).Inc()
	return fallback.value, fallback.err
}
