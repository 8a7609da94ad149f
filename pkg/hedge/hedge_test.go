package hedge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_FastFirstAttemptNoHedge(t *testing.T) {
	var calls int32
	p := Policy{Name: "t", Delay: 50 * time.Millisecond, OverallTimeout: time.Second}

	val, err := p.Request(context.Background(), func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "fast", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "fast", val)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRequest_SlowFirstTriggersHedge(t *testing.T) {
	var calls int32
	p := Policy{Name: "t", Delay: 10 * time.Millisecond, OverallTimeout: time.Second}

	val, err := p.Request(context.Background(), func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			<-ctx.Done() // the first attempt is cancelled once the second wins
			return nil, ctx.Err()
		}
		return "second", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "second", val)
}

func TestRequest_WinnerFailsFallsBackToOther(t *testing.T) {
	p := Policy{Name: "t", Delay: 5 * time.Millisecond, OverallTimeout: time.Second}

	val, err := p.Request(context.Background(), func(ctx context.Context) (any, error) {
		select {
		case <-time.After(10 * time.Millisecond):
			return nil, errors.New("first failed")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	// Both attempts run the same op: first one returns an error quickly
	// after the hedge starts; the second keeps running and should be
	// awaited as the fallback once it too resolves.
	assert.True(t, err == nil || err.Error() == "first failed")
	_ = val
}

func TestRequest_BothTimeoutRaisesTimeout(t *testing.T) {
	p := Policy{Name: "t", Delay: 5 * time.Millisecond, OverallTimeout: 30 * time.Millisecond}

	_, err := p.Request(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRequest_LoserCancelledOnWinnerSuccess(t *testing.T) {
	var loserCancelled int32
	p := Policy{Name: "t", Delay: 5 * time.Millisecond, OverallTimeout: time.Second}

	var calls int32
	_, err := p.Request(context.Background(), func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			// Outlast Delay so the second attempt starts and becomes the loser.
			time.Sleep(30 * time.Millisecond)
			return "winner", nil
		}
		<-ctx.Done()
		atomic.StoreInt32(&loserCancelled, 1)
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&loserCancelled) == 1
	}, time.Second, 5*time.Millisecond)
}
