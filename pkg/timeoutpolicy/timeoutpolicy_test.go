package timeoutpolicy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyRun_CompletesBeforeDeadline(t *testing.T) {
	p := Policy[string]{Timeout: 50 * time.Millisecond}

	val, err := p.Run(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestPolicyRun_SurfacesOpError(t *testing.T) {
	wantErr := errors.New("boom")
	p := Policy[string]{Timeout: 50 * time.Millisecond}

	_, err := p.Run(context.Background(), func(ctx context.Context) (string, error) {
		return "", wantErr
	})

	assert.ErrorIs(t, err, wantErr)
}

func TestPolicyRun_TimeoutWithoutFallback(t *testing.T) {
	p := Policy[string]{Timeout: 5 * time.Millisecond}

	_, err := p.Run(context.Background(), func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPolicyRun_TimeoutRunsFallback(t *testing.T) {
	p := Policy[string]{
		Timeout: 5 * time.Millisecond,
		Fallback: func(ctx context.Context) (string, error) {
			return "fallback", nil
		},
	}

	val, err := p.Run(context.Background(), func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	require.NoError(t, err)
	assert.Equal(t, "fallback", val)
}

func TestPolicyRun_ForwardsCancellationToOp(t *testing.T) {
	p := Policy[string]{Timeout: 5 * time.Millisecond}
	cancelled := make(chan struct{})

	_, _ = p.Run(context.Background(), func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("op's context was never cancelled on timeout")
	}
}

func TestPolicyRun_ParentCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy[string]{Timeout: time.Second}

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := p.Run(ctx, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
}
