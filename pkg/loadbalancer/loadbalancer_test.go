package loadbalancer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ballast/pkg/transport"
	"github.com/cuemby/ballast/pkg/types"
)

func newTestLB(t *testing.T, strategy StrategyName, specs ...BackendSpec) (*LoadBalancer, *transport.Stub) {
	t.Helper()
	stub := transport.NewStub()
	lb, err := New(Options{
		Name:             "test",
		Strategy:         strategy,
		Timeout:          time.Second,
		HealthyThreshold: 0.5,
		Backends:         specs,
		Transport:        stub,
	})
	require.NoError(t, err)
	return lb, stub
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	stub := transport.NewStub()
	_, err := New(Options{Timeout: time.Second, Backends: []BackendSpec{{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 1}}, Transport: stub})
	assert.NoError(t, err) // healthy_threshold 0 is valid (healthy while any request succeeds), not rejected

	_, err = New(Options{Timeout: 0, Backends: []BackendSpec{{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 1}}, Transport: stub})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Options{Timeout: time.Second, Transport: stub})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Options{Timeout: time.Second, Backends: []BackendSpec{{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 1}}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHandle_DispatchesAndRecordsSuccess(t *testing.T) {
	lb, stub := newTestLB(t, StrategyRoundRobin, BackendSpec{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 2})
	stub.Handle("http://a", func(ctx context.Context, req types.Request) (types.Response, error) {
		return types.Response{Status: 200}, nil
	})

	resp, err := lb.Handle(context.Background(), types.Request{Method: "GET", Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	stats := lb.TrafficMetrics()["a"]
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Success)
}

func TestHandle_DecrementsActiveOnEveryExitPath(t *testing.T) {
	lb, stub := newTestLB(t, StrategyRoundRobin, BackendSpec{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 1})
	boom := errors.New("boom")
	stub.Handle("http://a", func(ctx context.Context, req types.Request) (types.Response, error) {
		return types.Response{}, boom
	})

	_, err := lb.Handle(context.Background(), types.Request{Method: "GET", Path: "/"})
	assert.ErrorIs(t, err, boom)

	b, _ := lb.pool.Get("a")
	assert.Equal(t, 0, b.ActiveCount())

	// A second call must succeed too: capacity wasn't leaked.
	stub.Handle("http://a", func(ctx context.Context, req types.Request) (types.Response, error) {
		return types.Response{Status: 200}, nil
	})
	_, err = lb.Handle(context.Background(), types.Request{Method: "GET", Path: "/"})
	assert.NoError(t, err)
}

func TestHandle_NoCapacityRejection(t *testing.T) {
	lb, stub := newTestLB(t, StrategyRoundRobin, BackendSpec{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 1})
	stub.HandleDelayed("http://a", 30*time.Millisecond, types.Response{Status: 200}, nil)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := lb.Handle(context.Background(), types.Request{Method: "GET", Path: "/"})
			results <- err
		}()
	}

	var oks, rejected int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			oks++
		case errors.Is(err, ErrNoCapacity), errors.Is(err, ErrNoEligibleBackend):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, oks)
	assert.Equal(t, 1, rejected)

	b, _ := lb.pool.Get("a")
	assert.Equal(t, 0, b.ActiveCount())
}

func TestAddServer_RebalancesRoundRobin(t *testing.T) {
	lb, stub := newTestLB(t, StrategyRoundRobin, BackendSpec{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 2})
	stub.Handle("http://a", func(ctx context.Context, req types.Request) (types.Response, error) {
		return types.Response{Status: 200}, nil
	})
	stub.Handle("http://b", func(ctx context.Context, req types.Request) (types.Response, error) {
		return types.Response{Status: 200}, nil
	})

	require.NoError(t, lb.AddServer(BackendSpec{ID: "b", Endpoint: "http://b", Weight: 1, MaxConcurrent: 2}))

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		_, err := lb.Handle(context.Background(), types.Request{Method: "GET", Path: "/"})
		require.NoError(t, err)
	}
	for _, s := range stub.Calls {
		seen[s.Endpoint] = true
	}
	assert.True(t, seen["http://a"])
	assert.True(t, seen["http://b"])
}

func TestGetHealthyServers_ExcludesUnhealthy(t *testing.T) {
	lb, stub := newTestLB(t, StrategyRoundRobin,
		BackendSpec{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 2},
		BackendSpec{ID: "b", Endpoint: "http://b", Weight: 1, MaxConcurrent: 2},
	)
	boom := errors.New("boom")
	stub.Handle("http://a", func(ctx context.Context, req types.Request) (types.Response, error) {
		return types.Response{}, boom
	})

	for i := 0; i < 2; i++ {
		lb.Handle(context.Background(), types.Request{Method: "GET", Path: "/"})
	}

	healthy := lb.GetHealthyServers()
	assert.NotContains(t, healthy, "a")
}

func TestUpdateProbeHealth_OverridesHealthyFlag(t *testing.T) {
	lb, _ := newTestLB(t, StrategyRoundRobin, BackendSpec{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 2})
	lb.UpdateProbeHealth("a", false)
	assert.NotContains(t, lb.GetHealthyServers(), "a")

	lb.UpdateProbeHealth("a", true)
	assert.Contains(t, lb.GetHealthyServers(), "a")
}
