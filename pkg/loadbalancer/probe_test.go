package loadbalancer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ballast/pkg/health"
	"github.com/cuemby/ballast/pkg/transport"
)

type fakeChecker struct {
	result health.Result
}

func (f fakeChecker) Check(ctx context.Context) health.Result { return f.result }
func (f fakeChecker) Type() health.CheckType                  { return health.CheckTypeTCP }

func TestProbeRunner_FeedsResultIntoBackendHealth(t *testing.T) {
	stub := transport.NewStub()
	lb, err := New(Options{
		Strategy:         StrategyRoundRobin,
		Timeout:          time.Second,
		HealthyThreshold: 0.5,
		Backends:         []BackendSpec{{ID: "a", Endpoint: "http://a", Weight: 1, MaxConcurrent: 1}},
		Transport:        stub,
	})
	require.NoError(t, err)

	cfg := health.Config{Interval: 5 * time.Millisecond, Timeout: time.Second, Retries: 1}
	runner := NewProbeRunner(lb, cfg, map[string]health.Checker{
		"a": fakeChecker{result: health.Result{Healthy: false}},
	})
	runner.Start()
	defer runner.Stop()

	require.Eventually(t, func() bool {
		return !lb.HealthMetrics()["a"]
	}, time.Second, 5*time.Millisecond)
}
