package loadbalancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ballast/pkg/transport"
)

func TestParseConfig_AppliesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
strategy: round_robin
servers:
  - name: a
    url: http://a
`))
	require.NoError(t, err)
	assert.Equal(t, defaultTimeoutSeconds, cfg.TimeoutSeconds)
	assert.Equal(t, defaultHealthyThreshold, cfg.HealthyThreshold)
	assert.Equal(t, defaultWeight, cfg.Servers[0].Weight)
	assert.Equal(t, defaultMaxConcurrent, cfg.Servers[0].MaxConcurrent)
}

func TestParseConfig_HonorsExplicitValues(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
strategy: weighted_round_robin
timeout: 5
healthy_threshold: 0.9
servers:
  - name: a
    url: http://a
    weight: 3
    max_concurrent: 20
`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.TimeoutSeconds)
	assert.Equal(t, 0.9, cfg.HealthyThreshold)
	assert.Equal(t, 3, cfg.Servers[0].Weight)
	assert.Equal(t, 20, cfg.Servers[0].MaxConcurrent)
}

func TestFromConfig_BuildsRunnableLoadBalancer(t *testing.T) {
	stub := transport.NewStub()
	lb, err := FromConfig([]byte(`
strategy: least_connections
servers:
  - name: a
    url: http://a
  - name: b
    url: http://b
`), stub)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, lb.GetHealthyServers())
}

func TestFromConfig_RejectsUnknownStrategy(t *testing.T) {
	stub := transport.NewStub()
	_, err := FromConfig([]byte(`
strategy: bogus
servers:
  - name: a
    url: http://a
`), stub)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFromConfig_TimeoutDefaultAppliedAsDuration(t *testing.T) {
	stub := transport.NewStub()
	lb, err := FromConfig([]byte(`
servers:
  - name: a
    url: http://a
`), stub)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(defaultTimeoutSeconds)*time.Second, lb.timeout)
}
