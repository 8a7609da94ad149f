package loadbalancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_RejectsInvalidConfig(t *testing.T) {
	_, err := NewBackend("a", "http://a", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBackend)

	_, err = NewBackend("a", "http://a", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidBackend)
}

func TestBackend_StartsHealthyWithFullSuccessRate(t *testing.T) {
	b, err := NewBackend("a", "http://a", 1, 4)
	require.NoError(t, err)
	assert.True(t, b.IsHealthy())
	assert.Equal(t, 1.0, b.Snapshot().Stats.SuccessRate())
}

func TestBackend_TryAcquireRespectsMaxConcurrent(t *testing.T) {
	b, err := NewBackend("a", "http://a", 1, 2)
	require.NoError(t, err)

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	b.Release()
	assert.True(t, b.TryAcquire())
}

func TestBackend_ReleaseNeverGoesNegative(t *testing.T) {
	b, err := NewBackend("a", "http://a", 1, 2)
	require.NoError(t, err)

	b.Release()
	b.Release()
	assert.Equal(t, 0, b.ActiveCount())
}

func TestBackend_RecordCompletionFlipsHealthAtThreshold(t *testing.T) {
	b, err := NewBackend("a", "http://a", 1, 4)
	require.NoError(t, err)

	b.RecordCompletion(true, 10*time.Millisecond, 0.5)
	assert.True(t, b.IsHealthy())

	b.RecordCompletion(false, 10*time.Millisecond, 0.5)
	b.RecordCompletion(false, 10*time.Millisecond, 0.5)
	assert.False(t, b.IsHealthy()) // success rate 1/3 <= 0.5
}

func TestBackend_ProbeHealthIsANDedWithSuccessRate(t *testing.T) {
	b, err := NewBackend("a", "http://a", 1, 4)
	require.NoError(t, err)

	b.RecordCompletion(true, time.Millisecond, 0.5)
	assert.True(t, b.IsHealthy())

	b.SetProbeHealthy(false)
	assert.False(t, b.IsHealthy())

	b.SetProbeHealthy(true)
	assert.True(t, b.IsHealthy())
}
