package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopOp(ctx context.Context) (any, error) { return nil, nil }

func TestNew_RejectsNonPositivePriorities(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidPriorities)
}

func TestDequeue_EmptyReturnsFalse(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestDequeue_ScansLowToHighPriority(t *testing.T) {
	q, err := New(3)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(2, noopOp))
	require.NoError(t, q.Enqueue(0, noopOp))
	require.NoError(t, q.Enqueue(1, noopOp))

	item, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 0, item.Priority)

	item, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 1, item.Priority)

	item, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 2, item.Priority)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestEnqueue_FIFOWithinPriority(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, q.Enqueue(0, func(ctx context.Context) (any, error) {
			order = append(order, i)
			return nil, nil
		}))
	}

	for i := 0; i < 3; i++ {
		item, ok := q.Dequeue()
		require.True(t, ok)
		_, _ = item.Op(context.Background())
	}
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestEnqueue_RejectsOutOfRangePriority(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	err = q.Enqueue(5, noopOp)
	assert.ErrorIs(t, err, ErrPriorityOutOfRange)
}

func TestEnqueueFailure_NotDrainedByDequeue(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)

	q.EnqueueFailure(Item{Op: noopOp, Priority: 0}, errors.New("boom"))
	_, ok := q.Dequeue()
	assert.False(t, ok)

	failures := q.Failures()
	require.Len(t, failures, 1)
	assert.EqualError(t, failures[0].Err, "boom")
}

func TestLen_ExcludesFailureBuffer(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(0, noopOp))
	q.EnqueueFailure(Item{Op: noopOp, Priority: 0}, errors.New("boom"))
	assert.Equal(t, 1, q.Len())
}
