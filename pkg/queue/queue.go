/*
Package queue implements the priority task queue that feeds a worker: P
FIFO buffers scanned low-to-high priority, plus a dedicated failure buffer
for diagnostics. Follows the small mutex-guarded struct convention used
elsewhere for a narrow method set (see pkg/ratelimit's keyCounters) rather
than a channel-based queue, since dequeue must be
non-blocking and simply report empty rather than block.
*/
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidPriorities is returned by New for a non-positive priority count.
var ErrInvalidPriorities = errors.New("queue: priorities must be >= 1")

// ErrPriorityOutOfRange is returned by Enqueue for p outside [0, priorities).
var ErrPriorityOutOfRange = errors.New("queue: priority out of range")

// Op is a queued unit of work.
type Op func(ctx context.Context) (any, error)

// Item is one dequeued unit: the operation, the priority it was enqueued
// under, and a stable id assigned at Enqueue time so a worker's results and
// failure records can be traced back to the task that produced them.
type Item struct {
	ID       string
	Op       Op
	Priority int
}

// FailureRecord is a diagnostic entry in the failure buffer.
type FailureRecord struct {
	Item Item
	Err  error
}

// Queue is P first-in-first-out priority buffers plus a failure buffer.
// Dequeue scans buffers 0..P-1 and returns the first available item.
type Queue struct {
	mu        sync.Mutex
	buffers   [][]Item
	failures  []FailureRecord
}

// New creates a Queue with the given number of priority buffers (P >= 1,
// 0 being highest priority).
func New(priorities int) (*Queue, error) {
	if priorities < 1 {
		return nil, ErrInvalidPriorities
	}
	return &Queue{buffers: make([][]Item, priorities)}, nil
}

// Enqueue appends op to buffer p, assigning it a fresh task id.
func (q *Queue) Enqueue(p int, op Op) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p < 0 || p >= len(q.buffers) {
		return ErrPriorityOutOfRange
	}
	q.buffers[p] = append(q.buffers[p], Item{ID: uuid.NewString(), Op: op, Priority: p})
	return nil
}

// Dequeue scans buffers 0..P-1 and returns the first available item. The
// second return is false if every buffer is empty.
func (q *Queue) Dequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for p, buf := range q.buffers {
		if len(buf) == 0 {
			continue
		}
		item := buf[0]
		q.buffers[p] = buf[1:]
		return item, true
	}
	return Item{}, false
}

// EnqueueFailure routes item into the diagnostic failure buffer. It is
// never drained by a worker; callers inspect it via Failures.
func (q *Queue) EnqueueFailure(item Item, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = append(q.failures, FailureRecord{Item: item, Err: err})
}

// Failures returns a copy of the failure buffer, oldest first.
func (q *Queue) Failures() []FailureRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FailureRecord, len(q.failures))
	copy(out, q.failures)
	return out
}

// LenByPriority returns the pending count in each priority buffer, index
// matching priority.
func (q *Queue) LenByPriority() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.buffers))
	for p, buf := range q.buffers {
		out[p] = len(buf)
	}
	return out
}

// Len returns the total number of items pending across all priority
// buffers (excludes the failure buffer).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, buf := range q.buffers {
		n += len(buf)
	}
	return n
}
