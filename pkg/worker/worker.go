package worker

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/ballast/pkg/clock"
	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/queue"
)

// TaskResult is one completed task's outcome, retained in a bounded,
// oldest-first log.
type TaskResult struct {
	TaskID      string
	CompletedAt int64 // wall millis
	Value       any
}

// Worker dequeues and executes queue.Items with a per-task timeout and
// exponential-backoff retries. Owns its own results log; two
// Workers sharing a Queue never share a log.
type Worker struct {
	name       string
	queue      *queue.Queue
	maxResults int
	maxRetries int
	timeout    time.Duration
	clock      clock.Clock

	resultsMu sync.Mutex
	results   []TaskResult

	stopping int32
}

// New creates a Worker draining q. timeout bounds each attempt; maxRetries
// is the number of additional attempts after the first failure or timeout;
// maxResults caps the retained results log (oldest evicted first).
func New(name string, q *queue.Queue, maxResults, maxRetries int, timeout time.Duration, c clock.Clock) *Worker {
	if c == nil {
		c = clock.Real{}
	}
	return &Worker{
		name:       name,
		queue:      q,
		maxResults: maxResults,
		maxRetries: maxRetries,
		timeout:    timeout,
		clock:      c,
	}
}

// ExecuteTasks runs the main dequeue loop until ctx is cancelled or Stop is
// called. When the queue is empty it sleeps ~10ms before polling again,
// honoring ctx cancellation during that sleep.
func (w *Worker) ExecuteTasks(ctx context.Context) {
	logger := log.WithComponent("worker").With().Str("worker", w.name).Logger()
	logger.Info().Msg("worker loop started")

	for {
		if atomic.LoadInt32(&w.stopping) == 1 {
			logger.Info().Msg("worker stopping, current task drained")
			return
		}

		item, ok := w.queue.Dequeue()
		if !ok {
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		w.runWithRetry(ctx, item)
	}
}

// runWithRetry executes item on its own deadline, retrying with doubling
// backoff (2^k seconds) up to w.maxRetries additional attempts. On
// exhaustion the task is routed into the queue's failure buffer rather
// than dropped, so the diagnostic buffer has a producer.
func (w *Worker) runWithRetry(ctx context.Context, item queue.Item) {
	logger := log.WithComponent("worker").With().Str("worker", w.name).Str("task_id", item.ID).Logger()

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		timer := metrics.NewTimer()
		taskCtx, cancel := context.WithTimeout(ctx, w.timeout)
		value, err := item.Op(taskCtx)
		cancel()
		timer.ObserveDurationVec(metrics.TaskDurationSeconds, w.name)

		if err == nil {
			w.recordResult(item.ID, value)
			return
		}

		lastErr = err
		if attempt == w.maxRetries {
			break
		}

		metrics.TaskRetriesTotal.WithLabelValues(w.name).Inc()
		logger.Warn().Err(err).Int("attempt", attempt).Msg("task failed, retrying")

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			w.queue.EnqueueFailure(item, ctx.Err())
			return
		}
	}

	logger.Error().Err(lastErr).Int("retries", w.maxRetries).Msg("task exhausted retries")
	w.queue.EnqueueFailure(item, lastErr)
}

// recordResult appends a completed result, evicting the oldest if over
// maxResults.
func (w *Worker) recordResult(taskID string, value any) {
	w.resultsMu.Lock()
	defer w.resultsMu.Unlock()

	w.results = append(w.results, TaskResult{TaskID: taskID, CompletedAt: w.clock.WallNow(), Value: value})
	if w.maxResults > 0 && len(w.results) > w.maxResults {
		w.results = w.results[len(w.results)-w.maxResults:]
	}
}

// Stop sets a cooperative flag; the task in flight completes before
// ExecuteTasks returns.
func (w *Worker) Stop() {
	atomic.StoreInt32(&w.stopping, 1)
}

// GetResults returns a copy of the retained results, oldest first.
func (w *Worker) GetResults() []TaskResult {
	w.resultsMu.Lock()
	defer w.resultsMu.Unlock()
	out := make([]TaskResult, len(w.results))
	copy(out, w.results)
	return out
}

// GetLastResult returns the oldest retained result, the leftmost entry in
// the bounded log.
func (w *Worker) GetLastResult() (TaskResult, bool) {
	w.resultsMu.Lock()
	defer w.resultsMu.Unlock()
	if len(w.results) == 0 {
		return TaskResult{}, false
	}
	return w.results[0], true
}

// ReportQueueDepth publishes the current per-priority backlog to
// pkg/metrics; callers invoke it periodically (it is not wired into the
// dequeue loop itself, which must stay non-blocking and allocation-light).
func (w *Worker) ReportQueueDepth(queueName string) {
	for p, depth := range w.queue.LenByPriority() {
		metrics.QueueDepth.WithLabelValues(queueName, strconv.Itoa(p)).Set(float64(depth))
	}
}
