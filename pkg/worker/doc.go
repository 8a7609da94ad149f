/*
Package worker executes tasks off a queue.Queue: a cooperative dequeue-poll
loop runs each task with a per-task timeout, retrying with exponential
backoff on failure, and retaining a bounded, ordered log of results.

Tasks exhausting their retries are routed into the queue's failure buffer
rather than dropped silently, so EnqueueFailure has a caller and diagnostics
aren't a dead end.
*/
package worker
