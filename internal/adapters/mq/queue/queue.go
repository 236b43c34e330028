// Package queue defines the contract for handing record batches from
// collaborator fetch components to the refresher.
//
// Fetchers are opaque producers: they enqueue and walk away. The refresher
// is the only consumer.
package queue

import (
	"context"
	"sync"

	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 1024
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics
// for record batches.
type Queue interface {
	// Enqueue adds a batch to the queue.
	// Returns false if the queue is full or closed and the batch was not
	// accepted; the producer decides whether to retry on its next cycle.
	Enqueue(ctx context.Context, b record.Batch) bool

	// Dequeue returns a channel that receives batches as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan record.Batch

	// Len returns the current number of queued batches.
	Len(ctx context.Context) int

	// Close shuts down the queue. After closing, no new batches can be
	// enqueued and the dequeue channel drains then closes.
	Close() error

	// IsClosed reports whether the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	batches  chan record.Batch
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.batches = make(chan record.Batch, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)

	return q
}

// Enqueue adds a batch to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b record.Batch) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordEnqueueError("closed")
		return false
	}

	select {
	case q.batches <- b:
		metrics.RecordEnqueue()
		q.observe()
		return true
	case <-ctx.Done():
		metrics.RecordEnqueueError("context_cancelled")
		return false
	default:
		metrics.RecordEnqueueError("queue_full")
		return false
	}
}

// Dequeue returns a channel that receives batches until the queue closes or
// ctx is cancelled.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan record.Batch {
	out := make(chan record.Batch)
	go func() {
		defer close(out)
		for b := range q.batches {
			select {
			case out <- b:
				metrics.RecordDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued batches.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.batches)
}

// Close shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.batches)
	q.closed = true
	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) observe() {
	size := len(q.batches)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
