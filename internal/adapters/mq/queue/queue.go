// Package queue buffers accepted game results between the delivery edge and
// the workers that apply them.
package queue

import (
	"context"
	"sync"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/metrics"
)

const defaultQueueCapacity = 100_000

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds r to the tail. It returns false when the queue is full or
	// closed; it never blocks.
	Enqueue(ctx context.Context, r model.GameResult) bool

	// Dequeue returns a channel yielding results in arrival order. The
	// channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.GameResult

	Len(ctx context.Context) int
	Cap() int

	Close() error
	IsClosed() bool
}

// InMemoryQueue is a bounded FIFO backed by a buffered channel.
type InMemoryQueue struct {
	results  chan model.GameResult
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.results = make(chan model.GameResult, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds r to the queue. The read lock keeps Close from closing the
// channel while a send is in flight.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r model.GameResult) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	select {
	case q.results <- r:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue forwards queued results until the queue is closed and drained or
// ctx is done.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.GameResult {
	out := make(chan model.GameResult)
	go func() {
		defer close(out)
		for {
			var r model.GameResult
			select {
			case <-ctx.Done():
				return
			case next, ok := <-q.results:
				if !ok {
					return
				}
				r = next
			}
			select {
			case out <- r:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of buffered results.
func (q *InMemoryQueue) Len(context.Context) int {
	q.observe()
	return len(q.results)
}

// Cap returns the queue bound.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting results. Buffered results are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.results)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) observe() {
	size := len(q.results)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
