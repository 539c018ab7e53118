// Package queue provides a bounded buffered queue for messages with backpressure support
package queue

import (
	"context"
	"sync"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
)

// Queue represents a bounded buffered channel for messages
// When the queue is full, Enqueue blocks, providing backpressure
type Queue struct {
	messages chan *types.Message
	done     chan struct{}
	size     int
	metrics  *obs.Metrics
	once     sync.Once
}

// NewQueue creates a new Queue with the specified buffer size
// The queue will block on Enqueue when full, providing backpressure
func NewQueue(size int, metrics *obs.Metrics) *Queue {
	return &Queue{
		messages: make(chan *types.Message, size),
		done:     make(chan struct{}),
		size:     size,
		metrics:  metrics,
	}
}

// Enqueue adds a message to the queue
// This operation blocks if the queue is full (backpressure)
// Returns an error if the context is cancelled or the queue is closed
func (q *Queue) Enqueue(ctx context.Context, msg *types.Message) error {
	// a closed queue must win over free buffer space
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.messages <- msg:
		q.metrics.IncrementQueueDepth()
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes and returns a message from the queue
// This operation blocks if the queue is empty
// Returns an error if the context is cancelled or the queue is closed.
// Messages still buffered when the queue closes are not returned.
func (q *Queue) Dequeue(ctx context.Context) (*types.Message, error) {
	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	select {
	case msg := <-q.messages:
		q.metrics.DecrementQueueDepth()
		return msg, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth returns the current number of messages in the queue
func (q *Queue) Depth() int {
	return len(q.messages)
}

// Size returns the queue capacity
func (q *Queue) Size() int {
	return q.size
}

// Close closes the queue gracefully
// After closing, no more messages can be enqueued or dequeued
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}

// Errors
var (
	ErrQueueClosed = &QueueError{msg: "queue is closed"}
)

// QueueError represents a queue operation error
type QueueError struct {
	msg string
}

func (e *QueueError) Error() string {
	return e.msg
}
