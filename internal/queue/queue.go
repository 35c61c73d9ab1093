// Package queue provides a bounded single-producer/single-consumer queue with backpressure
// and an explicit "consumer gone" signal.
package queue

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the number of items buffered before Send blocks.
const DefaultCapacity = 100

// ErrConsumerGone is returned by Send once the consumer has called Cancel.
var ErrConsumerGone = errors.New("queue consumer gone")

// Queue carries items from one producer goroutine to one consumer.
//
// The producer calls Send for every item and Close exactly once when it is finished.
// The consumer ranges over Items and calls Cancel if it stops draining early.
type Queue[T any] struct {
	items chan T
	gone  chan struct{}

	cancelOnce sync.Once
	closeOnce  sync.Once

	mu  sync.Mutex
	err error
}

// New returns a queue buffering up to capacity items. A non-positive capacity uses
// DefaultCapacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		gone:  make(chan struct{}),
	}
}

// Send enqueues item, blocking while the queue is full. It fails with ErrConsumerGone once
// the consumer has cancelled, or with ctx.Err() when ctx is done first.
func (q *Queue[T]) Send(ctx context.Context, item T) error {
	select {
	case <-q.gone:
		return ErrConsumerGone
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-q.gone:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of the stream. err records why production stopped early; nil means
// the producer finished normally. Only the first call has an effect.
func (q *Queue[T]) Close(err error) {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.err = err
		q.mu.Unlock()
		close(q.items)
	})
}

// Items returns the receive side of the queue. It is closed after the producer calls Close
// and every buffered item has been received.
func (q *Queue[T]) Items() <-chan T {
	return q.items
}

// Cancel tells the producer that nobody is draining the queue any more.
func (q *Queue[T]) Cancel() {
	q.cancelOnce.Do(func() {
		close(q.gone)
	})
}

// Err returns the error the producer closed the queue with. It is only meaningful after
// Items has been drained.
func (q *Queue[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}
