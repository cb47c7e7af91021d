package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errQueueClosed = errors.New("queue closed")

// queue is a bounded in-memory FIFO with context-aware operations.
type queue struct {
	ch      chan Request
	closeMu sync.Mutex
	closed  bool
}

func newQueue(capacity int) *queue {
	return &queue{ch: make(chan Request, capacity)}
}

func (q *queue) enqueue(ctx context.Context, req Request) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// dequeue returns errQueueClosed once the queue is closed and drained.
func (q *queue) dequeue(ctx context.Context) (Request, error) {
	select {
	case <-ctx.Done():
		return Request{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return Request{}, errQueueClosed
		}
		return req, nil
	}
}

func (q *queue) close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// visitTracker remembers uniqueness keys that were already admitted.
type visitTracker struct {
	seen sync.Map
}

// markIfNew stores key if it has not been seen before and reports whether it was new.
func (t *visitTracker) markIfNew(key string) bool {
	if key == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(key, struct{}{})
	return !loaded
}
