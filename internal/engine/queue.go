package engine

import "sync"

// operationQueue is a thread-safe, unbounded FIFO queue of operations.
//
// Submitters on any goroutine enqueue; the Engine's Run loop is the only
// consumer. Unbounded so that Submit never blocks the caller.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type operationQueue struct {
	mu     sync.Mutex
	ops    []*Operation
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

func newOperationQueue() *operationQueue {
	return &operationQueue{
		ops:    make([]*Operation, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an operation to the back of the queue.
// Returns false if the queue is closed.
func (q *operationQueue) Enqueue(op *Operation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.ops = append(q.ops, op)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front operation without blocking.
// Returns (nil, false) if the queue is empty.
func (q *operationQueue) TryDequeue() (*Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return nil, false
	}

	op := q.ops[0]
	// Clear the slot so the backing array does not pin completed operations.
	q.ops[0] = nil

	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}

	return op, true
}

// Wait returns a channel that signals when operations may be available.
// The channel is closed once the queue is closed.
func (q *operationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *operationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// IsClosed reports whether Close has been called.
func (q *operationQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drained reports whether the queue is closed and empty. Checked under one
// lock so a racing Enqueue cannot slip between the two conditions.
func (q *operationQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.ops) == 0
}

// Close stops intake. Already queued operations stay dequeueable.
// Wakes any blocked waiters by closing the signal channel.
func (q *operationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
