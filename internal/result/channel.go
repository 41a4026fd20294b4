package result

import (
	"context"
	"sync"
	"sync/atomic"
)

// EventKind distinguishes the events a Channel emits.
type EventKind int

const (
	// EventNext is the success value. It carries no payload.
	EventNext EventKind = iota + 1
	// EventCompleted follows EventNext and closes the channel.
	EventCompleted
	// EventFailed is the only event of a failed operation.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventNext:
		return "next"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one emission of a Channel. Err is set only for EventFailed.
type Event struct {
	Kind EventKind
	Err  error
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

// Complete settles a Channel. Only the first call has any effect.
type Complete func(err error)

// Channel is a single-subscriber, single-outcome notification handle.
//
// INVARIANTS:
//   - At most one EventNext and at most one EventCompleted are emitted
//   - Nothing is emitted after EventFailed
//   - Events reach the subscriber through the dispatcher only
type Channel struct {
	dispatcher Dispatcher

	mu         sync.Mutex
	subscriber func(Event)
	settled    bool
	delivered  bool
	err        error

	alive atomic.Bool
	done  chan struct{}
}

// New creates a pending Channel and the function that settles it.
// A nil dispatcher delivers through Async.
func New(d Dispatcher) (*Channel, Complete) {
	if d == nil {
		d = Async
	}
	c := &Channel{
		dispatcher: d,
		done:       make(chan struct{}),
	}
	return c, c.complete
}

// Failed returns a Channel that has already failed with err.
func Failed(d Dispatcher, err error) *Channel {
	c, complete := New(d)
	complete(err)
	return c
}

// Subscribe registers fn as the only subscriber. It returns false, and
// registers nothing, if the channel already has a subscriber or fn is nil.
//
// Calling cancel before delivery guarantees fn receives nothing further.
func (c *Channel) Subscribe(fn func(Event)) (cancel func(), ok bool) {
	if fn == nil {
		return func() {}, false
	}

	c.mu.Lock()
	if c.subscriber != nil {
		c.mu.Unlock()
		return func() {}, false
	}
	c.subscriber = fn
	c.alive.Store(true)
	c.mu.Unlock()

	c.deliver()
	return func() { c.alive.Store(false) }, true
}

// Done is closed once the channel has been settled.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure, or nil while pending or after success.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Wait blocks until the channel is settled and returns its failure, or
// returns ctx.Err() if ctx ends first.
func (c *Channel) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) complete(err error) {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return
	}
	c.settled = true
	c.err = err
	close(c.done)
	c.mu.Unlock()

	c.deliver()
}

// deliver hands the outcome to the dispatcher once both a subscriber and
// an outcome exist.
func (c *Channel) deliver() {
	c.mu.Lock()
	if !c.settled || c.subscriber == nil || c.delivered {
		c.mu.Unlock()
		return
	}
	c.delivered = true
	fn, err := c.subscriber, c.err
	c.mu.Unlock()

	c.dispatcher.Dispatch(func() {
		if err != nil {
			if c.alive.Load() {
				fn(Event{Kind: EventFailed, Err: err})
			}
			return
		}
		if c.alive.Load() {
			fn(Event{Kind: EventNext})
		}
		if c.alive.Load() {
			fn(Event{Kind: EventCompleted})
		}
	})
}
