package result

import "sync"

// Dispatcher runs callbacks on a caller-designated execution context.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) {
	f(fn)
}

// Async runs every callback on its own goroutine. Callbacks are not
// ordered with respect to each other.
var Async Dispatcher = DispatcherFunc(func(fn func()) { go fn() })

// SerialDispatcher runs callbacks one at a time, in dispatch order, on a
// single dedicated goroutine.
//
// Dispatch never blocks: the pending list is unbounded, the same way the
// engine's operation queue is.
type SerialDispatcher struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	signal  chan struct{}
	done    chan struct{}
}

// NewSerialDispatcher starts the dispatcher goroutine.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Dispatch schedules fn. Once Close has been called the dispatcher
// goroutine is gone, so fn runs through Async instead.
func (d *SerialDispatcher) Dispatch(fn func()) {
	if fn == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		Async.Dispatch(fn)
		return
	}
	d.pending = append(d.pending, fn)

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Close runs every already dispatched callback, then stops the goroutine.
// It blocks until the goroutine has exited and is safe to call twice.
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.signal)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *SerialDispatcher) loop() {
	defer close(d.done)

	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if len(batch) == 0 {
			if closed {
				return
			}
			<-d.signal
		}
	}
}
