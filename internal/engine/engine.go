package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/dbsync/internal/store"
)

// WriteStore opens write contexts. *store.Store implements it.
type WriteStore interface {
	NewWriteContext(ctx context.Context) (*store.WriteContext, error)
}

// Sequencer hands out operation sequence numbers.
// Implemented by Clock (production) and testutil.DeterministicClock (tests).
type Sequencer interface {
	Next() int64
}

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("engine already running")

// Engine is the single-writer write coordinator.
//
// Operations are processed in FIFO order, one at a time, on the goroutine
// that calls Run. Each operation opens its own write context, runs its
// action, and is committed or discarded before the next one starts.
//
// Thread-safety model:
//   - Submit(), Stop(), Stopped(): safe from any goroutine
//   - Run(): must be called exactly once, from one goroutine
//
// INVARIANTS:
//   - At most one write context is open at any instant
//   - Operations execute in Seq order, which is submission order
//   - Every dequeued operation completes exactly once
type Engine struct {
	store   WriteStore
	seq     Sequencer
	queue   *operationQueue
	ids     IDGenerator
	logger  *slog.Logger
	metrics *Metrics

	submitMu sync.Mutex // Seq order == queue order
	running  atomic.Bool
	done     chan struct{}
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIDGenerator sets the operation ID generator. Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithSequencer replaces the logical clock, e.g. to resume numbering or to
// get reproducible sequence numbers in tests.
func WithSequencer(seq Sequencer) EngineOption {
	return func(e *Engine) {
		e.seq = seq
	}
}

// WithMetrics sets the collectors the engine reports to.
// Default: collectors registered on a private registry.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine writing to s.
func New(s WriteStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  s,
		seq:    NewClock(),
		queue:  newOperationQueue(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		// A fresh registry cannot hold conflicting collectors.
		e.metrics, _ = NewMetrics(prometheus.NewRegistry())
	}

	return e
}

// Submit stamps op with an ID and sequence number and enqueues it.
// Never blocks. Returns false if the engine has been stopped; op is then
// left untouched and will never complete.
func (e *Engine) Submit(op *Operation) bool {
	if op == nil {
		return false
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if e.queue.IsClosed() {
		return false
	}

	if op.ID == "" {
		op.ID = e.ids.Generate()
	}
	op.Seq = e.seq.Next()

	e.metrics.QueueDepth.Inc()
	if !e.queue.Enqueue(op) {
		e.metrics.QueueDepth.Dec()
		return false
	}

	e.logger.Debug("operation submitted",
		"id", op.ID,
		"kind", op.Kind,
		"entity", op.Entity,
		"seq", op.Seq,
	)
	return true
}

// Run starts the single-writer loop. Blocks until the engine is stopped
// and every accepted operation has completed.
//
// Cancelling ctx stops intake like Stop does; queued operations still run,
// on a context detached from ctx, and Run then returns ctx.Err(). After
// Stop, Run returns nil once the queue is drained.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)

	e.logger.Info("engine starting")
	opCtx := context.WithoutCancel(ctx)
	cancelled := ctx.Done()
	var runErr error

	for {
		if op, ok := e.queue.TryDequeue(); ok {
			e.metrics.QueueDepth.Dec()
			e.execute(opCtx, op)
			continue
		}

		if e.queue.Drained() {
			e.logger.Info("engine stopped", "drained", true)
			return runErr
		}

		select {
		case <-cancelled:
			e.logger.Info("engine stopping: context cancelled")
			runErr = ctx.Err()
			cancelled = nil
			e.queue.Close()
		case <-e.queue.Wait():
			// Closed signal channel fires immediately; Drained decides.
		}
	}
}

// Stop closes the queue to new submissions. Run finishes the queued
// operations and returns.
func (e *Engine) Stop() {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	e.queue.Close()
}

// Stopped reports whether the engine no longer accepts submissions.
func (e *Engine) Stopped() bool {
	return e.queue.IsClosed()
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Pending returns the number of queued operations not yet started.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// execute runs one operation and reports its outcome.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) execute(ctx context.Context, op *Operation) {
	start := time.Now()
	e.logger.Debug("operation starting",
		"id", op.ID,
		"kind", op.Kind,
		"entity", op.Entity,
		"seq", op.Seq,
	)

	err := e.apply(ctx, op)
	elapsed := time.Since(start)
	e.metrics.observe(op, err, elapsed)

	if err != nil {
		logOperationError(e.logger, op, err)
	} else {
		e.logger.Info("operation committed",
			"id", op.ID,
			"kind", op.Kind,
			"entity", op.Entity,
			"seq", op.Seq,
			"duration", elapsed,
		)
	}

	op.finish(err)
}

// apply opens a write context, runs the action and commits. The context is
// discarded when the action fails or panics.
func (e *Engine) apply(ctx context.Context, op *Operation) (err error) {
	if op.action == nil {
		return NewInvalidOperationError(op, "operation has no action")
	}

	w, err := e.store.NewWriteContext(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = w.Discard()
			err = NewPanicError(op, r)
		}
	}()

	if err := op.action(ctx, w); err != nil {
		if derr := w.Discard(); derr != nil {
			e.logger.Warn("discard failed", "id", op.ID, "error", derr)
		}
		return err
	}

	return w.Commit()
}

// logOperationError logs a failed operation with enough context to find
// it again in the submitter's logs.
func logOperationError(logger *slog.Logger, op *Operation, err error) {
	logger.Error("operation failed",
		"id", op.ID,
		"kind", op.Kind,
		"entity", op.Entity,
		"seq", op.Seq,
		"code", string(store.CodeOf(err)),
		"error", err,
	)
}
