// Package dispatch hands radio events to application callbacks on a single
// worker goroutine, decoupling radio event delivery from application code.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/groutine"
)

// DefaultSize is the queue capacity used when none is configured.
const DefaultSize = 256

// ErrDropped reports a handler that never ran because the queue overflowed or was closed.
var ErrDropped = errors.New("dispatch: handler dropped")

type task struct {
	name string
	fn   func()
	// onDrop runs instead of fn when the task is discarded.
	onDrop func()
}

// Queue runs named handlers in submission order on one worker goroutine.
// A panicking handler is logged and does not stop the worker.
type Queue struct {
	logger *logrus.Logger
	tasks  *ring[task]

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New starts a queue with the given capacity (DefaultSize if <= 0).
func New(size int, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	if size <= 0 {
		size = DefaultSize
	}

	q := &Queue{
		logger: logger,
		tasks:  newRing[task](size),
		done:   make(chan struct{}),
	}
	groutine.Go(context.Background(), "dispatch-worker", func(ctx context.Context) {
		q.run()
	})
	return q
}

// Process enqueues fn under name. Returns false if the queue is closed.
// When the queue is full the oldest pending handler is dropped.
func (q *Queue) Process(name string, fn func()) bool {
	return q.enqueue(task{name: name, fn: fn})
}

// ProcessOrDrop enqueues fn like Process, with a guarantee that exactly one of
// fn and onDrop runs. onDrop runs when the queue is closed (on the calling
// goroutine, before returning false) or when fn is pushed out by overflow (on
// its own goroutine).
func (q *Queue) ProcessOrDrop(name string, fn, onDrop func()) bool {
	return q.enqueue(task{name: name, fn: fn, onDrop: onDrop})
}

func (q *Queue) enqueue(t task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.WithField("handler", t.name).Debug("Dispatch queue closed, handler dropped")
		if t.onDrop != nil {
			t.onDrop()
		}
		return false
	}

	if q.tasks.trySend(t) {
		return true
	}
	if dropped := q.tasks.forceSend(t, q.evicted); dropped > 0 {
		q.logger.WithFields(logrus.Fields{
			"handler": t.name,
			"dropped": dropped,
		}).Warn("Dispatch queue full, oldest handlers dropped")
	}
	return true
}

func (q *Queue) evicted(t task) {
	if t.onDrop == nil {
		return
	}
	groutine.Go(context.Background(), "dispatch-dropped", func(context.Context) {
		q.invoke(task{name: t.name, fn: t.onDrop})
	})
}

// Close stops accepting handlers. Already queued handlers still run.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.tasks.close()
}

// Done is closed once the worker has drained the queue after Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of pending handlers.
func (q *Queue) Len() int {
	return q.tasks.len()
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Snapshot {
	return q.tasks.stats.snapshot()
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		t, ok := q.tasks.receive()
		if !ok {
			return
		}
		q.invoke(t)
	}
}

func (q *Queue) invoke(t task) {
	defer func() {
		if r := recover(); r != nil {
			q.tasks.stats.panics.Add(1)
			q.logger.WithFields(logrus.Fields{
				"handler": t.name,
				"panic":   r,
			}).Error("Dispatched handler panicked")
		}
	}()
	t.fn()
}
