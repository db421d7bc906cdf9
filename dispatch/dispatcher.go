// Package dispatch applies reconciliation ops to a key injection backend
// from a single worker, in order, with a bounded queue.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"scriba/log"
	"scriba/reconcile"
)

var ErrClosed = errors.New("dispatcher closed")

type Backend interface {
	Append(text string) error
	DeleteBack(count int) error
}

// Observer sees every applied op. metrics.Metrics implements it.
type Observer interface {
	Dispatched(op reconcile.Op, took time.Duration, err error)
	QueueDepth(n int)
}

type Options struct {
	QueueDepth int
	// Separator is typed after each non-empty commit. Empty disables it.
	Separator string
	OnError   func(op reconcile.Op, err error)
	Observer  Observer
}

type item struct {
	op      reconcile.Op
	flushed chan struct{} // flush barrier when non-nil
}

type Dispatcher struct {
	backend Backend
	opts    Options
	queue   chan item
	done    chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func New(backend Backend, opts Options) *Dispatcher {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	d := &Dispatcher{
		backend: backend,
		opts:    opts,
		queue:   make(chan item, opts.QueueDepth),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Apply enqueues op. It blocks while the queue is full.
func (d *Dispatcher) Apply(ctx context.Context, op reconcile.Op) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- item{op: op}:
		d.observeDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every op enqueued before it has been applied.
func (d *Dispatcher) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	select {
	case d.queue <- item{flushed: barrier}:
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}
	d.mu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of queued ops.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close applies what is queued and stops the worker.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for it := range d.queue {
		if it.flushed != nil {
			close(it.flushed)
			continue
		}
		d.apply(it.op)
		d.observeDepth()
	}
}

func (d *Dispatcher) apply(op reconcile.Op) {
	start := time.Now()
	var err error
	switch op.Kind {
	case reconcile.OpAppend:
		err = d.backend.Append(op.Text)
	case reconcile.OpDeleteBack:
		err = d.backend.DeleteBack(op.Count)
	case reconcile.OpCommit:
		if op.Text != "" && d.opts.Separator != "" {
			err = d.backend.Append(d.opts.Separator)
		}
	}

	if d.opts.Observer != nil {
		d.opts.Observer.Dispatched(op, time.Since(start), err)
	}
	if err != nil {
		log.DispatchFailure(op.String(), err)
		if d.opts.OnError != nil {
			d.opts.OnError(op, err)
		}
	}
}

func (d *Dispatcher) observeDepth() {
	if d.opts.Observer != nil {
		d.opts.Observer.QueueDepth(len(d.queue))
	}
}
