// Package workqueue serializes short, non-realtime operations onto a
// single goroutine: submission-ordered, context-cancellable, with a
// best-effort drain on shutdown. The engine uses it to apply
// control_message updates without contending with the block path.
package workqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Job is a unit of queued work. It must be quick and non-blocking; any
// heavy lifting should be prepared before Apply is called.
type Job interface {
	Apply(ctx context.Context) error
}

// JobFunc adapts a function into a Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Apply(ctx context.Context) error { return f(ctx) }

// Queue runs queued jobs on one dedicated goroutine, in submission order.
type Queue struct {
	ch      chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a Queue with the given channel buffer size; a size of zero
// or less falls back to 32.
func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{ch: make(chan Job, buffer), ctx: ctx, cancel: cancel}
}

// Start begins the worker goroutine. Safe to call more than once.
func (q *Queue) Start() {
	if q.started {
		return
	}
	q.started = true
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-q.ctx.Done():
				drainUntil := time.After(10 * time.Millisecond)
				for {
					select {
					case job := <-q.ch:
						_ = job.Apply(q.ctx)
					case <-drainUntil:
						return
					default:
						return
					}
				}
			case job := <-q.ch:
				if job == nil {
					continue
				}
				_ = job.Apply(q.ctx)
			}
		}
	}()
}

// Enqueue submits a job. Returns an error if the queue is nil or was not
// built with New, or has been closed. It does not check whether Start
// was called.
func (q *Queue) Enqueue(job Job) error {
	if q == nil || q.ch == nil {
		return errors.New("workqueue: not initialized")
	}
	select {
	case <-q.ctx.Done():
		return errors.New("workqueue: closed")
	default:
	}
	select {
	case q.ch <- job:
		return nil
	case <-q.ctx.Done():
		return errors.New("workqueue: closed")
	}
}

// RunSync enqueues fn and blocks until it completes, returning its error.
func (q *Queue) RunSync(fn func(ctx context.Context) error) error {
	if q == nil || q.ch == nil {
		return fn(context.Background())
	}
	done := make(chan error, 1)
	err := q.Enqueue(JobFunc(func(ctx context.Context) error {
		e := fn(ctx)
		select {
		case done <- e:
		default:
		}
		return e
	}))
	if err != nil {
		return err
	}
	select {
	case e := <-done:
		return e
	case <-q.ctx.Done():
		return context.Canceled
	}
}

// Close stops the worker and waits for it to finish (best-effort drain).
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.cancel()
	q.wg.Wait()
}
