// Package worker provides the single-writer runner that serialises every
// mutation of the local store and every drain of the sync queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrStopped is returned by Submit once the runner has been stopped
var ErrStopped = errors.New("runner stopped")

// Task is a unit of work executed on the runner goroutine
type Task func(ctx context.Context) error

type job struct {
	ctx    context.Context
	task   Task
	result chan error
}

// Runner executes submitted tasks one at a time, in submission order
type Runner struct {
	jobs   chan job
	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewRunner creates and starts a runner. queueSize bounds how many tasks may wait.
func NewRunner(queueSize int) *Runner {
	if queueSize < 0 {
		queueSize = 0
	}
	r := &Runner{
		jobs:   make(chan job, queueSize),
		stopCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Submit queues task and waits for it to finish.
// If ctx ends before the task starts the task is skipped.
func (r *Runner) Submit(ctx context.Context, task Task) error {
	j := job{ctx: ctx, task: task, result: make(chan error, 1)}
	if err := r.enqueue(ctx, j); err != nil {
		return err
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue hands j to the loop. The read lock keeps Stop from closing the
// runner while a send is in flight, so every accepted job gets run.
func (r *Runner) enqueue(ctx context.Context, j job) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStopped
	}

	select {
	case r.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go queues task without waiting for its result; failures are logged
func (r *Runner) Go(ctx context.Context, name string, task Task) {
	go func() {
		if err := r.Submit(ctx, task); err != nil && !errors.Is(err, ErrStopped) {
			log.Printf("[worker] %s failed: %v", name, err)
		}
	}()
}

// Stop finishes the queued tasks and stops the runner
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		select {
		case j := <-r.jobs:
			r.run(j)
		case <-r.stopCh:
			// Drain what was already accepted
			for {
				select {
				case j := <-r.jobs:
					r.run(j)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) run(j job) {
	if err := j.ctx.Err(); err != nil {
		j.result <- err
		return
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("[worker] task panicked: %v", p)
			j.result <- fmt.Errorf("task panicked: %v", p)
		}
	}()

	j.result <- j.task(j.ctx)
}
