// Package workers provides the bounded pool that runs scoring work.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/fraud-scoring/internal/domain"
)

// ErrClosed is returned when submitting to a stopped pool.
var ErrClosed = errors.New("worker pool is closed")

// Task is a unit of work. ctx is the submitter's context.
type Task func(ctx context.Context)

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

type job struct {
	ctx  context.Context
	task Task
}

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
// Submission never blocks: a full queue is reported as domain.ErrBusy.
type Pool struct {
	jobChan chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

// NewPool starts workerCount workers behind a queue of queueSize slots.
func NewPool(workerCount, queueSize int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{jobChan: make(chan job, queueSize)}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues task. It returns domain.ErrBusy when the queue is full
// and ErrClosed after Stop.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.jobChan <- job{ctx: ctx, task: task}:
		return nil
	default:
		return domain.ErrBusy
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.jobChan)
}

// Capacity returns the queue size.
func (p *Pool) Capacity() int {
	return cap(p.jobChan)
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for j := range p.jobChan {
		// The submitter gave up while the task was queued.
		if j.ctx.Err() != nil {
			continue
		}
		j.task(j.ctx)
	}
}

// Stop rejects new tasks, lets workers drain the queue and waits for them.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobChan)
	p.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type result[T any] struct {
	value T
	err   error
}

// Run executes fn on s and waits for its result or for ctx to end.
// A panic inside fn is returned as an error.
func Run[T any](ctx context.Context, s Submitter, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	out := make(chan result[T], 1)

	err := s.Submit(ctx, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				out <- result[T]{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		out <- result[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-out:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Inline runs tasks on the calling goroutine. Used by offline tooling and tests.
type Inline struct{}

// Submit implements Submitter.
func (Inline) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	task(ctx)
	return nil
}

// Ensure both implement Submitter.
var (
	_ Submitter = (*Pool)(nil)
	_ Submitter = Inline{}
)
