// Package worker runs store I/O and other auxiliary work off the simulation
// thread. Jobs must never touch world or player objects directly; anything
// that does has to go back through the game executor.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"starterlock/internal/constants"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type job struct {
	name string
	fn   func(ctx context.Context)
}

type Pool struct {
	workers int
	timeout time.Duration
	jobs    chan job
	logger  zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func New(workers, queueSize int, timeout time.Duration, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		workers: workers,
		timeout: timeout,
		jobs:    make(chan job, queueSize),
		logger:  logger.With().Str("component", "worker").Logger(),
	}
}

func NewDefault(logger zerolog.Logger) *Pool {
	return New(constants.WorkerCount, constants.WorkerQueueSize, constants.RequestTimeout, logger)
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	p.logger.Debug().Int("workers", p.workers).Msg("worker pool started")
}

// Submit queues fn without blocking. It reports false when the pool is
// closed or the queue is full; the caller decides whether to run it inline.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- job{name: name, fn: fn}:
		return true
	default:
		p.logger.Warn().Str("job", name).Msg("worker queue full")
		return false
	}
}

// Stop stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug().Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool did not drain: %w", ctx.Err())
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job", j.name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("job panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	j.fn(ctx)
}
