// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// A small worker pool for best-effort background tasks such as event publishing.

type Task func(ctx context.Context) error

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Pool struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	jobs    chan Task
	quit    chan struct{}
	stopped bool
	n       int
	timeout time.Duration
	log     *zerolog.Logger
}

func NewPool(workers int, taskTimeout time.Duration, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if taskTimeout <= 0 {
		taskTimeout = 10 * time.Second
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{
		jobs:    make(chan Task, workers*64),
		quit:    make(chan struct{}),
		n:       workers,
		timeout: taskTimeout,
		log:     &l,
	}
}

// Start launches the workers. Tasks run with a context detached from ctx's
// cancellation so queued work can finish during shutdown.
func (p *Pool) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-p.quit:
					p.drain(base, id)
					return
				case task := <-p.jobs:
					p.run(base, id, task)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("task error")
	}
}

func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

// Stop rejects new tasks, runs what is queued and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated rather than block the request path
		return ErrQueueFull
	}
}

// Pending reports the number of queued tasks.
func (p *Pool) Pending() int { return len(p.jobs) }
