// Package worker runs fire-and-forget jobs on a bounded pool so callers never
// block on slow collaborators.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Submit when every slot is taken.
var ErrQueueFull = errors.New("worker queue full")

// Job is one unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Pool struct {
	jobs   chan Job
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewPool(queueSize int, logger *slog.Logger) *Pool {
	return &Pool{
		jobs:   make(chan Job, queueSize),
		logger: logger.With("component", "worker"),
	}
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// StartPool launches concurrency worker loops. They stop once ctx is done and
// the queue is drained.
func (p *Pool) StartPool(ctx context.Context, concurrency int) {
	p.logger.Info("starting worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func(threadID int) {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.jobs:
					p.process(ctx, threadID, job)
				case <-ctx.Done():
					p.drain(threadID)
					p.logger.Debug("worker thread shutting down", "thread", threadID)
					return
				}
			}
		}(i)
	}
}

// Wait blocks until every worker loop has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) drain(threadID int) {
	for {
		select {
		case job := <-p.jobs:
			// parent is gone, give queued deliveries a detached context
			p.process(context.Background(), threadID, job)
		default:
			return
		}
	}
}

func (p *Pool) process(ctx context.Context, threadID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "job", job.Name, "thread", threadID, "panic", r)
		}
	}()
	if err := job.Run(ctx); err != nil {
		p.logger.Error("job failed", "job", job.Name, "thread", threadID, "error", err)
	}
}
