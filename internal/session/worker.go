package session

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Processor runs a claimed session end to end.
type Processor interface {
	Process(ctx context.Context, s *Session) error
}

// WorkerPool runs a fixed number of goroutines that claim and process
// pending sessions. Each worker drives one session at a time; pages within a
// session stay strictly sequential.
type WorkerPool struct {
	repo         Repository
	processor    Processor
	workers      int
	notify       chan struct{}
	pollInterval time.Duration
}

func NewWorkerPool(repo Repository, processor Processor, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		repo:         repo,
		processor:    processor,
		workers:      workers,
		notify:       make(chan struct{}, 1),
		pollInterval: 5 * time.Second,
	}
}

// Notify wakes idle workers to check for pending sessions. Non-blocking.
func (wp *WorkerPool) Notify() {
	select {
	case wp.notify <- struct{}{}:
	default:
	}
}

// Run starts the workers and blocks until ctx is cancelled and all workers
// have drained.
func (wp *WorkerPool) Run(ctx context.Context) {
	var g errgroup.Group
	for i := range wp.workers {
		g.Go(func() error {
			wp.loop(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func (wp *WorkerPool) loop(ctx context.Context, id int) {
	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		wp.drain(ctx, id)

		select {
		case <-ctx.Done():
			return
		case <-wp.notify:
		case <-ticker.C:
		}
	}
}

func (wp *WorkerPool) drain(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		sess, err := wp.repo.ClaimPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // shutting down
			}
			slog.Error("worker: claim pending session", "worker", id, "error", err)
			return
		}
		if sess == nil {
			return // nothing pending
		}

		slog.Info("worker: running session", "worker", id, "session", sess.ID, "user", sess.UserID)

		if err := wp.processor.Process(ctx, sess); err != nil {
			slog.Error("worker: session failed", "worker", id, "session", sess.ID, "error", err)
		}
	}
}
