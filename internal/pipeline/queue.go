package pipeline

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/invoiceflow/invoice-extractor/internal/extract"
)

// BatchQueue fans documents out to a fixed worker pool and collects their
// results keyed by path. Admission pacing stays with the shared rate
// limiter, so worker count controls text-extraction parallelism, not the
// outbound call rate.
//
// Locking: mu guards only the channel lifecycle (enqueue vs close); the
// result map has its own mutex. Workers never touch mu, so an Enqueue
// blocked on a full channel always drains — a worker finishing a document
// only needs resMu.
type BatchQueue struct {
	proc    *Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	resMu   sync.Mutex
	results map[string]extract.Result
}

type Option func(*BatchQueue)

func WithWorkers(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewBatchQueue(proc *Processor, logger *slog.Logger, opts ...Option) *BatchQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &BatchQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan string, 256),
		results: make(map[string]extract.Result),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *BatchQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for path := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res := q.proc.ProcessInvoice(ctx, path)
					cancel()

					q.resMu.Lock()
					q.results[path] = res
					q.resMu.Unlock()

					if res.Success {
						q.logger.Info("processed invoice", "worker_id", workerID, "path", path)
					} else {
						q.logger.Error("invoice failed",
							"worker_id", workerID, "path", path,
							"error", res.Error, "rate_limited", res.RateLimited)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue submits a document. Holding mu across the send keeps Shutdown
// from closing the channel mid-send; the send itself cannot wedge because
// workers drain without ever taking mu.
func (q *BatchQueue) Enqueue(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", path)
		return
	}
	q.ch <- path
}

// Shutdown closes intake and waits for workers to drain, or for ctx.
func (q *BatchQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

// Results returns a copy of the collected results so far.
func (q *BatchQueue) Results() map[string]extract.Result {
	q.resMu.Lock()
	defer q.resMu.Unlock()
	out := make(map[string]extract.Result, len(q.results))
	for k, v := range q.results {
		out[k] = v
	}
	return out
}
