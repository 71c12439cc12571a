package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

// Pool manages a fixed number of worker goroutines that relay outbox
// messages.
type Pool struct {
	numWorkers int
	jobs       chan domain.OutboxMessage
	relay      *Relay
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, relay *Relay, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan domain.OutboxMessage, numWorkers*2),
		relay:      relay,
		logger:     logger,
	}
}

// Start launches the workers. They drain the jobs channel until Stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit blocks until a worker slot frees up or ctx is done. It reports
// whether msg was accepted.
func (p *Pool) Submit(ctx context.Context, msg domain.OutboxMessage) bool {
	select {
	case p.jobs <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the jobs channel and waits for in-flight messages. No
// Submit may be called afterwards.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for msg := range p.jobs {
		if ctx.Err() != nil {
			// Unprocessed messages keep their lease and are claimed again
			// after restart.
			continue
		}
		p.relay.Deliver(ctx, msg)
	}
}
