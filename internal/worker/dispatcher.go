package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

// DispatcherConfig tunes outbox polling.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Lease is how long a claimed message stays invisible to other
	// dispatchers. It must exceed the time a relay takes per message.
	Lease time.Duration
	// Retention is how long sent messages are kept before PurgeInterval
	// sweeps delete them. Zero keeps them forever.
	Retention     time.Duration
	PurgeInterval time.Duration
}

const (
	defaultPurgeInterval = 10 * time.Minute
	purgeBatchSize       = 1000
)

// Dispatcher polls the outbox for due messages and feeds them to the pool.
// Several instances may run against the same database; claiming uses
// SKIP LOCKED so each message goes to one of them.
type Dispatcher struct {
	outbox       domain.OutboxRepository
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	lease        time.Duration
	retention    time.Duration
	purgeEvery   time.Duration
	now          func() time.Time
}

func NewDispatcher(outbox domain.OutboxRepository, pool *Pool, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		outbox:       outbox,
		pool:         pool,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		lease:        cfg.Lease,
		retention:    cfg.Retention,
		purgeEvery:   cfg.PurgeInterval,
		now:          time.Now,
	}
	if d.purgeEvery <= 0 {
		d.purgeEvery = defaultPurgeInterval
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 500 * time.Millisecond
	}
	if d.batchSize <= 0 {
		d.batchSize = 50
	}
	if d.lease <= 0 {
		d.lease = 30 * time.Second
	}
	return d
}

// Start runs the polling loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("outbox dispatcher started", "poll_interval", d.pollInterval, "batch_size", d.batchSize)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var purgeC <-chan time.Time
	if d.retention > 0 {
		purgeTicker := time.NewTicker(d.purgeEvery)
		defer purgeTicker.Stop()
		purgeC = purgeTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopping")
			return
		case <-ticker.C:
			d.poll(ctx)
		case <-purgeC:
			d.purge(ctx)
		}
	}
}

// purge deletes sent messages older than the retention window, one bounded
// batch at a time.
func (d *Dispatcher) purge(ctx context.Context) {
	before := d.now().Add(-d.retention)

	var total int64
	for {
		n, err := d.outbox.PurgeSent(ctx, before, purgeBatchSize)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Error("failed to purge sent outbox messages", "error", err)
			}
			return
		}
		total += n
		if n < purgeBatchSize {
			break
		}
	}

	if total > 0 {
		d.logger.Info("purged sent outbox messages", "count", total, "before", before)
	}
}

// poll claims one batch and submits it. A full batch is followed by an
// immediate next poll so that a backlog drains without waiting for ticks.
func (d *Dispatcher) poll(ctx context.Context) {
	for {
		msgs, err := d.outbox.Claim(ctx, d.batchSize, d.lease)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Error("failed to claim outbox messages", "error", err)
			}
			return
		}

		for _, msg := range msgs {
			if !d.pool.Submit(ctx, msg) {
				return
			}
		}

		if len(msgs) < d.batchSize {
			return
		}
	}
}
