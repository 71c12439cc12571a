package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/Priya8975/leaderboard-ledger/internal/metrics"
)

const (
	baseRetryDelay     = time.Second
	maxRetryDelay      = 60 * time.Second
	defaultMaxAttempts = 10
)

// Breaker guards a sink. *engine.CircuitBreaker satisfies it.
type Breaker interface {
	Allow(ctx context.Context, sink string) (string, bool)
	RecordSuccess(ctx context.Context, sink string)
	RecordFailure(ctx context.Context, sink string)
}

// Relay hands one claimed outbox message to every notifier and records the
// result. A message is marked sent only when all sinks accepted it;
// otherwise the sinks that did accept it are recorded, and the message is
// rescheduled with exponential backoff for the rest, or parked as dead once
// maxAttempts is reached.
type Relay struct {
	outbox      domain.OutboxRepository
	notifiers   []Notifier
	breaker     Breaker
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewRelay wires a relay. breaker may be nil.
func NewRelay(outbox domain.OutboxRepository, notifiers []Notifier, breaker Breaker, maxAttempts int, m *metrics.Metrics, logger *slog.Logger) *Relay {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Relay{
		outbox:      outbox,
		notifiers:   notifiers,
		breaker:     breaker,
		metrics:     m,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (r *Relay) Deliver(ctx context.Context, msg domain.OutboxMessage) {
	var (
		failures  []string
		delivered []string
	)

	for _, n := range r.notifiers {
		sink := n.Name()
		if slices.Contains(msg.DeliveredSinks, sink) {
			continue
		}

		if r.breaker != nil {
			if state, ok := r.breaker.Allow(ctx, sink); !ok {
				r.metrics.OutboxPublished.WithLabelValues(sink, "skipped").Inc()
				failures = append(failures, fmt.Sprintf("%s: circuit %s", sink, state))
				continue
			}
		}

		if err := n.Notify(ctx, msg); err != nil {
			if r.breaker != nil {
				r.breaker.RecordFailure(ctx, sink)
			}
			r.metrics.OutboxPublished.WithLabelValues(sink, "failed").Inc()
			r.logger.Warn("outbox notification failed",
				"error", err,
				"sink", sink,
				"message_id", msg.ID,
				"attempt", msg.Attempts+1,
			)
			failures = append(failures, fmt.Sprintf("%s: %v", sink, err))
			continue
		}

		if r.breaker != nil {
			r.breaker.RecordSuccess(ctx, sink)
		}
		r.metrics.OutboxPublished.WithLabelValues(sink, "sent").Inc()
		delivered = append(delivered, sink)
	}

	if len(failures) == 0 {
		if err := r.outbox.MarkSent(ctx, msg.ID); err != nil {
			// The lease expires and the message is sent again; sinks
			// tolerate repeats.
			r.logger.Error("failed to mark outbox message sent", "error", err, "message_id", msg.ID)
		}
		return
	}

	for _, sink := range delivered {
		if err := r.outbox.MarkDelivered(ctx, msg.ID, sink); err != nil {
			r.logger.Error("failed to record outbox delivery", "error", err, "message_id", msg.ID, "sink", sink)
		}
	}

	reason := strings.Join(failures, "; ")
	if msg.Attempts+1 >= r.maxAttempts {
		if err := r.outbox.MarkDead(ctx, msg.ID, reason); err != nil {
			r.logger.Error("failed to park outbox message", "error", err, "message_id", msg.ID)
			return
		}
		r.logger.Warn("outbox message moved to dead letters",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"attempts", msg.Attempts+1,
			"reason", reason,
		)
		return
	}

	next := r.now().Add(retryDelay(msg.Attempts))
	if err := r.outbox.MarkFailed(ctx, msg.ID, next, reason); err != nil {
		r.logger.Error("failed to reschedule outbox message", "error", err, "message_id", msg.ID)
	}
}

// retryDelay doubles from one second per prior attempt, capped at a minute.
func retryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 6 {
		return maxRetryDelay
	}
	d := baseRetryDelay << attempts
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
