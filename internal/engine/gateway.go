package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/Priya8975/leaderboard-ledger/internal/metrics"
)

// DefaultConfirmationTypes are the provider event types that assert a
// completed charge.
var DefaultConfirmationTypes = []string{
	"checkout.session.completed",
	"checkout.session.async_payment_succeeded",
}

// GatewayConfig holds the gateway's tunables.
type GatewayConfig struct {
	ConfirmationTypes []string
	// Timeout bounds verification, dedup and mutation of one callback. It
	// should sit below the provider's own delivery timeout.
	Timeout time.Duration
}

// Gateway turns raw provider callbacks into ledger effects.
type Gateway struct {
	verifier     *Verifier
	mutator      *LedgerMutator
	confirmTypes map[string]struct{}
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

func NewGateway(cfg GatewayConfig, verifier *Verifier, mutator *LedgerMutator, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	types := cfg.ConfirmationTypes
	if len(types) == 0 {
		types = DefaultConfirmationTypes
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}

	return &Gateway{
		verifier:     verifier,
		mutator:      mutator,
		confirmTypes: set,
		timeout:      cfg.Timeout,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// Handle verifies, decodes and applies one callback.
//
// A nil error means the event is fully handled (applied, already seen, or
// ignored) and may be acknowledged. ErrAuthenticity and ErrMalformedEvent
// are permanent rejections. ErrTransient means nothing was committed and the
// provider should redeliver.
func (g *Gateway) Handle(ctx context.Context, payload []byte, signature string) (ApplyResult, error) {
	start := g.now()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.verifier.Verify(payload, signature, g.now()); err != nil {
		g.logger.Warn("rejected webhook", "error", err)
		g.observe("rejected", start)
		return ApplyResult{}, err
	}

	evt, err := DecodeEvent(payload)
	if err != nil {
		g.logger.Warn("undecodable webhook", "error", err)
		g.observe("malformed", start)
		return ApplyResult{}, err
	}

	if !g.isConfirmation(evt) {
		res, err := g.mutator.RecordIgnored(ctx, evt)
		if err != nil {
			// Still acknowledged: the event has no ledger effect.
			g.logger.Warn("failed to record ignored event",
				"error", err,
				"event_id", evt.EventID,
				"event_type", evt.EventType,
			)
		}
		g.logger.Debug("ignored webhook event",
			"event_id", evt.EventID,
			"event_type", evt.EventType,
			"payment_status", evt.PaymentStatus,
			"outcome", res.Outcome,
		)
		g.observe(string(res.Outcome), start)
		return res, nil
	}

	if err := validateConfirmation(evt); err != nil {
		g.logger.Warn("invalid confirmation event", "error", err, "event_id", evt.EventID)
		g.observe("malformed", start)
		return ApplyResult{}, err
	}

	res, err := g.mutator.Apply(ctx, evt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Error("webhook processing timed out",
				"error", err,
				"event_id", evt.EventID,
				"timeout", g.timeout,
			)
		} else {
			g.logger.Error("failed to apply payment event",
				"error", err,
				"event_id", evt.EventID,
				"payer_id", evt.PayerID,
			)
		}
		g.observe("failed", start)
		return ApplyResult{}, err
	}

	switch res.Outcome {
	case OutcomeApplied:
		g.logger.Info("payment applied",
			"event_id", evt.EventID,
			"payer_id", evt.PayerID,
			"amount", evt.Amount,
			"total_amount", res.Entry.TotalAmount,
			"created", res.Created,
		)
		g.metrics.AmountApplied.Add(float64(evt.Amount))
		if res.Created {
			g.metrics.EntriesCreated.Inc()
		}
	case OutcomeDuplicate:
		g.logger.Info("duplicate payment event", "event_id", evt.EventID, "payer_id", evt.PayerID)
	}
	g.observe(string(res.Outcome), start)

	return res, nil
}

// isConfirmation reports whether evt asserts a completed charge. A checkout
// that completed with a pending asynchronous payment is not yet one; its
// later success arrives as a separate event.
func (g *Gateway) isConfirmation(evt domain.PaymentConfirmationEvent) bool {
	if _, ok := g.confirmTypes[evt.EventType]; !ok {
		return false
	}
	return evt.PaymentStatus == "" || evt.PaymentStatus == "paid"
}

func (g *Gateway) observe(outcome string, start time.Time) {
	g.metrics.WebhookEvents.WithLabelValues(outcome).Inc()
	g.metrics.WebhookDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
