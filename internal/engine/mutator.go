package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/google/uuid"
)

// Outcome describes what handling an event did to the ledger.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// ApplyResult is returned for every successfully handled event.
type ApplyResult struct {
	Outcome Outcome
	Entry   *domain.ContributionEntry
	Created bool
}

// CacheInvalidator drops derived read models after a committed mutation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

var errAlreadyProcessed = errors.New("event already processed")

// LedgerMutator applies confirmed payments to the contribution ledger with
// at-most-once effect per event id.
//
// The dedup record, the contribution upsert and the outbox notification are
// committed in one transaction, so either all of them exist or none do. No
// process-local locks are taken: concurrent deliveries of the same event
// are serialized by the unique key on processed_events, and concurrent
// events for the same payer by the row lock taken by the upsert.
type LedgerMutator struct {
	processed domain.ProcessedEventRepository
	tx        domain.Transactor
	cache     CacheInvalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewLedgerMutator wires the mutator. cache may be nil.
func NewLedgerMutator(processed domain.ProcessedEventRepository, tx domain.Transactor, cache CacheInvalidator, logger *slog.Logger) *LedgerMutator {
	return &LedgerMutator{
		processed: processed,
		tx:        tx,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// Apply credits evt.Amount to evt.PayerID unless evt.EventID has already
// been handled. Errors wrap ErrTransient and guarantee that nothing was
// committed, so the event can safely be redelivered.
func (m *LedgerMutator) Apply(ctx context.Context, evt domain.PaymentConfirmationEvent) (ApplyResult, error) {
	seen, err := m.processed.Exists(ctx, evt.EventID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("%w: dedup lookup for %s: %w", ErrTransient, evt.EventID, err)
	}
	if seen {
		return ApplyResult{Outcome: OutcomeDuplicate}, nil
	}

	var result ApplyResult
	err = m.tx.WithinTx(ctx, func(ctx context.Context, repos domain.TxRepositories) error {
		// Claim the event id first. A concurrent delivery of the same event
		// waits here until this transaction ends and then sees the conflict.
		inserted, err := repos.ProcessedEvents().Insert(ctx, domain.ProcessedEvent{
			EventID:   evt.EventID,
			EventType: evt.EventType,
			Outcome:   domain.OutcomeApplied,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyProcessed
		}

		entry, created, err := repos.Contributions().Upsert(ctx, evt)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(domain.ContributionApplied{
			EventID:     evt.EventID,
			PayerID:     entry.PayerID,
			DisplayName: entry.DisplayName,
			Delta:       evt.Amount,
			TotalAmount: entry.TotalAmount,
			Created:     created,
			Position:    entry.Position,
			AppliedAt:   m.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("encoding outbox payload: %w", err)
		}
		err = repos.Outbox().Enqueue(ctx, domain.OutboxMessage{
			ID:      uuid.NewString(),
			Topic:   domain.TopicContributionApplied,
			Payload: payload,
		})
		if err != nil {
			return err
		}

		result = ApplyResult{Outcome: OutcomeApplied, Entry: &entry, Created: created}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		return ApplyResult{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return ApplyResult{}, fmt.Errorf("%w: applying %s: %w", ErrTransient, evt.EventID, err)
	}

	if m.cache != nil {
		if err := m.cache.Invalidate(ctx); err != nil {
			m.logger.Warn("failed to invalidate leaderboard cache",
				"error", err,
				"event_id", evt.EventID,
			)
		}
	}

	return result, nil
}

// RecordIgnored marks a non-confirmation event as processed so that its
// redeliveries short-circuit. It has no ledger effect.
func (m *LedgerMutator) RecordIgnored(ctx context.Context, evt domain.PaymentConfirmationEvent) (ApplyResult, error) {
	inserted, err := m.processed.Insert(ctx, domain.ProcessedEvent{
		EventID:   evt.EventID,
		EventType: evt.EventType,
		Outcome:   domain.OutcomeIgnored,
	})
	if err != nil {
		return ApplyResult{Outcome: OutcomeIgnored}, fmt.Errorf("%w: recording ignored %s: %w", ErrTransient, evt.EventID, err)
	}
	if !inserted {
		return ApplyResult{Outcome: OutcomeDuplicate}, nil
	}
	return ApplyResult{Outcome: OutcomeIgnored}, nil
}
