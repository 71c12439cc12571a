package domain

import (
	"context"
	"time"
)

// ContributionRepository is the contribution ledger. Upsert must be a single
// atomic create-or-increment at the storage layer.
type ContributionRepository interface {
	Upsert(ctx context.Context, evt PaymentConfirmationEvent) (entry ContributionEntry, created bool, err error)
	Get(ctx context.Context, payerID string) (*ContributionEntry, error)
	List(ctx context.Context, mode RankingMode) ([]ContributionEntry, error)
	Nearby(ctx context.Context, p GeoPoint, limit int) ([]ContributionEntry, error)
}

// ProcessedEventRepository is the dedup ledger. Insert is insert-if-absent:
// inserted is false when the event id is already recorded.
type ProcessedEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Insert(ctx context.Context, rec ProcessedEvent) (inserted bool, err error)
}

// OutboxRepository holds notifications written alongside ledger mutations.
// Claim leases due pending messages; a leased message is invisible to other
// claimers until the lease runs out. MarkDelivered records that one sink
// accepted a message so that retries skip it.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) error
	Claim(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error)
	MarkDelivered(ctx context.Context, id, sink string) error
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error
	MarkDead(ctx context.Context, id string, reason string) error
	ListDead(ctx context.Context, limit int) ([]OutboxMessage, error)
	Requeue(ctx context.Context, id string) (bool, error)
	PurgeSent(ctx context.Context, before time.Time, limit int) (int64, error)
}

// TxRepositories exposes repositories bound to one storage transaction.
type TxRepositories interface {
	Contributions() ContributionRepository
	ProcessedEvents() ProcessedEventRepository
	Outbox() OutboxRepository
}

// Transactor runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}
