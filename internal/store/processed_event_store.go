package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

// ProcessedEventStore is the dedup ledger. The primary key on event_id is what
// makes concurrent recordings of the same event safe: exactly one insert wins.
type ProcessedEventStore struct {
	db DBTX
}

func NewProcessedEventStore(db DBTX) *ProcessedEventStore {
	return &ProcessedEventStore{db: db}
}

func (s *ProcessedEventStore) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)",
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking processed event: %w", err)
	}
	return exists, nil
}

// Insert records the event unless it is already present. Inside a
// transaction, a second writer for the same id blocks on the key until the
// first one finishes and then reports inserted == false.
func (s *ProcessedEventStore) Insert(ctx context.Context, rec domain.ProcessedEvent) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO processed_events (event_id, event_type, outcome)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.EventType, rec.Outcome)
	if err != nil {
		return false, fmt.Errorf("inserting processed event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
