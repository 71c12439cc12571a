package store

import (
	"context"
	"fmt"
)

// LedgerStats holds aggregated ledger statistics.
type LedgerStats struct {
	Contributors  int   `json:"contributors"`
	TotalAmount   int64 `json:"total_amount"`
	AppliedEvents int   `json:"applied_events"`
	IgnoredEvents int   `json:"ignored_events"`
	PendingOutbox int   `json:"pending_outbox"`
	DeadOutbox    int   `json:"dead_outbox"`
}

// GetLedgerStats returns aggregated ledger statistics from the database.
func (s *PostgresStore) GetLedgerStats(ctx context.Context) (*LedgerStats, error) {
	var st LedgerStats

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0)::BIGINT FROM contributions
	`).Scan(&st.Contributors, &st.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("querying contribution totals: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'applied'),
			COUNT(*) FILTER (WHERE outcome = 'ignored')
		FROM processed_events
	`).Scan(&st.AppliedEvents, &st.IgnoredEvents)
	if err != nil {
		return nil, fmt.Errorf("querying processed event counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'dead')
		FROM leaderboard_outbox
	`).Scan(&st.PendingOutbox, &st.DeadOutbox)
	if err != nil {
		return nil, fmt.Errorf("querying outbox backlog: %w", err)
	}

	return &st, nil
}
