package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `id, topic, payload, status, attempts, COALESCE(last_error, ''), delivered_sinks, created_at, updated_at`

type OutboxStore struct {
	db DBTX
}

func NewOutboxStore(db DBTX) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO leaderboard_outbox (id, topic, payload)
		VALUES ($1, $2, $3)
	`, msg.ID, msg.Topic, []byte(msg.Payload))
	if err != nil {
		return fmt.Errorf("inserting outbox message: %w", err)
	}
	return nil
}

// Claim leases up to limit due messages. Claimed rows are pushed forward by
// lease so that another dispatcher instance skips them; a crashed worker's
// rows become due again once the lease expires.
func (s *OutboxStore) Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	rows, err := s.db.Query(ctx, `
		WITH due AS (
			SELECT id FROM leaderboard_outbox
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE leaderboard_outbox o
		SET next_attempt_at = $2, updated_at = NOW()
		FROM due
		WHERE o.id = due.id
		RETURNING o.id, o.topic, o.payload, o.status, o.attempts, COALESCE(o.last_error, ''), o.delivered_sinks, o.created_at, o.updated_at
	`, limit, time.Now().Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claiming outbox messages: %w", err)
	}
	return scanOutbox(rows)
}

// MarkDelivered adds sink to the message's delivered set. Recording the
// same sink twice is a no-op.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id, sink string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leaderboard_outbox
		SET delivered_sinks = array_append(delivered_sinks, $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(delivered_sinks))
	`, id, sink)
	if err != nil {
		return fmt.Errorf("recording outbox delivery to %s: %w", sink, err)
	}
	return nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leaderboard_outbox SET status = 'sent', last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("marking outbox message sent: %w", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leaderboard_outbox
		SET attempts = attempts + 1, next_attempt_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, nextAttempt, reason)
	if err != nil {
		return fmt.Errorf("rescheduling outbox message: %w", err)
	}
	return nil
}

// MarkDead parks a message that exhausted its attempts.
func (s *OutboxStore) MarkDead(ctx context.Context, id string, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leaderboard_outbox
		SET status = 'dead', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("marking outbox message dead: %w", err)
	}
	return nil
}

func (s *OutboxStore) ListDead(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM leaderboard_outbox
		WHERE status = 'dead'
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dead outbox messages: %w", err)
	}
	return scanOutbox(rows)
}

// Requeue moves a dead message back to pending with a fresh attempt budget.
// Sinks that already accepted it stay recorded and are not sent it again.
// It reports false when id is not a dead message.
func (s *OutboxStore) Requeue(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE leaderboard_outbox
		SET status = 'pending', attempts = 0, next_attempt_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'dead'
	`, id)
	if err != nil {
		return false, fmt.Errorf("requeueing outbox message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeSent deletes up to limit sent messages last updated before before and
// reports how many were removed.
func (s *OutboxStore) PurgeSent(ctx context.Context, before time.Time, limit int) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM leaderboard_outbox
		WHERE id IN (
			SELECT id FROM leaderboard_outbox
			WHERE status = 'sent' AND updated_at < $1
			ORDER BY updated_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("purging sent outbox messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOutbox(rows pgx.Rows) ([]domain.OutboxMessage, error) {
	defer rows.Close()

	msgs := []domain.OutboxMessage{}
	for rows.Next() {
		var (
			m       domain.OutboxMessage
			payload []byte
		)
		err := rows.Scan(&m.ID, &m.Topic, &payload, &m.Status, &m.Attempts, &m.LastError, &m.DeliveredSinks, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox message: %w", err)
		}
		m.Payload = payload
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox messages: %w", err)
	}

	return msgs, nil
}
