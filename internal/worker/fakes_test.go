package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type outboxRow struct {
	msg         domain.OutboxMessage
	nextAttempt time.Time
}

type purgeCall struct {
	before time.Time
	limit  int
}

// memOutbox is an in-memory OutboxRepository with the same claim and
// lease rules as the Postgres store.
type memOutbox struct {
	mu     sync.Mutex
	rows   map[string]*outboxRow
	seq    int
	now    func() time.Time
	purges []purgeCall
}

func newMemOutbox() *memOutbox {
	return &memOutbox{rows: make(map[string]*outboxRow), now: time.Now}
}

func (o *memOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	msg.Status = domain.OutboxPending
	msg.CreatedAt = time.Unix(int64(o.seq), 0)
	o.rows[msg.ID] = &outboxRow{msg: msg}
	return nil
}

func (o *memOutbox) Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	var due []*outboxRow
	for _, r := range o.rows {
		if r.msg.Status == domain.OutboxPending && !r.nextAttempt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].msg.CreatedAt.Before(due[j].msg.CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	msgs := make([]domain.OutboxMessage, 0, len(due))
	for _, r := range due {
		r.nextAttempt = now.Add(lease)
		msgs = append(msgs, r.msg)
	}
	return msgs, nil
}

func (o *memOutbox) MarkDelivered(ctx context.Context, id, sink string) error {
	return o.update(id, func(r *outboxRow) {
		if !slices.Contains(r.msg.DeliveredSinks, sink) {
			r.msg.DeliveredSinks = append(r.msg.DeliveredSinks, sink)
		}
	})
}

func (o *memOutbox) MarkSent(ctx context.Context, id string) error {
	return o.update(id, func(r *outboxRow) {
		r.msg.Status = domain.OutboxSent
		r.msg.LastError = ""
	})
}

func (o *memOutbox) MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error {
	return o.update(id, func(r *outboxRow) {
		r.msg.Attempts++
		r.msg.LastError = reason
		r.nextAttempt = nextAttempt
	})
}

func (o *memOutbox) MarkDead(ctx context.Context, id string, reason string) error {
	return o.update(id, func(r *outboxRow) {
		r.msg.Attempts++
		r.msg.Status = domain.OutboxDead
		r.msg.LastError = reason
	})
}

func (o *memOutbox) ListDead(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var msgs []domain.OutboxMessage
	for _, r := range o.rows {
		if r.msg.Status == domain.OutboxDead {
			msgs = append(msgs, r.msg)
		}
	}
	return msgs, nil
}

func (o *memOutbox) Requeue(ctx context.Context, id string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rows[id]
	if !ok || r.msg.Status != domain.OutboxDead {
		return false, nil
	}
	r.msg.Status = domain.OutboxPending
	r.msg.Attempts = 0
	r.nextAttempt = time.Time{}
	return true, nil
}

func (o *memOutbox) PurgeSent(ctx context.Context, before time.Time, limit int) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.purges = append(o.purges, purgeCall{before: before, limit: limit})

	var n int64
	for id, r := range o.rows {
		if n == int64(limit) {
			break
		}
		if r.msg.Status == domain.OutboxSent && r.msg.UpdatedAt.Before(before) {
			delete(o.rows, id)
			n++
		}
	}
	return n, nil
}

func (o *memOutbox) update(id string, fn func(r *outboxRow)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rows[id]
	if !ok {
		return errors.New("outbox message not found")
	}
	fn(r)
	r.msg.UpdatedAt = o.now()
	return nil
}

func (o *memOutbox) purgeCalls() []purgeCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.purges)
}

func (o *memOutbox) get(id string) (domain.OutboxMessage, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.rows[id]
	return r.msg, r.nextAttempt
}

func (o *memOutbox) countStatus(status string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, r := range o.rows {
		if r.msg.Status == status {
			n++
		}
	}
	return n
}

// recordingNotifier remembers the message ids it saw and fails while err
// is set.
type recordingNotifier struct {
	name string

	mu   sync.Mutex
	seen []string
	err  error
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(ctx context.Context, msg domain.OutboxMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, msg.ID)
	return n.err
}

func (n *recordingNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}
