package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

var errInjected = errors.New("injected storage failure")

var fakeEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ledgerState is one consistent snapshot of the fake storage.
type ledgerState struct {
	processed map[string]domain.ProcessedEvent
	entries   map[string]domain.ContributionEntry
	outbox    []domain.OutboxMessage
	seq       int64
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		processed: make(map[string]domain.ProcessedEvent, len(s.processed)),
		entries:   make(map[string]domain.ContributionEntry, len(s.entries)),
		outbox:    append([]domain.OutboxMessage(nil), s.outbox...),
		seq:       s.seq,
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	return c
}

// memLedger emulates the Postgres stores: Insert is insert-if-absent,
// Upsert is an atomic add, and WithinTx stages writes and publishes them
// only on success. Transactions are serialized, which is what the row and
// key locks amount to for the operations under test.
type memLedger struct {
	mu    sync.Mutex
	state *ledgerState

	existsErr  error
	insertErr  error
	upsertErr  error
	enqueueErr error
	existsHook func(ctx context.Context) error
}

func newMemLedger() *memLedger {
	return &memLedger{state: (&ledgerState{}).clone()}
}

func (l *memLedger) Exists(ctx context.Context, eventID string) (bool, error) {
	if l.existsHook != nil {
		if err := l.existsHook(ctx); err != nil {
			return false, err
		}
	}
	if l.existsErr != nil {
		return false, l.existsErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.state.processed[eventID]
	return ok, nil
}

func (l *memLedger) Insert(ctx context.Context, rec domain.ProcessedEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return stateRepos{l: l, s: l.state}.insert(rec)
}

func (l *memLedger) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.TxRepositories) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := l.state.clone()
	if err := fn(ctx, stateRepos{l: l, s: staged}); err != nil {
		return err
	}
	l.state = staged
	return nil
}

func (l *memLedger) Upsert(ctx context.Context, evt domain.PaymentConfirmationEvent) (domain.ContributionEntry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return stateRepos{l: l, s: l.state}.Upsert(ctx, evt)
}

func (l *memLedger) Get(ctx context.Context, payerID string) (*domain.ContributionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.state.entries[payerID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (l *memLedger) List(ctx context.Context, mode domain.RankingMode) ([]domain.ContributionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]domain.ContributionEntry, 0, len(l.state.entries))
	for _, e := range l.state.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return mode.Less(entries[i], entries[j]) })
	return entries, nil
}

func (l *memLedger) Nearby(ctx context.Context, p domain.GeoPoint, limit int) ([]domain.ContributionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []domain.ContributionEntry
	for _, e := range l.state.entries {
		if e.Position != nil {
			entries = append(entries, e)
		}
	}
	dist := func(e domain.ContributionEntry) float64 {
		return math.Hypot(e.Position.Lng-p.Lng, e.Position.Lat-p.Lat)
	}
	sort.Slice(entries, func(i, j int) bool {
		if di, dj := dist(entries[i]), dist(entries[j]); di != dj {
			return di < dj
		}
		return entries[i].PayerID < entries[j].PayerID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (l *memLedger) entry(payerID string) (domain.ContributionEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.state.entries[payerID]
	return e, ok
}

func (l *memLedger) processedRecord(eventID string) (domain.ProcessedEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.state.processed[eventID]
	return rec, ok
}

func (l *memLedger) counts() (processed, entries, outbox int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.processed), len(l.state.entries), len(l.state.outbox)
}

func (l *memLedger) outboxMessages() []domain.OutboxMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.OutboxMessage(nil), l.state.outbox...)
}

// stateRepos operates on a snapshot whose lock is already held.
type stateRepos struct {
	l *memLedger
	s *ledgerState
}

func (r stateRepos) Contributions() domain.ContributionRepository { return r }
func (r stateRepos) ProcessedEvents() domain.ProcessedEventRepository {
	return stateProcessed{r}
}
func (r stateRepos) Outbox() domain.OutboxRepository { return stateOutbox{r} }

func (r stateRepos) insert(rec domain.ProcessedEvent) (bool, error) {
	if r.l.insertErr != nil {
		return false, r.l.insertErr
	}
	if _, ok := r.s.processed[rec.EventID]; ok {
		return false, nil
	}
	r.s.seq++
	rec.ProcessedAt = fakeEpoch.Add(time.Duration(r.s.seq) * time.Millisecond)
	r.s.processed[rec.EventID] = rec
	return true, nil
}

func (r stateRepos) Upsert(ctx context.Context, evt domain.PaymentConfirmationEvent) (domain.ContributionEntry, bool, error) {
	if r.l.upsertErr != nil {
		return domain.ContributionEntry{}, false, r.l.upsertErr
	}
	r.s.seq++
	now := fakeEpoch.Add(time.Duration(r.s.seq) * time.Millisecond)

	e, exists := r.s.entries[evt.PayerID]
	if !exists {
		e = domain.ContributionEntry{PayerID: evt.PayerID, CreatedAt: now}
	}
	e.TotalAmount += evt.Amount
	if evt.DisplayName != "" {
		e.DisplayName = evt.DisplayName
	}
	if evt.Message != nil {
		e.Message = evt.Message
	}
	if evt.LocationLabel != nil {
		e.LocationLabel = evt.LocationLabel
	}
	if evt.Position != nil {
		e.Position = evt.Position
	}
	e.UpdatedAt = now
	r.s.entries[evt.PayerID] = e
	return e, !exists, nil
}

func (r stateRepos) Get(ctx context.Context, payerID string) (*domain.ContributionEntry, error) {
	e, ok := r.s.entries[payerID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r stateRepos) List(ctx context.Context, mode domain.RankingMode) ([]domain.ContributionEntry, error) {
	return nil, errors.New("not supported inside a transaction")
}

func (r stateRepos) Nearby(ctx context.Context, p domain.GeoPoint, limit int) ([]domain.ContributionEntry, error) {
	return nil, errors.New("not supported inside a transaction")
}

type stateProcessed struct{ r stateRepos }

func (p stateProcessed) Exists(ctx context.Context, eventID string) (bool, error) {
	_, ok := p.r.s.processed[eventID]
	return ok, nil
}

func (p stateProcessed) Insert(ctx context.Context, rec domain.ProcessedEvent) (bool, error) {
	return p.r.insert(rec)
}

type stateOutbox struct{ r stateRepos }

func (o stateOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	if o.r.l.enqueueErr != nil {
		return o.r.l.enqueueErr
	}
	o.r.s.outbox = append(o.r.s.outbox, msg)
	return nil
}

func (o stateOutbox) Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	return nil, errors.New("not supported inside a transaction")
}

func (o stateOutbox) MarkDelivered(ctx context.Context, id, sink string) error {
	return errors.New("not supported inside a transaction")
}

func (o stateOutbox) MarkSent(ctx context.Context, id string) error {
	return errors.New("not supported inside a transaction")
}

func (o stateOutbox) MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error {
	return errors.New("not supported inside a transaction")
}

func (o stateOutbox) MarkDead(ctx context.Context, id string, reason string) error {
	return errors.New("not supported inside a transaction")
}

func (o stateOutbox) ListDead(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return nil, errors.New("not supported inside a transaction")
}

func (o stateOutbox) Requeue(ctx context.Context, id string) (bool, error) {
	return false, errors.New("not supported inside a transaction")
}

func (o stateOutbox) PurgeSent(ctx context.Context, before time.Time, limit int) (int64, error) {
	return 0, errors.New("not supported inside a transaction")
}

// memCache is an in-process leaderboard cache that counts invalidations.
// Like the Redis cache, every invalidation bumps the generation.
type memCache struct {
	mu            sync.Mutex
	rows          map[domain.RankingMode][]domain.LeaderboardRow
	gen           int64
	getErr        error
	invalidateErr error
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{rows: make(map[domain.RankingMode][]domain.LeaderboardRow)}
}

func (c *memCache) Get(ctx context.Context, mode domain.RankingMode) ([]domain.LeaderboardRow, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	rows, ok := c.rows[mode]
	return rows, ok, nil
}

func (c *memCache) Generation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *memCache) Set(ctx context.Context, mode domain.RankingMode, rows []domain.LeaderboardRow, gen int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false, nil
	}
	c.rows[mode] = rows
	return true, nil
}

func (c *memCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.gen++
	c.rows = make(map[domain.RankingMode][]domain.LeaderboardRow)
	return nil
}

func (c *memCache) invalidationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}
