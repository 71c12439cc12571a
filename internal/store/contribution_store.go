package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
)

const contributionColumns = `payer_id, display_name, total_amount, message, location_label, lat, lng, created_at, updated_at`

// ContributionStore is the contribution ledger backed by the contributions table.
type ContributionStore struct {
	db DBTX
}

func NewContributionStore(db DBTX) *ContributionStore {
	return &ContributionStore{db: db}
}

// Upsert creates the payer's entry or adds the event amount to it in one
// statement. The increment happens in SQL against the stored row, so
// concurrent upserts for the same payer serialize on the row lock and both
// amounts land. Metadata is replaced only when the event carries it.
// Timestamps use clock_timestamp() on both paths: a transaction that waited
// on a lock must not stamp its row with its start time.
func (s *ContributionStore) Upsert(ctx context.Context, evt domain.PaymentConfirmationEvent) (domain.ContributionEntry, bool, error) {
	var lat, lng *float64
	if evt.Position != nil {
		lat, lng = &evt.Position.Lat, &evt.Position.Lng
	}

	var (
		entry   domain.ContributionEntry
		created bool
	)
	row := s.db.QueryRow(ctx, `
		INSERT INTO contributions (payer_id, display_name, total_amount, message, location_label, lat, lng, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, clock_timestamp(), clock_timestamp())
		ON CONFLICT (payer_id) DO UPDATE SET
			total_amount   = contributions.total_amount + EXCLUDED.total_amount,
			display_name   = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE contributions.display_name END,
			message        = COALESCE(EXCLUDED.message, contributions.message),
			location_label = COALESCE(EXCLUDED.location_label, contributions.location_label),
			lat            = CASE WHEN EXCLUDED.lat IS NOT NULL THEN EXCLUDED.lat ELSE contributions.lat END,
			lng            = CASE WHEN EXCLUDED.lat IS NOT NULL THEN EXCLUDED.lng ELSE contributions.lng END,
			updated_at     = clock_timestamp()
		RETURNING `+contributionColumns+`, (xmax = 0) AS created
	`, evt.PayerID, evt.DisplayName, evt.Amount, evt.Message, evt.LocationLabel, lat, lng)

	var rlat, rlng *float64
	err := row.Scan(
		&entry.PayerID, &entry.DisplayName, &entry.TotalAmount, &entry.Message,
		&entry.LocationLabel, &rlat, &rlng, &entry.CreatedAt, &entry.UpdatedAt, &created,
	)
	if err != nil {
		return domain.ContributionEntry{}, false, fmt.Errorf("upserting contribution: %w", err)
	}
	entry.Position = toGeoPoint(rlat, rlng)

	return entry, created, nil
}

func (s *ContributionStore) Get(ctx context.Context, payerID string) (*domain.ContributionEntry, error) {
	var (
		e        domain.ContributionEntry
		lat, lng *float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT `+contributionColumns+`
		FROM contributions WHERE payer_id = $1
	`, payerID).Scan(
		&e.PayerID, &e.DisplayName, &e.TotalAmount, &e.Message,
		&e.LocationLabel, &lat, &lng, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying contribution: %w", err)
	}
	e.Position = toGeoPoint(lat, lng)
	return &e, nil
}

// List returns every entry ordered by mode. Ties are broken by payer id.
func (s *ContributionStore) List(ctx context.Context, mode domain.RankingMode) ([]domain.ContributionEntry, error) {
	var orderBy string
	switch mode {
	case domain.RankByAmount:
		orderBy = "total_amount DESC, payer_id ASC"
	case domain.RankByRecency:
		orderBy = "updated_at DESC, payer_id ASC"
	default:
		return nil, fmt.Errorf("unknown ranking mode %q", mode)
	}

	rows, err := s.db.Query(ctx, `SELECT `+contributionColumns+` FROM contributions ORDER BY `+orderBy)
	if err != nil {
		return nil, fmt.Errorf("querying contributions: %w", err)
	}
	return scanContributions(rows)
}

// Nearby returns the entries closest to p, using the GiST index on position.
func (s *ContributionStore) Nearby(ctx context.Context, p domain.GeoPoint, limit int) ([]domain.ContributionEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+contributionColumns+`
		FROM contributions
		WHERE lat IS NOT NULL
		ORDER BY point(lng, lat) <-> point($1, $2), payer_id
		LIMIT $3
	`, p.Lng, p.Lat, limit)
	if err != nil {
		return nil, fmt.Errorf("querying nearby contributions: %w", err)
	}
	return scanContributions(rows)
}

func scanContributions(rows pgx.Rows) ([]domain.ContributionEntry, error) {
	defer rows.Close()

	entries := []domain.ContributionEntry{}
	for rows.Next() {
		var (
			e        domain.ContributionEntry
			lat, lng *float64
		)
		err := rows.Scan(
			&e.PayerID, &e.DisplayName, &e.TotalAmount, &e.Message,
			&e.LocationLabel, &lat, &lng, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning contribution: %w", err)
		}
		e.Position = toGeoPoint(lat, lng)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contributions: %w", err)
	}

	return entries, nil
}

func toGeoPoint(lat, lng *float64) *domain.GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	return &domain.GeoPoint{Lat: *lat, Lng: *lng}
}
