package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

const anonymousName = "Anonymous"

// LeaderboardCache stores rendered leaderboards per ranking mode. Set only
// stores rows when no invalidation happened since Generation returned gen.
type LeaderboardCache interface {
	Get(ctx context.Context, mode domain.RankingMode) ([]domain.LeaderboardRow, bool, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, mode domain.RankingMode, rows []domain.LeaderboardRow, gen int64) (bool, error)
}

// Projector derives the public leaderboard from the contribution ledger.
// Its ranking mode is fixed for the lifetime of the instance.
type Projector struct {
	contributions domain.ContributionRepository
	cache         LeaderboardCache
	mode          domain.RankingMode
	logger        *slog.Logger
}

// NewProjector wires a projector. cache may be nil.
func NewProjector(contributions domain.ContributionRepository, cache LeaderboardCache, mode domain.RankingMode, logger *slog.Logger) *Projector {
	return &Projector{
		contributions: contributions,
		cache:         cache,
		mode:          mode,
		logger:        logger,
	}
}

func (p *Projector) Mode() domain.RankingMode {
	return p.mode
}

// Leaderboard returns every entry, ranked. Cache failures degrade to a
// direct read; they never fail the request.
func (p *Projector) Leaderboard(ctx context.Context) ([]domain.LeaderboardRow, error) {
	cacheable := false
	var gen int64
	if p.cache != nil {
		rows, ok, err := p.cache.Get(ctx, p.mode)
		if err != nil {
			p.logger.Warn("leaderboard cache read failed", "error", err, "mode", p.mode)
		} else if ok {
			return rows, nil
		}

		// Taken before the ledger read: a commit invalidated after this
		// point makes the write below a no-op.
		if gen, err = p.cache.Generation(ctx); err != nil {
			p.logger.Warn("leaderboard cache generation read failed", "error", err, "mode", p.mode)
		} else {
			cacheable = true
		}
	}

	entries, err := p.contributions.List(ctx, p.mode)
	if err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	rows := p.rank(entries, true)

	if cacheable {
		stored, err := p.cache.Set(ctx, p.mode, rows, gen)
		if err != nil {
			p.logger.Warn("leaderboard cache write failed", "error", err, "mode", p.mode)
		} else if !stored {
			p.logger.Debug("leaderboard changed during read, not cached", "mode", p.mode)
		}
	}

	return rows, nil
}

// Nearby returns up to limit entries closest to point, nearest first. Rank
// is the position in that distance order.
func (p *Projector) Nearby(ctx context.Context, point domain.GeoPoint, limit int) ([]domain.LeaderboardRow, error) {
	if !point.Valid() {
		return nil, fmt.Errorf("invalid coordinate %v,%v", point.Lat, point.Lng)
	}
	entries, err := p.contributions.Nearby(ctx, point, limit)
	if err != nil {
		return nil, fmt.Errorf("querying nearby contributions: %w", err)
	}
	return p.rank(entries, false), nil
}

func (p *Projector) rank(entries []domain.ContributionEntry, sortByMode bool) []domain.LeaderboardRow {
	if sortByMode {
		sort.SliceStable(entries, func(i, j int) bool {
			return p.mode.Less(entries[i], entries[j])
		})
	}

	rows := make([]domain.LeaderboardRow, 0, len(entries))
	for i, e := range entries {
		row := domain.NewLeaderboardRow(i+1, e)
		if row.Name == "" {
			row.Name = anonymousName
		}
		rows = append(rows, row)
	}
	return rows
}
