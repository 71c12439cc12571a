package domain

import (
	"fmt"
	"time"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is a real coordinate pair.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ContributionEntry is one payer's aggregated position on the leaderboard.
type ContributionEntry struct {
	PayerID       string    `json:"payer_id"`
	DisplayName   string    `json:"display_name"`
	TotalAmount   int64     `json:"total_amount"`
	Message       *string   `json:"message,omitempty"`
	LocationLabel *string   `json:"location_label,omitempty"`
	Position      *GeoPoint `json:"position,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RankingMode selects the comparator used by the leaderboard. A deployment
// picks exactly one.
type RankingMode string

const (
	// RankByAmount ranks the highest running total first.
	RankByAmount RankingMode = "amount"
	// RankByRecency ranks the most recently mutated entry first, regardless
	// of amount ("current owner" leaderboards).
	RankByRecency RankingMode = "recency"
)

func ParseRankingMode(s string) (RankingMode, error) {
	switch RankingMode(s) {
	case RankByAmount, RankByRecency:
		return RankingMode(s), nil
	default:
		return "", fmt.Errorf("unknown ranking mode %q", s)
	}
}

// Less reports whether a ranks ahead of b under mode. Ties fall back to
// payer id so that the order is total.
func (mode RankingMode) Less(a, b ContributionEntry) bool {
	switch mode {
	case RankByRecency:
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
	default:
		if a.TotalAmount != b.TotalAmount {
			return a.TotalAmount > b.TotalAmount
		}
	}
	return a.PayerID < b.PayerID
}

// LeaderboardRow is the public, denormalized view of a ContributionEntry.
type LeaderboardRow struct {
	Rank          int      `json:"rank"`
	Name          string   `json:"name"`
	Amount        int64    `json:"amount"`
	Message       *string  `json:"message,omitempty"`
	LocationLabel *string  `json:"locationLabel,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lng           *float64 `json:"lng,omitempty"`
}

// NewLeaderboardRow flattens an entry for display.
func NewLeaderboardRow(rank int, e ContributionEntry) LeaderboardRow {
	row := LeaderboardRow{
		Rank:          rank,
		Name:          e.DisplayName,
		Amount:        e.TotalAmount,
		Message:       e.Message,
		LocationLabel: e.LocationLabel,
	}
	if e.Position != nil {
		lat, lng := e.Position.Lat, e.Position.Lng
		row.Lat = &lat
		row.Lng = &lng
	}
	return row
}
