package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

const (
	defaultNearbyLimit = 20
	maxNearbyLimit     = 100
)

// LeaderboardReader serves ranked projections of the ledger.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context) ([]domain.LeaderboardRow, error)
	Nearby(ctx context.Context, point domain.GeoPoint, limit int) ([]domain.LeaderboardRow, error)
	Mode() domain.RankingMode
}

type LeaderboardHandler struct {
	reader LeaderboardReader
}

func NewLeaderboardHandler(reader LeaderboardReader) *LeaderboardHandler {
	return &LeaderboardHandler{reader: reader}
}

func (h *LeaderboardHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reader.Leaderboard(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	if rows == nil {
		rows = []domain.LeaderboardRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *LeaderboardHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "lat is required and must be a number")
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "lng is required and must be a number")
		return
	}
	point := domain.GeoPoint{Lat: lat, Lng: lng}
	if !point.Valid() {
		respondError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	limit := defaultNearbyLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxNearbyLimit)
	}

	rows, err := h.reader.Nearby(r.Context(), point, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load nearby contributions")
		return
	}
	if rows == nil {
		rows = []domain.LeaderboardRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}
