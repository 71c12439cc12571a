package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status      string             `json:"status"`
	Version     string             `json:"version"`
	RankingMode domain.RankingMode `json:"ranking_mode"`
	Database    string             `json:"database"`
}

// HealthHandler reports liveness, the configured ranking mode, and database
// reachability. An unreachable database yields 503.
func HealthHandler(db Pinger, mode domain.RankingMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:      "healthy",
			Version:     Version,
			RankingMode: mode,
			Database:    "ok",
		}

		status := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.Database = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		respondJSON(w, status, resp)
	}
}
