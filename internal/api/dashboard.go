package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/leaderboard-ledger/internal/engine"
	"github.com/Priya8975/leaderboard-ledger/internal/store"
)

// StatsReader aggregates ledger counters.
type StatsReader interface {
	GetLedgerStats(ctx context.Context) (*store.LedgerStats, error)
}

// BreakerStates exposes per-sink circuit state.
type BreakerStates interface {
	GetState(ctx context.Context, sink string) engine.CircuitBreakerState
}

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	stats   StatsReader
	breaker BreakerStates
	sinks   []string
	clients ClientCounter
}

// NewDashboardHandler wires the operator endpoints. breaker may be nil when
// Redis is not configured.
func NewDashboardHandler(stats StatsReader, breaker BreakerStates, sinks []string, clients ClientCounter) *DashboardHandler {
	return &DashboardHandler{stats: stats, breaker: breaker, sinks: sinks, clients: clients}
}

// Stats returns ledger totals, outbox backlog and live client count.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetLedgerStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	type statsResponse struct {
		store.LedgerStats
		WebSocketClients int `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, statsResponse{
		LedgerStats:      *stats,
		WebSocketClients: h.clients.ClientCount(),
	})
}

// Sinks returns the circuit breaker state of every notification sink.
func (h *DashboardHandler) Sinks(w http.ResponseWriter, r *http.Request) {
	result := make([]engine.CircuitBreakerState, 0, len(h.sinks))
	for _, sink := range h.sinks {
		if h.breaker == nil {
			result = append(result, engine.CircuitBreakerState{Sink: sink, State: engine.StateClosed})
			continue
		}
		result = append(result, h.breaker.GetState(r.Context(), sink))
	}

	respondJSON(w, http.StatusOK, result)
}
