package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/go-chi/chi/v5"
)

// DeadLetterStore lists and requeues outbox messages that exhausted their
// attempts.
type DeadLetterStore interface {
	ListDead(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	Requeue(ctx context.Context, id string) (bool, error)
}

type DeadLetterHandler struct {
	store DeadLetterStore
}

func NewDeadLetterHandler(s DeadLetterStore) *DeadLetterHandler {
	return &DeadLetterHandler{store: s}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}

	letters, err := h.store.ListDead(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, letters)
}

// Retry puts a dead message back in the outbox with a fresh attempt budget.
func (h *DeadLetterHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.store.Requeue(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to requeue message")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}
