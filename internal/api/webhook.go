package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Priya8975/leaderboard-ledger/internal/engine"
)

// maxWebhookBody bounds provider callbacks. Real confirmation events are a
// few kilobytes.
const maxWebhookBody = 1 << 20

// PaymentGateway handles one raw provider callback.
type PaymentGateway interface {
	Handle(ctx context.Context, payload []byte, signature string) (engine.ApplyResult, error)
}

type WebhookHandler struct {
	gateway PaymentGateway
	logger  *slog.Logger
}

func NewWebhookHandler(g PaymentGateway, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{gateway: g, logger: logger}
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// Receive acknowledges a callback only once its effect is durable. The
// status code is the provider's retry signal: 2xx stops redelivery, 5xx
// asks for it.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.logger.Warn("failed to read webhook body", "error", err)
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	res, err := h.gateway.Handle(r.Context(), body, r.Header.Get(engine.SignatureHeader))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, webhookResponse{Received: true, Outcome: string(res.Outcome)})
	case errors.Is(err, engine.ErrAuthenticity):
		respondError(w, http.StatusBadRequest, "signature verification failed")
	case errors.Is(err, engine.ErrMalformedEvent):
		respondError(w, http.StatusBadRequest, "malformed event")
	default:
		respondError(w, http.StatusInternalServerError, "event not processed, retry later")
	}
}
