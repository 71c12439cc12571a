package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators behind the HTTP surface. Breaker may be nil.
type Deps struct {
	Gateway     PaymentGateway
	Leaderboard LeaderboardReader
	Stats       StatsReader
	DeadLetters DeadLetterStore
	Breaker     BreakerStates
	Sinks       []string
	Clients     ClientCounter
	WebSocket   http.HandlerFunc
	Metrics     http.Handler
	DB          Pinger
	Logger      *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	webhookHandler := NewWebhookHandler(d.Gateway, d.Logger)
	boardHandler := NewLeaderboardHandler(d.Leaderboard)
	dashHandler := NewDashboardHandler(d.Stats, d.Breaker, d.Sinks, d.Clients)
	dlqHandler := NewDeadLetterHandler(d.DeadLetters)

	r.Post("/webhooks/payments", webhookHandler.Receive)

	r.Route("/leaderboard", func(r chi.Router) {
		r.Get("/", boardHandler.List)
		r.Get("/nearby", boardHandler.Nearby)
	})

	if d.WebSocket != nil {
		r.Get("/ws", d.WebSocket)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.DB, d.Leaderboard.Mode()))
		r.Get("/stats", dashHandler.Stats)
		r.Get("/sinks", dashHandler.Sinks)

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Post("/{id}/retry", dlqHandler.Retry)
		})
	})

	return r
}
