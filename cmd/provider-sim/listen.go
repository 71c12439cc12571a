package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

// notifySink receives the leaderboard's outbound webhook notifications so a
// developer can watch the outbox relay, including its retry and circuit
// breaker behavior against slow or failing endpoints.
type notifySink struct {
	secret   string
	delay    time.Duration
	logger   *slog.Logger
	received atomic.Int64
	rejected atomic.Int64
}

func (s *notifySink) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/notify/success", s.handle(http.StatusOK, 0))
	r.Post("/notify/slow", s.handle(http.StatusOK, s.delay))
	r.Post("/notify/fail", s.handle(http.StatusInternalServerError, 0))
	r.Get("/stats", s.stats)
	return r
}

func (s *notifySink) handle(status int, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		count := s.received.Add(1)
		sig := r.Header.Get("X-Leaderboard-Signature")
		if s.secret != "" && !validSignature(body, sig, s.secret) {
			s.rejected.Add(1)
			s.logger.Warn("rejected notification", "request", count, "path", r.URL.Path)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		s.logger.Info("notification",
			"request", count,
			"path", r.URL.Path,
			"status", status,
			"topic", r.Header.Get("X-Leaderboard-Topic"),
			"message_id", r.Header.Get("X-Leaderboard-Message-ID"),
			"attempt", r.Header.Get("X-Leaderboard-Attempt"),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"status": http.StatusText(status)})
	}
}

func (s *notifySink) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{
		"total_requests": s.received.Load(),
		"rejected":       s.rejected.Load(),
	})
}

func validSignature(body []byte, sig, secret string) bool {
	return hmac.Equal([]byte(hmacHex(body, secret)), []byte(sig))
}

func hmacHex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func listenCmd() *cobra.Command {
	var (
		port   string
		secret string
		delay  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a sink for the leaderboard's outbound notifications",
		Long: `Serve endpoints for NOTIFY_WEBHOOK_URL:
  POST /notify/success  -> 200
  POST /notify/slow     -> 200 after --delay
  POST /notify/fail     -> 500
  GET  /stats           -> request counts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink := &notifySink{
				secret: secret,
				delay:  delay,
				logger: slog.New(slog.NewJSONHandler(cmd.OutOrStdout(), nil)),
			}

			server := &http.Server{
				Addr:              ":" + port,
				Handler:           sink.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-cmd.Context().Done()
				server.Close()
			}()

			sink.logger.Info("notification sink starting", "port", port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "9090", "Listen port")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("NOTIFY_WEBHOOK_SECRET"), "Secret to verify X-Leaderboard-Signature (skip when empty)")
	cmd.Flags().DurationVar(&delay, "delay", 3*time.Second, "Delay of the slow endpoint")

	return cmd
}
