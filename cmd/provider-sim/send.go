package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/engine"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type eventOptions struct {
	EventID       string
	EventType     string
	Payer         string
	Amount        int64
	Name          string
	Message       string
	LocationLabel string
	Lat, Lng      string
	PaymentStatus string
}

// buildEvent renders a checkout confirmation the way the provider sends it.
func buildEvent(o eventOptions) ([]byte, error) {
	if o.EventID == "" {
		o.EventID = "evt_" + uuid.NewString()
	}
	if o.EventType == "" {
		o.EventType = "checkout.session.completed"
	}

	metadata := map[string]string{}
	for k, v := range map[string]string{
		"name":          o.Name,
		"message":       o.Message,
		"locationLabel": o.LocationLabel,
		"lat":           o.Lat,
		"lng":           o.Lng,
	} {
		if v != "" {
			metadata[k] = v
		}
	}

	object := map[string]any{
		"id":             "cs_" + uuid.NewString(),
		"object":         "checkout.session",
		"customer":       o.Payer,
		"amount_total":   o.Amount,
		"currency":       "usd",
		"payment_status": o.PaymentStatus,
		"metadata":       metadata,
	}

	return json.Marshal(map[string]any{
		"id":      o.EventID,
		"object":  "event",
		"type":    o.EventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
}

type deliveryResult struct {
	Attempt int
	Status  int
	Body    string
	Err     error
}

// deliver posts the same signed body repeat times concurrently, as a
// provider does when it retries a callback it believes was lost.
func deliver(ctx context.Context, client *http.Client, url string, body []byte, secret string, repeat int) []deliveryResult {
	if repeat <= 0 {
		repeat = 1
	}
	sig := engine.SignatureHeaderValue(body, secret, time.Now())

	results := make([]deliveryResult, repeat)
	var wg sync.WaitGroup
	for i := range repeat {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = post(ctx, client, url, body, sig)
			results[i].Attempt = i + 1
		}()
	}
	wg.Wait()

	return results
}

func post(ctx context.Context, client *http.Client, url string, body []byte, sig string) deliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return deliveryResult{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(engine.SignatureHeader, sig)

	resp, err := client.Do(req)
	if err != nil {
		return deliveryResult{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return deliveryResult{Status: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
}

func sendCmd() *cobra.Command {
	var (
		opts    eventOptions
		url     string
		secret  string
		repeat  int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a signed payment confirmation to the gateway",
		Long: `Build a checkout confirmation event, sign it with the webhook secret and
POST it to the gateway. --repeat delivers the identical event several times
concurrently; the ledger must credit it exactly once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Payer == "" {
				return fmt.Errorf("--payer is required")
			}
			if secret == "" {
				return fmt.Errorf("--secret or WEBHOOK_SECRET is required")
			}
			if (opts.Lat == "") != (opts.Lng == "") {
				return fmt.Errorf("--lat and --lng must be given together")
			}
			if opts.Lat != "" {
				if _, ok := parseCoord(opts.Lat); !ok {
					return fmt.Errorf("invalid --lat %q", opts.Lat)
				}
				if _, ok := parseCoord(opts.Lng); !ok {
					return fmt.Errorf("invalid --lng %q", opts.Lng)
				}
			}

			body, err := buildEvent(opts)
			if err != nil {
				return fmt.Errorf("building event: %w", err)
			}

			client := &http.Client{Timeout: timeout}
			results := deliver(cmd.Context(), client, url, body, secret, repeat)

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "[#%d] error: %v\n", r.Attempt, r.Err)
					continue
				}
				if r.Status >= 300 {
					failed++
				}
				fmt.Fprintf(out, "[#%d] %d %s\n", r.Attempt, r.Status, r.Body)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d deliveries were not acknowledged", failed, len(results))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&url, "url", "http://localhost:8080/webhooks/payments", "Gateway endpoint")
	f.StringVar(&secret, "secret", os.Getenv("WEBHOOK_SECRET"), "Webhook signing secret")
	f.IntVarP(&repeat, "repeat", "r", 1, "Number of concurrent redeliveries of the same event")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	f.StringVar(&opts.EventID, "event-id", "", "Event id (random when empty)")
	f.StringVar(&opts.EventType, "type", "checkout.session.completed", "Event type")
	f.StringVarP(&opts.Payer, "payer", "p", "", "Payer (customer) id")
	f.Int64VarP(&opts.Amount, "amount", "a", 500, "Amount in minor units")
	f.StringVarP(&opts.Name, "name", "n", "", "Display name")
	f.StringVarP(&opts.Message, "message", "m", "", "Message shown next to the entry")
	f.StringVar(&opts.LocationLabel, "location", "", "Location label")
	f.StringVar(&opts.Lat, "lat", "", "Latitude")
	f.StringVar(&opts.Lng, "lng", "", "Longitude")
	f.StringVar(&opts.PaymentStatus, "payment-status", "paid", "Payment status")

	return cmd
}

func signCmd() *cobra.Command {
	var (
		secret string
		at     int64
	)

	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the signature header for a request body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or WEBHOOK_SECRET is required")
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}

			ts := time.Now()
			if at > 0 {
				ts = time.Unix(at, 0)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", engine.SignatureHeader, engine.SignatureHeaderValue(body, secret, ts))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("WEBHOOK_SECRET"), "Webhook signing secret")
	cmd.Flags().Int64Var(&at, "timestamp", 0, "Unix timestamp to sign with (now when 0)")

	return cmd
}

func parseCoord(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
