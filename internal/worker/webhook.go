package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

// WebhookNotifier POSTs outbox messages to a downstream HTTP endpoint,
// signed with HMAC-SHA256 of the body.
type WebhookNotifier struct {
	httpClient *http.Client
	url        string
	secret     string
}

func NewWebhookNotifier(url, secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		secret:     secret,
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, msg domain.OutboxMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(msg.Payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Leaderboard-Signature", computeHMAC(msg.Payload, n.secret))
	req.Header.Set("X-Leaderboard-Topic", msg.Topic)
	req.Header.Set("X-Leaderboard-Message-ID", msg.ID)
	req.Header.Set("X-Leaderboard-Attempt", fmt.Sprintf("%d", msg.Attempts+1))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read at most 1KB so the connection can be reused.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// computeHMAC generates an HMAC-SHA256 signature for the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
