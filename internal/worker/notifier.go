package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	ws "github.com/Priya8975/leaderboard-ledger/internal/websocket"
)

// Notifier pushes one outbox message to a downstream sink. Notify may be
// called more than once for the same message.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg domain.OutboxMessage) error
}

// HubNotifier relays applied contributions to websocket clients.
type HubNotifier struct {
	hub *ws.Hub
}

func NewHubNotifier(hub *ws.Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Name() string { return "websocket" }

func (n *HubNotifier) Notify(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.Topic != domain.TopicContributionApplied {
		return nil
	}

	var applied domain.ContributionApplied
	if err := json.Unmarshal(msg.Payload, &applied); err != nil {
		return fmt.Errorf("decoding %s payload: %w", msg.Topic, err)
	}

	event := ws.LeaderboardEvent{
		Type:      "contribution_applied",
		EventID:   applied.EventID,
		Name:      applied.DisplayName,
		Amount:    applied.TotalAmount,
		Delta:     applied.Delta,
		Created:   applied.Created,
		Timestamp: applied.AppliedAt,
	}
	if applied.Position != nil {
		lat, lng := applied.Position.Lat, applied.Position.Lng
		event.Lat, event.Lng = &lat, &lng
	}

	return n.hub.Broadcast(event)
}
