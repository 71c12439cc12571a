package domain

import (
	"encoding/json"
	"time"
)

const TopicContributionApplied = "contribution.applied"

// Outbox message statuses.
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxDead    = "dead"
)

type OutboxMessage struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	// DeliveredSinks names the sinks that already accepted the message.
	DeliveredSinks []string  `json:"delivered_sinks"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ContributionApplied is the payload written to the outbox in the same
// transaction as the ledger mutation.
type ContributionApplied struct {
	EventID     string    `json:"event_id"`
	PayerID     string    `json:"payer_id"`
	DisplayName string    `json:"name"`
	Delta       int64     `json:"delta"`
	TotalAmount int64     `json:"amount"`
	Created     bool      `json:"created"`
	Position    *GeoPoint `json:"position,omitempty"`
	AppliedAt   time.Time `json:"applied_at"`
}
