package domain

import (
	"time"
)

// Outcomes stored on a ProcessedEvent.
const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
)

// PaymentConfirmationEvent is the canonical form of a provider callback. It is
// decoded once per delivery and never persisted as such.
type PaymentConfirmationEvent struct {
	EventID       string
	EventType     string
	PayerID       string
	Amount        int64
	PaymentStatus string
	DisplayName   string
	Message       *string
	LocationLabel *string
	Position      *GeoPoint
}

// ProcessedEvent is a row in the dedup ledger. It exists iff the event's ledger
// effect has been committed, or the event was judged a no-op.
type ProcessedEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Outcome     string    `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`
}
