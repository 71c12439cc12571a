package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

// envelope is the provider's callback body: an id, a type and a
// type-specific object.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// checkoutObject is the subset of the confirmation object the ledger uses.
type checkoutObject struct {
	Customer        json.RawMessage `json:"customer"`
	CustomerDetails *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	AmountTotal   *int64         `json:"amount_total"`
	PaymentStatus string         `json:"payment_status"`
	Metadata      map[string]any `json:"metadata"`
}

// DecodeEvent extracts the canonical event from a verified callback body.
// Only the envelope is required here; confirmation-specific fields are
// checked by validateConfirmation so that unrelated event types still decode.
func DecodeEvent(payload []byte) (domain.PaymentConfirmationEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.PaymentConfirmationEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" {
		return domain.PaymentConfirmationEvent{}, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	if env.Type == "" {
		return domain.PaymentConfirmationEvent{}, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}

	evt := domain.PaymentConfirmationEvent{
		EventID:   env.ID,
		EventType: env.Type,
		Amount:    -1,
	}

	if len(env.Data.Object) == 0 || string(env.Data.Object) == "null" {
		return evt, nil
	}

	var obj checkoutObject
	if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
		// Unknown event types may carry objects of any shape.
		return evt, nil
	}

	evt.PayerID = customerID(obj.Customer)
	if evt.PayerID == "" && obj.CustomerDetails != nil {
		evt.PayerID = strings.ToLower(strings.TrimSpace(obj.CustomerDetails.Email))
	}
	if obj.AmountTotal != nil {
		evt.Amount = *obj.AmountTotal
	}
	evt.PaymentStatus = obj.PaymentStatus

	evt.DisplayName = metaString(obj.Metadata, "name")
	if evt.DisplayName == "" && obj.CustomerDetails != nil {
		evt.DisplayName = strings.TrimSpace(obj.CustomerDetails.Name)
	}
	if s := metaString(obj.Metadata, "message"); s != "" {
		evt.Message = &s
	}
	if s := metaString(obj.Metadata, "locationLabel"); s != "" {
		evt.LocationLabel = &s
	}

	lat, latOK := metaFloat(obj.Metadata, "lat")
	lng, lngOK := metaFloat(obj.Metadata, "lng")
	if latOK && lngOK {
		p := domain.GeoPoint{Lat: lat, Lng: lng}
		if p.Valid() {
			evt.Position = &p
		}
	}

	return evt, nil
}

// validateConfirmation checks the fields the ledger mutation depends on.
func validateConfirmation(evt domain.PaymentConfirmationEvent) error {
	if evt.PayerID == "" {
		return fmt.Errorf("%w: event %s has no payer identity", ErrMalformedEvent, evt.EventID)
	}
	if evt.Amount < 0 {
		return fmt.Errorf("%w: event %s has no valid amount", ErrMalformedEvent, evt.EventID)
	}
	return nil
}

// customerID accepts both a bare id and an expanded customer object.
func customerID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func metaString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func metaFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
