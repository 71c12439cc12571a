package engine

import (
	"errors"
	"testing"
)

func TestDecodeEvent_Confirmation(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"customer": "cus_42",
			"amount_total": 1500,
			"payment_status": "paid",
			"metadata": {
				"name": " Alice ",
				"message": "hello",
				"locationLabel": "Berlin",
				"lat": "52.52",
				"lng": 13.405
			}
		}}
	}`)

	evt, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}

	if evt.EventID != "evt_1" || evt.EventType != "checkout.session.completed" {
		t.Errorf("envelope = %q/%q", evt.EventID, evt.EventType)
	}
	if evt.PayerID != "cus_42" {
		t.Errorf("PayerID = %q, want cus_42", evt.PayerID)
	}
	if evt.Amount != 1500 {
		t.Errorf("Amount = %d, want 1500", evt.Amount)
	}
	if evt.PaymentStatus != "paid" {
		t.Errorf("PaymentStatus = %q", evt.PaymentStatus)
	}
	if evt.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", evt.DisplayName)
	}
	if evt.Message == nil || *evt.Message != "hello" {
		t.Errorf("Message = %v", evt.Message)
	}
	if evt.LocationLabel == nil || *evt.LocationLabel != "Berlin" {
		t.Errorf("LocationLabel = %v", evt.LocationLabel)
	}
	if evt.Position == nil || evt.Position.Lat != 52.52 || evt.Position.Lng != 13.405 {
		t.Errorf("Position = %+v", evt.Position)
	}
	if err := validateConfirmation(evt); err != nil {
		t.Errorf("validateConfirmation() error = %v", err)
	}
}

func TestDecodeEvent_PayerFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		object    string
		wantPayer string
		wantName  string
	}{
		{
			name:      "expanded customer",
			object:    `{"customer": {"id": "cus_7"}, "amount_total": 100}`,
			wantPayer: "cus_7",
		},
		{
			name:      "email when no customer",
			object:    `{"customer": null, "customer_details": {"email": "Bob@Example.COM", "name": "Bob"}, "amount_total": 100}`,
			wantPayer: "bob@example.com",
			wantName:  "Bob",
		},
		{
			name:      "metadata name wins",
			object:    `{"customer": "cus_1", "customer_details": {"name": "Card Holder"}, "metadata": {"name": "Nick"}, "amount_total": 100}`,
			wantPayer: "cus_1",
			wantName:  "Nick",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(`{"id":"evt","type":"checkout.session.completed","data":{"object":` + tt.object + `}}`)
			evt, err := DecodeEvent(payload)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if evt.PayerID != tt.wantPayer {
				t.Errorf("PayerID = %q, want %q", evt.PayerID, tt.wantPayer)
			}
			if evt.DisplayName != tt.wantName {
				t.Errorf("DisplayName = %q, want %q", evt.DisplayName, tt.wantName)
			}
		})
	}
}

func TestDecodeEvent_DropsInvalidPosition(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
	}{
		{"latitude out of range", `{"lat": "95", "lng": "10"}`},
		{"longitude missing", `{"lat": "45"}`},
		{"not a number", `{"lat": "north", "lng": "10"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(`{"id":"evt","type":"checkout.session.completed","data":{"object":{"customer":"c","amount_total":1,"metadata":` + tt.metadata + `}}}`)
			evt, err := DecodeEvent(payload)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if evt.Position != nil {
				t.Errorf("Position = %+v, want nil", evt.Position)
			}
		})
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not json`},
		{"missing id", `{"type":"checkout.session.completed"}`},
		{"missing type", `{"id":"evt_1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.payload))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("DecodeEvent() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestDecodeEvent_UnrelatedObjectShape(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"id":"evt_9","type":"invoice.created","data":{"object":[1,2,3]}}`))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if evt.EventType != "invoice.created" {
		t.Errorf("EventType = %q", evt.EventType)
	}
	if evt.Amount != -1 {
		t.Errorf("Amount = %d, want -1 when absent", evt.Amount)
	}
}

func TestValidateConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"no payer", `{"id":"e","type":"checkout.session.completed","data":{"object":{"amount_total":100}}}`},
		{"no amount", `{"id":"e","type":"checkout.session.completed","data":{"object":{"customer":"c"}}}`},
		{"negative amount", `{"id":"e","type":"checkout.session.completed","data":{"object":{"customer":"c","amount_total":-5}}}`},
		{"no object", `{"id":"e","type":"checkout.session.completed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := DecodeEvent([]byte(tt.payload))
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if err := validateConfirmation(evt); !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("validateConfirmation() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestValidateConfirmation_ZeroAmountAccepted(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"id":"e","type":"checkout.session.completed","data":{"object":{"customer":"c","amount_total":0}}}`))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if err := validateConfirmation(evt); err != nil {
		t.Errorf("validateConfirmation() error = %v", err)
	}
}
