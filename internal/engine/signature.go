package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header carrying the provider signature.
const SignatureHeader = "Stripe-Signature"

// Verifier checks provider signatures of the form
//
//	t=<unix seconds>,v1=<hex hmac>[,v1=<hex hmac>...]
//
// where each v1 is HMAC-SHA256(secret, "<t>.<body>"). Several v1 values are
// accepted so that a secret can be rotated without dropping callbacks.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier returns a verifier. A zero tolerance disables the timestamp
// freshness check.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: secret, tolerance: tolerance}
}

func (v *Verifier) Verify(payload []byte, header string, now time.Time) error {
	if header == "" {
		return fmt.Errorf("%w: missing %s header", ErrAuthenticity, SignatureHeader)
	}

	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}

	if v.tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > v.tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance (%s)", ErrAuthenticity, age.Round(time.Second))
		}
	}

	expected := computeSignature(ts, payload, v.secret)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrAuthenticity)
}

// SignatureHeaderValue builds the header value a provider would send for
// payload at ts.
func SignatureHeaderValue(payload []byte, secret string, ts time.Time) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, computeSignature(unix, payload, secret))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		ts    int64
		hasTS bool
		sigs  []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid timestamp %q", value)
			}
			ts, hasTS = n, true
		case "v1":
			sigs = append(sigs, strings.ToLower(value))
		}
	}

	if !hasTS {
		return 0, nil, fmt.Errorf("signature header has no timestamp")
	}
	if len(sigs) == 0 {
		return 0, nil, fmt.Errorf("signature header has no v1 signature")
	}
	return ts, sigs, nil
}

// computeSignature generates the hex HMAC-SHA256 of "<ts>.<payload>".
func computeSignature(ts int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
