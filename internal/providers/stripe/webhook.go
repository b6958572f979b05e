package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

const SignatureHeader = "Stripe-Signature"

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded         = "charge.refunded"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrSignatureExpired = errors.New("signature_expired")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type Charge struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	PaymentIntent  string            `json:"payment_intent"`
	Created        int64             `json:"created"`
	Metadata       map[string]string `json:"metadata"`
}

// VerifySignature checks the v1 HMAC-SHA256 signature over "t.payload" and
// rejects timestamps further than tolerance from now in either direction.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if strings.TrimSpace(secret) == "" {
		return ErrInvalidSignature
	}
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return ErrSignatureExpired
		}
	}

	expected := Sign(payload, secret, unix)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns the hex v1 signature Stripe would send for payload at t.
func Sign(payload []byte, secret string, t int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(t, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a Stripe-Signature header. Used by tests and
// local tooling that replays events.
func SignatureHeaderValue(payload []byte, secret string, t int64) string {
	return "t=" + strconv.FormatInt(t, 10) + ",v1=" + Sign(payload, secret, t)
}

func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, ErrInvalidPayload
	}
	return &event, nil
}

func (e *Event) PaymentIntent() (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := json.Unmarshal(e.Data.Object, &intent); err != nil || intent.ID == "" {
		return nil, ErrInvalidPayload
	}
	return &intent, nil
}

func (e *Event) Charge() (*Charge, error) {
	var charge Charge
	if err := json.Unmarshal(e.Data.Object, &charge); err != nil || charge.ID == "" {
		return nil, ErrInvalidPayload
	}
	return &charge, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, ErrInvalidSignature
	}
	return timestamp, signatures, nil
}
