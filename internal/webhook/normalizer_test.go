package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const (
	testPaymentSecret  = "whsec_test_payment"
	testTrackingSecret = "whsec_test_tracking"
)

func newTestNormalizer(t *testing.T, now time.Time) *Normalizer {
	t.Helper()
	n := NewNormalizer(testPaymentSecret, testTrackingSecret)
	n.now = func() time.Time { return now }
	return n
}

func signPayment(body []byte, ts time.Time, secret string) string {
	unix := fmt.Sprintf("%d", ts.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}

func signTracking(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validPaymentBody() []byte {
	return []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"amount_total": 3000,
			"customer_details": {"email": "buyer@example.com", "phone": "+15551234"},
			"metadata": {
				"user_id": "user-9",
				"cart": "[{\"price_ref\":\"price_1\",\"title\":\"Mug\",\"unit_price\":1000,\"quantity\":2}]",
				"shipping_address": "{\"line1\":\"1 Main St\",\"city\":\"Springfield\",\"postal_code\":\"12345\",\"country\":\"US\"}"
			}
		}}
	}`)
}

func TestNormalizePayment(t *testing.T) {
	now := time.Now()
	n := newTestNormalizer(t, now)
	body := validPaymentBody()

	ev, err := n.NormalizePayment(body, signPayment(body, now, testPaymentSecret))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil {
		t.Fatal("expected an event")
	}
	if ev.ExternalSessionID != "cs_test_123" {
		t.Errorf("session id = %q", ev.ExternalSessionID)
	}
	if ev.AmountTotal != 3000 {
		t.Errorf("amount = %d", ev.AmountTotal)
	}
	if ev.CustomerEmail != "buyer@example.com" || ev.CustomerPhone != "+15551234" {
		t.Errorf("customer details lost: %q %q", ev.CustomerEmail, ev.CustomerPhone)
	}
	if ev.UserID != "user-9" {
		t.Errorf("user id = %q", ev.UserID)
	}
	if ev.CartJSON == "" || ev.AddressJSON == "" {
		t.Error("metadata blobs should pass through verbatim")
	}
}

func TestNormalizePaymentBadSignature(t *testing.T) {
	now := time.Now()
	n := newTestNormalizer(t, now)
	body := validPaymentBody()

	cases := []struct {
		name string
		sig  string
	}{
		{"wrong secret", signPayment(body, now, "whsec_wrong")},
		{"stale timestamp", signPayment(body, now.Add(-time.Hour), testPaymentSecret)},
		{"future timestamp", signPayment(body, now.Add(time.Hour), testPaymentSecret)},
		{"empty header", ""},
		{"garbage header", "t=abc,v1=zzzz"},
		{"missing v1", fmt.Sprintf("t=%d", now.Unix())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.NormalizePayment(body, tc.sig)
			if !errors.Is(err, ErrBadSignature) {
				t.Errorf("expected ErrBadSignature, got %v", err)
			}
		})
	}
}

func TestNormalizePaymentTamperedBody(t *testing.T) {
	now := time.Now()
	n := newTestNormalizer(t, now)
	body := validPaymentBody()
	sig := signPayment(body, now, testPaymentSecret)

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = ' '

	if _, err := n.NormalizePayment(tampered, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature for tampered body, got %v", err)
	}
}

func TestNormalizePaymentMalformed(t *testing.T) {
	now := time.Now()
	n := newTestNormalizer(t, now)

	cases := []struct {
		name string
		body string
	}{
		{"not json", "{nope"},
		{"missing type", `{"id":"evt_1","data":{"object":{"id":"cs_1","amount_total":100,"customer_details":{"email":"a@b.c"}}}}`},
		{"missing session id", `{"type":"checkout.session.completed","data":{"object":{"amount_total":100,"customer_details":{"email":"a@b.c"}}}}`},
		{"zero amount", `{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","amount_total":0,"customer_details":{"email":"a@b.c"}}}}`},
		{"missing email", `{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","amount_total":100,"customer_details":{}}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(tc.body)
			_, err := n.NormalizePayment(body, signPayment(body, now, testPaymentSecret))
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("expected DecodeError, got %v", err)
			}
			if errors.Is(err, ErrBadSignature) {
				t.Error("shape failure must be distinct from signature failure")
			}
		})
	}
}

func TestNormalizePaymentUnknownSubtypeIsNoOp(t *testing.T) {
	now := time.Now()
	n := newTestNormalizer(t, now)
	body := []byte(`{"id":"evt_2","type":"invoice.paid","data":{"object":{}}}`)

	ev, err := n.NormalizePayment(body, signPayment(body, now, testPaymentSecret))
	if err != nil {
		t.Fatalf("unknown subtype must be accepted: %v", err)
	}
	if ev != nil {
		t.Fatal("unknown subtype must not produce an event")
	}
}

func TestNormalizeTracking(t *testing.T) {
	now := time.Now()
	n := newTestNormalizer(t, now)
	body := []byte(`{
		"tracking_status": {
			"status": "TRANSIT",
			"status_details": "Departed facility",
			"status_date": "2025-06-01T10:30:00Z",
			"location": {"city": "Memphis", "state": "TN", "country": "US"}
		},
		"tracking_history": []
	}`)

	ev, err := n.NormalizeTracking(body, signTracking(body, testTrackingSecret), "TRK1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TrackingNumber != "TRK1" {
		t.Errorf("tracking number = %q", ev.TrackingNumber)
	}
	if ev.RawCarrierStatus != "TRANSIT" {
		t.Errorf("raw status = %q", ev.RawCarrierStatus)
	}
	if ev.StatusDetails != "Departed facility" {
		t.Errorf("details = %q", ev.StatusDetails)
	}
	if ev.Location != "Memphis, TN" {
		t.Errorf("location = %q", ev.Location)
	}
	want, _ := time.Parse(time.RFC3339, "2025-06-01T10:30:00Z")
	if !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestNormalizeTrackingDefaultsTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer(t, now)
	body := []byte(`{"tracking_status":{"status":"DELIVERED"}}`)

	ev, err := n.NormalizeTracking(body, signTracking(body, testTrackingSecret), "TRK1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.Timestamp.Equal(now) {
		t.Errorf("missing status_date should fall back to now, got %v", ev.Timestamp)
	}
}

func TestNormalizeTrackingFailures(t *testing.T) {
	now := time.Now()
	n := newTestNormalizer(t, now)
	valid := []byte(`{"tracking_status":{"status":"TRANSIT"}}`)

	t.Run("bad signature", func(t *testing.T) {
		_, err := n.NormalizeTracking(valid, "deadbeef", "TRK1")
		if !errors.Is(err, ErrBadSignature) {
			t.Errorf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("missing status", func(t *testing.T) {
		body := []byte(`{"tracking_status":{}}`)
		_, err := n.NormalizeTracking(body, signTracking(body, testTrackingSecret), "TRK1")
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("expected DecodeError, got %v", err)
		}
	})

	t.Run("missing tracking number", func(t *testing.T) {
		_, err := n.NormalizeTracking(valid, signTracking(valid, testTrackingSecret), "")
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("expected DecodeError, got %v", err)
		}
	})
}
