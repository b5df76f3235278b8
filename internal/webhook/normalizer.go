package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopfront/order-reconciler/internal/domain"
)

// ErrBadSignature is returned when a webhook signature does not verify or its
// timestamp falls outside the tolerance window. Handlers treat it as a
// security event, distinct from a malformed payload.
var ErrBadSignature = errors.New("webhook signature verification failed")

// DecodeError marks a payload that passed signature verification but cannot
// be decoded into a known event shape. Not retryable.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed webhook payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed webhook payload: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const (
	eventTypeCheckoutCompleted = "checkout.session.completed"

	// signatureTolerance bounds replay of captured payment webhooks.
	signatureTolerance = 5 * time.Minute
)

// Normalizer verifies inbound webhook authenticity and decodes payloads into
// canonical domain events. now is injectable for tests.
type Normalizer struct {
	paymentSecret  []byte
	trackingSecret []byte
	now            func() time.Time
}

func NewNormalizer(paymentSecret, trackingSecret string) *Normalizer {
	return &Normalizer{
		paymentSecret:  []byte(paymentSecret),
		trackingSecret: []byte(trackingSecret),
		now:            time.Now,
	}
}

// paymentEnvelope mirrors the payment processor's event envelope. Metadata
// blobs are carried through verbatim.
type paymentEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID              string `json:"id"`
			AmountTotal     int64  `json:"amount_total"`
			CustomerDetails struct {
				Email string `json:"email"`
				Phone string `json:"phone"`
			} `json:"customer_details"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// NormalizePayment verifies the payment processor signature header
// ("t=<unix>,v1=<hex>" over "<t>.<body>") and decodes the envelope. A nil
// event with a nil error means a recognized-but-irrelevant subtype: the
// caller acknowledges it so the sender stops retrying.
func (n *Normalizer) NormalizePayment(body []byte, sigHeader string) (*domain.PaymentCompleted, error) {
	if err := n.verifyPaymentSignature(body, sigHeader); err != nil {
		return nil, err
	}

	var env paymentEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON envelope", Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing event type"}
	}
	if env.Type != eventTypeCheckoutCompleted {
		// Unknown subtype: acknowledged no-op.
		return nil, nil
	}

	obj := env.Data.Object
	if obj.ID == "" {
		return nil, &DecodeError{Reason: "missing session id"}
	}
	if obj.AmountTotal <= 0 {
		return nil, &DecodeError{Reason: "missing or non-positive amount_total"}
	}
	if obj.CustomerDetails.Email == "" {
		return nil, &DecodeError{Reason: "missing customer email"}
	}

	return &domain.PaymentCompleted{
		ExternalSessionID: obj.ID,
		AmountTotal:       obj.AmountTotal,
		CustomerEmail:     obj.CustomerDetails.Email,
		CustomerPhone:     obj.CustomerDetails.Phone,
		UserID:            obj.Metadata["user_id"],
		CartJSON:          obj.Metadata["cart"],
		AddressJSON:       obj.Metadata["shipping_address"],
	}, nil
}

func (n *Normalizer) verifyPaymentSignature(body []byte, sigHeader string) error {
	var ts, sig string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrBadSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := n.now().Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, n.paymentSecret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	decoded, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(decoded, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// trackingEnvelope mirrors the carrier webhook body.
type trackingEnvelope struct {
	TrackingStatus struct {
		Status        string `json:"status"`
		StatusDetails string `json:"status_details"`
		StatusDate    string `json:"status_date"`
		Location      struct {
			City    string `json:"city"`
			State   string `json:"state"`
			Country string `json:"country"`
		} `json:"location"`
	} `json:"tracking_status"`
	TrackingHistory []json.RawMessage `json:"tracking_history"`
}

// NormalizeTracking verifies the carrier signature (plain hex HMAC-SHA256 of
// the body) and decodes a tracking update. The tracking number comes from the
// route, not the body.
func (n *Normalizer) NormalizeTracking(body []byte, sigHeader, trackingNumber string) (*domain.TrackingChanged, error) {
	if trackingNumber == "" {
		return nil, &DecodeError{Reason: "missing tracking number"}
	}

	mac := hmac.New(sha256.New, n.trackingSecret)
	mac.Write(body)
	decoded, err := hex.DecodeString(strings.TrimSpace(sigHeader))
	if err != nil || !hmac.Equal(decoded, mac.Sum(nil)) {
		return nil, ErrBadSignature
	}

	var env trackingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON body", Err: err}
	}
	if env.TrackingStatus.Status == "" {
		return nil, &DecodeError{Reason: "missing tracking_status.status"}
	}

	ts := n.now()
	if env.TrackingStatus.StatusDate != "" {
		if parsed, err := time.Parse(time.RFC3339, env.TrackingStatus.StatusDate); err == nil {
			ts = parsed
		}
	}

	loc := env.TrackingStatus.Location
	var location string
	switch {
	case loc.City != "" && loc.State != "":
		location = loc.City + ", " + loc.State
	case loc.City != "":
		location = loc.City
	default:
		location = loc.Country
	}

	return &domain.TrackingChanged{
		TrackingNumber:   trackingNumber,
		RawCarrierStatus: env.TrackingStatus.Status,
		StatusDetails:    env.TrackingStatus.StatusDetails,
		Location:         location,
		Timestamp:        ts,
	}, nil
}
