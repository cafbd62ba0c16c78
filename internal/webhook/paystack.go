package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/subscription"
)

// PaystackAdapter verifies and normalizes Paystack webhook deliveries.
//
// Paystack signs the raw body with HMAC-SHA512 using the account's secret
// key and sends the hex digest in the x-paystack-signature header.
type PaystackAdapter struct {
	secretKey []byte
	now       func() time.Time
}

// NewPaystackAdapter creates a Paystack adapter from the account secret key.
func NewPaystackAdapter(secretKey string) *PaystackAdapter {
	return &PaystackAdapter{secretKey: []byte(secretKey), now: time.Now}
}

func (a *PaystackAdapter) Provider() string { return "paystack" }

func (a *PaystackAdapter) Verify(header http.Header, body []byte) error {
	signature := header.Get("x-paystack-signature")
	if signature == "" {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha512.New, a.secretKey)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrSignatureInvalid
	}
	return nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID               int64     `json:"id"`
		Reference        string    `json:"reference"`
		SubscriptionCode string    `json:"subscription_code"`
		PaidAt           time.Time `json:"paid_at"`
		CreatedAt        time.Time `json:"created_at"`
		Metadata         struct {
			UserID string `json:"user_id"`
			Plan   string `json:"plan"`
		} `json:"metadata"`
	} `json:"data"`
}

func (a *PaystackAdapter) Parse(body []byte) (Delivery, error) {
	var raw paystackEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Delivery{}, ErrMalformedPayload
	}
	if raw.Data.ID == 0 || raw.Data.Metadata.UserID == "" {
		return Delivery{}, ErrMalformedPayload
	}

	var eventType subscription.EventType
	switch raw.Event {
	case "subscription.create":
		eventType = subscription.EventSubscriptionCreated
	case "charge.success":
		eventType = subscription.EventInvoicePaid
	case "invoice.payment_failed":
		eventType = subscription.EventInvoicePaymentFailed
	case "subscription.disable":
		eventType = subscription.EventSubscriptionCanceled
	default:
		return Delivery{}, ErrUnsupportedEvent
	}

	occurred := raw.Data.PaidAt
	if occurred.IsZero() {
		occurred = raw.Data.CreatedAt
	}
	if occurred.IsZero() {
		occurred = a.now()
	}

	return Delivery{
		// Paystack does not carry a top-level event ID, so the dedupe key
		// combines the event name with the object ID
		EventID: raw.Event + ":" + strconv.FormatInt(raw.Data.ID, 10),
		Event: subscription.Event{
			Type:       eventType,
			Provider:   a.Provider(),
			ExternalID: raw.Data.SubscriptionCode,
			UserID:     raw.Data.Metadata.UserID,
			Plan:       plans.ID(raw.Data.Metadata.Plan),
			OccurredAt: occurred,
		},
	}, nil
}

var _ Adapter = (*PaystackAdapter)(nil)
