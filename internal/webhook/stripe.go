package webhook

import (
	"encoding/json"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/subscription"
)

// StripeAdapter verifies and normalizes Stripe webhook deliveries for
// customers billed in foreign currency.
type StripeAdapter struct {
	endpointSecret string
	now            func() time.Time
}

// NewStripeAdapter creates a Stripe adapter from the endpoint signing secret.
func NewStripeAdapter(endpointSecret string) *StripeAdapter {
	return &StripeAdapter{endpointSecret: endpointSecret, now: time.Now}
}

func (a *StripeAdapter) Provider() string { return "stripe" }

func (a *StripeAdapter) Verify(header http.Header, body []byte) error {
	if _, err := stripewebhook.ConstructEvent(body, header.Get("Stripe-Signature"), a.endpointSecret); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

// stripeObject is the slice of the event payload object we care about.
// Checkout metadata carries the platform user and plan on both the
// subscription and its invoices.
type stripeObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

func (a *StripeAdapter) Parse(body []byte) (Delivery, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Delivery{}, ErrMalformedPayload
	}
	if event.ID == "" {
		return Delivery{}, ErrMalformedPayload
	}

	var eventType subscription.EventType
	switch event.Type {
	case "customer.subscription.created":
		eventType = subscription.EventSubscriptionCreated
	case "invoice.paid":
		eventType = subscription.EventInvoicePaid
	case "invoice.payment_failed":
		eventType = subscription.EventInvoicePaymentFailed
	case "customer.subscription.deleted":
		eventType = subscription.EventSubscriptionCanceled
	default:
		return Delivery{}, ErrUnsupportedEvent
	}

	var obj stripeObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return Delivery{}, ErrMalformedPayload
	}
	userID := obj.Metadata["user_id"]
	if userID == "" {
		return Delivery{}, ErrMalformedPayload
	}

	occurred := time.Unix(event.Created, 0)
	if event.Created == 0 {
		occurred = a.now()
	}

	return Delivery{
		EventID: event.ID,
		Event: subscription.Event{
			Type:       eventType,
			Provider:   a.Provider(),
			ExternalID: obj.ID,
			UserID:     userID,
			Plan:       plans.ID(obj.Metadata["plan"]),
			OccurredAt: occurred,
		},
	}, nil
}

var _ Adapter = (*StripeAdapter)(nil)
