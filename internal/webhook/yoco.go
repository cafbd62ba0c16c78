package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/subscription"
)

// yocoTimestampTolerance bounds webhook-timestamp skew to defeat replays.
const yocoTimestampTolerance = 3 * time.Minute

// YocoAdapter verifies and normalizes Yoco webhook deliveries.
//
// Yoco signs deliveries in the svix format: HMAC-SHA256 over
// "<webhook-id>.<webhook-timestamp>.<body>" with the base64 portion of the
// whsec_ secret, carried base64-encoded in the webhook-signature header as
// space-separated "v1,<sig>" entries.
type YocoAdapter struct {
	secret []byte
	now    func() time.Time
}

// NewYocoAdapter creates a Yoco adapter from the dashboard signing secret.
func NewYocoAdapter(secret string) (*YocoAdapter, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return nil, ErrSignatureInvalid
	}
	return &YocoAdapter{secret: raw, now: time.Now}, nil
}

func (a *YocoAdapter) Provider() string { return "yoco" }

func (a *YocoAdapter) Verify(header http.Header, body []byte) error {
	id := header.Get("webhook-id")
	timestamp := header.Get("webhook-timestamp")
	signatures := header.Get("webhook-signature")
	if id == "" || timestamp == "" || signatures == "" {
		return ErrSignatureInvalid
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	skew := a.now().Sub(time.Unix(ts, 0))
	if skew > yocoTimestampTolerance || skew < -yocoTimestampTolerance {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// Header may carry several versioned signatures during secret rotation
	for _, entry := range strings.Fields(signatures) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

type yocoEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	CreatedDate time.Time `json:"createdDate"`
	Payload     struct {
		Metadata struct {
			UserID         string `json:"userId"`
			Plan           string `json:"plan"`
			SubscriptionID string `json:"subscriptionId"`
		} `json:"metadata"`
	} `json:"payload"`
}

func (a *YocoAdapter) Parse(body []byte) (Delivery, error) {
	var raw yocoEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Delivery{}, ErrMalformedPayload
	}
	if raw.ID == "" || raw.Payload.Metadata.UserID == "" {
		return Delivery{}, ErrMalformedPayload
	}

	var eventType subscription.EventType
	switch raw.Type {
	case "subscription.created":
		eventType = subscription.EventSubscriptionCreated
	case "payment.succeeded":
		eventType = subscription.EventInvoicePaid
	case "payment.failed":
		eventType = subscription.EventInvoicePaymentFailed
	case "subscription.cancelled":
		eventType = subscription.EventSubscriptionCanceled
	default:
		return Delivery{}, ErrUnsupportedEvent
	}

	occurred := raw.CreatedDate
	if occurred.IsZero() {
		occurred = a.now()
	}

	return Delivery{
		EventID: raw.ID,
		Event: subscription.Event{
			Type:       eventType,
			Provider:   a.Provider(),
			ExternalID: raw.Payload.Metadata.SubscriptionID,
			UserID:     raw.Payload.Metadata.UserID,
			Plan:       plans.ID(raw.Payload.Metadata.Plan),
			OccurredAt: occurred,
		},
	}, nil
}

var _ Adapter = (*YocoAdapter)(nil)
