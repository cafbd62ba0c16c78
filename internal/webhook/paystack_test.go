package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/subscription"
)

const paystackTestKey = "sk_test_abc123"

func paystackSign(key string, body []byte) http.Header {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)

	h := http.Header{}
	h.Set("x-paystack-signature", hex.EncodeToString(mac.Sum(nil)))
	return h
}

func paystackBody(event string, objectID int64, userID, plan string, paidAt time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"data":{"id":%d,"subscription_code":"SUB_x1","paid_at":%q,"metadata":{"user_id":%q,"plan":%q}}}`,
		event, objectID, paidAt.UTC().Format(time.RFC3339), userID, plan,
	))
}

func TestPaystackAdapter_Verify(t *testing.T) {
	a := NewPaystackAdapter(paystackTestKey)
	body := paystackBody("charge.success", 42, "user_1", "pro", time.Now())

	assert.NoError(t, a.Verify(paystackSign(paystackTestKey, body), body))
	assert.ErrorIs(t, a.Verify(paystackSign("sk_wrong", body), body), ErrSignatureInvalid)
	assert.ErrorIs(t, a.Verify(paystackSign(paystackTestKey, body), []byte(`{}`)), ErrSignatureInvalid)
	assert.ErrorIs(t, a.Verify(http.Header{}, body), ErrSignatureInvalid)
}

func TestPaystackAdapter_Parse(t *testing.T) {
	a := NewPaystackAdapter(paystackTestKey)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		paystackEvent string
		want          subscription.EventType
	}{
		{"subscription.create", subscription.EventSubscriptionCreated},
		{"charge.success", subscription.EventInvoicePaid},
		{"invoice.payment_failed", subscription.EventInvoicePaymentFailed},
		{"subscription.disable", subscription.EventSubscriptionCanceled},
	}
	for _, tt := range tests {
		d, err := a.Parse(paystackBody(tt.paystackEvent, 42, "user_1", "executive", at))
		require.NoError(t, err, tt.paystackEvent)
		assert.Equal(t, tt.paystackEvent+":42", d.EventID)
		assert.Equal(t, tt.want, d.Event.Type)
		assert.Equal(t, "paystack", d.Event.Provider)
		assert.Equal(t, "SUB_x1", d.Event.ExternalID)
		assert.Equal(t, plans.Executive, d.Event.Plan)
		assert.True(t, d.Event.OccurredAt.Equal(at))
	}
}

func TestPaystackAdapter_ParseRejects(t *testing.T) {
	a := NewPaystackAdapter(paystackTestKey)

	_, err := a.Parse([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = a.Parse([]byte(`{"event":"charge.success","data":{"id":0}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = a.Parse(paystackBody("transfer.success", 42, "user_1", "pro", time.Now()))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}
