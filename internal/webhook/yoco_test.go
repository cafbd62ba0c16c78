package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/subscription"
)

const yocoTestSecret = "whsec_dGVzdC1zaWduaW5nLXNlY3JldA==" // base64("test-signing-secret")

// yocoSign builds the svix-style signature headers Yoco sends.
func yocoSign(secret string, id string, at time.Time, body []byte) http.Header {
	raw, _ := base64.StdEncoding.DecodeString(secret[len("whsec_"):])
	ts := strconv.FormatInt(at.Unix(), 10)

	mac := hmac.New(sha256.New, raw)
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("webhook-id", id)
	h.Set("webhook-timestamp", ts)
	h.Set("webhook-signature", "v1,"+sig)
	return h
}

func yocoBody(eventID, eventType, userID, plan string, at time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"createdDate":%q,"payload":{"metadata":{"userId":%q,"plan":%q,"subscriptionId":"ysub_1"}}}`,
		eventID, eventType, at.UTC().Format(time.RFC3339), userID, plan,
	))
}

func newTestYocoAdapter(t *testing.T) *YocoAdapter {
	t.Helper()
	a, err := NewYocoAdapter(yocoTestSecret)
	require.NoError(t, err)
	return a
}

func TestYocoAdapter_Verify(t *testing.T) {
	a := newTestYocoAdapter(t)
	now := time.Now()
	body := yocoBody("evt_1", "payment.succeeded", "user_1", "pro", now)

	assert.NoError(t, a.Verify(yocoSign(yocoTestSecret, "msg_1", now, body), body))

	// Tampered body
	assert.ErrorIs(t, a.Verify(yocoSign(yocoTestSecret, "msg_1", now, body), []byte(`{}`)), ErrSignatureInvalid)

	// Wrong secret
	otherSecret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("other"))
	assert.ErrorIs(t, a.Verify(yocoSign(otherSecret, "msg_1", now, body), body), ErrSignatureInvalid)

	// Missing headers
	assert.ErrorIs(t, a.Verify(http.Header{}, body), ErrSignatureInvalid)
}

func TestYocoAdapter_VerifyTimestampSkew(t *testing.T) {
	a := newTestYocoAdapter(t)
	body := yocoBody("evt_1", "payment.succeeded", "user_1", "pro", time.Now())

	stale := time.Now().Add(-10 * time.Minute)
	assert.ErrorIs(t, a.Verify(yocoSign(yocoTestSecret, "msg_1", stale, body), body), ErrSignatureInvalid)

	future := time.Now().Add(10 * time.Minute)
	assert.ErrorIs(t, a.Verify(yocoSign(yocoTestSecret, "msg_1", future, body), body), ErrSignatureInvalid)
}

func TestYocoAdapter_VerifySecretRotation(t *testing.T) {
	a := newTestYocoAdapter(t)
	now := time.Now()
	body := yocoBody("evt_1", "payment.succeeded", "user_1", "pro", now)

	// During rotation the header carries the old and new signature
	good := yocoSign(yocoTestSecret, "msg_1", now, body).Get("webhook-signature")
	h := yocoSign(yocoTestSecret, "msg_1", now, body)
	h.Set("webhook-signature", "v1,Z2FyYmFnZQ== "+good)

	assert.NoError(t, a.Verify(h, body))
}

func TestYocoAdapter_Parse(t *testing.T) {
	a := newTestYocoAdapter(t)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		yocoType string
		want     subscription.EventType
	}{
		{"subscription.created", subscription.EventSubscriptionCreated},
		{"payment.succeeded", subscription.EventInvoicePaid},
		{"payment.failed", subscription.EventInvoicePaymentFailed},
		{"subscription.cancelled", subscription.EventSubscriptionCanceled},
	}
	for _, tt := range tests {
		d, err := a.Parse(yocoBody("evt_1", tt.yocoType, "user_1", "pro", at))
		require.NoError(t, err, tt.yocoType)
		assert.Equal(t, "evt_1", d.EventID)
		assert.Equal(t, tt.want, d.Event.Type)
		assert.Equal(t, "yoco", d.Event.Provider)
		assert.Equal(t, "user_1", d.Event.UserID)
		assert.Equal(t, plans.Pro, d.Event.Plan)
		assert.True(t, d.Event.OccurredAt.Equal(at))
	}
}

func TestYocoAdapter_ParseRejects(t *testing.T) {
	a := newTestYocoAdapter(t)
	at := time.Now()

	_, err := a.Parse([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Missing event ID or user
	_, err = a.Parse([]byte(`{"type":"payment.succeeded"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Event types the platform does not reconcile
	_, err = a.Parse(yocoBody("evt_1", "refund.succeeded", "user_1", "pro", at))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestNewYocoAdapter_BadSecret(t *testing.T) {
	_, err := NewYocoAdapter("whsec_!!!not-base64!!!")
	assert.Error(t, err)
}
