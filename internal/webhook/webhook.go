// Package webhook ingests payment provider events and reconciles them
// into subscription state.
//
// Delivery pipeline:
//  1. Verify the provider signature on the raw body
//  2. Parse into a normalized billing event
//  3. Record the delivery before applying it (write-ahead)
//  4. Apply through the subscription state machine
//
// Dedupe rides on the (provider, external event id) unique constraint, so
// a redelivered event is acknowledged without being applied twice. Events
// that cannot be applied yet (out of order) stay unprocessed and are
// retried by the sweeper.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/khanyab/applyflow/internal/subscription"
)

// Errors
var (
	ErrUnknownProvider  = errors.New("webhook: unknown provider")
	ErrSignatureInvalid = errors.New("webhook: signature verification failed")
	ErrMalformedPayload = errors.New("webhook: malformed payload")
	ErrUnsupportedEvent = errors.New("webhook: unsupported event type")
	ErrDuplicateEvent   = errors.New("webhook: event already recorded")
)

// Delivery is a parsed provider delivery: the provider-side event ID used
// for dedupe plus the normalized billing event.
type Delivery struct {
	EventID string
	Event   subscription.Event
}

// Adapter verifies and normalizes one provider's deliveries.
type Adapter interface {
	// Provider returns the provider slug used in the webhook URL.
	Provider() string

	// Verify checks the delivery signature against the raw body.
	Verify(header http.Header, body []byte) error

	// Parse normalizes the raw body into a billing event. Deliveries the
	// platform does not care about return ErrUnsupportedEvent.
	Parse(body []byte) (Delivery, error)
}

// Record is the write-ahead row for one webhook delivery.
type Record struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ExternalEventID string     `json:"externalEventId"`
	EventType       string     `json:"eventType"`
	UserID          string     `json:"userId"`
	Payload         []byte     `json:"-"`
	ReceivedAt      time.Time  `json:"receivedAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"lastError,omitempty"`
	Note            string     `json:"note,omitempty"` // terminal outcome: applied, superseded, invalid_transition, ...
}

// Store persists webhook delivery records.
type Store interface {
	// Insert records a delivery before it is applied. Returns
	// ErrDuplicateEvent if (provider, external event id) was seen before.
	Insert(ctx context.Context, r *Record) error

	// MarkProcessed stamps the record as terminally handled with an
	// outcome note.
	MarkProcessed(ctx context.Context, id, note string) error

	// MarkFailed increments the attempt counter and records the error,
	// leaving the record eligible for the sweeper.
	MarkFailed(ctx context.Context, id, errMsg string) error

	// ListUnprocessed returns records with no processed stamp and fewer
	// than maxAttempts attempts, oldest first.
	ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]*Record, error)
}
