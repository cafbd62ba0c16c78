// Package subscription tracks the billing lifecycle of a user.
//
// State machine:
//
//	trial    -> active    (invoice.paid)
//	active   -> past_due  (invoice.payment_failed)
//	past_due -> active    (invoice.paid)
//	any      -> canceled  (subscription.canceled)
//
// canceled is terminal. Transitions arrive as normalized payment provider
// events; anything the table does not allow is an invalid transition, which
// is logged and swallowed rather than retried.
package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/khanyab/applyflow/internal/plans"
)

// Errors
var (
	ErrNotFound          = errors.New("subscription: not found")
	ErrAlreadyExists     = errors.New("subscription: active subscription exists")
	ErrInvalidTransition = errors.New("subscription: invalid transition")
	ErrStaleEvent        = errors.New("subscription: stale event")
)

// Status represents a subscription's lifecycle state.
type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// EventType identifies a normalized payment provider event.
type EventType string

const (
	EventSubscriptionCreated  EventType = "subscription.created"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
	EventSubscriptionCanceled EventType = "subscription.canceled"
)

// Subscription represents a user's billing relationship.
type Subscription struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Plan               plans.ID  `json:"plan"`
	Status             Status    `json:"status"`
	Provider           string    `json:"provider"`
	ExternalID         string    `json:"externalId,omitempty"` // provider-side subscription ref
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`
	LastEventAt        time.Time `json:"lastEventAt"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Inactive reports whether the subscription blocks paid entitlements.
func (s *Subscription) Inactive() bool {
	return s.Status == StatusPastDue || s.Status == StatusCanceled
}

// PeriodKey returns the quota period identifier for this subscription.
// Paid subscriptions anchor periods to the last successful payment;
// before any payment the calendar month of creation is used.
func (s *Subscription) PeriodKey() string {
	if !s.CurrentPeriodStart.IsZero() {
		return s.CurrentPeriodStart.UTC().Format("2006-01-02")
	}
	return s.CreatedAt.UTC().Format("2006-01")
}

// FreePeriodKey is the quota period for users without a subscription:
// the current UTC calendar month.
func FreePeriodKey(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// transitions is the allowed state machine, keyed by event then current status.
var transitions = map[EventType]map[Status]Status{
	EventInvoicePaid: {
		StatusTrial:   StatusActive,
		StatusActive:  StatusActive, // renewal
		StatusPastDue: StatusActive, // recovery
	},
	EventInvoicePaymentFailed: {
		StatusActive:  StatusPastDue,
		StatusPastDue: StatusPastDue, // repeated dunning attempt
	},
	EventSubscriptionCanceled: {
		StatusTrial:   StatusCanceled,
		StatusActive:  StatusCanceled,
		StatusPastDue: StatusCanceled,
	},
}

// Next returns the status after applying the event, or ErrInvalidTransition.
func Next(current Status, event EventType) (Status, error) {
	to, ok := transitions[event][current]
	if !ok {
		return "", ErrInvalidTransition
	}
	return to, nil
}

// Store persists subscriptions.
type Store interface {
	// Create inserts a new subscription. Returns ErrAlreadyExists if the
	// user already has a non-canceled subscription.
	Create(ctx context.Context, s *Subscription) error

	// GetByUser returns the user's most recent subscription, canceled
	// included, or ErrNotFound if the user never subscribed.
	GetByUser(ctx context.Context, userID string) (*Subscription, error)

	// Update persists status, plan, period and event timestamps.
	Update(ctx context.Context, s *Subscription) error
}
