package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/khanyab/applyflow/internal/idgen"
	"github.com/khanyab/applyflow/internal/logging"
	"github.com/khanyab/applyflow/internal/metrics"
	"github.com/khanyab/applyflow/internal/plans"
)

// Event is a normalized payment provider event ready to be applied.
type Event struct {
	Type       EventType
	Provider   string
	ExternalID string   // provider-side subscription ref, if any
	UserID     string
	Plan       plans.ID  // set on subscription.created
	OccurredAt time.Time // provider-side timestamp, used for ordering
}

// QuotaResetter opens a fresh quota period when a payment lands.
type QuotaResetter interface {
	ResetPeriod(ctx context.Context, userID, period string, limit int) error
}

// Machine applies normalized billing events to subscription state.
type Machine struct {
	store   Store
	catalog *plans.Catalog
	quota   QuotaResetter
}

// NewMachine creates a subscription state machine.
func NewMachine(store Store, catalog *plans.Catalog, quota QuotaResetter) *Machine {
	return &Machine{store: store, catalog: catalog, quota: quota}
}

// GetByUser returns the user's most recent subscription.
func (m *Machine) GetByUser(ctx context.Context, userID string) (*Subscription, error) {
	return m.store.GetByUser(ctx, userID)
}

// Apply transitions the user's subscription according to the event.
//
// Ordering is enforced with the provider-side timestamp: an event older
// than the last applied one returns ErrStaleEvent and changes nothing, so
// a late payment_failed can never regress a recovered subscription.
// Disallowed transitions return ErrInvalidTransition; both are terminal
// outcomes for the event, not retryable failures.
func (m *Machine) Apply(ctx context.Context, ev Event) error {
	if ev.Type == EventSubscriptionCreated {
		return m.applyCreated(ctx, ev)
	}

	sub, err := m.store.GetByUser(ctx, ev.UserID)
	if err != nil {
		return err
	}

	if !ev.OccurredAt.After(sub.LastEventAt) {
		return ErrStaleEvent
	}

	next, err := Next(sub.Status, ev.Type)
	if err != nil {
		logging.L(ctx).Warn("invalid subscription transition",
			"user_id", ev.UserID,
			"status", string(sub.Status),
			"event", string(ev.Type),
		)
		return err
	}

	prev := sub.Status
	sub.Status = next
	sub.LastEventAt = ev.OccurredAt
	sub.UpdatedAt = time.Now()

	if ev.Type == EventInvoicePaid {
		sub.CurrentPeriodStart = ev.OccurredAt
	}

	if err := m.store.Update(ctx, sub); err != nil {
		return err
	}
	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(prev), string(next)).Inc()

	// A successful payment opens a fresh quota period at the plan's limit.
	if ev.Type == EventInvoicePaid {
		plan, err := m.catalog.Get(sub.Plan)
		if err != nil {
			return err
		}
		if err := m.quota.ResetPeriod(ctx, sub.UserID, sub.PeriodKey(), plan.MonthlyQuota); err != nil {
			return err
		}
		logging.L(ctx).Info("quota period reset",
			"user_id", sub.UserID,
			"period", sub.PeriodKey(),
			"limit", plan.MonthlyQuota,
		)
	}

	return nil
}

func (m *Machine) applyCreated(ctx context.Context, ev Event) error {
	planID := ev.Plan
	if !m.catalog.Valid(planID) {
		return plans.ErrPlanNotFound
	}

	existing, err := m.store.GetByUser(ctx, ev.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Status != StatusCanceled {
		// Creating over a live subscription is a provider replay or a
		// misrouted event, never a valid transition.
		logging.L(ctx).Warn("subscription already exists",
			"user_id", ev.UserID,
			"status", string(existing.Status),
		)
		return ErrInvalidTransition
	}

	now := time.Now()
	sub := &Subscription{
		ID:          idgen.WithPrefix("sub_"),
		UserID:      ev.UserID,
		Plan:        planID,
		Status:      StatusTrial,
		Provider:    ev.Provider,
		ExternalID:  ev.ExternalID,
		LastEventAt: ev.OccurredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.store.Create(ctx, sub); err != nil {
		return err
	}
	metrics.SubscriptionTransitionsTotal.WithLabelValues("none", string(StatusTrial)).Inc()

	logging.L(ctx).Info("subscription created",
		"user_id", ev.UserID,
		"plan", string(planID),
		"provider", ev.Provider,
	)
	return nil
}
