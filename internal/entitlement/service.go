package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/khanyab/applyflow/internal/metrics"
	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/quota"
	"github.com/khanyab/applyflow/internal/subscription"
	"github.com/khanyab/applyflow/internal/traces"
)

// SubscriptionSource resolves a user's current subscription.
type SubscriptionSource interface {
	GetByUser(ctx context.Context, userID string) (*subscription.Subscription, error)
}

// Service resolves users to plans and runs entitlement decisions.
type Service struct {
	catalog *plans.Catalog
	subs    SubscriptionSource
	ledger  *quota.Ledger
	now     func() time.Time
}

// NewService creates an entitlement service.
func NewService(catalog *plans.Catalog, subs SubscriptionSource, ledger *quota.Ledger) *Service {
	return &Service{catalog: catalog, subs: subs, ledger: ledger, now: time.Now}
}

// profile is the resolved billing context for one user.
type profile struct {
	plan   plans.Plan
	status subscription.Status
	period string
	sub    *subscription.Subscription // nil for implicit free users
}

// resolve maps a user to plan, status, and quota period. Users without any
// subscription row are on the implicit free plan and treated as active.
func (s *Service) resolve(ctx context.Context, userID string) (*profile, error) {
	sub, err := s.subs.GetByUser(ctx, userID)
	if errors.Is(err, subscription.ErrNotFound) {
		free, err := s.catalog.Get(plans.Free)
		if err != nil {
			return nil, err
		}
		return &profile{
			plan:   free,
			status: subscription.StatusActive,
			period: subscription.FreePeriodKey(s.now()),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	plan, err := s.catalog.Get(sub.Plan)
	if err != nil {
		return nil, err
	}
	return &profile{
		plan:   plan,
		status: sub.Status,
		period: sub.PeriodKey(),
		sub:    sub,
	}, nil
}

// Usage returns the user's current usage counter, opening the period lazily.
func (s *Service) Usage(ctx context.Context, userID string) (*quota.Usage, plans.Plan, error) {
	p, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, plans.Plan{}, err
	}
	u, err := s.ledger.GetUsage(ctx, userID, p.period, p.plan.MonthlyQuota)
	if err != nil {
		return nil, plans.Plan{}, err
	}
	return u, p.plan, nil
}

// Subscription returns the user's current subscription, ErrNotFound included.
func (s *Service) Subscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	return s.subs.GetByUser(ctx, userID)
}

// Check evaluates whether the user may perform the action, without
// spending any quota.
func (s *Service) Check(ctx context.Context, userID, actionName string) (Decision, error) {
	ctx, span := traces.StartSpan(ctx, "entitlement.Check",
		traces.UserID(userID), traces.Action(actionName))
	defer span.End()

	action, err := LookupAction(actionName)
	if err != nil {
		return Decision{}, err
	}

	p, err := s.resolve(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	span.SetAttributes(traces.Plan(string(p.plan.ID)), traces.Period(p.period))

	var usage *quota.Usage
	if action.Metered {
		usage, err = s.ledger.GetUsage(ctx, userID, p.period, p.plan.MonthlyQuota)
		if err != nil {
			return Decision{}, err
		}
	}

	d := Check(p.plan, p.status, usage, action)
	metrics.EntitlementDecisionsTotal.WithLabelValues(action.Name, result(d)).Inc()
	return d, nil
}

// Consume performs the entitlement check and, for metered actions, spends
// one quota unit atomically. The increment itself is the final arbiter:
// under concurrency the conditional update in the store decides who gets
// the last unit, not the earlier read.
func (s *Service) Consume(ctx context.Context, userID, actionName string) (Decision, error) {
	ctx, span := traces.StartSpan(ctx, "entitlement.Consume",
		traces.UserID(userID), traces.Action(actionName))
	defer span.End()

	action, err := LookupAction(actionName)
	if err != nil {
		return Decision{}, err
	}

	p, err := s.resolve(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	span.SetAttributes(traces.Plan(string(p.plan.ID)), traces.Period(p.period))

	d := Decision{Action: action.Name, Plan: p.plan.ID}

	if p.status == subscription.StatusPastDue || p.status == subscription.StatusCanceled {
		d.Reason = ReasonSubscriptionInactive
		metrics.EntitlementDecisionsTotal.WithLabelValues(action.Name, result(d)).Inc()
		return d, nil
	}

	if !p.plan.HasFeature(action.Feature) {
		d.Reason = ReasonPlanLacksFeature
		metrics.EntitlementDecisionsTotal.WithLabelValues(action.Name, result(d)).Inc()
		return d, nil
	}

	if !action.Metered {
		d.Allowed = true
		metrics.EntitlementDecisionsTotal.WithLabelValues(action.Name, result(d)).Inc()
		return d, nil
	}

	usage, err := s.ledger.Consume(ctx, userID, p.period, p.plan.MonthlyQuota, 1)
	if errors.Is(err, quota.ErrQuotaExceeded) {
		d.Reason = ReasonQuotaExhausted
		if current, uerr := s.ledger.GetUsage(ctx, userID, p.period, p.plan.MonthlyQuota); uerr == nil {
			d.Used = current.Used
			d.Limit = current.Limit
		}
		metrics.QuotaExceededTotal.WithLabelValues(string(p.plan.ID)).Inc()
		metrics.EntitlementDecisionsTotal.WithLabelValues(action.Name, result(d)).Inc()
		return d, nil
	}
	if err != nil {
		return Decision{}, err
	}

	d.Allowed = true
	d.Used = usage.Used
	d.Limit = usage.Limit
	d.Remaining = usage.Remaining()
	metrics.QuotaConsumedTotal.WithLabelValues(string(p.plan.ID)).Inc()
	metrics.EntitlementDecisionsTotal.WithLabelValues(action.Name, result(d)).Inc()
	return d, nil
}

func result(d Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return d.Reason
}
