// Package entitlement decides whether a user may perform a product action.
//
// The gate itself is pure: given a plan, a subscription status, and the
// current usage counter it produces a decision. All I/O (resolving the
// user's plan, reading and spending quota) lives in the Service.
package entitlement

import (
	"errors"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/quota"
	"github.com/khanyab/applyflow/internal/subscription"
)

var ErrUnknownAction = errors.New("entitlement: unknown action")

// Denial reasons. A decision carries at most one: the first gate that
// fails wins, checked in the order inactive, feature, quota.
const (
	ReasonSubscriptionInactive = "subscription_inactive"
	ReasonPlanLacksFeature     = "plan_lacks_feature"
	ReasonQuotaExhausted       = "quota_exhausted"
)

// Action is a gateable product operation.
type Action struct {
	Name    string
	Feature string // plan feature that unlocks it
	Metered bool   // true if it spends quota units
}

// actions is the registry of gateable operations.
var actions = map[string]Action{
	"auto_apply": {
		Name:    "auto_apply",
		Feature: plans.FeatureAutoApply,
		Metered: true,
	},
	"cv_review": {
		Name:    "cv_review",
		Feature: plans.FeatureCVReview,
		Metered: false,
	},
	"recruiter_reach": {
		Name:    "recruiter_reach",
		Feature: plans.FeatureRecruiterReach,
		Metered: false,
	},
}

// LookupAction returns the registered action by name.
func LookupAction(name string) (Action, error) {
	a, ok := actions[name]
	if !ok {
		return Action{}, ErrUnknownAction
	}
	return a, nil
}

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason,omitempty"`
	Action    string   `json:"action"`
	Plan      plans.ID `json:"plan"`
	Used      int      `json:"used,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Remaining int      `json:"remaining,omitempty"`
}

// Check is the pure entitlement decision. status is the user's
// subscription status (StatusActive for users on the implicit free plan).
// usage may be nil for unmetered actions.
func Check(plan plans.Plan, status subscription.Status, usage *quota.Usage, action Action) Decision {
	d := Decision{Action: action.Name, Plan: plan.ID}

	if status == subscription.StatusPastDue || status == subscription.StatusCanceled {
		d.Reason = ReasonSubscriptionInactive
		return d
	}

	if !plan.HasFeature(action.Feature) {
		d.Reason = ReasonPlanLacksFeature
		return d
	}

	if action.Metered {
		if usage == nil {
			// No counter yet means nothing consumed
			d.Allowed = true
			d.Limit = plan.MonthlyQuota
			d.Remaining = plan.MonthlyQuota
			return d
		}
		d.Used = usage.Used
		d.Limit = usage.Limit
		d.Remaining = usage.Remaining()
		if d.Remaining <= 0 {
			d.Reason = ReasonQuotaExhausted
			return d
		}
	}

	d.Allowed = true
	return d
}
