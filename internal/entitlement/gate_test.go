package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/quota"
	"github.com/khanyab/applyflow/internal/subscription"
)

func testPlan(id plans.ID) plans.Plan {
	p, _ := plans.New(nil).Get(id)
	return p
}

func TestLookupAction(t *testing.T) {
	a, err := LookupAction("auto_apply")
	require.NoError(t, err)
	assert.True(t, a.Metered)
	assert.Equal(t, plans.FeatureAutoApply, a.Feature)

	a, err = LookupAction("cv_review")
	require.NoError(t, err)
	assert.False(t, a.Metered)

	_, err = LookupAction("teleport")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestCheck_Allowed(t *testing.T) {
	action, _ := LookupAction("auto_apply")
	usage := &quota.Usage{Used: 3, Limit: 100}

	d := Check(testPlan(plans.Pro), subscription.StatusActive, usage, action)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
	assert.Equal(t, 3, d.Used)
	assert.Equal(t, 97, d.Remaining)
}

func TestCheck_InactiveSubscription(t *testing.T) {
	action, _ := LookupAction("auto_apply")
	usage := &quota.Usage{Used: 0, Limit: 100}

	for _, status := range []subscription.Status{subscription.StatusPastDue, subscription.StatusCanceled} {
		d := Check(testPlan(plans.Pro), status, usage, action)
		assert.False(t, d.Allowed, string(status))
		assert.Equal(t, ReasonSubscriptionInactive, d.Reason)
	}

	// Trial counts as active for gating
	d := Check(testPlan(plans.Pro), subscription.StatusTrial, usage, action)
	assert.True(t, d.Allowed)
}

func TestCheck_PlanLacksFeature(t *testing.T) {
	action, _ := LookupAction("recruiter_reach")

	d := Check(testPlan(plans.Pro), subscription.StatusActive, nil, action)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPlanLacksFeature, d.Reason)

	d = Check(testPlan(plans.Executive), subscription.StatusActive, nil, action)
	assert.True(t, d.Allowed)
}

func TestCheck_QuotaExhausted(t *testing.T) {
	action, _ := LookupAction("auto_apply")
	usage := &quota.Usage{Used: 5, Limit: 5}

	d := Check(testPlan(plans.Free), subscription.StatusActive, usage, action)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonQuotaExhausted, d.Reason)
	assert.Equal(t, 5, d.Used)
	assert.Equal(t, 0, d.Remaining)
}

func TestCheck_InactiveWinsOverQuota(t *testing.T) {
	// Both gates fail; the subscription status is reported, not the quota
	action, _ := LookupAction("auto_apply")
	usage := &quota.Usage{Used: 5, Limit: 5}

	d := Check(testPlan(plans.Free), subscription.StatusCanceled, usage, action)
	assert.Equal(t, ReasonSubscriptionInactive, d.Reason)
}

func TestCheck_NilUsageMeansUntouchedQuota(t *testing.T) {
	action, _ := LookupAction("auto_apply")

	d := Check(testPlan(plans.Free), subscription.StatusActive, nil, action)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.Remaining)
}

func TestCheck_UnmeteredIgnoresQuota(t *testing.T) {
	action, _ := LookupAction("cv_review")
	usage := &quota.Usage{Used: 100, Limit: 100}

	d := Check(testPlan(plans.Pro), subscription.StatusActive, usage, action)
	assert.True(t, d.Allowed)
}
