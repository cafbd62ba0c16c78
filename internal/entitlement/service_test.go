package entitlement

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/quota"
	"github.com/khanyab/applyflow/internal/subscription"
)

func setupService() (*Service, *subscription.MemoryStore, *quota.Ledger) {
	catalog := plans.New(nil)
	subStore := subscription.NewMemoryStore()
	ledger := quota.New(quota.NewMemoryStore())
	machine := subscription.NewMachine(subStore, catalog, ledger)
	return NewService(catalog, machine, ledger), subStore, ledger
}

func activeSub(userID string, plan plans.ID, status subscription.Status) *subscription.Subscription {
	now := time.Now()
	return &subscription.Subscription{
		ID:                 "sub_" + userID,
		UserID:             userID,
		Plan:               plan,
		Status:             status,
		Provider:           "yoco",
		CurrentPeriodStart: now,
		LastEventAt:        now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestService_ImplicitFreePlan(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService()

	// No subscription row: free plan, treated as active
	d, err := svc.Check(ctx, "user_1", "auto_apply")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, plans.Free, d.Plan)
	assert.Equal(t, 5, d.Limit)

	// Paid-only features stay gated
	d, err = svc.Check(ctx, "user_1", "cv_review")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPlanLacksFeature, d.Reason)
}

func TestService_CheckNeverConsumes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService()

	for i := 0; i < 20; i++ {
		d, err := svc.Check(ctx, "user_1", "auto_apply")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	u, _, err := svc.Usage(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Used)
}

func TestService_ConsumeFreeQuota(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService()

	for i := 1; i <= 5; i++ {
		d, err := svc.Consume(ctx, "user_1", "auto_apply")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "consume %d", i)
		assert.Equal(t, i, d.Used)
	}

	d, err := svc.Consume(ctx, "user_1", "auto_apply")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonQuotaExhausted, d.Reason)
	assert.Equal(t, 5, d.Used)
	assert.Equal(t, 5, d.Limit)
}

func TestService_ConsumeUnmetered(t *testing.T) {
	ctx := context.Background()
	svc, subStore, _ := setupService()
	require.NoError(t, subStore.Create(ctx, activeSub("user_1", plans.Pro, subscription.StatusActive)))

	// Unmetered actions never touch the ledger
	for i := 0; i < 10; i++ {
		d, err := svc.Consume(ctx, "user_1", "cv_review")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	u, _, err := svc.Usage(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Used)
}

func TestService_InactiveSubscriptionBlocks(t *testing.T) {
	ctx := context.Background()
	svc, subStore, _ := setupService()
	require.NoError(t, subStore.Create(ctx, activeSub("user_1", plans.Pro, subscription.StatusPastDue)))

	d, err := svc.Consume(ctx, "user_1", "auto_apply")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSubscriptionInactive, d.Reason)

	// Nothing was spent while blocked
	u, _, err := svc.Usage(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Used)
}

func TestService_UnknownAction(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService()

	_, err := svc.Check(ctx, "user_1", "teleport")
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = svc.Consume(ctx, "user_1", "teleport")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestService_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	catalog := plans.New(map[plans.ID]int{plans.Free: 10})
	subStore := subscription.NewMemoryStore()
	ledger := quota.New(quota.NewMemoryStore())
	machine := subscription.NewMachine(subStore, catalog, ledger)
	svc := NewService(catalog, machine, ledger)

	const workers = 50

	var (
		allowed atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.Consume(ctx, "user_1", "auto_apply")
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

func TestService_PaidPlanPeriodFollowsPayment(t *testing.T) {
	ctx := context.Background()
	catalog := plans.New(nil)
	subStore := subscription.NewMemoryStore()
	ledger := quota.New(quota.NewMemoryStore())
	machine := subscription.NewMachine(subStore, catalog, ledger)
	svc := NewService(catalog, machine, ledger)

	t0 := time.Now()
	require.NoError(t, machine.Apply(ctx, subscription.Event{
		Type: subscription.EventSubscriptionCreated, Provider: "yoco",
		UserID: "user_1", Plan: plans.Pro, OccurredAt: t0,
	}))
	require.NoError(t, machine.Apply(ctx, subscription.Event{
		Type: subscription.EventInvoicePaid, Provider: "yoco",
		UserID: "user_1", OccurredAt: t0.Add(time.Minute),
	}))

	// Spend some quota in the current period
	for i := 0; i < 3; i++ {
		d, err := svc.Consume(ctx, "user_1", "auto_apply")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	u, plan, err := svc.Usage(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, plans.Pro, plan.ID)
	assert.Equal(t, 3, u.Used)
	assert.Equal(t, 100, u.Limit)

	// The next renewal opens a fresh period with a zeroed counter
	require.NoError(t, machine.Apply(ctx, subscription.Event{
		Type: subscription.EventInvoicePaid, Provider: "yoco",
		UserID: "user_1", OccurredAt: t0.Add(24 * time.Hour * 31),
	}))

	u, _, err = svc.Usage(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Used)
	assert.Equal(t, 100, u.Limit)
}
