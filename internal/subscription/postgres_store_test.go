package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/testutil"
)

func TestPostgresStore_CreateGetUpdate(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	sub := &Subscription{
		ID:          "sub_pg1",
		UserID:      "user_1",
		Plan:        plans.Pro,
		Status:      StatusTrial,
		Provider:    "yoco",
		ExternalID:  "ext_1",
		LastEventAt: time.Now().Add(-time.Hour),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, store.Create(ctx, sub))

	got, err := store.GetByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_pg1", got.ID)
	assert.Equal(t, plans.Pro, got.Plan)
	assert.Equal(t, StatusTrial, got.Status)
	assert.True(t, got.CurrentPeriodStart.IsZero())

	got.Status = StatusActive
	got.CurrentPeriodStart = time.Now()
	got.LastEventAt = time.Now()
	require.NoError(t, store.Update(ctx, got))

	got, err = store.GetByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.False(t, got.CurrentPeriodStart.IsZero())
}

func TestPostgresStore_OneLiveSubscriptionPerUser(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	first := &Subscription{
		ID: "sub_pg1", UserID: "user_1", Plan: plans.Pro, Status: StatusActive,
		Provider: "yoco", LastEventAt: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.Create(ctx, first))

	err := store.Create(ctx, &Subscription{
		ID: "sub_pg2", UserID: "user_1", Plan: plans.Executive, Status: StatusTrial,
		Provider: "yoco", LastEventAt: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Once canceled, a new subscription may be created
	first.Status = StatusCanceled
	require.NoError(t, store.Update(ctx, first))

	require.NoError(t, store.Create(ctx, &Subscription{
		ID: "sub_pg3", UserID: "user_1", Plan: plans.Executive, Status: StatusTrial,
		Provider: "paystack", LastEventAt: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	got, err := store.GetByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_pg3", got.ID)
}

func TestPostgresStore_NotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	_, err := store.GetByUser(ctx, "user_ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Update(ctx, &Subscription{ID: "sub_ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}
