package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanyab/applyflow/internal/testutil"
)

func TestPostgresStore_OpenAndConsume(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	require.NoError(t, store.OpenPeriod(ctx, "user_1", "2026-08", 5))

	// Reopening keeps the original snapshot
	require.NoError(t, store.OpenPeriod(ctx, "user_1", "2026-08", 100))

	u, err := store.GetUsage(ctx, "user_1", "2026-08")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, 5, u.Limit)
	assert.Equal(t, 0, u.Used)

	u, err = store.Consume(ctx, "user_1", "2026-08", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, u.Used)

	_, err = store.Consume(ctx, "user_1", "2026-08", 1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestPostgresStore_GetUsageUnopened(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	u, err := store.GetUsage(ctx, "user_1", "2026-08")
	require.NoError(t, err)
	assert.Nil(t, u)

	_, err = store.Consume(ctx, "user_1", "2026-08", 1)
	assert.ErrorIs(t, err, ErrPeriodClosed)
}

func TestPostgresStore_ConcurrentConsume(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	ledger := New(NewPostgresStore(db))

	const (
		workers = 50
		limit   = 10
	)

	var (
		allowed atomic.Int64
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Consume(ctx, "user_1", "2026-08", limit, 1); err == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())

	u, err := ledger.GetUsage(ctx, "user_1", "2026-08", limit)
	require.NoError(t, err)
	assert.Equal(t, limit, u.Used)
}
