package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanyab/applyflow/internal/testutil"
)

func pgRecord(id, externalEventID string, receivedAt time.Time) *Record {
	return &Record{
		ID:              id,
		Provider:        "yoco",
		ExternalEventID: externalEventID,
		EventType:       "invoice.paid",
		UserID:          "user_1",
		Payload:         []byte(`{"id":"` + externalEventID + `"}`),
		ReceivedAt:      receivedAt,
	}
}

func TestWebhookPostgresStore_InsertDedupe(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	require.NoError(t, store.Insert(ctx, pgRecord("evt_a", "ext_1", time.Now())))

	// Same provider event under a new record ID is a redelivery
	err := store.Insert(ctx, pgRecord("evt_b", "ext_1", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	// Same external ID from a different provider is a distinct event
	other := pgRecord("evt_c", "ext_1", time.Now())
	other.Provider = "paystack"
	require.NoError(t, store.Insert(ctx, other))
}

func TestWebhookPostgresStore_Lifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	now := time.Now()
	require.NoError(t, store.Insert(ctx, pgRecord("evt_a", "ext_1", now.Add(-2*time.Minute))))
	require.NoError(t, store.Insert(ctx, pgRecord("evt_b", "ext_2", now.Add(-time.Minute))))
	require.NoError(t, store.Insert(ctx, pgRecord("evt_c", "ext_3", now)))

	require.NoError(t, store.MarkProcessed(ctx, "evt_a", "applied"))
	require.NoError(t, store.MarkFailed(ctx, "evt_b", "subscription not found"))

	records, err := store.ListUnprocessed(ctx, 5, 100)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Oldest first
	assert.Equal(t, "evt_b", records[0].ID)
	assert.Equal(t, 1, records[0].Attempts)
	assert.Equal(t, "subscription not found", records[0].LastError)
	assert.Equal(t, "evt_c", records[1].ID)
}

func TestWebhookPostgresStore_MaxAttemptsFilter(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	require.NoError(t, store.Insert(ctx, pgRecord("evt_a", "ext_1", time.Now())))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.MarkFailed(ctx, "evt_a", "still failing"))
	}

	records, err := store.ListUnprocessed(ctx, 3, 100)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = store.ListUnprocessed(ctx, 5, 100)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWebhookPostgresStore_NotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	assert.Error(t, store.MarkProcessed(ctx, "evt_ghost", "applied"))
	assert.Error(t, store.MarkFailed(ctx, "evt_ghost", "boom"))
}
