// Package quota tracks metered usage per user and billing period.
//
// Flow:
//  1. A period opens lazily on first use, snapshotting the plan's limit
//  2. Consume atomically increments usage, rejecting past the snapshot
//  3. A payment event resets the counter by opening the next period
//
// The limit is frozen per period: plan changes take effect on the next
// period, never retroactively.
package quota

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrPeriodClosed  = errors.New("period not open")
)

// Usage is the metered counter for one user in one billing period.
type Usage struct {
	UserID    string    `json:"userId"`
	Period    string    `json:"period"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Remaining returns the unused units, never negative.
func (u *Usage) Remaining() int {
	if r := u.Limit - u.Used; r > 0 {
		return r
	}
	return 0
}

// Store persists quota periods.
type Store interface {
	// GetUsage returns the usage row for (userID, period), or nil if the
	// period has not been opened yet.
	GetUsage(ctx context.Context, userID, period string) (*Usage, error)

	// OpenPeriod creates the (userID, period) row with used=0 and the
	// given limit snapshot. A no-op if the row already exists.
	OpenPeriod(ctx context.Context, userID, period string, limit int) error

	// Consume atomically adds amount to used if and only if the result
	// stays within the period's limit. Returns the updated usage or
	// ErrQuotaExceeded. The period must already be open.
	Consume(ctx context.Context, userID, period string, amount int) (*Usage, error)
}

// Ledger manages metered usage counters.
type Ledger struct {
	store Store
}

// New creates a new quota ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetUsage returns the current usage for a user's period, lazily opening
// the period at the given limit if it does not exist yet.
func (l *Ledger) GetUsage(ctx context.Context, userID, period string, limit int) (*Usage, error) {
	u, err := l.store.GetUsage(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	if err := l.store.OpenPeriod(ctx, userID, period, limit); err != nil {
		return nil, err
	}
	return l.store.GetUsage(ctx, userID, period)
}

// Consume atomically spends amount units from a user's period. The period
// is opened lazily at the given limit on first use. Returns the updated
// usage, or ErrQuotaExceeded when the increment would pass the limit.
func (l *Ledger) Consume(ctx context.Context, userID, period string, limit, amount int) (*Usage, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	// Lazy open. Racing opens are safe: the store treats an existing
	// row as success.
	if err := l.store.OpenPeriod(ctx, userID, period, limit); err != nil {
		return nil, err
	}

	return l.store.Consume(ctx, userID, period, amount)
}

// ResetPeriod opens a fresh counter for the given period at the given
// limit. Used counters from earlier periods are kept for history. A
// duplicate reset for the same period is a no-op, which keeps payment
// replays idempotent.
func (l *Ledger) ResetPeriod(ctx context.Context, userID, period string, limit int) error {
	return l.store.OpenPeriod(ctx, userID, period, limit)
}
