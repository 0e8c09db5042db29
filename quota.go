package aipostblog

import (
	"context"
	"fmt"
	"time"
)

// Quota is one user's token budget for one accounting period.
type Quota struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Tier        PlanTier  `json:"plan"`
	TokensTotal int64     `json:"tokens_total"`
	TokensUsed  int64     `json:"tokens_used"`
	ResetAt     time.Time `json:"reset_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Remaining returns the unused budget, never below zero.
func (q Quota) Remaining() int64 {
	if r := q.TokensTotal - q.TokensUsed; r > 0 {
		return r
	}
	return 0
}

// Expired reports whether the period has ended at now.
func (q Quota) Expired(now time.Time) bool {
	return !now.Before(q.ResetAt)
}

// QuotaStore persists quota rows. Rows are keyed by (userID, resetAt) and are
// never deleted; IncrementUsed must be atomic at the storage layer.
type QuotaStore interface {
	// GetCurrent returns the user's row for the period ending at resetAt,
	// or ErrQuotaNotFound.
	GetCurrent(ctx context.Context, userID string, resetAt time.Time) (Quota, error)

	// Create inserts a row with zero usage. Creating a row that already
	// exists returns the existing row.
	Create(ctx context.Context, userID string, tier PlanTier, total int64, resetAt time.Time) (Quota, error)

	// IncrementUsed adds tokens to a row and returns the updated row.
	IncrementUsed(ctx context.Context, quotaID string, tokens int64) (Quota, error)

	// ListExpired returns each user's latest row whose resetAt is not after now.
	ListExpired(ctx context.Context, now time.Time) ([]Quota, error)

	// Rollover appends the next period's row for the owner of quotaID with
	// zero usage and the given resetAt. The expired row is left untouched.
	Rollover(ctx context.Context, quotaID string, newResetAt time.Time) (Quota, error)
}

// UsageRecorder persists settled generations. Stores may implement it.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// Period is an accounting period length.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodDaily   Period = "daily"
)

// End returns the first instant after the period containing t, in UTC.
func (p Period) End(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodDaily:
		return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	}
}

// Validate reports an unknown period.
func (p Period) Validate() error {
	switch p {
	case PeriodMonthly, PeriodDaily:
		return nil
	}
	return fmt.Errorf("aipostblog: unknown period %q", p)
}
