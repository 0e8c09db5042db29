package aipostblog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Ledger is the admission and accounting authority for per-user token budgets.
// All state lives in the QuotaStore; the ledger itself is stateless.
type Ledger struct {
	store  QuotaStore
	plans  Plans
	period Period
	now    func() time.Time
	logger *zap.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithPeriod sets the accounting period (default monthly).
func WithPeriod(p Period) LedgerOption {
	return func(l *Ledger) { l.period = p }
}

// WithPlans overrides the plan budgets.
func WithPlans(p Plans) LedgerOption {
	return func(l *Ledger) { l.plans = p }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithLedgerLogger sets the logger used by the rollover sweeper.
func WithLedgerLogger(logger *zap.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a ledger over a store.
func NewLedger(store QuotaStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		plans:  DefaultPlans(),
		period: PeriodMonthly,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Period returns the accounting period.
func (l *Ledger) Period() Period { return l.period }

// Current returns the user's row for the present period, creating it on first access.
func (l *Ledger) Current(ctx context.Context, userID string, tier PlanTier) (Quota, error) {
	resetAt := l.period.End(l.now())

	q, err := l.store.GetCurrent(ctx, userID, resetAt)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, ErrQuotaNotFound) {
		return Quota{}, fmt.Errorf("aipostblog: ledger: get current: %w", err)
	}

	total, err := l.plans.Tokens(tier)
	if err != nil {
		return Quota{}, err
	}
	q, err = l.store.Create(ctx, userID, tier, total, resetAt)
	if err != nil {
		return Quota{}, fmt.Errorf("aipostblog: ledger: create: %w", err)
	}
	return q, nil
}

// CheckAndReserve is soft admission control: it passes iff used+estimated <= total.
// Nothing is held back; the caller debits actual usage afterwards.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID string, tier PlanTier, estimated int64) (Quota, bool, error) {
	q, err := l.Current(ctx, userID, tier)
	if err != nil {
		return Quota{}, false, err
	}
	return q, q.TokensUsed+estimated <= q.TokensTotal, nil
}

// Debit adds actual usage to the row admitted for the request.
func (l *Ledger) Debit(ctx context.Context, q Quota, tokens int64) (Quota, error) {
	if tokens < 0 {
		return q, fmt.Errorf("aipostblog: ledger: negative debit %d", tokens)
	}
	if tokens == 0 {
		return q, nil
	}
	updated, err := l.store.IncrementUsed(ctx, q.ID, tokens)
	if err != nil {
		return q, fmt.Errorf("aipostblog: ledger: debit: %w", err)
	}
	return updated, nil
}

// Rollover starts a fresh period for every expired row and returns how many
// rows were rolled. It is the only operation that resets usage.
func (l *Ledger) Rollover(ctx context.Context) (int, error) {
	now := l.now()
	expired, err := l.store.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("aipostblog: ledger: list expired: %w", err)
	}

	resetAt := l.period.End(now)
	var rolled int
	for _, q := range expired {
		if err := ctx.Err(); err != nil {
			return rolled, err
		}
		if _, err := l.store.Rollover(ctx, q.ID, resetAt); err != nil {
			return rolled, fmt.Errorf("aipostblog: ledger: rollover %s: %w", q.ID, err)
		}
		rolled++
	}
	return rolled, nil
}

// Run sweeps expired rows every interval until ctx is done.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := l.Rollover(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			l.logger.Error("rollover sweep failed", zap.Error(err), zap.Int("rolled", n))
		case n > 0:
			l.logger.Info("rollover sweep", zap.Int("rolled", n))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
