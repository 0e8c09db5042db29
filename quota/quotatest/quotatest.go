// Package quotatest is a conformance suite for QuotaStore implementations.
package quotatest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kai200407/aipostblog"
)

// Run exercises a store. newStore must return an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) aipostblog.QuotaStore) {
	t.Helper()

	march := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("GetCurrentMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetCurrent(context.Background(), "nobody", march)
		assert.ErrorIs(t, err, aipostblog.ErrQuotaNotFound)
	})

	t.Run("CreateIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		q, err := s.Create(ctx, "u1", aipostblog.PlanFree, 10000, march)
		require.NoError(t, err)
		assert.NotEmpty(t, q.ID)
		assert.Equal(t, "u1", q.UserID)
		assert.Equal(t, aipostblog.PlanFree, q.Tier)
		assert.Equal(t, int64(10000), q.TokensTotal)
		assert.Equal(t, int64(0), q.TokensUsed)
		assert.True(t, q.ResetAt.Equal(march))

		_, err = s.IncrementUsed(ctx, q.ID, 42)
		require.NoError(t, err)

		again, err := s.Create(ctx, "u1", aipostblog.PlanPro, 200000, march)
		require.NoError(t, err)
		assert.Equal(t, q.ID, again.ID)
		assert.Equal(t, int64(42), again.TokensUsed)
		assert.Equal(t, int64(10000), again.TokensTotal)

		got, err := s.GetCurrent(ctx, "u1", march)
		require.NoError(t, err)
		assert.Equal(t, q.ID, got.ID)
	})

	t.Run("IncrementUsedAccumulates", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		q, err := s.Create(ctx, "u1", aipostblog.PlanFree, 10000, march)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.IncrementUsed(ctx, q.ID, 5)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.GetCurrent(ctx, "u1", march)
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.TokensUsed)

		updated, err := s.IncrementUsed(ctx, q.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(101), updated.TokensUsed)
	})

	t.Run("IncrementUsedUnknownRow", func(t *testing.T) {
		s := newStore(t)
		_, err := s.IncrementUsed(context.Background(), "00000000-0000-0000-0000-000000000000", 1)
		assert.ErrorIs(t, err, aipostblog.ErrQuotaNotFound)
	})

	t.Run("RolloverAppendsRow", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		now := march.Add(time.Hour)

		expired, err := s.Create(ctx, "u1", aipostblog.PlanPro, 200000, march)
		require.NoError(t, err)
		_, err = s.IncrementUsed(ctx, expired.ID, 700)
		require.NoError(t, err)
		_, err = s.Create(ctx, "u2", aipostblog.PlanFree, 10000, april)
		require.NoError(t, err)

		list, err := s.ListExpired(ctx, now)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, expired.ID, list[0].ID)

		next, err := s.Rollover(ctx, expired.ID, april)
		require.NoError(t, err)
		assert.NotEqual(t, expired.ID, next.ID)
		assert.Equal(t, "u1", next.UserID)
		assert.Equal(t, aipostblog.PlanPro, next.Tier)
		assert.Equal(t, int64(200000), next.TokensTotal)
		assert.Equal(t, int64(0), next.TokensUsed)
		assert.True(t, next.ResetAt.Equal(april))

		old, err := s.GetCurrent(ctx, "u1", march)
		require.NoError(t, err)
		assert.Equal(t, int64(700), old.TokensUsed)

		list, err = s.ListExpired(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, list)

		again, err := s.Rollover(ctx, expired.ID, april)
		require.NoError(t, err)
		assert.Equal(t, next.ID, again.ID)
	})

	t.Run("ListExpiredBoundary", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.Create(ctx, "u1", aipostblog.PlanFree, 10000, march)
		require.NoError(t, err)

		list, err := s.ListExpired(ctx, march.Add(-time.Second))
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = s.ListExpired(ctx, march)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
