package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ap "github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/quota/quotatest"
	"github.com/kai200407/aipostblog/quota/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "data", "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	quotatest.Run(t, func(t *testing.T) ap.QuotaStore { return openStore(t) })
}

func TestUsageRecords(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordUsage(ctx, ap.UsageRecord{
		ID:           "r1",
		UserID:       "u1",
		QuotaID:      "q1",
		Model:        "glm-4-air",
		ContentType:  ap.ContentTweet,
		TemplateID:   "tweet-casual",
		Input:        "想法",
		Output:       "推文",
		InputTokens:  100,
		OutputTokens: 40,
		Attempts:     []string{"glm-4-air"},
		CreatedAt:    base,
	}))
	require.NoError(t, s.RecordUsage(ctx, ap.UsageRecord{
		ID:          "r2",
		UserID:      "u1",
		Model:       "glm-4-flash",
		ContentType: ap.ContentLinkedIn,
		TemplateID:  "linkedin-professional",
		Attempts:    []string{"glm-4", "glm-4-flash"},
		Streamed:    true,
		Partial:     true,
		CreatedAt:   base.Add(time.Minute),
	}))

	recs, err := s.UsageRecords(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "r2", recs[0].ID)
	assert.Equal(t, "", recs[0].QuotaID)
	assert.True(t, recs[0].Streamed)
	assert.True(t, recs[0].Partial)
	assert.Equal(t, []string{"glm-4", "glm-4-flash"}, recs[0].Attempts)

	assert.Equal(t, ap.UsageRecord{
		ID:           "r1",
		UserID:       "u1",
		QuotaID:      "q1",
		Model:        "glm-4-air",
		ContentType:  ap.ContentTweet,
		TemplateID:   "tweet-casual",
		Input:        "想法",
		Output:       "推文",
		InputTokens:  100,
		OutputTokens: 40,
		Attempts:     []string{"glm-4-air"},
		CreatedAt:    base,
	}, recs[1])

	recs, err = s.UsageRecords(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quota.db")
	resetAt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	q, err := s.Create(ctx, "u1", ap.PlanFree, 10000, resetAt)
	require.NoError(t, err)
	_, err = s.IncrementUsed(ctx, q.ID, 9)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetCurrent(ctx, "u1", resetAt)
	require.NoError(t, err)
	assert.Equal(t, q.ID, got.ID)
	assert.Equal(t, int64(9), got.TokensUsed)
}
