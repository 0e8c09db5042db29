package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kai200407/aipostblog"
)

func TestParseRow(t *testing.T) {
	resetAt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	q, err := parseRow(map[string]string{
		"id":           "q1",
		"user_id":      "u1",
		"plan":         "pro",
		"tokens_total": "200000",
		"tokens_used":  "42",
		"reset_at":     unix(resetAt),
		"created_at":   "1740000000",
	})
	require.NoError(t, err)
	assert.Equal(t, aipostblog.Quota{
		ID:          "q1",
		UserID:      "u1",
		Tier:        aipostblog.PlanPro,
		TokensTotal: 200000,
		TokensUsed:  42,
		ResetAt:     resetAt,
		CreatedAt:   time.Unix(1740000000, 0).UTC(),
	}, q)

	_, err = parseRow(map[string]string{"id": "q2", "tokens_total": "many"})
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	s := New(nil, WithKeyPrefix("t:"))
	assert.Equal(t, "t:row:abc", s.rowKey("abc"))
	assert.Equal(t, "t:user:u1", s.periodsKey("u1"))
	assert.Equal(t, "t:latest", s.latestKey())
}
