package aipostblog_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	ap "github.com/kai200407/aipostblog"
)

func TestEstimateTokens(t *testing.T) {
	assert.EqualValues(t, 500, ap.EstimateTokens(""))
	assert.EqualValues(t, 501, ap.EstimateTokens("a"))
	assert.EqualValues(t, 501, ap.EstimateTokens("ab"))
	// Runes, not bytes.
	assert.EqualValues(t, 502, ap.EstimateTokens("你好世界"))
}

func TestEstimateCost(t *testing.T) {
	m, ok := ap.DefaultCatalog().Lookup("gpt-4o")
	assert.True(t, ok)

	assert.Equal(t, "12.5", ap.EstimateCost(m, 1_000_000, 1_000_000).String())
	assert.Equal(t, "0.0035", ap.EstimateCost(m, 1000, 100).String())
	assert.True(t, ap.EstimateCost(m, 0, 0).IsZero())

	flash, _ := ap.DefaultCatalog().Lookup(ap.TerminalModel)
	assert.True(t, ap.EstimateCost(flash, 1_000_000, 1_000_000).IsZero())
}

func TestNormalizeFinishReason(t *testing.T) {
	assert.Equal(t, ap.FinishLength, ap.NormalizeFinishReason("length"))
	assert.Equal(t, ap.FinishLength, ap.NormalizeFinishReason("max_tokens"))
	assert.Equal(t, ap.FinishStop, ap.NormalizeFinishReason("end_turn"))
	assert.Equal(t, ap.FinishStop, ap.NormalizeFinishReason(""))
}

func TestErrorClassification(t *testing.T) {
	err := ap.NewProviderError("openai", "gpt-4o", ap.KindRateLimited, 429, "slow down", errors.New("http 429"))
	assert.ErrorIs(t, err, ap.ErrRateLimited)
	assert.Contains(t, err.Error(), "rate_limited backend=openai model=gpt-4o status=429: slow down")

	kind, ok := ap.ProviderKind(&ap.ExhaustedError{Attempts: []string{"gpt-4o"}, LastErr: err})
	assert.True(t, ok)
	assert.Equal(t, ap.KindRateLimited, kind)

	_, ok = ap.ProviderKind(errors.New("plain"))
	assert.False(t, ok)

	assert.ErrorIs(t, &ap.QuotaExceededError{UserID: "u1"}, ap.ErrQuotaExceeded)
	assert.ErrorIs(t, &ap.ExhaustedError{}, ap.ErrAllModelsExhausted)
}
