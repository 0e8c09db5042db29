package aipostblog_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ap "github.com/kai200407/aipostblog"
)

func TestDefaultSelectionTable(t *testing.T) {
	p, err := ap.NewSelectionPolicy(ap.DefaultCatalog(), ap.DefaultSelectionTable(), ap.TerminalModel)
	require.NoError(t, err)

	tests := []struct {
		tier     ap.PlanTier
		ct       ap.ContentType
		override string
		want     string
	}{
		{ap.PlanFree, ap.ContentTweet, "", "glm-4-flash"},
		{ap.PlanFree, ap.ContentLinkedIn, "", "glm-4-flash"},
		{ap.PlanPro, ap.ContentTweet, "", "glm-4-air"},
		{ap.PlanPro, ap.ContentWechatArticle, "", "glm-4"},
		{ap.PlanEnterprise, ap.ContentXiaohongshu, "", "glm-4"},
		{ap.PlanFree, ap.ContentTweet, "gpt-4o", "gpt-4o"},
		{ap.PlanFree, ap.ContentTweet, "gpt-9", "glm-4-flash"},
		{ap.PlanTier("gold"), ap.ContentTweet, "", ap.TerminalModel},
		{ap.PlanPro, ap.ContentType("blog"), "", ap.TerminalModel},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier)+"/"+string(tt.ct)+"/"+tt.override, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Select(tt.tier, tt.ct, tt.override))
		})
	}
}

func TestSelectionPolicyRejectsIncompleteTable(t *testing.T) {
	catalog := ap.DefaultCatalog()

	table := ap.DefaultSelectionTable()
	delete(table[ap.PlanPro], ap.ContentLinkedIn)
	_, err := ap.NewSelectionPolicy(catalog, table, ap.TerminalModel)
	assert.Error(t, err)

	table = ap.DefaultSelectionTable()
	table[ap.PlanFree][ap.ContentTweet] = "gpt-9"
	_, err = ap.NewSelectionPolicy(catalog, table, ap.TerminalModel)
	assert.Error(t, err)

	_, err = ap.NewSelectionPolicy(catalog, ap.DefaultSelectionTable(), "gpt-9")
	assert.Error(t, err)
}

func TestDefaultFallbackChains(t *testing.T) {
	catalog := ap.DefaultCatalog()
	b, err := ap.NewFallbackBuilder(catalog, ap.DefaultFallbackTable(), ap.TerminalModel)
	require.NoError(t, err)
	assert.Equal(t, ap.TerminalModel, b.Terminal())

	want := map[string]ap.FallbackChain{
		"gpt-4o":      {"gpt-4o", "gpt-4o-mini", "glm-4", "glm-4-air", "glm-4-flash"},
		"qwen-turbo":  {"qwen-turbo", "glm-4-flash"},
		"glm-4-air":   {"glm-4-air", "qwen-turbo", "glm-4-flash"},
		"glm-4-flash": {"glm-4-flash"},
		"wenxin-4":    {"wenxin-4", "glm-4-flash"},
	}
	got := make(map[string]ap.FallbackChain, len(want))
	for primary := range want {
		got[primary] = b.Build(primary)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chains mismatch (-want +got):\n%s", diff)
	}

	// Every chain built from the catalog ends with the terminal model and
	// never repeats a model.
	for _, m := range catalog.List() {
		chain := b.Build(m.ID)
		assert.Equal(t, m.ID, chain[0])
		assert.Equal(t, ap.TerminalModel, chain[len(chain)-1], m.ID)
		seen := make(map[string]bool)
		for _, id := range chain {
			assert.False(t, seen[id], "%s repeats %s", m.ID, id)
			seen[id] = true
		}
	}
}

func TestFallbackBuilderValidation(t *testing.T) {
	catalog := ap.DefaultCatalog()

	_, err := ap.NewFallbackBuilder(catalog, ap.FallbackTable{"gpt-4o": {"glm-4"}}, ap.TerminalModel)
	assert.Error(t, err, "chain not ending with the terminal model")

	_, err = ap.NewFallbackBuilder(catalog, ap.FallbackTable{"gpt-4o": {"gpt-9", ap.TerminalModel}}, ap.TerminalModel)
	assert.Error(t, err, "unknown alternate")

	_, err = ap.NewFallbackBuilder(catalog, ap.FallbackTable{}, "gpt-4o")
	assert.Error(t, err, "paid terminal model")
}

func TestCatalog(t *testing.T) {
	catalog := ap.DefaultCatalog()

	m, ok := catalog.Lookup("claude-3-haiku")
	require.True(t, ok)
	assert.Equal(t, "anthropic", m.Backend)
	assert.False(t, m.Free())

	flash, ok := catalog.Lookup(ap.TerminalModel)
	require.True(t, ok)
	assert.True(t, flash.Free())

	if diff := cmp.Diff([]string{"openai", "anthropic", "dashscope", "wenxin", "zhipu"}, catalog.Backends()); diff != "" {
		t.Errorf("backends mismatch (-want +got):\n%s", diff)
	}

	_, err := ap.NewCatalog([]ap.ModelDescriptor{{ID: "x", Backend: "a"}, {ID: "x", Backend: "b"}})
	assert.Error(t, err)
	_, err = ap.NewCatalog([]ap.ModelDescriptor{{ID: "x"}})
	assert.Error(t, err)
}
