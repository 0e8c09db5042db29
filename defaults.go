package aipostblog

// TerminalModel is the zero-cost model every fallback chain ends with.
const TerminalModel = "glm-4-flash"

// DefaultModels returns the built-in model catalog.
func DefaultModels() []ModelDescriptor {
	return []ModelDescriptor{
		{ID: "gpt-4o", Name: "GPT-4o", Backend: "openai", InputPrice: 2.5, OutputPrice: 10, MaxTokens: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", Backend: "openai", InputPrice: 0.15, OutputPrice: 0.6, MaxTokens: 128000},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Backend: "openai", InputPrice: 0.5, OutputPrice: 1.5, MaxTokens: 16385},
		{ID: "claude-3-5-sonnet", Name: "Claude 3.5 Sonnet", Backend: "anthropic", InputPrice: 3, OutputPrice: 15, MaxTokens: 200000},
		{ID: "claude-3-haiku", Name: "Claude 3 Haiku", Backend: "anthropic", InputPrice: 0.25, OutputPrice: 1.25, MaxTokens: 200000},
		{ID: "qwen-plus", Name: "Qwen Plus", Backend: "dashscope", InputPrice: 0.4, OutputPrice: 1.2, MaxTokens: 30000},
		{ID: "qwen-turbo", Name: "Qwen Turbo", Backend: "dashscope", InputPrice: 0.08, OutputPrice: 0.08, MaxTokens: 8000},
		{ID: "wenxin-4", Name: "ERNIE 4.0", Backend: "wenxin", InputPrice: 0.12, OutputPrice: 0.12, MaxTokens: 128000},
		{ID: "glm-4-flash", Name: "GLM-4 Flash", Backend: "zhipu", InputPrice: 0, OutputPrice: 0, MaxTokens: 128000},
		{ID: "glm-4-air", Name: "GLM-4 Air", Backend: "zhipu", InputPrice: 0.5, OutputPrice: 2, MaxTokens: 128000},
		{ID: "glm-4", Name: "GLM-4", Backend: "zhipu", InputPrice: 10, OutputPrice: 10, MaxTokens: 128000},
		{ID: "glm-4-plus", Name: "GLM-4 Plus", Backend: "zhipu", InputPrice: 50, OutputPrice: 50, MaxTokens: 128000},
		{ID: "glm-4-long", Name: "GLM-4 Long", Backend: "zhipu", InputPrice: 0.5, OutputPrice: 2, MaxTokens: 1000000},
	}
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultModels())
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultPlans returns the built-in plan budgets.
func DefaultPlans() Plans {
	return Plans{
		PlanFree: {
			Tier:     PlanFree,
			Tokens:   10000,
			Features: []string{"basic_templates", "tweet", "xiaohongshu"},
		},
		PlanPro: {
			Tier:     PlanPro,
			Tokens:   200000,
			Features: []string{"all_templates", "all_content_types", "history", "priority_models"},
		},
		PlanEnterprise: {
			Tier:     PlanEnterprise,
			Tokens:   1000000,
			Features: []string{"all_templates", "all_content_types", "history", "premium_models", "api_access"},
		},
	}
}

// DefaultSelectionTable returns the built-in (tier, content type) to model table.
func DefaultSelectionTable() SelectionTable {
	return SelectionTable{
		PlanFree: {
			ContentTweet:         "glm-4-flash",
			ContentWechatArticle: "glm-4-flash",
			ContentXiaohongshu:   "glm-4-flash",
			ContentLinkedIn:      "glm-4-flash",
		},
		PlanPro: {
			ContentTweet:         "glm-4-air",
			ContentWechatArticle: "glm-4",
			ContentXiaohongshu:   "glm-4-air",
			ContentLinkedIn:      "glm-4",
		},
		PlanEnterprise: {
			ContentTweet:         "glm-4-plus",
			ContentWechatArticle: "glm-4-plus",
			ContentXiaohongshu:   "glm-4",
			ContentLinkedIn:      "glm-4-plus",
		},
	}
}

// DefaultFallbackTable returns the built-in fallback adjacency table.
func DefaultFallbackTable() FallbackTable {
	return FallbackTable{
		"gpt-4o":            {"gpt-4o-mini", "glm-4", "glm-4-air", "glm-4-flash"},
		"gpt-4o-mini":       {"glm-4-air", "qwen-plus", "qwen-turbo", "glm-4-flash"},
		"gpt-3.5-turbo":     {"glm-4-air", "qwen-turbo", "glm-4-flash"},
		"claude-3-5-sonnet": {"claude-3-haiku", "glm-4", "glm-4-air", "glm-4-flash"},
		"claude-3-haiku":    {"glm-4-air", "qwen-plus", "qwen-turbo", "glm-4-flash"},
		"qwen-plus":         {"qwen-turbo", "glm-4-flash"},
		"qwen-turbo":        {"glm-4-flash"},
		"glm-4-plus":        {"glm-4", "glm-4-air", "glm-4-flash"},
		"glm-4":             {"glm-4-air", "glm-4-flash"},
		"glm-4-air":         {"qwen-turbo", "glm-4-flash"},
		"glm-4-long":        {"glm-4", "glm-4-air", "glm-4-flash"},
		"glm-4-flash":       {},
	}
}
