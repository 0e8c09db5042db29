package templates_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ap "github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/templates"
)

func TestDefaultLibrary(t *testing.T) {
	lib := templates.Default()

	var ids []string
	for _, tmpl := range lib.List() {
		ids = append(ids, tmpl.ID)
	}
	assert.Equal(t, []string{
		"tweet-casual", "tweet-professional",
		"wechat-standard", "wechat-story",
		"xhs-lifestyle", "xhs-product",
		"linkedin-professional",
	}, ids)

	for _, ct := range ap.ContentTypes() {
		assert.NotEmpty(t, lib.ByContentType(ct), ct)
	}
}

func TestResolveDefaultPerContentType(t *testing.T) {
	lib := templates.Default()
	tests := map[ap.ContentType]string{
		ap.ContentTweet:         "tweet-casual",
		ap.ContentWechatArticle: "wechat-standard",
		ap.ContentXiaohongshu:   "xhs-lifestyle",
		ap.ContentLinkedIn:      "linkedin-professional",
	}
	for ct, want := range tests {
		tmpl, err := lib.Resolve(ct, "")
		require.NoError(t, err)
		assert.Equal(t, want, tmpl.ID)
	}
}

func TestResolveErrors(t *testing.T) {
	lib := templates.Default()

	_, err := lib.Resolve(ap.ContentTweet, "does-not-exist")
	assert.ErrorIs(t, err, ap.ErrTemplateNotFound)

	_, err = lib.Resolve(ap.ContentTweet, "wechat-story")
	assert.ErrorIs(t, err, ap.ErrTemplateNotFound)

	_, err = lib.Resolve(ap.ContentType("podcast"), "")
	assert.ErrorIs(t, err, ap.ErrTemplateNotFound)
}

func TestPromptRendering(t *testing.T) {
	lib := templates.Default()
	tmpl, err := lib.Resolve(ap.ContentTweet, "tweet-casual")
	require.NoError(t, err)

	prompt := tmpl.Prompt("周末去爬山", ap.GenerationOptions{IncludeEmojis: true})
	assert.Contains(t, prompt, "想法：周末去爬山")
	assert.Contains(t, prompt, "使用适当的emoji（是）")
	assert.Contains(t, prompt, "语气：轻松")
	assert.Contains(t, prompt, "篇幅：简短")
	assert.NotContains(t, prompt, "使用以下语言输出")

	prompt = tmpl.Prompt("hiking", ap.GenerationOptions{Tone: "humorous", Language: "en"})
	assert.Contains(t, prompt, "使用适当的emoji（否）")
	assert.Contains(t, prompt, "语气：幽默")
	assert.Contains(t, prompt, "使用以下语言输出：en")
}

func TestNewRejectsDuplicates(t *testing.T) {
	build := func(string, ap.GenerationOptions) string { return "" }
	_, err := templates.New(
		ap.Template{ID: "a", ContentType: ap.ContentTweet, Build: build},
		ap.Template{ID: "a", ContentType: ap.ContentLinkedIn, Build: build},
	)
	assert.Error(t, err)

	_, err = templates.New(ap.Template{ID: "b"})
	assert.Error(t, err)
}
