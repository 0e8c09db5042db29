// Package templates holds the built-in prompt templates.
package templates

import (
	"fmt"
	"strings"

	"github.com/kai200407/aipostblog"
)

// Library is an immutable set of templates. The first template registered for
// a content type is its default.
type Library struct {
	order  []string
	byID   map[string]aipostblog.Template
	byType map[aipostblog.ContentType][]string
}

var _ aipostblog.TemplateResolver = (*Library)(nil)

// New builds a library. Template ids must be unique and non-empty.
func New(templates ...aipostblog.Template) (*Library, error) {
	l := &Library{
		byID:   make(map[string]aipostblog.Template, len(templates)),
		byType: make(map[aipostblog.ContentType][]string),
	}
	for _, t := range templates {
		if t.ID == "" {
			return nil, fmt.Errorf("aipostblog: template with empty id")
		}
		if t.Build == nil {
			return nil, fmt.Errorf("aipostblog: template %q has no prompt builder", t.ID)
		}
		if _, dup := l.byID[t.ID]; dup {
			return nil, fmt.Errorf("aipostblog: duplicate template %q", t.ID)
		}
		l.byID[t.ID] = t
		l.order = append(l.order, t.ID)
		l.byType[t.ContentType] = append(l.byType[t.ContentType], t.ID)
	}
	return l, nil
}

// Default returns the built-in library.
func Default() *Library {
	l, err := New(builtins()...)
	if err != nil {
		panic(err)
	}
	return l
}

// Resolve returns the template with id, or the content type's default when id
// is empty. A template registered for another content type is not found.
func (l *Library) Resolve(contentType aipostblog.ContentType, id string) (aipostblog.Template, error) {
	if id == "" {
		ids := l.byType[contentType]
		if len(ids) == 0 {
			return aipostblog.Template{}, fmt.Errorf("%w: no template for content type %q", aipostblog.ErrTemplateNotFound, contentType)
		}
		return l.byID[ids[0]], nil
	}
	t, ok := l.byID[id]
	if !ok || t.ContentType != contentType {
		return aipostblog.Template{}, fmt.Errorf("%w: %q for content type %q", aipostblog.ErrTemplateNotFound, id, contentType)
	}
	return t, nil
}

// ByContentType returns the templates of one content type in registration order.
func (l *Library) ByContentType(contentType aipostblog.ContentType) []aipostblog.Template {
	ids := l.byType[contentType]
	out := make([]aipostblog.Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.byID[id])
	}
	return out
}

// List returns every template in registration order.
func (l *Library) List() []aipostblog.Template {
	out := make([]aipostblog.Template, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

var toneNames = map[string]string{
	"casual":       "轻松",
	"professional": "专业",
	"humorous":     "幽默",
	"serious":      "严肃",
}

var lengthNames = map[string]string{
	"short":  "简短",
	"medium": "适中",
	"long":   "详细",
}

// styleLines renders the tone, length and language preferences.
func styleLines(opts aipostblog.GenerationOptions) string {
	var b strings.Builder
	if name, ok := toneNames[opts.Tone]; ok {
		fmt.Fprintf(&b, "\n- 语气：%s", name)
	}
	if name, ok := lengthNames[opts.Length]; ok {
		fmt.Fprintf(&b, "\n- 篇幅：%s", name)
	}
	if opts.Language != "" && opts.Language != "zh" {
		fmt.Fprintf(&b, "\n- 使用以下语言输出：%s", opts.Language)
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}

func builtins() []aipostblog.Template {
	return []aipostblog.Template{
		{
			ID:           "tweet-casual",
			Name:         "轻松推文",
			Description:  "适合日常分享，语气轻松自然",
			ContentType:  aipostblog.ContentTweet,
			Category:     "casual",
			SystemPrompt: "你是一位轻松幽默的社交媒体内容创作者。你擅长用简短有力的语言表达想法，让内容在社交媒体上更容易传播。",
			Build: func(input string, opts aipostblog.GenerationOptions) string {
				return fmt.Sprintf(`请将以下想法转化为一条吸引人的推文（140字以内）：

想法：%s

要求：
- 开头要有吸引力，能抓住读者注意力
- 使用适当的emoji（%s）
- 添加2-3个相关话题标签
- 语言轻松自然，适合社交媒体
- 避免过度营销感%s

输出推文：`, input, yesNo(opts.IncludeEmojis), styleLines(opts))
			},
			Options: aipostblog.TemplateOptions{
				SupportedTones:   []string{"casual", "humorous"},
				SupportedLengths: []string{"short"},
				DefaultTone:      "casual",
				DefaultLength:    "short",
			},
		},
		{
			ID:           "tweet-professional",
			Name:         "专业推文",
			Description:  "适合商业观点分享，语气专业",
			ContentType:  aipostblog.ContentTweet,
			Category:     "professional",
			SystemPrompt: "你是一位专业的商业内容创作者。你擅长将复杂的概念简化，用专业但不失亲和力的语言分享商业见解。",
			Build: func(input string, opts aipostblog.GenerationOptions) string {
				return fmt.Sprintf(`请将以下想法转化为一条专业的商业推文（140字以内）：

想法：%s

要求：
- 观点明确，有洞察力
- 专业但不失亲和力
- 添加相关行业话题标签
- 引发思考和讨论%s

输出推文：`, input, styleLines(opts))
			},
			Options: aipostblog.TemplateOptions{
				SupportedTones:   []string{"professional", "serious"},
				SupportedLengths: []string{"short"},
				DefaultTone:      "professional",
				DefaultLength:    "short",
			},
		},
		{
			ID:           "wechat-standard",
			Name:         "标准公众号文章",
			Description:  "结构完整，适合大多数主题",
			ContentType:  aipostblog.ContentWechatArticle,
			Category:     "standard",
			SystemPrompt: "你是一位专业的公众号内容创作者。你擅长写深入浅出的文章，让复杂的概念变得易懂，同时保持内容的深度和价值。",
			Build: func(input string, opts aipostblog.GenerationOptions) string {
				emoji := "不使用emoji"
				if opts.IncludeEmojis {
					emoji = "适当使用emoji增强可读性"
				}
				return fmt.Sprintf(`请根据以下想法，写一篇高质量的公众号文章：

主题：%s

结构要求：
1. 吸引人的标题（3-5个选项）
2. 引人入胜的开头（可以用故事/数据/问题/金句）
3. 正文分3-5个小节，每节有小标题
4. 总结与行动号召
5. 适合手机阅读的排版

风格要求：
- 深入浅出，有个人观点
- %s
- 每段不超过200字
- 用数据和案例支撑观点%s

输出格式：
## 标题选项

## 正文

[文章内容]

## 总结

[总结内容]`, input, emoji, styleLines(opts))
			},
			Options: aipostblog.TemplateOptions{
				SupportedTones:   []string{"casual", "professional", "serious"},
				SupportedLengths: []string{"medium", "long"},
				DefaultTone:      "professional",
				DefaultLength:    "medium",
			},
		},
		{
			ID:           "wechat-story",
			Name:         "故事型文章",
			Description:  "以故事为主线，增强可读性",
			ContentType:  aipostblog.ContentWechatArticle,
			Category:     "story",
			SystemPrompt: "你是一位擅长讲故事的公众号作者。你用生动的叙述和真实的情感连接读者，让读者在故事中获得启发。",
			Build: func(input string, opts aipostblog.GenerationOptions) string {
				return fmt.Sprintf(`请根据以下想法，写一篇以故事为主线的公众号文章：

主题：%s

结构要求：
1. 吸引人的标题
2. 以一个真实或虚构的故事开场
3. 从故事中引出观点和思考
4. 给出实用的建议
5. 引发共鸣的结尾

风格要求：
- 故事生动，细节丰富
- 情感真挚，能引发共鸣
- 观点从故事自然引出
- 给出可操作的建议%s`, input, styleLines(opts))
			},
			Options: aipostblog.TemplateOptions{
				SupportedTones:   []string{"casual", "humorous"},
				SupportedLengths: []string{"medium", "long"},
				DefaultTone:      "casual",
				DefaultLength:    "long",
			},
		},
		{
			ID:           "xhs-lifestyle",
			Name:         "生活方式笔记",
			Description:  "分享生活方式和日常",
			ContentType:  aipostblog.ContentXiaohongshu,
			Category:     "lifestyle",
			SystemPrompt: "你是一位小红书生活方式博主。你擅长用轻松亲切的语气分享生活点滴，内容实用又有温度。",
			Build: func(input string, opts aipostblog.GenerationOptions) string {
				return fmt.Sprintf(`请将以下想法转化为小红书笔记风格的内容：

想法：%s

要求：
- 标题要吸睛，使用emoji和数字
- 内容分段清晰，用emoji做列表标记
- 第一段要引起共鸣或好奇
- 中间部分分享干货或经验
- 结尾引导互动（点赞、收藏、评论）
- 最后加5-8个相关话题标签
- 女性友好的表达方式
- 语气像朋友聊天%s

输出格式：
标题

正文内容

#标签1 #标签2 ...`, input, styleLines(opts))
			},
			Options: aipostblog.TemplateOptions{
				SupportedTones:   []string{"casual", "humorous"},
				SupportedLengths: []string{"short", "medium"},
				DefaultTone:      "casual",
				DefaultLength:    "medium",
			},
		},
		{
			ID:           "xhs-product",
			Name:         "产品测评笔记",
			Description:  "产品使用体验和测评",
			ContentType:  aipostblog.ContentXiaohongshu,
			Category:     "product",
			SystemPrompt: "你是一位小红书产品测评博主。你擅长用真实客观的视角评测产品，帮助用户做出购买决策。",
			Build: func(input string, opts aipostblog.GenerationOptions) string {
				return fmt.Sprintf(`请将以下想法转化为小红书产品测评笔记：

产品/主题：%s

要求：
- 标题突出产品核心卖点或使用场景
- 包含：外观/使用感受/优缺点/购买建议
- 用emoji做视觉分隔
- 真实客观，不过分吹捧
- 给出明确的购买建议（值不值得买/适合谁）
- 最后加相关标签%s

输出格式：
标题

【产品名称】

使用感受...

优点...
缺点...

购买建议...

#标签`, input, styleLines(opts))
			},
			Options: aipostblog.TemplateOptions{
				SupportedTones:   []string{"professional", "casual"},
				SupportedLengths: []string{"medium"},
				DefaultTone:      "professional",
				DefaultLength:    "medium",
			},
		},
		{
			ID:           "linkedin-professional",
			Name:         "职场洞察",
			Description:  "分享职场经验和见解",
			ContentType:  aipostblog.ContentLinkedIn,
			Category:     "professional",
			SystemPrompt: "你是一位资深的职场导师。你用温暖的语气分享职场智慧，帮助职场人成长和突破。",
			Build: func(input string, opts aipostblog.GenerationOptions) string {
				return fmt.Sprintf(`请将以下想法转化为 LinkedIn 帖子：

想法：%s

要求：
- 开头用一个引人共鸣的职场场景或问题
- 分享1-3个实用建议
- 用清晰的段落分隔，每段不超过3行
- 使用专业的语气，但保持温暖
- 结尾提出一个问题，引发讨论
- 添加3-5个相关话题标签%s

输出格式：
[引人入胜的开头]

[正文段落，用空行分隔]

[引发讨论的问题]

#标签`, input, styleLines(opts))
			},
			Options: aipostblog.TemplateOptions{
				SupportedTones:   []string{"professional", "serious"},
				SupportedLengths: []string{"medium", "long"},
				DefaultTone:      "professional",
				DefaultLength:    "medium",
			},
		},
	}
}
