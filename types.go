package aipostblog

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContentType is the kind of social content being generated.
type ContentType string

const (
	ContentTweet         ContentType = "tweet"
	ContentWechatArticle ContentType = "wechat_article"
	ContentXiaohongshu   ContentType = "xiaohongshu"
	ContentLinkedIn      ContentType = "linkedin"
)

// ContentTypes lists every supported content type in display order.
func ContentTypes() []ContentType {
	return []ContentType{ContentTweet, ContentWechatArticle, ContentXiaohongshu, ContentLinkedIn}
}

// FinishReason is the normalized reason a generation stopped.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
)

// NormalizeFinishReason maps a backend-native stop reason onto stop or length.
func NormalizeFinishReason(raw string) FinishReason {
	switch raw {
	case "length", "max_tokens":
		return FinishLength
	default:
		return FinishStop
	}
}

// GenerationOptions are free-form knobs passed to the prompt builder.
type GenerationOptions struct {
	Tone          string `json:"tone,omitempty" yaml:"tone"`
	Length        string `json:"length,omitempty" yaml:"length"`
	IncludeEmojis bool   `json:"include_emojis,omitempty" yaml:"include_emojis"`
	Language      string `json:"language,omitempty" yaml:"language"`
}

// GenerationRequest is the router input.
type GenerationRequest struct {
	// UserID selects the quota row. Empty disables quota accounting.
	UserID      string
	Input       string
	ContentType ContentType
	TemplateID  string
	// Model overrides the selection policy when it names a catalog model.
	Model   string
	Options GenerationOptions
}

// GenerationResult is the router output for a successful generation.
type GenerationResult struct {
	ID           string
	Content      string
	Model        string // catalog model that produced the content
	EchoedModel  string // model name reported by the backend
	Backend      string
	InputTokens  int64
	OutputTokens int64
	FinishReason FinishReason
	Attempts     []string
	Cost         decimal.Decimal
	Quota        *Quota // ledger state after the debit, nil when accounting is disabled
}

// TotalTokens returns input plus output tokens.
func (r GenerationResult) TotalTokens() int64 { return r.InputTokens + r.OutputTokens }

// Usage is token consumption reported by a backend.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// StreamEventType tags a StreamEvent.
type StreamEventType string

const (
	EventToken StreamEventType = "token"
	EventDone  StreamEventType = "done"
	EventError StreamEventType = "error"
)

// StreamEvent is one element of a normalized token stream.
// A stream yields any number of token events followed by exactly one done or error event.
type StreamEvent struct {
	Type         StreamEventType
	Content      string
	Delta        string
	FinishReason FinishReason
	Usage        *Usage
	Message      string
}

// UsageRecord is a settled generation, suitable for history and usage logs.
type UsageRecord struct {
	ID           string
	UserID       string
	QuotaID      string
	Model        string
	ContentType  ContentType
	TemplateID   string
	Input        string
	Output       string
	InputTokens  int64
	OutputTokens int64
	Attempts     []string
	Streamed     bool
	Partial      bool
	CreatedAt    time.Time
}
