package aipostblog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Meter observes routing events for monitoring/logging.
type Meter interface {
	// OnRoute is called before each attempt.
	OnRoute(event RouteEvent)

	// OnResult is called when an attempt finishes.
	OnResult(event ResultEvent)

	// OnDebit is called after usage has been charged (or failed to be).
	OnDebit(event DebitEvent)
}

// RouteEvent describes one attempt on a fallback chain.
type RouteEvent struct {
	Backend         string
	Model           string
	Attempt         int
	ChainLength     int
	EstimatedTokens int64
	Streaming       bool
}

// ResultEvent describes the outcome of an attempt.
type ResultEvent struct {
	Backend   string
	Model     string
	Attempt   int
	Success   bool
	Streaming bool
	Duration  time.Duration
	Usage     Usage
	Cost      decimal.Decimal
	Error     error
}

// DebitEvent describes a ledger charge.
type DebitEvent struct {
	UserID     string
	QuotaID    string
	Tokens     int64
	TokensUsed int64
	Total      int64
	Partial    bool
	Error      error
}

type noopMeter struct{}

func (noopMeter) OnRoute(RouteEvent)   {}
func (noopMeter) OnResult(ResultEvent) {}
func (noopMeter) OnDebit(DebitEvent)   {}
