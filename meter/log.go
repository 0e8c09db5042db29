// Package meter provides Meter implementations.
package meter

import (
	"go.uber.org/zap"

	"github.com/kai200407/aipostblog"
)

// LogMeter logs routing events using zap.
type LogMeter struct {
	Logger *zap.Logger
}

var _ aipostblog.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, zap.L() is used.
func NewLogMeter(logger *zap.Logger) *LogMeter {
	if logger == nil {
		logger = zap.L()
	}
	return &LogMeter{Logger: logger.Named("meter")}
}

func (m *LogMeter) OnRoute(e aipostblog.RouteEvent) {
	m.Logger.Debug("route",
		zap.String("backend", e.Backend),
		zap.String("model", e.Model),
		zap.Int("attempt", e.Attempt),
		zap.Int("chain_length", e.ChainLength),
		zap.Int64("estimated_tokens", e.EstimatedTokens),
		zap.Bool("stream", e.Streaming),
	)
}

func (m *LogMeter) OnResult(e aipostblog.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			zap.String("backend", e.Backend),
			zap.String("model", e.Model),
			zap.Int("attempt", e.Attempt),
			zap.Bool("stream", e.Streaming),
			zap.Int64("duration_ms", e.Duration.Milliseconds()),
			zap.Int64("input_tokens", e.Usage.InputTokens),
			zap.Int64("output_tokens", e.Usage.OutputTokens),
			zap.String("cost_usd", e.Cost.String()),
		)
		return
	}

	fields := []zap.Field{
		zap.String("backend", e.Backend),
		zap.String("model", e.Model),
		zap.Int("attempt", e.Attempt),
		zap.Bool("stream", e.Streaming),
		zap.Int64("duration_ms", e.Duration.Milliseconds()),
		zap.Error(e.Error),
	}
	if kind, ok := aipostblog.ProviderKind(e.Error); ok {
		fields = append(fields, zap.Stringer("kind", kind))
	}
	if e.Usage.Total() > 0 {
		fields = append(fields, zap.Int64("charged_tokens", e.Usage.Total()))
	}
	m.Logger.Warn("result_error", fields...)
}

func (m *LogMeter) OnDebit(e aipostblog.DebitEvent) {
	if e.Error != nil {
		m.Logger.Error("debit_failed",
			zap.String("user", e.UserID),
			zap.String("quota_id", e.QuotaID),
			zap.Int64("tokens", e.Tokens),
			zap.Error(e.Error),
		)
		return
	}
	m.Logger.Info("debit",
		zap.String("user", e.UserID),
		zap.String("quota_id", e.QuotaID),
		zap.Int64("tokens", e.Tokens),
		zap.Int64("tokens_used", e.TokensUsed),
		zap.Int64("tokens_total", e.Total),
		zap.Bool("partial", e.Partial),
	)
}
