package meter

import "github.com/kai200407/aipostblog"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ aipostblog.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnRoute(aipostblog.RouteEvent)   {}
func (m *NoopMeter) OnResult(aipostblog.ResultEvent) {}
func (m *NoopMeter) OnDebit(aipostblog.DebitEvent)   {}
