package aipostblog

import "github.com/shopspring/decimal"

var perMillion = decimal.NewFromInt(1_000_000)

// EstimateCost returns the USD cost of a generation on a model.
func EstimateCost(m ModelDescriptor, inputTokens, outputTokens int64) decimal.Decimal {
	in := decimal.NewFromFloat(m.InputPrice).Mul(decimal.NewFromInt(inputTokens))
	out := decimal.NewFromFloat(m.OutputPrice).Mul(decimal.NewFromInt(outputTokens))
	return in.Add(out).Div(perMillion)
}
