// Package policy builds alternative fallback tables from a model catalog.
package policy

import (
	"sort"

	"github.com/kai200407/aipostblog"
)

// BlendedCost is the average of input and output price per million tokens.
func BlendedCost(m aipostblog.ModelDescriptor) float64 {
	return (m.InputPrice + m.OutputPrice) / 2
}

// CostFirst gives every model the strictly cheaper catalog models as
// alternates, cheapest first, followed by the terminal model.
func CostFirst(catalog *aipostblog.Catalog, terminal string) aipostblog.FallbackTable {
	models := catalog.List()
	sort.SliceStable(models, func(i, j int) bool {
		return BlendedCost(models[i]) < BlendedCost(models[j])
	})

	table := make(aipostblog.FallbackTable, len(models))
	for _, primary := range models {
		if primary.ID == terminal {
			table[primary.ID] = []string{}
			continue
		}
		var alts []string
		for _, m := range models {
			if m.ID == primary.ID || m.ID == terminal {
				continue
			}
			if BlendedCost(m) < BlendedCost(primary) {
				alts = append(alts, m.ID)
			}
		}
		table[primary.ID] = append(alts, terminal)
	}
	return table
}
