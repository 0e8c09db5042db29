package policy

import (
	"github.com/kai200407/aipostblog"
)

// FreeFirst sends every failed model straight to the zero-cost models: other
// free models in catalog order, then the terminal model. No paid alternate is
// ever tried.
func FreeFirst(catalog *aipostblog.Catalog, terminal string) aipostblog.FallbackTable {
	models := catalog.List()

	var free []string
	for _, m := range models {
		if m.Free() && m.ID != terminal {
			free = append(free, m.ID)
		}
	}

	table := make(aipostblog.FallbackTable, len(models))
	for _, primary := range models {
		if primary.ID == terminal {
			table[primary.ID] = []string{}
			continue
		}
		alts := make([]string, 0, len(free)+1)
		for _, id := range free {
			if id != primary.ID {
				alts = append(alts, id)
			}
		}
		table[primary.ID] = append(alts, terminal)
	}
	return table
}

// ByName returns the fallback table for a named strategy. The empty name and
// "default" select the built-in table.
func ByName(name string, catalog *aipostblog.Catalog, terminal string) (aipostblog.FallbackTable, bool) {
	switch name {
	case "", "default":
		return aipostblog.DefaultFallbackTable(), true
	case "cost_first":
		return CostFirst(catalog, terminal), true
	case "free_first":
		return FreeFirst(catalog, terminal), true
	}
	return nil, false
}
