package aipostblog

import "fmt"

// FallbackChain is an ordered list of models to try. The first element is the
// primary model.
type FallbackChain []string

// FallbackTable maps a model to its ordered alternates.
type FallbackTable map[string][]string

// FallbackBuilder builds fallback chains from a static adjacency table.
type FallbackBuilder struct {
	table    FallbackTable
	terminal string
}

// NewFallbackBuilder validates the table. The terminal model must be a free
// catalog model and every non-terminal entry must end with it.
func NewFallbackBuilder(catalog *Catalog, table FallbackTable, terminal string) (*FallbackBuilder, error) {
	desc, ok := catalog.Lookup(terminal)
	if !ok {
		return nil, fmt.Errorf("aipostblog: fallback: terminal model %q not in catalog", terminal)
	}
	if !desc.Free() {
		return nil, fmt.Errorf("aipostblog: fallback: terminal model %q is not zero-cost", terminal)
	}

	copied := make(FallbackTable, len(table))
	for primary, alts := range table {
		if !catalog.Has(primary) {
			return nil, fmt.Errorf("aipostblog: fallback: model %q not in catalog", primary)
		}
		for _, alt := range alts {
			if !catalog.Has(alt) {
				return nil, fmt.Errorf("aipostblog: fallback: %s: alternate %q not in catalog", primary, alt)
			}
		}
		if primary != terminal && (len(alts) == 0 || alts[len(alts)-1] != terminal) {
			return nil, fmt.Errorf("aipostblog: fallback: %s: chain must end with %q", primary, terminal)
		}
		copied[primary] = append([]string(nil), alts...)
	}

	return &FallbackBuilder{table: copied, terminal: terminal}, nil
}

// Terminal returns the model every chain ends with.
func (b *FallbackBuilder) Terminal() string { return b.terminal }

// Build returns [primary, alternates...]. A model without a table entry gets
// the terminal model as its only alternate.
func (b *FallbackBuilder) Build(primary string) FallbackChain {
	alts, ok := b.table[primary]
	if !ok {
		if primary == b.terminal {
			return FallbackChain{primary}
		}
		return FallbackChain{primary, b.terminal}
	}
	chain := make(FallbackChain, 0, len(alts)+1)
	chain = append(chain, primary)
	return append(chain, alts...)
}
