package aipostblog

import "fmt"

// SelectionTable maps (plan tier, content type) to a primary model.
type SelectionTable map[PlanTier]map[ContentType]string

// SelectionPolicy picks the primary model for a request. It is pure and
// safe for concurrent use.
type SelectionPolicy struct {
	catalog  *Catalog
	table    SelectionTable
	fallback string
}

// NewSelectionPolicy validates the table against the catalog. Every tier and
// content type cell must name a catalog model.
func NewSelectionPolicy(catalog *Catalog, table SelectionTable, fallback string) (*SelectionPolicy, error) {
	if !catalog.Has(fallback) {
		return nil, fmt.Errorf("aipostblog: selection: fallback model %q not in catalog", fallback)
	}

	copied := make(SelectionTable, len(table))
	for _, tier := range PlanTiers() {
		row, ok := table[tier]
		if !ok {
			return nil, fmt.Errorf("aipostblog: selection: missing row for tier %q", tier)
		}
		copied[tier] = make(map[ContentType]string, len(row))
		for _, ct := range ContentTypes() {
			model, ok := row[ct]
			if !ok || model == "" {
				return nil, fmt.Errorf("aipostblog: selection: missing cell (%s, %s)", tier, ct)
			}
			if !catalog.Has(model) {
				return nil, fmt.Errorf("aipostblog: selection: cell (%s, %s): model %q not in catalog", tier, ct, model)
			}
			copied[tier][ct] = model
		}
	}

	return &SelectionPolicy{catalog: catalog, table: copied, fallback: fallback}, nil
}

// Select returns the user override if it names a catalog model, otherwise the
// table entry for (tier, contentType).
func (p *SelectionPolicy) Select(tier PlanTier, contentType ContentType, override string) string {
	if override != "" && p.catalog.Has(override) {
		return override
	}
	if model, ok := p.table[tier][contentType]; ok {
		return model
	}
	return p.fallback
}
