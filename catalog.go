package aipostblog

import "fmt"

// ModelDescriptor describes one model offered by a backend.
// Prices are USD per one million tokens.
type ModelDescriptor struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Backend     string  `json:"backend" yaml:"backend"`
	InputPrice  float64 `json:"input_price" yaml:"input_price"`
	OutputPrice float64 `json:"output_price" yaml:"output_price"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Free reports whether the model costs nothing.
func (m ModelDescriptor) Free() bool {
	return m.InputPrice == 0 && m.OutputPrice == 0
}

// Catalog is an immutable table of known models.
type Catalog struct {
	models []ModelDescriptor
	byID   map[string]int
}

// NewCatalog builds a catalog. Model ids must be unique and every model needs a backend.
func NewCatalog(models []ModelDescriptor) (*Catalog, error) {
	c := &Catalog{
		models: make([]ModelDescriptor, 0, len(models)),
		byID:   make(map[string]int, len(models)),
	}
	for i, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("aipostblog: catalog: model[%d]: id is required", i)
		}
		if m.Backend == "" {
			return nil, fmt.Errorf("aipostblog: catalog: model %q: backend is required", m.ID)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("aipostblog: catalog: duplicate model %q", m.ID)
		}
		c.byID[m.ID] = len(c.models)
		c.models = append(c.models, m)
	}
	return c, nil
}

// Lookup returns the descriptor for a model id.
func (c *Catalog) Lookup(id string) (ModelDescriptor, bool) {
	i, ok := c.byID[id]
	if !ok {
		return ModelDescriptor{}, false
	}
	return c.models[i], true
}

// Has reports whether the model is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// List returns all models in declaration order.
func (c *Catalog) List() []ModelDescriptor {
	out := make([]ModelDescriptor, len(c.models))
	copy(out, c.models)
	return out
}

// Backends returns the distinct backend ids in declaration order.
func (c *Catalog) Backends() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range c.models {
		if !seen[m.Backend] {
			seen[m.Backend] = true
			out = append(out, m.Backend)
		}
	}
	return out
}

// PlanTier is a subscription level.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// PlanTiers lists every tier from cheapest to most expensive.
func PlanTiers() []PlanTier {
	return []PlanTier{PlanFree, PlanPro, PlanEnterprise}
}

// Valid reports whether t is a known tier.
func (t PlanTier) Valid() bool {
	switch t {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Plan is the token budget and feature set of a tier.
type Plan struct {
	Tier     PlanTier
	Tokens   int64
	Features []string
}

// Plans maps tiers to plans.
type Plans map[PlanTier]Plan

// Tokens returns the per-period token budget of a tier.
func (p Plans) Tokens(tier PlanTier) (int64, error) {
	plan, ok := p[tier]
	if !ok {
		return 0, fmt.Errorf("aipostblog: unknown plan tier %q", tier)
	}
	return plan.Tokens, nil
}
