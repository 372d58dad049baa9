package llm

import (
	"fmt"
	"slices"
)

// Provider is one row of the dispatch table: a backend, its adapter and its
// model catalog.
type Provider struct {
	ID           ProviderID
	DefaultModel string
	Models       []string
	Adapter      Adapter
}

// catalog holds the default model and known models per backend.
var catalog = map[ProviderID]struct {
	defaultModel string
	models       []string
}{
	OpenAI:    {"gpt-4o-mini", []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1", "gpt-4.1-mini"}},
	Anthropic: {"claude-sonnet-4-5", []string{"claude-sonnet-4-5", "claude-opus-4-5", "claude-haiku-4-5"}},
	Gemini:    {"gemini-2.0-flash", []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"}},
}

// NewProvider builds a table row with the catalog defaults for id plus any
// extra models.
func NewProvider(id ProviderID, a Adapter, extraModels ...string) Provider {
	c := catalog[id]
	models := slices.Clone(c.models)
	for _, m := range extraModels {
		if m != "" && !slices.Contains(models, m) {
			models = append(models, m)
		}
	}
	def := c.defaultModel
	if def == "" && len(models) > 0 {
		def = models[0]
	}
	return Provider{ID: id, DefaultModel: def, Models: models, Adapter: a}
}

// ResolveModel maps "" and "default" to the default model and rejects models
// outside the catalog.
func (p *Provider) ResolveModel(model string) (string, error) {
	if model == "" || model == "default" {
		return p.DefaultModel, nil
	}
	if slices.Contains(p.Models, model) {
		return model, nil
	}
	return "", invalidRequest(p.ID, "model %q is not available", model)
}

// Registry dispatches a ProviderID to exactly one Provider.
type Registry struct {
	providers map[ProviderID]*Provider
	order     []ProviderID
}

// NewRegistry builds the dispatch table. Duplicate IDs are rejected.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[ProviderID]*Provider, len(providers))}
	for _, p := range providers {
		if p.Adapter == nil {
			return nil, fmt.Errorf("provider %s: nil adapter", p.ID)
		}
		if _, dup := r.providers[p.ID]; dup {
			return nil, fmt.Errorf("provider %s registered twice", p.ID)
		}
		p := p
		r.providers[p.ID] = &p
		r.order = append(r.order, p.ID)
	}
	return r, nil
}

// Lookup returns the provider for id or an UnsupportedProvider error.
func (r *Registry) Lookup(id ProviderID) (*Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, &Error{Kind: KindUnsupportedProvider, Provider: id, Message: "unknown provider"}
	}
	return p, nil
}

// List returns the providers in registration order.
func (r *Registry) List() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.providers[id])
	}
	return out
}
