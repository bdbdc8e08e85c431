// Package search holds the search engine catalog and query templating used
// when navigation input is not a URL.
package search

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed engines.yaml
var enginesYAML []byte

// Engine describes one search engine entry.
type Engine struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Template string `yaml:"template" json:"template"`
}

// SearchURL substitutes a percent-encoded query into the engine template.
func (e Engine) SearchURL(query string) string {
	return strings.Replace(e.Template, "%s", url.QueryEscape(query), 1)
}

// Registry is the immutable engine catalog, insertion-ordered.
type Registry struct {
	order   []string
	engines map[string]Engine
}

type catalog struct {
	Engines []Engine `yaml:"engines"`
}

// NewRegistry loads the embedded catalog.
func NewRegistry() (*Registry, error) {
	var cat catalog
	if err := yaml.Unmarshal(enginesYAML, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse engine catalog: %w", err)
	}
	if len(cat.Engines) == 0 {
		return nil, fmt.Errorf("engine catalog is empty")
	}

	r := &Registry{engines: make(map[string]Engine, len(cat.Engines))}
	for _, e := range cat.Engines {
		if e.ID == "" || !strings.Contains(e.Template, "%s") {
			return nil, fmt.Errorf("invalid engine entry %q", e.ID)
		}
		r.order = append(r.order, e.ID)
		r.engines[e.ID] = e
	}
	return r, nil
}

// Get returns the engine for an id.
func (r *Registry) Get(id string) (Engine, bool) {
	e, ok := r.engines[id]
	return e, ok
}

// GetOrDefault returns the engine for an id, falling back to the first
// catalog entry when the id is unknown.
func (r *Registry) GetOrDefault(id string) Engine {
	if e, ok := r.engines[id]; ok {
		return e
	}
	return r.engines[r.order[0]]
}

// List returns all engines in catalog order.
func (r *Registry) List() []Engine {
	out := make([]Engine, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.engines[id])
	}
	return out
}
