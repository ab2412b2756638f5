package sources

import (
	"context"
	"fmt"
	"time"

	"reelflow/internal/store"
)

// RawItem is one normalized entry pulled from an external source.
type RawItem struct {
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	URL       string    `json:"url,omitempty"`
	Author    string    `json:"author,omitempty"`
	Score     int       `json:"score,omitempty"`
	Comments  int       `json:"comments,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RawDataset is the time-boxed collection result for one query.
type RawDataset struct {
	Source      store.Source `json:"source"`
	Query       string       `json:"query"`
	Items       []RawItem    `json:"items"`
	CollectedAt time.Time    `json:"collected_at"`
}

// Provider pulls raw items from one external source.
type Provider interface {
	Source() store.Source
	Collect(ctx context.Context, query string, maxItems int) (*RawDataset, error)
}

// Registry maps sources to their collectors.
type Registry struct {
	providers map[store.Source]Provider
}

// NewRegistry builds a registry from the supplied providers.
func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{providers: make(map[store.Source]Provider, len(providers))}
	for _, provider := range providers {
		if provider != nil {
			registry.providers[provider.Source()] = provider
		}
	}
	return registry
}

// Provider returns the collector registered for a source.
func (r *Registry) Provider(source store.Source) (Provider, error) {
	provider, ok := r.providers[source]
	if !ok {
		return nil, fmt.Errorf("no collector registered for source %q", source)
	}
	return provider, nil
}
