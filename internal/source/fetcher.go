package source

import (
	"context"

	"lens/internal/model"
)

// Fetcher is the fetch capability: one implementation per concrete source.
// The kernel depends on nothing else from a source implementation. A
// timeout or error from Fetch degrades to "no data from that source".
type Fetcher interface {
	SourceID() string
	Fetch(ctx context.Context, query string) (*model.RawArtifact, error)
}

// FetcherSet maps source ids to their fetchers.
type FetcherSet map[string]Fetcher

// NewFetcherSet builds the reference HTTP fetcher for every registry source
// that declares an endpoint. Callers may overlay custom fetchers afterwards.
func NewFetcherSet(registry *Registry, cfg HTTPOptions) FetcherSet {
	set := make(FetcherSet)
	for _, id := range registry.IDs() {
		spec, _ := registry.Get(id)
		if spec.Endpoint == "" {
			continue
		}
		set[id] = NewHTTPFetcher(spec, cfg)
	}
	return set
}
