package processor

import (
	"fmt"

	"github.com/cwygoda/ytaudio/internal/domain"
)

// Registry picks the fetcher for a URL. Fetchers from the config file are
// tried in the order they were registered, and the fallback last, so a
// site-specific command can claim URLs that yt-dlp would also accept.
type Registry struct {
	fetchers []domain.Fetcher
	fallback domain.Fetcher
}

// NewRegistry creates a registry that ends with fallback. fallback may be
// nil, in which case unmatched URLs have no fetcher.
func NewRegistry(fallback domain.Fetcher) *Registry {
	return &Registry{fallback: fallback}
}

// Register adds a configured fetcher ahead of the fallback. Fetcher names
// show up in logs and metrics labels and must be unique.
func (r *Registry) Register(f domain.Fetcher) error {
	for _, have := range r.ordered() {
		if have.Name() == f.Name() {
			return fmt.Errorf("duplicate fetcher name %q", f.Name())
		}
	}
	r.fetchers = append(r.fetchers, f)
	return nil
}

// Match returns the first fetcher that accepts url, or nil.
func (r *Registry) Match(url string) domain.Fetcher {
	for _, f := range r.ordered() {
		if f.Match(url) {
			return f
		}
	}
	return nil
}

// Names lists fetcher names in match order.
func (r *Registry) Names() []string {
	var names []string
	for _, f := range r.ordered() {
		names = append(names, f.Name())
	}
	return names
}

func (r *Registry) ordered() []domain.Fetcher {
	if r.fallback == nil {
		return r.fetchers
	}
	return append(r.fetchers[:len(r.fetchers):len(r.fetchers)], r.fallback)
}
