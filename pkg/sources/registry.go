package sources

import (
	"fmt"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/logger"
)

// Registry holds the adapter of every enabled platform.
type Registry struct {
	adapters map[domain.SourceSite]Adapter
	order    []domain.SourceSite
}

// NewRegistry creates a registry from ready adapters. A later adapter for the
// same site replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.SourceSite]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Build creates the adapters of every platform enabled in cfg.
func Build(cfg *config.Config, log logger.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, site := range cfg.EnabledSites() {
		a, err := New(site, cfg.Platform(site), log)
		if err != nil {
			return nil, err
		}
		r.Register(a)
	}
	return r, nil
}

// Register adds a.
func (r *Registry) Register(a Adapter) {
	site := a.Site()
	if _, ok := r.adapters[site]; !ok {
		r.order = append(r.order, site)
	}
	r.adapters[site] = a
}

// Get returns the adapter for site.
func (r *Registry) Get(site domain.SourceSite) (Adapter, bool) {
	a, ok := r.adapters[site]
	return a, ok
}

// Sites lists registered sites in registration order.
func (r *Registry) Sites() []domain.SourceSite {
	return append([]domain.SourceSite(nil), r.order...)
}

// New creates the adapter for site. Platforms with a structured API get their
// API adapter; the rest read feeds, or listing pages when no feed is
// configured. With ScrapeFallback set the adapter is wrapped in a Fallback.
func New(site domain.SourceSite, pc config.PlatformConfig, log logger.Logger, opts ...Option) (Adapter, error) {
	if log == nil {
		log = logger.NewNop()
	}
	opts = append([]Option{WithLogger(log)}, opts...)

	var primary Adapter
	switch site {
	case domain.SiteG2B:
		primary = NewG2B(pc, opts...)
	case domain.SiteTED:
		primary = NewTED(pc, opts...)
	case domain.SiteUKFTS:
		primary = NewUKFTS(pc, opts...)
	case domain.SiteBOAMP:
		primary = NewBOAMP(pc, opts...)
	case domain.SiteSAMGov:
		primary = NewSAMGov(pc, opts...)
	default:
		switch {
		case !site.Valid():
			return nil, fmt.Errorf("unknown platform %q", site)
		case len(pc.FeedURLs) > 0:
			primary = NewFeed(site, pc, opts...)
		case len(pc.ListingURLs) > 0:
			primary = NewScrape(site, pc, opts...)
		default:
			return nil, fmt.Errorf("%s: no feed or listing URLs configured", site)
		}
	}

	if !pc.UsesScrapeFallback() {
		return primary, nil
	}
	secondary := fallbackFor(site, pc, primary, opts)
	if secondary == nil {
		log.Warn("Fallback requested but no feed or listing configured", logger.String("site", string(site)))
		return primary, nil
	}
	return NewFallback(primary, secondary, log), nil
}

// fallbackFor picks the secondary source: the feed behind an API, else the
// listing pages.
func fallbackFor(site domain.SourceSite, pc config.PlatformConfig, primary Adapter, opts []Option) Adapter {
	_, isFeed := primary.(*Feed)
	_, isScrape := primary.(*Scrape)
	switch {
	case !isFeed && !isScrape && len(pc.FeedURLs) > 0:
		return NewFeed(site, pc, opts...)
	case !isScrape && len(pc.ListingURLs) > 0:
		return NewScrape(site, pc, opts...)
	default:
		return nil
	}
}

// Describe names the kind of source behind a: "api", "feed" or "scrape", and
// "primary>secondary" for a fallback chain.
func Describe(a Adapter) string {
	switch v := a.(type) {
	case *Feed:
		return "feed"
	case *Scrape:
		return "scrape"
	case *Fallback:
		return Describe(v.primary) + ">" + Describe(v.secondary)
	case *G2B, *TED, *UKFTS, *BOAMP, *SAMGov:
		return "api"
	default:
		return "custom"
	}
}
