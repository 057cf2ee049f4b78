package sources

import (
	"context"
	"net/url"
	"strings"
)

// LinkFilter decides whether a link found on a listing page is a notice link.
type LinkFilter interface {
	ShouldKeep(ctx context.Context, link string) (bool, error)
}

// BaseURLFilter drops links to a site root, which listing pages carry in
// headers and breadcrumbs.
type BaseURLFilter struct{}

// NewBaseURLFilter creates a base URL filter.
func NewBaseURLFilter() *BaseURLFilter {
	return &BaseURLFilter{}
}

// ShouldKeep returns false if link has no path.
func (f *BaseURLFilter) ShouldKeep(_ context.Context, link string) (bool, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		// Unparseable links fail later when fetched.
		return true, nil
	}
	return strings.Trim(parsed.Path, "/") != "" || parsed.RawQuery != "", nil
}

// SeenFilter drops links already kept once in this fetch. Listing pages
// repeat notices across pages and in "latest" side boxes.
type SeenFilter struct {
	seen map[string]bool
}

// NewSeenFilter creates an empty seen filter.
func NewSeenFilter() *SeenFilter {
	return &SeenFilter{seen: map[string]bool{}}
}

// ShouldKeep returns false for a link it has already kept and records new ones.
func (f *SeenFilter) ShouldKeep(_ context.Context, link string) (bool, error) {
	if f.seen[link] {
		return false, nil
	}
	f.seen[link] = true
	return true, nil
}

// keepLink applies filters in order and stops at the first rejection.
func keepLink(ctx context.Context, link string, filters ...LinkFilter) (bool, error) {
	for _, f := range filters {
		keep, err := f.ShouldKeep(ctx, link)
		if err != nil || !keep {
			return false, err
		}
	}
	return true, nil
}
