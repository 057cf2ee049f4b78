package db

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"tender-ingest/pkg/domain"
)

// MemoryGateway keeps notices and watermarks in process memory. It is used by
// dry runs and tests.
type MemoryGateway struct {
	mu         sync.RWMutex
	notices    map[string]domain.TenderNotice
	order      []string
	watermarks map[domain.SourceSite]time.Time
}

var _ Store = (*MemoryGateway)(nil)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		notices:    make(map[string]domain.TenderNotice),
		watermarks: make(map[domain.SourceSite]time.Time),
	}
}

func (g *MemoryGateway) FindByKey(_ context.Context, site domain.SourceSite, externalID string) (*domain.TenderNotice, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.notices[string(site)+":"+externalID]
	if !ok {
		return nil, nil
	}
	return cloneNotice(&n), nil
}

func (g *MemoryGateway) Upsert(_ context.Context, n *domain.TenderNotice) (string, error) {
	key := n.Key()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.notices[key]; !ok {
		g.order = append(g.order, key)
	}
	g.notices[key] = *cloneNotice(n)
	return key, nil
}

func (g *MemoryGateway) Search(_ context.Context, q SearchQuery) ([]domain.TenderNotice, error) {
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	g.mu.RLock()
	out := make([]domain.TenderNotice, 0)
	for _, key := range g.order {
		n := g.notices[key]
		if !q.IncludePlaceholder && n.Provenance == domain.ProvenancePlaceholder {
			continue
		}
		if q.Country != "" && !strings.EqualFold(n.Country, q.Country) {
			continue
		}
		if q.Site != "" && n.SourceSite != q.Site {
			continue
		}
		if n.HealthcareRelevanceScore < q.MinScore {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(n.Title), keyword) &&
			!strings.Contains(strings.ToLower(n.Description), keyword) {
			continue
		}
		out = append(out, *cloneNotice(&n))
	}
	g.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.TenderNotice) int {
		return b.CollectedAt.Compare(a.CollectedAt)
	})
	if len(out) > q.limit() {
		out = out[:q.limit()]
	}
	return out, nil
}

func (g *MemoryGateway) Stats(_ context.Context, threshold float64) (*Stats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := newStats(threshold)
	for _, n := range g.notices {
		st.add(&n)
	}
	st.finish()
	return st, nil
}

func (g *MemoryGateway) All(_ context.Context) ([]domain.TenderNotice, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.TenderNotice, 0, len(g.order))
	for _, key := range g.order {
		n := g.notices[key]
		out = append(out, *cloneNotice(&n))
	}
	return out, nil
}

func (g *MemoryGateway) LastSuccessfulRun(_ context.Context, site domain.SourceSite) (time.Time, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	at, ok := g.watermarks[site]
	return at, ok, nil
}

func (g *MemoryGateway) SetLastSuccessfulRun(_ context.Context, site domain.SourceSite, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.watermarks[site] = at
	return nil
}

func (g *MemoryGateway) Close(context.Context) error { return nil }

// cloneNotice deep-copies the slice and pointer fields so callers cannot mutate stored state.
func cloneNotice(n *domain.TenderNotice) *domain.TenderNotice {
	c := *n
	c.CPVCodes = slices.Clone(n.CPVCodes)
	c.MatchedKeywords = slices.Clone(n.MatchedKeywords)
	c.ValidationIssues = slices.Clone(n.ValidationIssues)
	if n.PublicationDate != nil {
		t := *n.PublicationDate
		c.PublicationDate = &t
	}
	if n.DeadlineDate != nil {
		t := *n.DeadlineDate
		c.DeadlineDate = &t
	}
	if n.EstimatedValue != nil {
		v := *n.EstimatedValue
		c.EstimatedValue = &v
	}
	return &c
}
