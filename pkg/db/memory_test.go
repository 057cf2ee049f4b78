package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/db"
	"tender-ingest/pkg/domain"
)

func notice(site domain.SourceSite, id, title string, score float64, collected time.Time) *domain.TenderNotice {
	return &domain.TenderNotice{
		SourceSite:               site,
		ExternalID:               id,
		Title:                    title,
		Country:                  site.Country(),
		Provenance:               domain.ProvenanceAPI,
		HealthcareRelevanceScore: score,
		CollectedAt:              collected,
		UpdatedAt:                collected,
	}
}

func TestMemoryGateway_FindAndUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := db.NewMemoryGateway()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := g.FindByKey(ctx, domain.SiteG2B, "KR-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	n := notice(domain.SiteG2B, "KR-1", "PCR kit", 0.8, base)
	n.CPVCodes = []string{"33696000"}
	id, err := g.Upsert(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "G2B:KR-1", id)

	n.CPVCodes[0] = "mutated"
	got, err = g.FindByKey(ctx, domain.SiteG2B, "KR-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"33696000"}, got.CPVCodes)

	got.Title = "changed"
	_, err = g.Upsert(ctx, got)
	require.NoError(t, err)

	all, err := g.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "changed", all[0].Title)
}

func TestMemoryGateway_Search(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := db.NewMemoryGateway()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	placeholder := notice(domain.SiteTED, "P-1", "Sample PCR tender", 0.9, base.Add(4*time.Hour))
	placeholder.Provenance = domain.ProvenancePlaceholder

	for _, n := range []*domain.TenderNotice{
		notice(domain.SiteG2B, "KR-1", "PCR 진단키트 구매", 0.8, base),
		notice(domain.SiteG2B, "KR-2", "사무용품", 0.0, base.Add(time.Hour)),
		notice(domain.SiteBOAMP, "FR-1", "Réactifs PCR", 0.5, base.Add(2*time.Hour)),
		notice(domain.SiteSAMGov, "US-1", "pcr thermocycler", 0.3, base.Add(3*time.Hour)),
		placeholder,
	} {
		_, err := g.Upsert(ctx, n)
		require.NoError(t, err)
	}

	ids := func(ns []domain.TenderNotice) []string {
		out := make([]string, len(ns))
		for i, n := range ns {
			out[i] = n.ExternalID
		}
		return out
	}

	tests := []struct {
		name string
		q    db.SearchQuery
		want []string
	}{
		{"newest first", db.SearchQuery{}, []string{"US-1", "FR-1", "KR-2", "KR-1"}},
		{"keyword", db.SearchQuery{Keyword: "pcr"}, []string{"US-1", "FR-1", "KR-1"}},
		{"country", db.SearchQuery{Country: "kr"}, []string{"KR-2", "KR-1"}},
		{"threshold", db.SearchQuery{MinScore: 0.5}, []string{"FR-1", "KR-1"}},
		{"site", db.SearchQuery{Site: domain.SiteSAMGov}, []string{"US-1"}},
		{"limit", db.SearchQuery{Limit: 2}, []string{"US-1", "FR-1"}},
		{"placeholder", db.SearchQuery{Keyword: "PCR", IncludePlaceholder: true}, []string{"P-1", "US-1", "FR-1", "KR-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Search(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryGateway_Stats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := db.NewMemoryGateway()
	base := time.Now()

	invalid := notice(domain.SiteG2B, "KR-2", "b", 0.2, base)
	invalid.Invalid = true
	for _, n := range []*domain.TenderNotice{
		notice(domain.SiteG2B, "KR-1", "a", 0.8, base),
		invalid,
		notice(domain.SiteTED, "EU-1", "c", 0.5, base),
	} {
		_, err := g.Upsert(ctx, n)
		require.NoError(t, err)
	}

	st, err := g.Stats(ctx, 0.3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), st.Total)
	assert.Equal(t, int64(2), st.AboveThreshold)
	assert.Equal(t, int64(1), st.Invalid)
	assert.InDelta(t, 0.5, st.AverageScore, 1e-9)
	assert.Equal(t, map[string]int64{"G2B": 2, "TED": 1}, st.BySite)
	assert.Equal(t, map[string]int64{"KR": 2, "EU": 1}, st.ByCountry)
}

func TestMemoryGateway_Watermarks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := db.NewMemoryGateway()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	_, ok, err := g.LastSuccessfulRun(ctx, domain.SiteTED)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.SetLastSuccessfulRun(ctx, domain.SiteTED, at))

	got, ok, err := g.LastSuccessfulRun(ctx, domain.SiteTED)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
}
