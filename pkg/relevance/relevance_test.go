package relevance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/relevance"
)

func testScorer() *relevance.Scorer {
	return relevance.NewScorer(
		[]string{"33696000-5", "33140000", "33100000"},
		[]string{"PCR", "진단키트", "diagnostic", "Reagent", "réactifs", "pcr"},
	)
}

func TestScore_G2BExample(t *testing.T) {
	t.Parallel()

	n := &domain.TenderNotice{
		SourceSite:  domain.SiteG2B,
		ExternalID:  "KR-2025-001",
		Title:       "PCR 진단키트 구매",
		CPVCodes:    []string{"33696000"},
		Description: "코로나19 PCR 검사용 시약",
	}

	res := testScorer().Score(n)

	assert.InDelta(t, 1.0, res.Score, 1e-9)
	assert.GreaterOrEqual(t, res.Score, 0.8)
	assert.Equal(t, []string{"33696000", "PCR", "진단키트"}, res.Matched)
}

func TestScore_Contributions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		notice  domain.TenderNotice
		score   float64
		matched []string
	}{
		{
			name:   "nothing",
			notice: domain.TenderNotice{Title: "Road resurfacing", CPVCodes: []string{"45233142"}},
			score:  0,
		},
		{
			name:    "cpv only",
			notice:  domain.TenderNotice{Title: "Lot 3", CPVCodes: []string{"45000000", "33140000"}},
			score:   0.5,
			matched: []string{"33140000"},
		},
		{
			name:    "title only, case insensitive",
			notice:  domain.TenderNotice{Title: "Supply of DIAGNOSTIC kits"},
			score:   0.3,
			matched: []string{"diagnostic"},
		},
		{
			name:    "description only",
			notice:  domain.TenderNotice{Title: "Lot 1", Description: "Fourniture de RÉACTIFS de laboratoire"},
			score:   0.2,
			matched: []string{"réactifs"},
		},
		{
			name: "description repeats title keyword",
			notice: domain.TenderNotice{
				Title:       "Reagent supply",
				Description: "reagent and pcr consumables",
			},
			score:   0.5,
			matched: []string{"Reagent", "PCR"},
		},
		{
			name: "title order follows text",
			notice: domain.TenderNotice{
				Title: "Diagnostic reagent for PCR",
			},
			score:   0.3,
			matched: []string{"diagnostic", "Reagent", "PCR"},
		},
	}

	s := testScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.notice
			res := s.Score(&n)
			assert.InDelta(t, tt.score, res.Score, 1e-9)
			assert.Equal(t, tt.matched, res.Matched)
		})
	}
}

func TestScore_BoundedAndDeterministic(t *testing.T) {
	t.Parallel()

	s := testScorer()
	n := &domain.TenderNotice{
		Title:       "PCR PCR diagnostic réactifs reagent",
		Description: "PCR diagnostic 진단키트",
		CPVCodes:    []string{"33696000", "33140000", "33100000"},
	}

	first := s.Score(n)
	for range 10 {
		again := s.Score(n)
		assert.Equal(t, first, again)
	}
	assert.LessOrEqual(t, first.Score, 1.0)
	assert.GreaterOrEqual(t, first.Score, 0.0)
	assert.Nil(t, s.Score(nil).Matched)
}

func TestApply_OverwritesStaleScore(t *testing.T) {
	t.Parallel()

	n := &domain.TenderNotice{
		Title:                    "Office chairs",
		HealthcareRelevanceScore: 0.9,
		MatchedKeywords:          []string{"stale"},
	}

	testScorer().Apply(n)

	assert.Zero(t, n.HealthcareRelevanceScore)
	assert.Empty(t, n.MatchedKeywords)
}

func TestScore_CPVCoversDescendants(t *testing.T) {
	t.Parallel()

	s := relevance.NewScorer([]string{"33100000", "33696000-5", "85000000"}, nil)
	tests := []struct {
		code string
		hit  bool
	}{
		{"33124000", true},
		{"33141620-2", true},
		{"33696500", true},
		{"85111200", true},
		{"33600000", false},
		{"33200000", false},
		{"45000000", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res := s.Score(&domain.TenderNotice{CPVCodes: []string{tt.code}})
			if tt.hit {
				assert.InDelta(t, relevance.CPVWeight, res.Score, 1e-9)
				assert.Equal(t, []string{tt.code[:8]}, res.Matched)
			} else {
				assert.Zero(t, res.Score)
				assert.Empty(t, res.Matched)
			}
		})
	}
}

func TestDefaultConfigScoresChildCPVCodes(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	s := relevance.NewScorer(cfg.Relevance.HealthcareCPV, nil)
	for _, code := range []string{"33696500", "33124000", "33141620"} {
		res := s.Score(&domain.TenderNotice{Title: "Lot 1", CPVCodes: []string{code}})
		assert.InDelta(t, relevance.CPVWeight, res.Score, 1e-9, code)
		assert.Equal(t, []string{code}, res.Matched)
	}
}

func TestWithKeywords(t *testing.T) {
	t.Parallel()

	base := relevance.NewScorer([]string{"33696000"}, []string{"PCR"})
	extended := base.WithKeywords([]string{"ventilator"})
	n := &domain.TenderNotice{Title: "ICU ventilator", CPVCodes: []string{"33696000"}}

	assert.InDelta(t, 0.5, base.Score(n).Score, 1e-9)
	assert.InDelta(t, 0.8, extended.Score(n).Score, 1e-9)
	assert.Same(t, base, base.WithKeywords(nil))

	child := &domain.TenderNotice{Title: "Lot 2", CPVCodes: []string{"33696500"}}
	assert.InDelta(t, 0.5, extended.Score(child).Score, 1e-9, "extended scorer keeps the CPV tree")
}

func TestDefaultConfigScoresHealthcareNotice(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	s := relevance.NewScorer(cfg.Relevance.HealthcareCPV, cfg.Relevance.AllKeywords())
	res := s.Score(&domain.TenderNotice{
		Title:    "PCR 진단키트 구매",
		CPVCodes: []string{"33696000"},
	})

	require.GreaterOrEqual(t, res.Score, 0.8)
	assert.Equal(t, "33696000", res.Matched[0])
	assert.Contains(t, res.Matched, "PCR")
}
