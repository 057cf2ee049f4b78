package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/domain"
)

type sqlProvider struct{ db *sql.DB }

func (p sqlProvider) DB() *sql.DB { return p.db }

func newMockGateway(t *testing.T) (*PostgresGateway, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewPostgresGateway(sqlProvider{db: conn}), mock
}

var noticeColumnNames = []string{
	"source_site", "external_id", "title", "organization", "description", "cpv_codes",
	"publication_date", "deadline_date", "estimated_value", "currency", "country", "language", "url",
	"tender_type", "provenance", "invalid", "validation_issues", "healthcare_relevance_score",
	"matched_keywords", "collected_at", "updated_at",
}

func TestPostgresGateway_FindByKey(t *testing.T) {
	g, mock := newMockGateway(t)
	collected := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tender_notice WHERE source_site = $1 AND external_id = $2")).
		WithArgs("G2B", "KR-2025-001").
		WillReturnRows(sqlmock.NewRows(noticeColumnNames).AddRow(
			"G2B", "KR-2025-001", "PCR 진단키트 구매", "질병관리청", "", `["33696000"]`,
			nil, deadline, 150000000.0, "KRW", "KR", "ko", "",
			"goods", "api", false, `[]`, 1.0,
			`["33696000","PCR"]`, collected, collected,
		))

	n, err := g.FindByKey(context.Background(), domain.SiteG2B, "KR-2025-001")
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, domain.SiteG2B, n.SourceSite)
	assert.Equal(t, []string{"33696000"}, n.CPVCodes)
	assert.Equal(t, []string{"33696000", "PCR"}, n.MatchedKeywords)
	assert.Nil(t, n.ValidationIssues)
	assert.Nil(t, n.PublicationDate)
	require.NotNil(t, n.DeadlineDate)
	assert.True(t, deadline.Equal(*n.DeadlineDate))
	require.NotNil(t, n.EstimatedValue)
	assert.Equal(t, 150000000.0, *n.EstimatedValue)
	assert.Equal(t, domain.TenderTypeGoods, n.TenderType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGateway_FindByKeyMissing(t *testing.T) {
	g, mock := newMockGateway(t)
	mock.ExpectQuery("FROM tender_notice").WillReturnError(sql.ErrNoRows)

	n, err := g.FindByKey(context.Background(), domain.SiteTED, "nope")

	assert.NoError(t, err)
	assert.Nil(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGateway_Upsert(t *testing.T) {
	g, mock := newMockGateway(t)
	now := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	value := 42.5
	n := &domain.TenderNotice{
		SourceSite:     domain.SiteTED,
		ExternalID:     "123456-2025",
		Title:          "Diagnostic reagents",
		CPVCodes:       []string{"33696500"},
		EstimatedValue: &value,
		Currency:       "EUR",
		Country:        "FR",
		Provenance:     domain.ProvenanceAPI,
		CollectedAt:    now,
		UpdatedAt:      now,
	}

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (source_site, external_id) DO UPDATE SET")).
		WithArgs(
			"TED", "123456-2025", "Diagnostic reagents", "", "", `["33696500"]`,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"EUR", "FR", "", "",
			"", "api", false, `[]`, 0.0,
			`[]`, now, now,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := g.Upsert(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, "7", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGateway_UpsertKeepsCollectedAtOnConflict(t *testing.T) {
	assert.NotRegexp(t, `collected_at\s*=\s*EXCLUDED`, upsertTender)
	assert.Regexp(t, `updated_at\s*=\s*EXCLUDED\.updated_at`, upsertTender)
}

func TestBuildSearchQuery(t *testing.T) {
	query, args := buildSearchQuery(SearchQuery{
		Keyword:  "50%_PCR",
		Country:  "kr",
		MinScore: 0.3,
	})

	assert.Contains(t, query, "provenance <> $1")
	assert.Contains(t, query, "(title ILIKE $2 OR description ILIKE $2)")
	assert.Contains(t, query, "country = $3")
	assert.Contains(t, query, "healthcare_relevance_score >= $4")
	assert.Contains(t, query, "ORDER BY collected_at DESC LIMIT $5")
	assert.Equal(t, []any{"placeholder", `%50\%\_PCR%`, "KR", 0.3, DefaultSearchLimit}, args)

	query, args = buildSearchQuery(SearchQuery{IncludePlaceholder: true, Limit: 5})
	assert.NotContains(t, query, "WHERE")
	assert.Equal(t, []any{5}, args)
}

func TestPostgresGateway_Search(t *testing.T) {
	g, mock := newMockGateway(t)
	collected := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY collected_at DESC")).
		WithArgs("placeholder", "KR", 10).
		WillReturnRows(sqlmock.NewRows(noticeColumnNames).
			AddRow("G2B", "A", "First", "", "", `[]`, nil, nil, nil, "", "KR", "ko", "",
				"", "api", false, `[]`, 0.8, `["PCR"]`, collected, collected).
			AddRow("G2B", "B", "Second", "", "", `[]`, nil, nil, nil, "", "KR", "ko", "",
				"", "api", true, `["deadline before publication"]`, 0.0, `[]`, collected, collected))

	got, err := g.Search(context.Background(), SearchQuery{Country: "KR", Limit: 10})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].ExternalID)
	assert.True(t, got[1].Invalid)
	assert.Equal(t, []string{"deadline before publication"}, got[1].ValidationIssues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGateway_Stats(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs(0.3).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "above", "invalid"}).AddRow(int64(3), 0.5, int64(2), int64(1)))
	mock.ExpectQuery("GROUP BY source_site").
		WillReturnRows(sqlmock.NewRows([]string{"source_site", "count"}).AddRow("G2B", int64(2)).AddRow("TED", int64(1)))
	mock.ExpectQuery("GROUP BY country").
		WillReturnRows(sqlmock.NewRows([]string{"country", "count"}).AddRow("KR", int64(2)).AddRow("FR", int64(1)))

	st, err := g.Stats(context.Background(), 0.3)

	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Total)
	assert.Equal(t, int64(2), st.AboveThreshold)
	assert.Equal(t, int64(1), st.Invalid)
	assert.Equal(t, map[string]int64{"G2B": 2, "TED": 1}, st.BySite)
	assert.Equal(t, map[string]int64{"KR": 2, "FR": 1}, st.ByCountry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGateway_Watermarks(t *testing.T) {
	g, mock := newMockGateway(t)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	mock.ExpectQuery("SELECT last_successful_run FROM crawl_watermark").
		WithArgs("G2B").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO crawl_watermark").
		WithArgs("G2B", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT last_successful_run FROM crawl_watermark").
		WithArgs("G2B").
		WillReturnRows(sqlmock.NewRows([]string{"last_successful_run"}).AddRow(at))

	_, ok, err := g.LastSuccessfulRun(ctx, domain.SiteG2B)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.SetLastSuccessfulRun(ctx, domain.SiteG2B, at))

	got, ok, err := g.LastSuccessfulRun(ctx, domain.SiteG2B)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGateway_NotConnected(t *testing.T) {
	g := NewPostgresGateway(sqlProvider{})

	_, err := g.FindByKey(context.Background(), domain.SiteG2B, "x")
	assert.True(t, errors.Is(err, ErrNotConnected))

	err = g.EnsureSchema(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPostgresGateway_EnsureSchema(t *testing.T) {
	g, mock := newMockGateway(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS tender_notice")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, g.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
