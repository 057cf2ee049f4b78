package db

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	supabase "github.com/supabase-community/supabase-go"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
)

// restCall is one request seen by the fake PostgREST server.
type restCall struct {
	method string
	path   string
	query  map[string]string
	prefer string
	body   []byte
}

type fakePostgREST struct {
	mu     sync.Mutex
	calls  []restCall
	status int
	reply  string
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	query := map[string]string{}
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}
	f.mu.Lock()
	f.calls = append(f.calls, restCall{method: r.Method, path: r.URL.Path, query: query, prefer: r.Header.Get("Prefer"), body: body})
	status, reply := f.status, f.reply
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply)
}

func (f *fakePostgREST) respond(status int, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.reply = status, reply
}

func (f *fakePostgREST) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePostgREST) last(t *testing.T) restCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func newRESTGateway(t *testing.T, fake *fakePostgREST) *SupabaseRESTGateway {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	sdk, err := supabase.NewClient(server.URL, "service-role-key", nil)
	require.NoError(t, err)
	return NewSupabaseRESTGateway(sdk)
}

const restNoticeRow = `[{
	"id": 7,
	"source_site": "G2B",
	"external_id": "KR-2025-001",
	"title": "PCR 진단키트 구매",
	"organization": "질병관리청",
	"description": "",
	"cpv_codes": ["33696000"],
	"publication_date": "2025-01-10T00:00:00+00:00",
	"deadline_date": null,
	"estimated_value": 150000000,
	"currency": "KRW",
	"country": "KR",
	"language": "ko",
	"url": "",
	"tender_type": "goods",
	"provenance": "api",
	"invalid": false,
	"validation_issues": [],
	"healthcare_relevance_score": 0.8,
	"matched_keywords": ["33696000", "PCR"],
	"collected_at": "2025-01-15T03:00:00.123456+00:00",
	"updated_at": "2025-01-15T03:00:00.123456+00:00"
}]`

func TestSupabaseREST_FindByKey(t *testing.T) {
	fake := &fakePostgREST{reply: restNoticeRow}
	g := newRESTGateway(t, fake)

	n, err := g.FindByKey(context.Background(), domain.SiteG2B, "KR-2025-001")

	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "PCR 진단키트 구매", n.Title)
	assert.Equal(t, []string{"33696000"}, n.CPVCodes)
	assert.Nil(t, n.DeadlineDate)
	require.NotNil(t, n.EstimatedValue)
	assert.InDelta(t, 150000000.0, *n.EstimatedValue, 0)

	call := fake.last(t)
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/rest/v1/tender_notice", call.path)
	assert.Equal(t, "eq.G2B", call.query["source_site"])
	assert.Equal(t, "eq.KR-2025-001", call.query["external_id"])
}

func TestSupabaseREST_FindByKeyMissing(t *testing.T) {
	g := newRESTGateway(t, &fakePostgREST{reply: `[]`})

	n, err := g.FindByKey(context.Background(), domain.SiteG2B, "nope")

	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestSupabaseREST_Upsert(t *testing.T) {
	fake := &fakePostgREST{status: http.StatusCreated}
	g := newRESTGateway(t, fake)
	collected := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)

	id, err := g.Upsert(context.Background(), &domain.TenderNotice{
		SourceSite:  domain.SiteTED,
		ExternalID:  "12345-2025",
		Title:       "Supply of diagnostic reagents",
		CollectedAt: collected,
		UpdatedAt:   collected,
	})

	require.NoError(t, err)
	assert.Equal(t, "TED:12345-2025", id)

	call := fake.last(t)
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "source_site,external_id", call.query["on_conflict"])
	assert.Contains(t, call.prefer, "resolution=merge-duplicates")

	var row map[string]any
	require.NoError(t, json.Unmarshal(call.body, &row))
	assert.Equal(t, "TED", row["source_site"])
	assert.Equal(t, []any{}, row["cpv_codes"], "lists are never null")
	assert.Contains(t, row, "deadline_date", "cleared dates are sent as null")
	assert.Nil(t, row["deadline_date"])
}

func TestSupabaseREST_Search(t *testing.T) {
	fake := &fakePostgREST{reply: restNoticeRow}
	g := newRESTGateway(t, fake)

	notices, err := g.Search(context.Background(), SearchQuery{Keyword: "PCR, kit", Country: "kr", MinScore: 0.3, Limit: 5})

	require.NoError(t, err)
	require.Len(t, notices, 1)

	call := fake.last(t)
	assert.Equal(t, "neq.placeholder", call.query["provenance"])
	assert.Equal(t, "eq.KR", call.query["country"])
	assert.Equal(t, "gte.0.3", call.query["healthcare_relevance_score"])
	assert.Equal(t, `(title.ilike."*PCR, kit*",description.ilike."*PCR, kit*")`, call.query["or"])
	assert.Equal(t, "5", call.query["limit"])
	assert.Contains(t, call.query["order"], "collected_at.desc")
}

func TestSupabaseREST_Stats(t *testing.T) {
	g := newRESTGateway(t, &fakePostgREST{reply: restNoticeRow})

	st, err := g.Stats(context.Background(), 0.5)

	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Total)
	assert.EqualValues(t, 1, st.AboveThreshold)
	assert.InDelta(t, 0.8, st.AverageScore, 1e-9)
	assert.Equal(t, map[string]int64{"G2B": 1}, st.BySite)
}

func TestSupabaseREST_Watermarks(t *testing.T) {
	fake := &fakePostgREST{reply: `[]`}
	g := newRESTGateway(t, fake)
	ctx := context.Background()

	_, ok, err := g.LastSuccessfulRun(ctx, domain.SiteBOAMP)
	require.NoError(t, err)
	assert.False(t, ok)

	fake.respond(http.StatusCreated, "")
	at := time.Date(2025, 1, 15, 3, 0, 0, 0, time.FixedZone("CET", 3600))
	require.NoError(t, g.SetLastSuccessfulRun(ctx, domain.SiteBOAMP, at))

	call := fake.last(t)
	assert.Equal(t, "/rest/v1/crawl_watermark", call.path)
	assert.Equal(t, "source_site", call.query["on_conflict"])
	assert.JSONEq(t, `{"source_site":"BOAMP","last_successful_run":"2025-01-15T02:00:00Z"}`, string(call.body))

	fake.respond(http.StatusOK, `[{"source_site":"BOAMP","last_successful_run":"2025-01-15T02:00:00+00:00"}]`)
	got, ok, err := g.LastSuccessfulRun(ctx, domain.SiteBOAMP)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestSupabaseREST_ErrorsAreReturned(t *testing.T) {
	fake := &fakePostgREST{status: http.StatusNotFound, reply: `{"code":"42P01","message":"relation \"public.tender_notice\" does not exist"}`}
	g := newRESTGateway(t, fake)

	_, err := g.Upsert(context.Background(), &domain.TenderNotice{SourceSite: domain.SiteTED, ExternalID: "1", Title: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "TED:1")
}

func TestSupabaseREST_CancelledContext(t *testing.T) {
	fake := &fakePostgREST{reply: `[]`}
	g := newRESTGateway(t, fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.FindByKey(ctx, domain.SiteG2B, "KR-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.count())
}

func TestOpen_SupabaseRESTMode(t *testing.T) {
	server := httptest.NewServer(&fakePostgREST{reply: `[]`})
	defer server.Close()

	store, err := Open(context.Background(), config.StorageConfig{
		Driver:   config.DriverSupabase,
		Supabase: config.SupabaseConfig{URL: server.URL, Key: "anon"},
	})

	require.NoError(t, err)
	assert.IsType(t, &SupabaseRESTGateway{}, store)
	n, err := store.FindByKey(context.Background(), domain.SiteG2B, "KR-1")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestQuoteFilterValue(t *testing.T) {
	assert.Equal(t, `"*a,b*"`, quoteFilterValue("*a,b*"))
	assert.Equal(t, `"say \"hi\" \\o/"`, quoteFilterValue(`say "hi" \o/`))
}
