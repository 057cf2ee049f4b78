package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"

	"tender-ingest/pkg/domain"
)

const (
	noticeTable    = "tender_notice"
	watermarkTable = "crawl_watermark"
	noticeConflict = "source_site,external_id"
)

// SupabaseRESTGateway stores notices through the PostgREST API of a Supabase
// project. It is used when only the project URL and API key are configured.
// The tables are the ones EnsureSchema creates; REST mode cannot create them.
type SupabaseRESTGateway struct {
	sdk *supabase.Client
}

var _ Store = (*SupabaseRESTGateway)(nil)

func NewSupabaseRESTGateway(sdk *supabase.Client) *SupabaseRESTGateway {
	return &SupabaseRESTGateway{sdk: sdk}
}

func (g *SupabaseRESTGateway) from(ctx context.Context, table string) (*postgrest.QueryBuilder, error) {
	if g.sdk == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.sdk.From(table), nil
}

func (g *SupabaseRESTGateway) FindByKey(ctx context.Context, site domain.SourceSite, externalID string) (*domain.TenderNotice, error) {
	q, err := g.from(ctx, noticeTable)
	if err != nil {
		return nil, err
	}
	var rows []domain.TenderNotice
	_, err = q.Select("*", "", false).
		Eq("source_site", string(site)).
		Eq("external_id", externalID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("find %s:%s: %w", site, externalID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Upsert sends every column, so a field cleared upstream is cleared in storage.
func (g *SupabaseRESTGateway) Upsert(ctx context.Context, n *domain.TenderNotice) (string, error) {
	q, err := g.from(ctx, noticeTable)
	if err != nil {
		return "", err
	}
	if _, _, err := q.Upsert(noticeRow(n), noticeConflict, "minimal", "").Execute(); err != nil {
		return "", fmt.Errorf("upsert %s: %w", n.Key(), err)
	}
	return n.Key(), nil
}

func (g *SupabaseRESTGateway) Search(ctx context.Context, sq SearchQuery) ([]domain.TenderNotice, error) {
	q, err := g.from(ctx, noticeTable)
	if err != nil {
		return nil, err
	}
	f := q.Select("*", "", false)
	if !sq.IncludePlaceholder {
		f = f.Neq("provenance", string(domain.ProvenancePlaceholder))
	}
	if kw := strings.TrimSpace(sq.Keyword); kw != "" {
		pattern := quoteFilterValue("*" + kw + "*")
		f = f.Or("title.ilike."+pattern+",description.ilike."+pattern, "")
	}
	if sq.Country != "" {
		f = f.Eq("country", strings.ToUpper(sq.Country))
	}
	if sq.Site != "" {
		f = f.Eq("source_site", string(sq.Site))
	}
	if sq.MinScore > 0 {
		f = f.Gte("healthcare_relevance_score", strconv.FormatFloat(sq.MinScore, 'f', -1, 64))
	}

	var rows []domain.TenderNotice
	_, err = f.Order("collected_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(sq.limit(), "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("search notices: %w", err)
	}
	return rows, nil
}

// Stats aggregates client side; PostgREST exposes no GROUP BY.
func (g *SupabaseRESTGateway) Stats(ctx context.Context, threshold float64) (*Stats, error) {
	notices, err := g.All(ctx)
	if err != nil {
		return nil, err
	}
	st := newStats(threshold)
	for i := range notices {
		st.add(&notices[i])
	}
	st.finish()
	return st, nil
}

func (g *SupabaseRESTGateway) All(ctx context.Context) ([]domain.TenderNotice, error) {
	q, err := g.from(ctx, noticeTable)
	if err != nil {
		return nil, err
	}
	var rows []domain.TenderNotice
	if _, err := q.Select("*", "", false).Order("id", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	return rows, nil
}

type watermarkRow struct {
	SourceSite        string    `json:"source_site"`
	LastSuccessfulRun time.Time `json:"last_successful_run"`
}

func (g *SupabaseRESTGateway) LastSuccessfulRun(ctx context.Context, site domain.SourceSite) (time.Time, bool, error) {
	q, err := g.from(ctx, watermarkTable)
	if err != nil {
		return time.Time{}, false, err
	}
	var rows []watermarkRow
	if _, err := q.Select("*", "", false).Eq("source_site", string(site)).ExecuteTo(&rows); err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s: %w", site, err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].LastSuccessfulRun, true, nil
}

func (g *SupabaseRESTGateway) SetLastSuccessfulRun(ctx context.Context, site domain.SourceSite, at time.Time) error {
	q, err := g.from(ctx, watermarkTable)
	if err != nil {
		return err
	}
	row := watermarkRow{SourceSite: string(site), LastSuccessfulRun: at.UTC()}
	if _, _, err := q.Upsert(row, "source_site", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("write watermark %s: %w", site, err)
	}
	return nil
}

func (g *SupabaseRESTGateway) Close(context.Context) error { return nil }

// noticeRow maps n to the tender_notice columns with explicit nulls and
// empty lists instead of omitted keys.
func noticeRow(n *domain.TenderNotice) map[string]any {
	return map[string]any{
		"source_site":                n.SourceSite,
		"external_id":                n.ExternalID,
		"title":                      n.Title,
		"organization":               n.Organization,
		"description":                n.Description,
		"cpv_codes":                  nonNil(n.CPVCodes),
		"publication_date":           utcOrNil(n.PublicationDate),
		"deadline_date":              utcOrNil(n.DeadlineDate),
		"estimated_value":            n.EstimatedValue,
		"currency":                   n.Currency,
		"country":                    n.Country,
		"language":                   n.Language,
		"url":                        n.URL,
		"tender_type":                n.TenderType,
		"provenance":                 n.Provenance,
		"invalid":                    n.Invalid,
		"validation_issues":          nonNil(n.ValidationIssues),
		"healthcare_relevance_score": n.HealthcareRelevanceScore,
		"matched_keywords":           nonNil(n.MatchedKeywords),
		"collected_at":               n.CollectedAt.UTC(),
		"updated_at":                 n.UpdatedAt.UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// quoteFilterValue double-quotes v for use inside a PostgREST or=() filter.
func quoteFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
