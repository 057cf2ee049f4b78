package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tender-ingest/pkg/domain"
)

const tenderSchema = `
CREATE TABLE IF NOT EXISTS tender_notice (
  id BIGSERIAL PRIMARY KEY,
  source_site TEXT NOT NULL,
  external_id TEXT NOT NULL,
  title TEXT NOT NULL,
  organization TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  cpv_codes JSONB NOT NULL DEFAULT '[]',
  publication_date TIMESTAMPTZ,
  deadline_date TIMESTAMPTZ,
  estimated_value DOUBLE PRECISION,
  currency TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  language TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  tender_type TEXT NOT NULL DEFAULT '',
  provenance TEXT NOT NULL DEFAULT 'api',
  invalid BOOLEAN NOT NULL DEFAULT false,
  validation_issues JSONB NOT NULL DEFAULT '[]',
  healthcare_relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  matched_keywords JSONB NOT NULL DEFAULT '[]',
  collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (source_site, external_id)
);
CREATE INDEX IF NOT EXISTS tender_notice_collected_at_idx ON tender_notice (collected_at DESC);
CREATE INDEX IF NOT EXISTS tender_notice_country_idx ON tender_notice (country);
CREATE INDEX IF NOT EXISTS tender_notice_score_idx ON tender_notice (healthcare_relevance_score);
CREATE TABLE IF NOT EXISTS crawl_watermark (
  source_site TEXT PRIMARY KEY,
  last_successful_run TIMESTAMPTZ NOT NULL
);`

const tenderColumns = `source_site, external_id, title, organization, description, cpv_codes,
  publication_date, deadline_date, estimated_value, currency, country, language, url,
  tender_type, provenance, invalid, validation_issues, healthcare_relevance_score,
  matched_keywords, collected_at, updated_at`

// collected_at is write-once and never part of the update list.
const upsertTender = `
INSERT INTO tender_notice (` + tenderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17::jsonb, $18, $19::jsonb, $20, $21)
ON CONFLICT (source_site, external_id) DO UPDATE SET
  title = EXCLUDED.title,
  organization = EXCLUDED.organization,
  description = EXCLUDED.description,
  cpv_codes = EXCLUDED.cpv_codes,
  publication_date = EXCLUDED.publication_date,
  deadline_date = EXCLUDED.deadline_date,
  estimated_value = EXCLUDED.estimated_value,
  currency = EXCLUDED.currency,
  country = EXCLUDED.country,
  language = EXCLUDED.language,
  url = EXCLUDED.url,
  tender_type = EXCLUDED.tender_type,
  provenance = EXCLUDED.provenance,
  invalid = EXCLUDED.invalid,
  validation_issues = EXCLUDED.validation_issues,
  healthcare_relevance_score = EXCLUDED.healthcare_relevance_score,
  matched_keywords = EXCLUDED.matched_keywords,
  updated_at = EXCLUDED.updated_at
RETURNING id`

// PostgresGateway stores notices in Postgres through any DBProvider, so a plain
// Postgres pool and a Supabase project are interchangeable.
type PostgresGateway struct {
	pg DBProvider
}

var _ Store = (*PostgresGateway)(nil)

func NewPostgresGateway(pg DBProvider) *PostgresGateway {
	return &PostgresGateway{pg: pg}
}

func (g *PostgresGateway) db() (*sql.DB, error) {
	if g.pg == nil || g.pg.DB() == nil {
		return nil, ErrNotConnected
	}
	return g.pg.DB(), nil
}

// EnsureSchema creates the notice and watermark tables when missing.
func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	db, err := g.db()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, tenderSchema); err != nil {
		return fmt.Errorf("create tender schema: %w", err)
	}
	return nil
}

func (g *PostgresGateway) FindByKey(ctx context.Context, site domain.SourceSite, externalID string) (*domain.TenderNotice, error) {
	db, err := g.db()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		`SELECT `+tenderColumns+` FROM tender_notice WHERE source_site = $1 AND external_id = $2`,
		string(site), externalID)
	n, err := scanNotice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s:%s: %w", site, externalID, err)
	}
	return n, nil
}

func (g *PostgresGateway) Upsert(ctx context.Context, n *domain.TenderNotice) (string, error) {
	db, err := g.db()
	if err != nil {
		return "", err
	}

	args, err := noticeArgs(n)
	if err != nil {
		return "", err
	}

	var id int64
	if err := db.QueryRowContext(ctx, upsertTender, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert %s: %w", n.Key(), err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (g *PostgresGateway) Search(ctx context.Context, q SearchQuery) ([]domain.TenderNotice, error) {
	db, err := g.db()
	if err != nil {
		return nil, err
	}

	query, args := buildSearchQuery(q)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search notices: %w", err)
	}
	return collectNotices(rows)
}

// buildSearchQuery assembles the WHERE clause with positional parameters.
func buildSearchQuery(q SearchQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !q.IncludePlaceholder {
		where = append(where, "provenance <> "+param(string(domain.ProvenancePlaceholder)))
	}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		p := param("%" + escapeLike(kw) + "%")
		where = append(where, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if q.Country != "" {
		where = append(where, "country = "+param(strings.ToUpper(q.Country)))
	}
	if q.Site != "" {
		where = append(where, "source_site = "+param(string(q.Site)))
	}
	if q.MinScore > 0 {
		where = append(where, "healthcare_relevance_score >= "+param(q.MinScore))
	}

	var b strings.Builder
	b.WriteString("SELECT " + tenderColumns + " FROM tender_notice")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY collected_at DESC LIMIT " + param(q.limit()))
	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (g *PostgresGateway) Stats(ctx context.Context, threshold float64) (*Stats, error) {
	db, err := g.db()
	if err != nil {
		return nil, err
	}

	st := newStats(threshold)
	err = db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(AVG(healthcare_relevance_score), 0),
       COUNT(*) FILTER (WHERE healthcare_relevance_score >= $1),
       COUNT(*) FILTER (WHERE invalid)
FROM tender_notice`, threshold).Scan(&st.Total, &st.AverageScore, &st.AboveThreshold, &st.Invalid)
	if err != nil {
		return nil, fmt.Errorf("count notices: %w", err)
	}

	if err := groupCount(ctx, db, "source_site", st.BySite); err != nil {
		return nil, err
	}
	if err := groupCount(ctx, db, "country", st.ByCountry); err != nil {
		return nil, err
	}
	return st, nil
}

// groupCount fills into with per-value counts of column. column is never user input.
func groupCount(ctx context.Context, db *sql.DB, column string, into map[string]int64) error {
	rows, err := db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM tender_notice GROUP BY `+column+` ORDER BY 2 DESC`)
	if err != nil {
		return fmt.Errorf("group by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = count
	}
	return rows.Err()
}

func (g *PostgresGateway) All(ctx context.Context) ([]domain.TenderNotice, error) {
	db, err := g.db()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT `+tenderColumns+` FROM tender_notice ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query notices: %w", err)
	}
	return collectNotices(rows)
}

func (g *PostgresGateway) LastSuccessfulRun(ctx context.Context, site domain.SourceSite) (time.Time, bool, error) {
	db, err := g.db()
	if err != nil {
		return time.Time{}, false, err
	}

	var at time.Time
	err = db.QueryRowContext(ctx,
		`SELECT last_successful_run FROM crawl_watermark WHERE source_site = $1`, string(site)).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s: %w", site, err)
	}
	return at, true, nil
}

func (g *PostgresGateway) SetLastSuccessfulRun(ctx context.Context, site domain.SourceSite, at time.Time) error {
	db, err := g.db()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO crawl_watermark (source_site, last_successful_run) VALUES ($1, $2)
ON CONFLICT (source_site) DO UPDATE SET last_successful_run = EXCLUDED.last_successful_run`,
		string(site), at.UTC())
	if err != nil {
		return fmt.Errorf("write watermark %s: %w", site, err)
	}
	return nil
}

// Close is a no-op; the owning client closes the pool.
func (g *PostgresGateway) Close(context.Context) error { return nil }

func noticeArgs(n *domain.TenderNotice) ([]any, error) {
	cpv, err := jsonList(n.CPVCodes)
	if err != nil {
		return nil, err
	}
	issues, err := jsonList(n.ValidationIssues)
	if err != nil {
		return nil, err
	}
	matched, err := jsonList(n.MatchedKeywords)
	if err != nil {
		return nil, err
	}

	return []any{
		string(n.SourceSite), n.ExternalID, n.Title, n.Organization, n.Description, cpv,
		nullTime(n.PublicationDate), nullTime(n.DeadlineDate), nullFloat(n.EstimatedValue),
		n.Currency, n.Country, n.Language, n.URL,
		string(n.TenderType), string(n.Provenance), n.Invalid, issues, n.HealthcareRelevanceScore,
		matched, n.CollectedAt.UTC(), n.UpdatedAt.UTC(),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotice(row rowScanner) (*domain.TenderNotice, error) {
	var (
		n                      domain.TenderNotice
		site, tenderType, prov string
		cpv, issues, matched   []byte
		publication, deadline  sql.NullTime
		value                  sql.NullFloat64
	)
	err := row.Scan(&site, &n.ExternalID, &n.Title, &n.Organization, &n.Description, &cpv,
		&publication, &deadline, &value, &n.Currency, &n.Country, &n.Language, &n.URL,
		&tenderType, &prov, &n.Invalid, &issues, &n.HealthcareRelevanceScore,
		&matched, &n.CollectedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}

	n.SourceSite = domain.SourceSite(site)
	n.TenderType = domain.TenderType(tenderType)
	n.Provenance = domain.Provenance(prov)
	if publication.Valid {
		n.PublicationDate = &publication.Time
	}
	if deadline.Valid {
		n.DeadlineDate = &deadline.Time
	}
	if value.Valid {
		n.EstimatedValue = &value.Float64
	}
	for _, f := range []struct {
		raw  []byte
		into *[]string
	}{{cpv, &n.CPVCodes}, {issues, &n.ValidationIssues}, {matched, &n.MatchedKeywords}} {
		if err := parseJSONList(f.raw, f.into); err != nil {
			return nil, err
		}
	}
	return &n, nil
}

func collectNotices(rows *sql.Rows) ([]domain.TenderNotice, error) {
	defer rows.Close()

	out := make([]domain.TenderNotice, 0)
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func jsonList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

// parseJSONList decodes a JSONB array; empty arrays decode to nil.
func parseJSONList(raw []byte, into *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	if len(v) > 0 {
		*into = v
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
