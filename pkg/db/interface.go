package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tender-ingest/pkg/domain"
)

// ErrNotConnected is returned when a gateway is used before its client connected.
var ErrNotConnected = errors.New("database not connected")

// DBProvider is an interface for database clients that provide access to a sql.DB handle.
// This allows both PostgresClient and SupabaseClient to back the same gateway.
type DBProvider interface {
	DB() *sql.DB
}

// Gateway is the persistence contract used by the ingestion core.
type Gateway interface {
	// FindByKey returns the stored notice or nil when none exists.
	FindByKey(ctx context.Context, site domain.SourceSite, externalID string) (*domain.TenderNotice, error)
	// Upsert inserts or replaces the notice under its natural key and returns the storage id.
	Upsert(ctx context.Context, n *domain.TenderNotice) (string, error)
	// Search returns notices ordered by CollectedAt, newest first.
	Search(ctx context.Context, q SearchQuery) ([]domain.TenderNotice, error)
	Stats(ctx context.Context, threshold float64) (*Stats, error)
}

// WatermarkStore remembers the start time of the last successful crawl per platform.
type WatermarkStore interface {
	LastSuccessfulRun(ctx context.Context, site domain.SourceSite) (time.Time, bool, error)
	SetLastSuccessfulRun(ctx context.Context, site domain.SourceSite, at time.Time) error
}

// Exporter streams every stored notice. It backs replication between backends.
type Exporter interface {
	All(ctx context.Context) ([]domain.TenderNotice, error)
}

// Store bundles what a storage backend provides.
type Store interface {
	Gateway
	WatermarkStore
	Exporter
	Close(ctx context.Context) error
}

// DefaultSearchLimit caps Search when the query leaves Limit unset.
const DefaultSearchLimit = 50

// SearchQuery filters stored notices. Zero values disable a filter.
type SearchQuery struct {
	// Keyword is matched case-insensitively against title and description.
	Keyword  string
	Country  string
	Site     domain.SourceSite
	MinScore float64
	Limit    int
	// IncludePlaceholder returns records with placeholder provenance too.
	IncludePlaceholder bool
}

func (q SearchQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultSearchLimit
	}
	return q.Limit
}

// Stats summarizes the stored notices.
type Stats struct {
	Total          int64            `json:"total"`
	BySite         map[string]int64 `json:"by_site"`
	ByCountry      map[string]int64 `json:"by_country"`
	AverageScore   float64          `json:"average_score"`
	AboveThreshold int64            `json:"above_threshold"`
	Threshold      float64          `json:"threshold"`
	Invalid        int64            `json:"invalid"`
}

func newStats(threshold float64) *Stats {
	return &Stats{
		BySite:    make(map[string]int64),
		ByCountry: make(map[string]int64),
		Threshold: threshold,
	}
}

// add counts n. AverageScore holds the running sum until finish.
func (st *Stats) add(n *domain.TenderNotice) {
	st.Total++
	st.BySite[string(n.SourceSite)]++
	st.ByCountry[n.Country]++
	st.AverageScore += n.HealthcareRelevanceScore
	if n.HealthcareRelevanceScore >= st.Threshold {
		st.AboveThreshold++
	}
	if n.Invalid {
		st.Invalid++
	}
}

func (st *Stats) finish() {
	if st.Total > 0 {
		st.AverageScore /= float64(st.Total)
	}
}
