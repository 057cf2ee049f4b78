// Package sources contains one adapter per procurement platform. Every adapter
// speaks its platform's protocol and yields platform-native records; the
// orchestrator only sees the Adapter interface.
package sources

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/httpclient"
	"tender-ingest/pkg/logger"
)

const defaultLookback = 7 * 24 * time.Hour

var errMissingAPIKey = errors.New("API key is not configured")

// Query narrows a fetch. Keywords are optional server-side filters; Since is the
// lower bound of the publication or update window. A nil Since means the
// platform's lookback window.
type Query struct {
	Keywords []string
	Since    *time.Time
}

// Adapter fetches raw records from one platform.
//
// A malformed item is yielded as a record-level fault and the sequence
// continues. A transport, auth or schema failure is yielded once and the
// sequence ends.
type Adapter interface {
	Site() domain.SourceSite
	Fetch(ctx context.Context, q Query) iter.Seq2[domain.RawRecord, error]
}

// Option configures an adapter built by one of the New* constructors.
type Option func(*base)

// WithClient replaces the HTTP client built from the platform config.
func WithClient(c *httpclient.HTTPClient) Option {
	return func(b *base) { b.client = c }
}

// WithLogger sets the adapter logger.
func WithLogger(l logger.Logger) Option {
	return func(b *base) { b.log = l }
}

// WithClock sets the clock used to close the query window.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// base carries what every adapter needs: its site, effective platform config,
// a rate limited client and a logger.
type base struct {
	site   domain.SourceSite
	cfg    config.PlatformConfig
	client *httpclient.HTTPClient
	log    logger.Logger
	now    func() time.Time
}

func newBase(site domain.SourceSite, cfg config.PlatformConfig, clientType httpclient.ClientType, opts []Option) base {
	b := base{
		site: site,
		cfg:  cfg,
		log:  logger.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.client == nil {
		b.client = newPlatformClient(site, cfg, clientType)
	}
	b.log = b.log.With(logger.String("site", string(site)))
	return b
}

func (b *base) Site() domain.SourceSite { return b.site }

// window returns the [from, to) range of a fetch.
func (b *base) window(q Query) (time.Time, time.Time) {
	to := b.now()
	if q.Since != nil && !q.Since.IsZero() {
		return *q.Since, to
	}
	lookback := b.cfg.LookbackWindow
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return to.Add(-lookback), to
}

func (b *base) pageSize(max int) int {
	if b.cfg.PageSize <= 0 || b.cfg.PageSize > max {
		return max
	}
	return b.cfg.PageSize
}

func (b *base) maxPages() int {
	if b.cfg.MaxPages <= 0 {
		return 10
	}
	return b.cfg.MaxPages
}

// lastPage reports whether paging should stop after a page of got items.
// total is the upstream count of matching records, zero when not reported.
func lastPage(got, seen, total, size int) bool {
	if got == 0 {
		return true
	}
	if total > 0 {
		return seen >= total
	}
	return got < size
}

func newPlatformClient(site domain.SourceSite, cfg config.PlatformConfig, clientType httpclient.ClientType) *httpclient.HTTPClient {
	opts := []httpclient.Option{
		httpclient.WithSite(site),
		httpclient.WithRetryPolicy(cfg.Retry),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.RequestTimeout))
	}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, httpclient.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	return httpclient.NewClient(clientType, opts...)
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
