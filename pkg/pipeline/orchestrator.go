// Package pipeline runs platform crawls: each requested platform gets its own
// adapter → normalizer → scorer → resolver chain, executed by a bounded pool of
// workers. Failures stay inside the platform run and end up in the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tender-ingest/pkg/dedup"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/logger"
	"tender-ingest/pkg/normalizer"
	"tender-ingest/pkg/relevance"
	"tender-ingest/pkg/sources"
)

// AdapterSource looks up the adapter of a platform.
type AdapterSource interface {
	Get(site domain.SourceSite) (sources.Adapter, bool)
	Sites() []domain.SourceSite
}

// Resolver writes a scored notice to storage.
type Resolver interface {
	Resolve(ctx context.Context, n *domain.TenderNotice) (dedup.Outcome, error)
}

// NormalizeFunc turns a raw record into a canonical notice.
type NormalizeFunc func(raw domain.RawRecord) (*domain.TenderNotice, error)

// Config tunes an Orchestrator.
type Config struct {
	// MaxConcurrency bounds the number of platforms crawled at once.
	MaxConcurrency int
	// PlatformTimeout cancels a single platform run. Zero disables it.
	PlatformTimeout time.Duration
	// Keywords are sent to adapters when a request carries none.
	Keywords []string
}

// Request selects what one Run crawls.
type Request struct {
	// Platforms defaults to every registered platform.
	Platforms []domain.SourceSite
	// Keywords extend the scorer keywords and are passed to the adapters.
	Keywords []string
	// Since holds the per-platform lower bound, usually the watermark.
	Since map[domain.SourceSite]time.Time
}

// Orchestrator runs crawl requests. It is safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	adapters  AdapterSource
	normalize NormalizeFunc
	scorer    *relevance.Scorer
	resolver  Resolver
	log       logger.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNormalizer replaces normalizer.Normalize.
func WithNormalizer(fn NormalizeFunc) Option {
	return func(o *Orchestrator) { o.normalize = fn }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over the given adapters, scorer and resolver.
func NewOrchestrator(cfg Config, adapters AdapterSource, scorer *relevance.Scorer, resolver Resolver, opts ...Option) *Orchestrator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if scorer == nil {
		scorer = relevance.NewScorer(nil, nil)
	}
	o := &Orchestrator{
		cfg:       cfg,
		adapters:  adapters,
		normalize: normalizer.Normalize,
		scorer:    scorer,
		resolver:  resolver,
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run crawls every requested platform and returns the report. It never fails:
// platform errors, timeouts and panics are recorded per platform.
func (o *Orchestrator) Run(ctx context.Context, req Request) CrawlReport {
	report := CrawlReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
	}

	sites := dedupeSites(req.Platforms)
	if len(sites) == 0 {
		sites = o.adapters.Sites()
	}
	keywords := req.Keywords
	if len(keywords) == 0 {
		keywords = o.cfg.Keywords
	}
	scorer := o.scorer.WithKeywords(req.Keywords)
	log := o.log.With(logger.String("run_id", report.RunID))

	log.Info("Crawl started",
		logger.Int("platforms", len(sites)),
		logger.Strings("keywords", keywords),
		logger.Int("workers", o.cfg.MaxConcurrency))

	type job struct {
		index int
		site  domain.SourceSite
	}
	type result struct {
		index  int
		report PlatformReport
	}

	jobChan := make(chan job, len(sites))
	for i, site := range sites {
		jobChan <- job{index: i, site: site}
	}
	close(jobChan)

	resultsChan := make(chan result, len(sites))

	workers := min(o.cfg.MaxConcurrency, len(sites))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				q := sources.Query{Keywords: keywords}
				if since, ok := req.Since[j.site]; ok {
					q.Since = &since
				}
				resultsChan <- result{index: j.index, report: o.runPlatform(ctx, j.site, q, scorer, log)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	report.Platforms = make([]PlatformReport, len(sites))
	for res := range resultsChan {
		report.Platforms[res.index] = res.report
		report.TotalFound += res.report.Fetched
	}
	report.FinishedAt = o.now().UTC()

	totals := report.Totals()
	log.Info("Crawl finished",
		logger.Int("total_found", report.TotalFound),
		logger.Int("inserted", totals.Inserted),
		logger.Int("updated", totals.Updated),
		logger.Int("skipped", totals.Skipped),
		logger.Int("faulted", totals.Faulted),
		logger.Int("failed_platforms", len(report.Failed())),
		logger.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	return report
}

// runPlatform executes one platform chain. Records are processed one at a time;
// anything already upserted stays valid when the run ends early.
func (o *Orchestrator) runPlatform(ctx context.Context, site domain.SourceSite, q sources.Query, scorer *relevance.Scorer, log logger.Logger) (rep PlatformReport) {
	rep = PlatformReport{Site: site, StartedAt: o.now().UTC()}
	log = log.With(logger.String("platform", string(site)))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			rep.Error = fmt.Sprintf("panic: %v", r)
			rep.ErrorKind = ErrorKindPanic
			log.Error("Platform run panicked", logger.Any("panic", r))
		}
		rep.Duration = time.Since(start)
	}()

	adapter, ok := o.adapters.Get(site)
	if !ok {
		rep.Error = fmt.Sprintf("no adapter registered for platform %s", site)
		rep.ErrorKind = ErrorKindConfig
		log.Error("Platform not available")
		return rep
	}

	pctx := ctx
	if o.cfg.PlatformTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, o.cfg.PlatformTimeout)
		defer cancel()
	}

	log.Debug("Platform run started", logger.Bool("incremental", q.Since != nil))

	var terminal error
	kind := ""
	for raw, err := range adapter.Fetch(pctx, q) {
		if err != nil {
			if !faults.IsRecordLevel(err) {
				terminal = err
				break
			}
			rep.Fetched++
			rep.Faulted++
			log.Warn("Skipping malformed record", logger.Error(err))
			continue
		}
		rep.Fetched++

		n, err := o.normalize(raw)
		if err != nil {
			rep.Faulted++
			log.Warn("Skipping invalid record", logger.String("external_id", raw.ExternalID), logger.Error(err))
			continue
		}
		rep.Parsed++

		scorer.Apply(n)

		outcome, err := o.resolver.Resolve(pctx, n)
		if err != nil {
			terminal = err
			kind = ErrorKindStorage
			break
		}
		switch outcome {
		case dedup.Inserted:
			rep.Inserted++
		case dedup.Updated:
			rep.Updated++
		case dedup.Skipped:
			rep.Skipped++
		}
	}

	if terminal == nil && pctx.Err() != nil {
		terminal = pctx.Err()
	}
	if terminal != nil {
		rep.Error = terminal.Error()
		rep.ErrorKind = classify(ctx, pctx, terminal, kind)
		rep.TimedOut = rep.ErrorKind == ErrorKindTimeout
		log.Error("Platform run failed",
			logger.String("error_kind", rep.ErrorKind),
			logger.Int("fetched", rep.Fetched),
			logger.Error(terminal))
		return rep
	}

	log.Info("Platform run finished",
		logger.Int("fetched", rep.Fetched),
		logger.Int("parsed", rep.Parsed),
		logger.Int("inserted", rep.Inserted),
		logger.Int("updated", rep.Updated),
		logger.Int("skipped", rep.Skipped),
		logger.Int("faulted", rep.Faulted),
		logger.Duration("elapsed", time.Since(start)))
	return rep
}

// classify names the failure of a platform run. Context errors win over the
// fault kind.
func classify(parent, pctx context.Context, err error, fallback string) string {
	switch {
	case parent.Err() != nil:
		return ErrorKindCancelled
	case errors.Is(pctx.Err(), context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	}
	if fallback != "" {
		return fallback
	}
	if kind := faults.KindOf(err); kind != "" {
		return string(kind)
	}
	return ErrorKindInternal
}

func dedupeSites(sites []domain.SourceSite) []domain.SourceSite {
	seen := make(map[domain.SourceSite]bool, len(sites))
	out := make([]domain.SourceSite, 0, len(sites))
	for _, s := range sites {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
