// Package scheduler triggers crawls: on demand through RunCrawl, and on the
// per-platform cron schedules from the configuration. It owns the watermarks.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tender-ingest/pkg/db"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/logger"
	"tender-ingest/pkg/pipeline"
)

// Crawler runs a crawl request. *pipeline.Orchestrator implements it.
type Crawler interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.CrawlReport
}

// Config lists the platforms the scheduler manages.
type Config struct {
	// Sites are crawled when RunCrawl is called without platforms.
	Sites []domain.SourceSite
	// Schedules holds cron specs per platform, e.g. "0 */6 * * *" or "@daily".
	Schedules map[domain.SourceSite][]string
}

// PlatformStatus describes one platform as seen by the scheduler.
type PlatformStatus struct {
	Site      domain.SourceSite        `json:"site"`
	Schedules []string                 `json:"schedules,omitempty"`
	NextRun   *time.Time               `json:"next_run,omitempty"`
	Running   bool                     `json:"running"`
	LastRun   *pipeline.PlatformReport `json:"last_run,omitempty"`
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	cfg        Config
	crawler    Crawler
	watermarks db.WatermarkStore
	log        logger.Logger
	now        func() time.Time

	cron    *cron.Cron
	parser  cron.Parser
	entries map[domain.SourceSite][]cron.EntryID
	jobCtx  context.Context

	mu      sync.Mutex
	running map[domain.SourceSite]int
	last    map[domain.SourceSite]pipeline.PlatformReport
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the clock used for watermarks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. Call Start to enable the cron triggers.
func New(cfg Config, crawler Crawler, watermarks db.WatermarkStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		crawler:    crawler,
		watermarks: watermarks,
		log:        logger.NewNop(),
		now:        time.Now,
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries:    make(map[domain.SourceSite][]cron.EntryID),
		jobCtx:     context.Background(),
		running:    make(map[domain.SourceSite]int),
		last:       make(map[domain.SourceSite]pipeline.PlatformReport),
	}
	for _, opt := range opts {
		opt(s)
	}
	cl := cronLogger{log: s.log}
	s.cron = cron.New(cron.WithParser(s.parser), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	return s
}

// RunCrawl crawls the given platforms from their watermarks and advances the
// watermark of every platform whose run finished without a platform-level
// error. The watermark moves to the start of the run, so notices published
// while it was in progress are fetched again next time.
func (s *Scheduler) RunCrawl(ctx context.Context, platforms []domain.SourceSite, keywords []string) pipeline.CrawlReport {
	if len(platforms) == 0 {
		platforms = s.cfg.Sites
	}
	startedAt := s.now().UTC()

	since := make(map[domain.SourceSite]time.Time, len(platforms))
	for _, site := range platforms {
		at, ok, err := s.watermarks.LastSuccessfulRun(ctx, site)
		if err != nil {
			s.log.Warn("Reading watermark failed, using the default lookback",
				logger.String("platform", string(site)), logger.Error(err))
			continue
		}
		if ok {
			since[site] = at
		}
	}

	s.markRunning(platforms, 1)
	report := s.crawler.Run(ctx, pipeline.Request{Platforms: platforms, Keywords: keywords, Since: since})
	s.markRunning(platforms, -1)

	for _, p := range report.Platforms {
		s.mu.Lock()
		s.last[p.Site] = p
		s.mu.Unlock()

		if !p.OK() {
			s.log.Warn("Watermark kept",
				logger.String("platform", string(p.Site)),
				logger.String("error_kind", p.ErrorKind))
			continue
		}
		if err := s.watermarks.SetLastSuccessfulRun(ctx, p.Site, startedAt); err != nil {
			s.log.Error("Advancing watermark failed",
				logger.String("platform", string(p.Site)), logger.Error(err))
			continue
		}
		s.log.Debug("Watermark advanced",
			logger.String("platform", string(p.Site)), logger.Time("watermark", startedAt))
	}
	return report
}

// Start registers one cron entry per configured schedule and starts the cron
// runner. Runs triggered by cron use ctx; cancelling it cancels them.
// Overlapping triggers of one platform are skipped, other platforms are not
// affected.
func (s *Scheduler) Start(ctx context.Context) error {
	s.jobCtx = ctx

	sites := make([]domain.SourceSite, 0, len(s.cfg.Schedules))
	for site := range s.cfg.Schedules {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })

	for _, site := range sites {
		job := s.platformJob(site)
		for _, spec := range s.cfg.Schedules[site] {
			id, err := s.cron.AddJob(spec, job)
			if err != nil {
				return fmt.Errorf("schedule %s %q: %w", site, spec, err)
			}
			s.mu.Lock()
			s.entries[site] = append(s.entries[site], id)
			s.mu.Unlock()
			s.log.Info("Platform scheduled",
				logger.String("platform", string(site)),
				logger.String("schedule", spec),
				logger.Time("next_run", s.cron.Entry(id).Schedule.Next(s.now())))
		}
	}

	s.cron.Start()
	s.log.Info("Scheduler started", logger.Int("entries", len(s.cron.Entries())))
	return nil
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// Status reports every platform the scheduler knows about, sorted by site.
func (s *Scheduler) Status() []PlatformStatus {
	known := make(map[domain.SourceSite]bool)
	for _, site := range s.cfg.Sites {
		known[site] = true
	}
	for site := range s.cfg.Schedules {
		known[site] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PlatformStatus, 0, len(known))
	for site := range known {
		st := PlatformStatus{
			Site:      site,
			Schedules: s.cfg.Schedules[site],
			Running:   s.running[site] > 0,
		}
		for _, id := range s.entries[site] {
			next := s.cron.Entry(id).Next
			if next.IsZero() {
				continue
			}
			if st.NextRun == nil || next.Before(*st.NextRun) {
				st.NextRun = &next
			}
		}
		if rep, ok := s.last[site]; ok {
			st.LastRun = &rep
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}

// platformJob returns the cron job of site. The same job value is registered
// for every schedule of the platform so that its triggers share one
// skip-if-running guard.
func (s *Scheduler) platformJob(site domain.SourceSite) cron.Job {
	cl := cronLogger{log: s.log.With(logger.String("platform", string(site)))}
	return cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		s.log.Info("Scheduled crawl triggered", logger.String("platform", string(site)))
		s.RunCrawl(s.jobCtx, []domain.SourceSite{site}, nil)
	}))
}

func (s *Scheduler) markRunning(sites []domain.SourceSite, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, site := range sites {
		s.running[site] += delta
	}
}
