package cmd

import (
	"context"
	"fmt"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/db"
	"tender-ingest/pkg/dedup"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/logger"
	"tender-ingest/pkg/pipeline"
	"tender-ingest/pkg/relevance"
	"tender-ingest/pkg/scheduler"
	"tender-ingest/pkg/sources"
)

// deps holds what the commands share. The store is opened on first use.
type deps struct {
	cfg   *config.Config
	log   logger.Logger
	store db.Store
}

func loadDeps() (*deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if storageDriver != "" {
		cfg.Storage.Driver = storageDriver
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	// Tables go to stdout.
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"stderr"}
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, log: log}, nil
}

func (d *deps) openStore(ctx context.Context) (db.Store, error) {
	if d.store != nil {
		return d.store, nil
	}
	store, err := db.Open(ctx, d.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", d.cfg.Storage.Driver, err)
	}
	if d.cfg.Storage.Driver == config.DriverMemory {
		d.log.Warn("Using the in-memory store, nothing is kept after exit")
	}
	d.store = store
	return store, nil
}

// scheduler wires registry, scorer, resolver and orchestrator over the store.
func (d *deps) scheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	store, err := d.openStore(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := sources.Build(d.cfg, d.log)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	scorer := relevance.NewScorer(d.cfg.Relevance.HealthcareCPV, d.cfg.Relevance.AllKeywords())
	orchestrator := pipeline.NewOrchestrator(pipeline.Config{
		MaxConcurrency:  d.cfg.Crawl.MaxConcurrency,
		PlatformTimeout: d.cfg.Crawl.PlatformTimeout,
		Keywords:        d.cfg.Crawl.Keywords,
	}, registry, scorer, dedup.NewResolver(store), pipeline.WithLogger(d.log))

	schedules := make(map[domain.SourceSite][]string)
	for _, site := range registry.Sites() {
		if specs := d.cfg.Platform(site).Schedules; len(specs) > 0 {
			schedules[site] = specs
		}
	}
	return scheduler.New(scheduler.Config{Sites: registry.Sites(), Schedules: schedules},
		orchestrator, store, scheduler.WithLogger(d.log)), nil
}

func (d *deps) close(ctx context.Context) {
	if d.store != nil {
		if err := d.store.Close(ctx); err != nil {
			d.log.Warn("Closing store failed", logger.Error(err))
		}
	}
	_ = d.log.Sync()
}
