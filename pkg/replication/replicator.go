// Package replication copies stored notices and watermarks from one storage
// backend to another, e.g. from a Mongo archive into Postgres.
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tender-ingest/pkg/db"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/logger"
)

const (
	defaultBatchSize = 100
	defaultWorkers   = 5
)

// Config wires the replication dependencies.
type Config struct {
	Source db.Exporter
	Target db.Gateway

	// BatchSize and Workers default to 100 and 5.
	BatchSize int
	Workers   int
	Logger    logger.Logger
}

// Result counts what a replication did.
type Result struct {
	Processed  int `json:"processed"`
	Copied     int `json:"copied"`
	Skipped    int `json:"skipped"`
	Watermarks int `json:"watermarks"`
}

// Replicator copies notices keyed by (site, external id). A target record is
// overwritten only when it differs and was not updated after the source one,
// so running it twice copies nothing the second time.
type Replicator struct {
	source    db.Exporter
	target    db.Gateway
	batchSize int
	workers   int
	log       logger.Logger
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Source == nil {
		return nil, errors.New("replication source is required")
	}
	if cfg.Target == nil {
		return nil, errors.New("replication target is required")
	}
	r := &Replicator{
		source:    cfg.Source,
		target:    cfg.Target,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		log:       cfg.Logger,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.workers <= 0 {
		r.workers = defaultWorkers
	}
	if r.log == nil {
		r.log = logger.NewNop()
	}
	return r, nil
}

// Replicate copies every notice of the source, then the watermarks when both
// sides keep them.
func (r *Replicator) Replicate(ctx context.Context) (Result, error) {
	notices, err := r.source.All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read source notices: %w", err)
	}
	r.log.Info("Loaded notices from source, processing in batches",
		logger.Int("notices", len(notices)),
		logger.Int("batch_size", r.batchSize))

	res, err := r.processBatches(ctx, notices)
	if err != nil {
		return res, err
	}

	res.Watermarks, err = r.copyWatermarks(ctx)
	if err != nil {
		return res, err
	}

	r.log.Info("Replication complete",
		logger.Int("processed", res.Processed),
		logger.Int("copied", res.Copied),
		logger.Int("skipped", res.Skipped),
		logger.Int("watermarks", res.Watermarks))
	return res, nil
}

// processBatches fans batches out to the workers and stops at the first error.
func (r *Replicator) processBatches(ctx context.Context, notices []domain.TenderNotice) (Result, error) {
	type batchJob struct {
		batch      []domain.TenderNotice
		start, end int
	}
	type batchResult struct {
		copied, skipped int
		err             error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numBatches := (len(notices) + r.batchSize - 1) / r.batchSize
	jobs := make(chan batchJob, numBatches)
	results := make(chan batchResult, numBatches)

	for start := 0; start < len(notices); start += r.batchSize {
		end := min(start+r.batchSize, len(notices))
		jobs <- batchJob{batch: notices[start:end], start: start, end: end}
	}
	close(jobs)

	var wg sync.WaitGroup
	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				copied, skipped, err := r.processBatch(ctx, job.batch)
				if err != nil {
					err = fmt.Errorf("batch [%d:%d]: %w", job.start, job.end, err)
				}
				results <- batchResult{copied: copied, skipped: skipped, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var res Result
	var firstErr error
	for br := range results {
		if br.err != nil {
			if firstErr == nil {
				firstErr = br.err
				cancel()
			}
			continue
		}
		res.Copied += br.copied
		res.Skipped += br.skipped
		res.Processed += br.copied + br.skipped
		if res.Processed%1000 == 0 {
			r.log.Info("Replication progress",
				logger.Int("processed", res.Processed),
				logger.Int("total", len(notices)),
				logger.Int("copied", res.Copied))
		}
	}
	return res, firstErr
}

func (r *Replicator) processBatch(ctx context.Context, batch []domain.TenderNotice) (copied, skipped int, err error) {
	for i := range batch {
		n := &batch[i]
		if err := ctx.Err(); err != nil {
			return copied, skipped, err
		}

		existing, err := r.target.FindByKey(ctx, n.SourceSite, n.ExternalID)
		if err != nil {
			return copied, skipped, fmt.Errorf("lookup %s: %w", n.Key(), err)
		}
		if existing != nil && (existing.ContentHash() == n.ContentHash() || existing.UpdatedAt.After(n.UpdatedAt)) {
			skipped++
			continue
		}
		if _, err := r.target.Upsert(ctx, n); err != nil {
			return copied, skipped, fmt.Errorf("write %s: %w", n.Key(), err)
		}
		copied++
	}
	r.log.Debug("Batch replicated", logger.Int("copied", copied), logger.Int("skipped", skipped))
	return copied, skipped, nil
}

// copyWatermarks moves a watermark forward on the target, never back.
func (r *Replicator) copyWatermarks(ctx context.Context) (int, error) {
	src, ok := r.source.(db.WatermarkStore)
	if !ok {
		return 0, nil
	}
	dst, ok := r.target.(db.WatermarkStore)
	if !ok {
		return 0, nil
	}

	copied := 0
	for _, site := range domain.AllSites() {
		at, found, err := src.LastSuccessfulRun(ctx, site)
		if err != nil {
			return copied, fmt.Errorf("read watermark %s: %w", site, err)
		}
		if !found {
			continue
		}
		cur, has, err := dst.LastSuccessfulRun(ctx, site)
		if err != nil {
			return copied, fmt.Errorf("read target watermark %s: %w", site, err)
		}
		if has && !cur.Before(at) {
			continue
		}
		if err := dst.SetLastSuccessfulRun(ctx, site, at); err != nil {
			return copied, fmt.Errorf("write watermark %s: %w", site, err)
		}
		copied++
	}
	return copied, nil
}
