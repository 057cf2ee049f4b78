package sources

import (
	"context"
	"iter"

	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/logger"
)

// Fallback reads from a primary adapter and switches to a secondary one when
// the primary fails before producing a record or produces none. Records from
// the secondary are marked scraped.
type Fallback struct {
	primary   Adapter
	secondary Adapter
	log       logger.Logger
}

// NewFallback wraps primary with secondary. Both must serve the same site.
func NewFallback(primary, secondary Adapter, log logger.Logger) *Fallback {
	if log == nil {
		log = logger.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, log: log}
}

func (f *Fallback) Site() domain.SourceSite { return f.primary.Site() }

func (f *Fallback) Fetch(ctx context.Context, q Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		records := 0
		var fatal error
		for rec, err := range f.primary.Fetch(ctx, q) {
			if err != nil && !faults.IsRecordLevel(err) {
				fatal = err
				break
			}
			if err == nil {
				records++
			}
			if !yield(rec, err) {
				return
			}
		}

		// A primary that already delivered keeps ownership of the run, and a
		// cancelled run has nothing left to fall back to.
		if records > 0 || ctx.Err() != nil {
			if fatal != nil {
				yield(domain.RawRecord{}, fatal)
			}
			return
		}

		fields := []logger.Field{logger.String("site", string(f.Site()))}
		if fatal != nil {
			fields = append(fields, logger.Error(fatal))
		}
		f.log.Warn("Primary source returned no records, using fallback", fields...)

		for rec, err := range f.secondary.Fetch(ctx, q) {
			if err == nil {
				rec.Provenance = domain.ProvenanceScraped
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}
