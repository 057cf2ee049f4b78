package pipeline

import (
	"time"

	"tender-ingest/pkg/domain"
)

// Error kinds reported for platform runs that did not end in a classified fault.
const (
	ErrorKindTimeout   = "timeout"
	ErrorKindCancelled = "cancelled"
	ErrorKindPanic     = "panic"
	ErrorKindConfig    = "config"
	ErrorKindStorage   = "storage"
	ErrorKindInternal  = "internal"
)

// Counts are the per-record outcomes of a platform run.
//
// Fetched counts every item the adapter produced, including malformed ones.
// Faulted counts items dropped by the adapter or the normalizer.
type Counts struct {
	Fetched  int `json:"fetched"`
	Parsed   int `json:"parsed"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Faulted  int `json:"faulted"`
}

func (c *Counts) add(o Counts) {
	c.Fetched += o.Fetched
	c.Parsed += o.Parsed
	c.Inserted += o.Inserted
	c.Updated += o.Updated
	c.Skipped += o.Skipped
	c.Faulted += o.Faulted
}

// PlatformReport is the outcome of one platform run. Error is empty when the
// run finished without a platform-level failure.
type PlatformReport struct {
	Site domain.SourceSite `json:"site"`
	Counts
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// OK reports whether the run finished without a platform-level failure.
func (r PlatformReport) OK() bool { return r.Error == "" }

// CrawlReport aggregates the platform runs of one orchestrator run. Platforms
// keeps the order of the request.
type CrawlReport struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Platforms  []PlatformReport `json:"platforms"`
	TotalFound int              `json:"total_found"`
}

// Platform returns the report for site.
func (r *CrawlReport) Platform(site domain.SourceSite) (PlatformReport, bool) {
	for _, p := range r.Platforms {
		if p.Site == site {
			return p, true
		}
	}
	return PlatformReport{}, false
}

// Failed lists the sites whose run failed.
func (r *CrawlReport) Failed() []domain.SourceSite {
	var out []domain.SourceSite
	for _, p := range r.Platforms {
		if !p.OK() {
			out = append(out, p.Site)
		}
	}
	return out
}

// Totals sums the counts of every platform.
func (r *CrawlReport) Totals() Counts {
	var c Counts
	for _, p := range r.Platforms {
		c.add(p.Counts)
	}
	return c
}
