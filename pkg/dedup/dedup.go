// Package dedup decides whether a scored notice is new, changed or already known,
// and writes it through the gateway accordingly.
package dedup

import (
	"context"
	"fmt"
	"time"

	"tender-ingest/pkg/db"
	"tender-ingest/pkg/domain"
)

// Outcome is what the resolver did with a notice.
type Outcome string

const (
	Inserted Outcome = "inserted"
	Updated  Outcome = "updated"
	Skipped  Outcome = "skipped"
)

// Resolver applies the upsert rules against a Gateway. It holds no mutable state
// and may be shared by concurrent platform runs.
type Resolver struct {
	gateway db.Gateway
	now     func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the clock used for CollectedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(gateway db.Gateway, opts ...Option) *Resolver {
	r := &Resolver{gateway: gateway, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve inserts n when its key is unknown, skips it when the stored content is
// identical, and otherwise overwrites the stored record keeping its CollectedAt.
// n's timestamps are set to what was written.
func (r *Resolver) Resolve(ctx context.Context, n *domain.TenderNotice) (Outcome, error) {
	existing, err := r.gateway.FindByKey(ctx, n.SourceSite, n.ExternalID)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", n.Key(), err)
	}

	now := r.now().UTC()
	outcome := Inserted
	if existing != nil {
		if existing.ContentHash() == n.ContentHash() {
			n.CollectedAt = existing.CollectedAt
			n.UpdatedAt = existing.UpdatedAt
			return Skipped, nil
		}
		outcome = Updated
		n.CollectedAt = existing.CollectedAt
	} else {
		n.CollectedAt = now
	}
	n.UpdatedAt = now

	if _, err := r.gateway.Upsert(ctx, n); err != nil {
		return "", fmt.Errorf("write %s: %w", n.Key(), err)
	}
	return outcome, nil
}
