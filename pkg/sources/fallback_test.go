package sources

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
)

// stubAdapter yields its records, then err when set.
type stubAdapter struct {
	site    domain.SourceSite
	records []domain.RawRecord
	err     error
	calls   int
}

func (s *stubAdapter) Site() domain.SourceSite { return s.site }

func (s *stubAdapter) Fetch(context.Context, Query) iter.Seq2[domain.RawRecord, error] {
	s.calls++
	return func(yield func(domain.RawRecord, error) bool) {
		for _, r := range s.records {
			if !yield(r, nil) {
				return
			}
		}
		if s.err != nil {
			yield(domain.RawRecord{}, s.err)
		}
	}
}

func rawRecords(ids ...string) []domain.RawRecord {
	out := make([]domain.RawRecord, len(ids))
	for i, id := range ids {
		out[i] = domain.RawRecord{Site: domain.SiteBOAMP, ExternalID: id, Title: id, Provenance: domain.ProvenanceAPI}
	}
	return out
}

func TestFallback(t *testing.T) {
	authErr := faults.Auth(domain.SiteBOAMP, "records", errors.New("denied"))
	parseErr := faults.Parse(domain.SiteBOAMP, "decode", errors.New("bad item"))

	tests := []struct {
		name          string
		primary       *stubAdapter
		wantIDs       []string
		wantErrs      int
		wantSecondary bool
	}{
		{
			name:    "primary delivers",
			primary: &stubAdapter{records: rawRecords("p1", "p2")},
			wantIDs: []string{"p1", "p2"},
		},
		{
			name:          "primary empty",
			primary:       &stubAdapter{},
			wantIDs:       []string{"s1"},
			wantSecondary: true,
		},
		{
			name:          "primary fails before any record",
			primary:       &stubAdapter{err: authErr},
			wantIDs:       []string{"s1"},
			wantSecondary: true,
		},
		{
			name:     "primary fails after records",
			primary:  &stubAdapter{records: rawRecords("p1"), err: authErr},
			wantIDs:  []string{"p1"},
			wantErrs: 1,
		},
		{
			name:          "only parse faults from primary",
			primary:       &stubAdapter{err: parseErr},
			wantIDs:       []string{"s1"},
			wantErrs:      1,
			wantSecondary: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.primary.site = domain.SiteBOAMP
			secondary := &stubAdapter{site: domain.SiteBOAMP, records: rawRecords("s1")}

			f := NewFallback(tt.primary, secondary, nil)
			recs, errs := collect(f.Fetch(context.Background(), Query{}))

			var ids []string
			for _, r := range recs {
				ids = append(ids, r.ExternalID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Len(t, errs, tt.wantErrs)
			assert.Equal(t, tt.wantSecondary, secondary.calls > 0)
			if tt.wantSecondary {
				require.NotEmpty(t, recs)
				assert.Equal(t, domain.ProvenanceScraped, recs[len(recs)-1].Provenance)
			}
		})
	}
}

func TestFallback_CancelledRunDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &stubAdapter{site: domain.SiteBOAMP, err: context.Canceled}
	secondary := &stubAdapter{site: domain.SiteBOAMP, records: rawRecords("s1")}

	_, errs := collect(NewFallback(primary, secondary, nil).Fetch(ctx, Query{}))

	assert.Zero(t, secondary.calls)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}
