package sources

import (
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/httpclient"
	"tender-ingest/pkg/retry"
)

var testNow = time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)

// testOptions gives adapters a single-attempt client and a fixed clock.
func testOptions(clientType httpclient.ClientType) []Option {
	return []Option{
		WithClient(httpclient.NewClient(clientType, httpclient.WithRetryPolicy(retry.Policy{MaxAttempts: 1}))),
		WithClock(func() time.Time { return testNow }),
	}
}

func collect(seq iter.Seq2[domain.RawRecord, error]) ([]domain.RawRecord, []error) {
	var recs []domain.RawRecord
	var errs []error
	for rec, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestWindow(t *testing.T) {
	b := base{now: func() time.Time { return testNow }}

	from, to := b.window(Query{})
	assert.Equal(t, testNow.Add(-defaultLookback), from)
	assert.Equal(t, testNow, to)

	b.cfg.LookbackWindow = time.Hour
	from, _ = b.window(Query{})
	assert.Equal(t, testNow.Add(-time.Hour), from)

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	from, _ = b.window(Query{Since: &since})
	assert.Equal(t, since, from)
}

func TestLastPage(t *testing.T) {
	tests := []struct {
		name                   string
		got, seen, total, size int
		want                   bool
	}{
		{"empty page", 0, 10, 100, 10, true},
		{"more reported", 10, 10, 25, 10, false},
		{"all reported seen", 5, 25, 25, 10, true},
		{"no total, full page", 10, 10, 0, 10, false},
		{"no total, short page", 4, 14, 0, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lastPage(tt.got, tt.seen, tt.total, tt.size))
		})
	}
}
