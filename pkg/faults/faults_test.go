package faults_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
)

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantKind  faults.Kind
		retryable bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: faults.KindAuth},
		{name: "forbidden", status: http.StatusForbidden, wantKind: faults.KindAuth},
		{name: "too many requests", status: http.StatusTooManyRequests, wantKind: faults.KindRateLimit, retryable: true},
		{name: "bad gateway", status: http.StatusBadGateway, wantKind: faults.KindTransientNetwork, retryable: true},
		{name: "request timeout", status: http.StatusRequestTimeout, wantKind: faults.KindTransientNetwork, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, wantKind: faults.KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := faults.ClassifyHTTPStatus(domain.SiteSAMGov, tt.status, "https://api.example/x", nil)
			assert.Equal(t, tt.wantKind, f.Kind)
			assert.Equal(t, tt.retryable, f.Retryable())
			assert.Contains(t, f.Error(), fmt.Sprintf("HTTP %d", tt.status))
		})
	}
}

func TestClassifyHTTPStatus_RetryAfter(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("Retry-After", "7")

	f := faults.ClassifyHTTPStatus(domain.SiteTED, http.StatusTooManyRequests, "", header)
	assert.Equal(t, 7*time.Second, f.RetryAfter)
}

func TestClassifyNetworkError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, faults.ClassifyNetworkError(domain.SiteG2B, "u", nil))

	err := faults.ClassifyNetworkError(domain.SiteG2B, "u", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, faults.IsRetryable(err))

	err = faults.ClassifyNetworkError(domain.SiteG2B, "u", errors.New("connection reset by peer"))
	assert.True(t, faults.IsRetryable(err))
	assert.Equal(t, faults.KindTransientNetwork, faults.KindOf(err))
}

func TestAsThroughWrapping(t *testing.T) {
	t.Parallel()

	base := faults.Parse(domain.SiteBOAMP, "decode", errors.New("unexpected EOF"))
	wrapped := fmt.Errorf("page 3: %w", base)

	f, ok := faults.As(wrapped)
	require.True(t, ok)
	assert.Equal(t, faults.KindParse, f.Kind)
	assert.True(t, faults.IsRecordLevel(wrapped))
	assert.Equal(t, faults.Kind(""), faults.KindOf(errors.New("plain")))
}

func TestSchema(t *testing.T) {
	t.Parallel()

	notFound := faults.ClassifyHTTPStatus(domain.SiteUKFTS, http.StatusNotFound, "https://x/releases", nil)
	err := faults.Schema(domain.SiteUKFTS, "fetch page", notFound)

	f, ok := faults.As(err)
	require.True(t, ok)
	assert.Equal(t, faults.KindSchema, f.Kind)
	assert.Equal(t, http.StatusNotFound, f.StatusCode)
	assert.False(t, faults.IsRecordLevel(err))
	assert.Equal(t, faults.KindParse, notFound.Kind, "original fault is not modified")

	auth := faults.Auth(domain.SiteUKFTS, "fetch page", errors.New("denied"))
	assert.Same(t, auth, faults.Schema(domain.SiteUKFTS, "fetch page", auth))

	assert.Equal(t, faults.KindSchema, faults.KindOf(faults.Schema(domain.SiteUKFTS, "decode", errors.New("bad"))))
}
