// Package faults classifies ingestion failures so callers can decide between
// skipping a record, retrying a request and abandoning a platform run.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tender-ingest/pkg/domain"
)

// Kind is the fault category.
type Kind string

const (
	// KindTransientNetwork covers timeouts, resets and 5xx responses. Retryable.
	KindTransientNetwork Kind = "transient_network"
	// KindRateLimit is an upstream throttle (HTTP 429). Retryable after a platform-specific delay.
	KindRateLimit Kind = "rate_limit"
	// KindAuth means credentials are missing or rejected. Fatal for the platform run.
	KindAuth Kind = "auth"
	// KindParse is a malformed upstream item or response. Record-level when yielded per item.
	KindParse Kind = "parse"
	// KindValidation is a record missing required canonical fields. Record-level.
	KindValidation Kind = "validation"
	// KindSchema is a response that does not have the expected shape as a whole
	// (an error envelope, an undecodable page). Fatal for the platform run.
	KindSchema Kind = "schema"
)

// Fault is a classified failure. Site and Op are filled in by the component that raised it.
type Fault struct {
	Kind       Kind
	Site       domain.SourceSite
	Op         string
	StatusCode int
	URL        string
	// RetryAfter is the upstream-suggested delay for rate-limit faults, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (f *Fault) Error() string {
	prefix := string(f.Kind)
	if f.Site != "" {
		prefix = string(f.Site) + " " + prefix
	}
	if f.Op != "" {
		prefix += " in " + f.Op
	}
	switch {
	case f.StatusCode > 0 && f.URL != "":
		return fmt.Sprintf("%s: HTTP %d for %s", prefix, f.StatusCode, f.URL)
	case f.StatusCode > 0:
		return fmt.Sprintf("%s: HTTP %d", prefix, f.StatusCode)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, f.Err)
	default:
		return prefix
	}
}

func (f *Fault) Unwrap() error { return f.Err }

// Retryable reports whether the request that produced the fault may be retried with backoff.
func (f *Fault) Retryable() bool {
	return f.Kind == KindTransientNetwork || f.Kind == KindRateLimit
}

// RecordLevel reports whether the fault concerns a single record rather than the platform run.
func (f *Fault) RecordLevel() bool {
	return f.Kind == KindParse || f.Kind == KindValidation
}

// New creates a fault of the given kind wrapping err.
func New(kind Kind, site domain.SourceSite, op string, err error) *Fault {
	return &Fault{Kind: kind, Site: site, Op: op, Err: err}
}

// Parse creates a parse fault.
func Parse(site domain.SourceSite, op string, err error) *Fault {
	return New(KindParse, site, op, err)
}

// Validation creates a validation fault with a formatted reason.
func Validation(site domain.SourceSite, format string, args ...any) *Fault {
	return New(KindValidation, site, "normalize", fmt.Errorf(format, args...))
}

// Schema converts err into a schema fault for site. A request-level parse fault
// keeps its status code and URL; other faults are returned unchanged.
func Schema(site domain.SourceSite, op string, err error) error {
	f, ok := As(err)
	if !ok {
		return New(KindSchema, site, op, err)
	}
	if !f.RecordLevel() {
		return err
	}
	g := *f
	g.Kind = KindSchema
	g.Op = op
	return &g
}

// Auth creates an auth fault.
func Auth(site domain.SourceSite, op string, err error) *Fault {
	return New(KindAuth, site, op, err)
}

// ClassifyHTTPStatus maps a non-2xx response to a fault. 401 and 403 are auth failures,
// 429 is a rate limit, 408 and 5xx are transient, anything else is a parse fault of that request.
func ClassifyHTTPStatus(site domain.SourceSite, statusCode int, url string, header http.Header) *Fault {
	f := &Fault{Site: site, StatusCode: statusCode, URL: url, Err: fmt.Errorf("HTTP %d", statusCode)}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		f.Kind = KindAuth
	case statusCode == http.StatusTooManyRequests:
		f.Kind = KindRateLimit
		f.RetryAfter = parseRetryAfter(header)
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		f.Kind = KindTransientNetwork
		if statusCode == http.StatusServiceUnavailable {
			f.RetryAfter = parseRetryAfter(header)
		}
	default:
		f.Kind = KindParse
	}
	return f
}

// ClassifyNetworkError wraps a transport error as a transient fault.
// Cancellation is passed through unchanged.
func ClassifyNetworkError(site domain.SourceSite, url string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Fault{Kind: KindTransientNetwork, Site: site, URL: url, Err: err}
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// As extracts a *Fault from err.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable fault.
func IsRetryable(err error) bool {
	f, ok := As(err)
	return ok && f.Retryable()
}

// IsRecordLevel reports whether err only concerns a single record.
func IsRecordLevel(err error) bool {
	f, ok := As(err)
	return ok && f.RecordLevel()
}

// KindOf returns the fault kind of err, or an empty Kind for unclassified errors.
func KindOf(err error) Kind {
	if f, ok := As(err); ok {
		return f.Kind
	}
	return ""
}
