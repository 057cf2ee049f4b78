package sources

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/httpclient"
)

const (
	samWindowLayout = "01/02/2006"
	samMaxPageSize  = 1000
	samNoticeURL    = "https://sam.gov/opp/"
)

// SAMGov reads contract opportunities from the SAM.gov public API. With run
// keywords it issues one title search per keyword and drops repeats.
type SAMGov struct {
	base
}

// NewSAMGov creates the SAM.gov adapter.
func NewSAMGov(cfg config.PlatformConfig, opts ...Option) *SAMGov {
	return &SAMGov{base: newBase(domain.SiteSAMGov, cfg, httpclient.APIClient, opts)}
}

type samResponse struct {
	TotalRecords      int               `json:"totalRecords"`
	OpportunitiesData []json.RawMessage `json:"opportunitiesData"`
}

type samOpportunity struct {
	NoticeID           string     `json:"noticeId"`
	Title              string     `json:"title"`
	SolicitationNumber string     `json:"solicitationNumber"`
	OrganizationName   string     `json:"organizationName"`
	FullParentPathName string     `json:"fullParentPathName"`
	PostedDate         string     `json:"postedDate"`
	ResponseDeadLine   string     `json:"responseDeadLine"`
	Type               string     `json:"type"`
	NAICSCode          flexString `json:"naicsCode"`
	Description        string     `json:"description"`
	UILink             string     `json:"uiLink"`
	Award              *struct {
		Amount flexString `json:"amount"`
	} `json:"award"`
}

func (a *SAMGov) Fetch(ctx context.Context, q Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		if a.cfg.APIKey == "" {
			yield(domain.RawRecord{}, faults.Auth(a.site, "fetch", errMissingAPIKey))
			return
		}
		from, to := a.window(q)

		titles := q.Keywords
		if len(titles) == 0 {
			titles = []string{""}
		}
		seen := map[string]bool{}
		for _, title := range titles {
			if !a.search(ctx, title, from, to, seen, yield) {
				return
			}
		}
	}
}

// search pages through one title query. It returns false when the sequence must end.
func (a *SAMGov) search(ctx context.Context, title string, from, to time.Time, seen map[string]bool, yield func(domain.RawRecord, error) bool) bool {
	size := a.pageSize(samMaxPageSize)
	fetched := 0
	for page := 0; page < a.maxPages(); page++ {
		var resp samResponse
		if err := a.client.GetJSON(ctx, a.pageURL(title, from, to, size, page*size), &resp); err != nil {
			yield(domain.RawRecord{}, faults.Schema(a.site, "search", err))
			return false
		}

		for _, raw := range resp.OpportunitiesData {
			rec, err := a.toRecord(raw)
			if err == nil {
				if seen[rec.ExternalID] {
					continue
				}
				seen[rec.ExternalID] = true
			}
			if !yield(rec, err) {
				return false
			}
		}

		fetched += len(resp.OpportunitiesData)
		if lastPage(len(resp.OpportunitiesData), fetched, resp.TotalRecords, size) {
			return true
		}
	}
	return true
}

func (a *SAMGov) pageURL(title string, from, to time.Time, limit, offset int) string {
	params := url.Values{}
	params.Set("api_key", a.cfg.APIKey)
	params.Set("postedFrom", from.UTC().Format(samWindowLayout))
	params.Set("postedTo", to.UTC().Format(samWindowLayout))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if title = strings.TrimSpace(title); title != "" {
		params.Set("title", title)
	}
	return a.cfg.BaseURL + "?" + params.Encode()
}

func (a *SAMGov) toRecord(data json.RawMessage) (domain.RawRecord, error) {
	var o samOpportunity
	if err := json.Unmarshal(data, &o); err != nil {
		return domain.RawRecord{}, faults.Parse(a.site, "decode opportunity", err)
	}
	if o.NoticeID == "" {
		return domain.RawRecord{}, faults.Parse(a.site, "decode opportunity", errors.New("opportunity without noticeId"))
	}

	rec := domain.RawRecord{
		Site:         a.site,
		ExternalID:   o.NoticeID,
		Title:        o.Title,
		Organization: firstNonEmpty(o.OrganizationName, lastPathSegment(o.FullParentPathName)),
		PublishedRaw: o.PostedDate,
		DeadlineRaw:  o.ResponseDeadLine,
		CurrencyRaw:  "USD",
		Language:     "en",
		URL:          firstNonEmpty(o.UILink, samNoticeURL+o.NoticeID+"/view"),
		Provenance:   domain.ProvenanceAPI,
		Extra:        map[string]string{},
	}
	// The search endpoint returns a link to the description, not the text.
	if !strings.HasPrefix(o.Description, "http") {
		rec.Description = o.Description
	}
	if o.Award != nil {
		rec.ValueRaw = o.Award.Amount.String()
	}
	if o.NAICSCode != "" {
		rec.Extra["naics"] = o.NAICSCode.String()
	}
	if o.SolicitationNumber != "" {
		rec.Extra["solicitation_number"] = o.SolicitationNumber
	}
	if o.Type != "" {
		rec.Extra["notice_type"] = o.Type
	}
	return rec, nil
}

// lastPathSegment returns the most specific office of a "DEPT.AGENCY.OFFICE" path.
func lastPathSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return strings.TrimSpace(path[i+1:])
	}
	return strings.TrimSpace(path)
}
