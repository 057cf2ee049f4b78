package sources

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/httpclient"
)

const (
	tedMaxPageSize = 250
	tedNoticeURL   = "https://ted.europa.eu/en/notice/-/detail/"
)

// tedFields are the eForms fields requested from the search API.
var tedFields = []string{
	"publication-number",
	"notice-title",
	"buyer-name",
	"buyer-country",
	"publication-date",
	"deadline-receipt-tender-date-lot",
	"classification-cpv",
	"description-lot",
	"estimated-value-lot",
	"estimated-value-cur-lot",
	"notice-type",
	"links",
}

// tedLanguages is the title language preference, ISO 639-3 as TED sends them.
var tedLanguages = []string{"eng", "fra", "deu", "spa", "ita", "nld"}

// TED reads contract notices from the EU Tenders Electronic Daily search API.
type TED struct {
	base
}

// NewTED creates the TED adapter. Search works anonymously; a configured key
// is sent as X-API-Key.
func NewTED(cfg config.PlatformConfig, opts ...Option) *TED {
	b := newBase(domain.SiteTED, cfg, httpclient.APIClient, opts)
	if cfg.APIKey != "" {
		b.client = b.client.With(httpclient.WithHeader("X-API-Key", cfg.APIKey))
	}
	return &TED{base: b}
}

type tedSearchRequest struct {
	Query          string   `json:"query"`
	Fields         []string `json:"fields"`
	Page           int      `json:"page"`
	Limit          int      `json:"limit"`
	PaginationMode string   `json:"paginationMode"`
}

type tedSearchResponse struct {
	Notices          []json.RawMessage `json:"notices"`
	TotalNoticeCount int               `json:"totalNoticeCount"`
}

type tedNotice struct {
	PublicationNumber flexString `json:"publication-number"`
	Title             multiText  `json:"notice-title"`
	BuyerName         multiText  `json:"buyer-name"`
	BuyerCountry      multiText  `json:"buyer-country"`
	PublicationDate   multiText  `json:"publication-date"`
	Deadline          multiText  `json:"deadline-receipt-tender-date-lot"`
	CPV               multiText  `json:"classification-cpv"`
	Description       multiText  `json:"description-lot"`
	Value             multiText  `json:"estimated-value-lot"`
	ValueCurrency     multiText  `json:"estimated-value-cur-lot"`
	NoticeType        multiText  `json:"notice-type"`
	Links             struct {
		HTML map[string]string `json:"html"`
	} `json:"links"`
}

func (a *TED) Fetch(ctx context.Context, q Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		from, _ := a.window(q)
		size := a.pageSize(tedMaxPageSize)
		req := tedSearchRequest{
			Query:          "publication-date>=" + from.UTC().Format("20060102"),
			Fields:         tedFields,
			Limit:          size,
			PaginationMode: "PAGE_NUMBER",
		}

		seen := 0
		for page := 1; page <= a.maxPages(); page++ {
			req.Page = page

			var resp tedSearchResponse
			if err := a.client.PostJSON(ctx, a.cfg.BaseURL, req, &resp); err != nil {
				yield(domain.RawRecord{}, faults.Schema(a.site, "search", err))
				return
			}

			for _, raw := range resp.Notices {
				rec, err := a.toRecord(raw)
				if !yield(rec, err) {
					return
				}
			}

			seen += len(resp.Notices)
			if lastPage(len(resp.Notices), seen, resp.TotalNoticeCount, size) {
				return
			}
		}
	}
}

func (a *TED) toRecord(data json.RawMessage) (domain.RawRecord, error) {
	var n tedNotice
	if err := json.Unmarshal(data, &n); err != nil {
		return domain.RawRecord{}, faults.Parse(a.site, "decode notice", err)
	}

	id := strings.TrimSpace(n.PublicationNumber.String())
	if id == "" {
		return domain.RawRecord{}, faults.Parse(a.site, "decode notice", errors.New("notice without publication-number"))
	}

	title, lang := tedPick(n.Title)
	link := firstNonEmpty(n.Links.HTML["ENG"], n.Links.HTML["eng"])
	if link == "" {
		link = tedNoticeURL + id
	}

	rec := domain.RawRecord{
		Site:         a.site,
		ExternalID:   id,
		Title:        title,
		Organization: n.BuyerName.pick(tedLanguages...),
		Description:  n.Description.pick(tedLanguages...),
		CPV:          dedupe(n.CPV.all()),
		PublishedRaw: n.PublicationDate.pick(),
		DeadlineRaw:  n.Deadline.pick(),
		ValueRaw:     n.Value.pick(),
		CurrencyRaw:  n.ValueCurrency.pick(),
		CountryRaw:   n.BuyerCountry.pick(),
		Language:     lang,
		URL:          link,
		Provenance:   domain.ProvenanceAPI,
	}
	if t := n.NoticeType.pick(); t != "" {
		rec.Extra = map[string]string{"notice_type": t}
	}
	return rec, nil
}

// tedPick returns the title in the preferred language and that language.
func tedPick(m multiText) (string, string) {
	for _, lang := range tedLanguages {
		if v := firstNonEmpty(m[lang]...); v != "" {
			return v, lang
		}
	}
	return m.pick(), ""
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
