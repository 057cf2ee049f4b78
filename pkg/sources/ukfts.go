package sources

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/httpclient"
)

const (
	ukftsMaxPageSize = 100
	ukftsWindow      = "2006-01-02T15:04:05"
	ukftsNoticeURL   = "https://www.find-tender.service.gov.uk/Notice/"
)

// UKFTS reads OCDS release packages from the UK Find a Tender service.
// Pagination follows links.next.
type UKFTS struct {
	base
}

// NewUKFTS creates the UK Find a Tender adapter.
func NewUKFTS(cfg config.PlatformConfig, opts ...Option) *UKFTS {
	return &UKFTS{base: newBase(domain.SiteUKFTS, cfg, httpclient.APIClient, opts)}
}

type ocdsPackage struct {
	Releases []json.RawMessage `json:"releases"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

type ocdsClassification struct {
	Scheme string     `json:"scheme"`
	ID     flexString `json:"id"`
}

type ocdsRelease struct {
	ID            string      `json:"id"`
	OCID          string      `json:"ocid"`
	Date          string      `json:"date"`
	PublishedDate string      `json:"publishedDate"`
	Language      string      `json:"language"`
	Buyer         ocdsParty   `json:"buyer"`
	Parties       []ocdsParty `json:"parties"`
	Tender        struct {
		ID           flexString `json:"id"`
		Title        string     `json:"title"`
		Description  string     `json:"description"`
		TenderPeriod struct {
			EndDate string `json:"endDate"`
		} `json:"tenderPeriod"`
		Value struct {
			Amount   flexString `json:"amount"`
			Currency string     `json:"currency"`
		} `json:"value"`
		Classification ocdsClassification `json:"classification"`
		Items          []struct {
			Classification            ocdsClassification   `json:"classification"`
			AdditionalClassifications []ocdsClassification `json:"additionalClassifications"`
		} `json:"items"`
	} `json:"tender"`
}

type ocdsParty struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (a *UKFTS) Fetch(ctx context.Context, q Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		from, to := a.window(q)
		params := url.Values{}
		params.Set("limit", strconv.Itoa(a.pageSize(ukftsMaxPageSize)))
		params.Set("updatedFrom", from.UTC().Format(ukftsWindow))
		params.Set("updatedTo", to.UTC().Format(ukftsWindow))
		next := a.cfg.BaseURL + "?" + params.Encode()

		for page := 1; page <= a.maxPages() && next != ""; page++ {
			var rp ocdsPackage
			if err := a.client.GetJSON(ctx, next, &rp); err != nil {
				yield(domain.RawRecord{}, faults.Schema(a.site, "release packages", err))
				return
			}

			for _, raw := range rp.Releases {
				rec, err := a.toRecord(raw)
				if !yield(rec, err) {
					return
				}
			}

			if len(rp.Releases) == 0 {
				return
			}
			next = rp.Links.Next
		}
	}
}

func (a *UKFTS) toRecord(data json.RawMessage) (domain.RawRecord, error) {
	var r ocdsRelease
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.RawRecord{}, faults.Parse(a.site, "decode release", err)
	}

	id := firstNonEmpty(r.OCID, r.ID)
	if id == "" {
		return domain.RawRecord{}, faults.Parse(a.site, "decode release", errors.New("release without ocid"))
	}

	return domain.RawRecord{
		Site:         a.site,
		ExternalID:   id,
		Title:        r.Tender.Title,
		Organization: firstNonEmpty(r.Buyer.Name, buyerParty(r.Parties)),
		Description:  r.Tender.Description,
		CPV:          r.cpvCodes(),
		PublishedRaw: firstNonEmpty(r.PublishedDate, r.Date),
		DeadlineRaw:  r.Tender.TenderPeriod.EndDate,
		ValueRaw:     r.Tender.Value.Amount.String(),
		CurrencyRaw:  r.Tender.Value.Currency,
		Language:     r.Language,
		URL:          ukftsNoticeURL + url.PathEscape(firstNonEmpty(r.ID, id)),
		Provenance:   domain.ProvenanceAPI,
	}, nil
}

func (r *ocdsRelease) cpvCodes() []string {
	var codes []string
	add := func(c ocdsClassification) {
		if strings.EqualFold(c.Scheme, "CPV") && c.ID != "" {
			codes = append(codes, c.ID.String())
		}
	}
	add(r.Tender.Classification)
	for _, item := range r.Tender.Items {
		add(item.Classification)
		for _, c := range item.AdditionalClassifications {
			add(c)
		}
	}
	return dedupe(codes)
}

func buyerParty(parties []ocdsParty) string {
	for _, p := range parties {
		for _, role := range p.Roles {
			if role == "buyer" {
				return p.Name
			}
		}
	}
	return ""
}
