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
	boampMaxPageSize = 100
	boampNoticeURL   = "https://www.boamp.fr/pages/avis/?q=idweb:"
)

// BOAMP reads French public procurement notices from the BOAMP dataset
// published on OpenDataSoft.
type BOAMP struct {
	base
}

// NewBOAMP creates the BOAMP adapter.
func NewBOAMP(cfg config.PlatformConfig, opts ...Option) *BOAMP {
	return &BOAMP{base: newBase(domain.SiteBOAMP, cfg, httpclient.APIClient, opts)}
}

type odsResponse struct {
	TotalCount int               `json:"total_count"`
	Results    []json.RawMessage `json:"results"`
}

type boampRecord struct {
	IDWeb              flexString `json:"idweb"`
	Objet              string     `json:"objet"`
	NomAcheteur        string     `json:"nomacheteur"`
	DateParution       string     `json:"dateparution"`
	DateLimiteReponse  string     `json:"datelimitereponse"`
	URLAvis            string     `json:"url_avis"`
	DescripteurLibelle multiText  `json:"descripteur_libelle"`
	TypeMarche         multiText  `json:"type_marche"`
	Nature             string     `json:"nature_libelle"`
}

func (a *BOAMP) Fetch(ctx context.Context, q Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		from, _ := a.window(q)
		size := a.pageSize(boampMaxPageSize)

		params := url.Values{}
		// UTC never runs ahead of the Paris publication date, so no day is skipped.
		params.Set("where", "dateparution>=date'"+from.UTC().Format("2006-01-02")+"'")
		params.Set("order_by", "dateparution desc")
		params.Set("limit", strconv.Itoa(size))

		seen := 0
		for page := 0; page < a.maxPages(); page++ {
			params.Set("offset", strconv.Itoa(page*size))

			var resp odsResponse
			if err := a.client.GetJSON(ctx, a.cfg.BaseURL+"?"+params.Encode(), &resp); err != nil {
				yield(domain.RawRecord{}, faults.Schema(a.site, "records", err))
				return
			}

			for _, raw := range resp.Results {
				rec, err := a.toRecord(raw)
				if !yield(rec, err) {
					return
				}
			}

			seen += len(resp.Results)
			if lastPage(len(resp.Results), seen, resp.TotalCount, size) {
				return
			}
		}
	}
}

func (a *BOAMP) toRecord(data json.RawMessage) (domain.RawRecord, error) {
	var r boampRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.RawRecord{}, faults.Parse(a.site, "decode record", err)
	}

	id := strings.TrimSpace(r.IDWeb.String())
	if id == "" {
		return domain.RawRecord{}, faults.Parse(a.site, "decode record", errors.New("record without idweb"))
	}

	rec := domain.RawRecord{
		Site:         a.site,
		ExternalID:   id,
		Title:        r.Objet,
		Organization: r.NomAcheteur,
		Description:  strings.Join(r.DescripteurLibelle.all(), ", "),
		PublishedRaw: r.DateParution,
		DeadlineRaw:  r.DateLimiteReponse,
		CurrencyRaw:  "EUR",
		Language:     "fr",
		URL:          firstNonEmpty(r.URLAvis, boampNoticeURL+url.QueryEscape(id)),
		Provenance:   domain.ProvenanceAPI,
	}
	extra := map[string]string{}
	if t := strings.Join(r.TypeMarche.all(), ","); t != "" {
		extra["type_marche"] = t
	}
	if r.Nature != "" {
		extra["nature"] = r.Nature
	}
	if len(extra) > 0 {
		rec.Extra = extra
	}
	return rec, nil
}
