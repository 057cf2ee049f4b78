package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/httpclient"
	"tender-ingest/pkg/logger"
)

const (
	g2bWindowLayout = "200601021504"
	g2bDetailURL    = "https://www.g2b.go.kr/ep/invitation/publish/bidInfoDtl/bidInfoDtl.do"
	g2bMaxPageSize  = 999
)

var g2bKST = time.FixedZone("KST", 9*60*60)

// G2B reads bid notices from the Korean public data portal. Each configured
// operation is a notice category (goods, services, works, other).
type G2B struct {
	base
}

// NewG2B creates the G2B adapter.
func NewG2B(cfg config.PlatformConfig, opts ...Option) *G2B {
	return &G2B{base: newBase(domain.SiteG2B, cfg, httpclient.APIClient, opts)}
}

type g2bResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items      json.RawMessage `json:"items"`
			TotalCount flexString      `json:"totalCount"`
			PageNo     flexString      `json:"pageNo"`
		} `json:"body"`
	} `json:"response"`
}

type g2bItem struct {
	BidNtceNo     flexString `json:"bidNtceNo"`
	BidNtceOrd    flexString `json:"bidNtceOrd"`
	BidNtceNm     string     `json:"bidNtceNm"`
	NtceNm        string     `json:"ntceNm"`
	BidNm         string     `json:"bidNm"`
	NtceInsttNm   string     `json:"ntceInsttNm"`
	DminsttNm     string     `json:"dminsttNm"`
	BidNtceDt     string     `json:"bidNtceDt"`
	BidClseDt     string     `json:"bidClseDt"`
	PresmptPrce   flexString `json:"presmptPrce"`
	AsignBdgtAmt  flexString `json:"asignBdgtAmt"`
	BidNtceDtlURL string     `json:"bidNtceDtlUrl"`
	PrdctClsfcNo  flexString `json:"prdctClsfcNo"`
	PrdctClsfcNm  string     `json:"prdctClsfcNoNm"`
	NtceKindNm    string     `json:"ntceKindNm"`
}

func (a *G2B) Fetch(ctx context.Context, q Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		if a.cfg.APIKey == "" {
			yield(domain.RawRecord{}, faults.Auth(a.site, "fetch", errMissingAPIKey))
			return
		}
		from, to := a.window(q)

		for _, op := range a.cfg.Operations {
			seen := 0
			for page := 1; page <= a.maxPages(); page++ {
				items, total, err := a.fetchPage(ctx, op, page, from, to)
				if err != nil {
					yield(domain.RawRecord{}, err)
					return
				}

				for _, raw := range items {
					rec, err := a.toRecord(op, raw)
					if !yield(rec, err) {
						return
					}
				}

				seen += len(items)
				if lastPage(len(items), seen, total, a.pageSize(g2bMaxPageSize)) {
					break
				}
			}
			a.log.Debug("G2B operation done", logger.String("operation", op), logger.Int("items", seen))
		}
	}
}

func (a *G2B) fetchPage(ctx context.Context, op string, page int, from, to time.Time) ([]json.RawMessage, int, error) {
	u := a.pageURL(op, page, from, to)

	var resp g2bResponse
	if err := a.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, 0, faults.Schema(a.site, op, err)
	}

	header := resp.Response.Header
	if header.ResultCode != "" && header.ResultCode != "00" {
		return nil, 0, g2bResultFault(a.site, op, header.ResultCode, header.ResultMsg)
	}

	items, err := g2bItems(resp.Response.Body.Items)
	if err != nil {
		return nil, 0, faults.Schema(a.site, op, err)
	}
	total, _ := strconv.Atoi(resp.Response.Body.TotalCount.String())
	return items, total, nil
}

func (a *G2B) pageURL(op string, page int, from, to time.Time) string {
	params := url.Values{}
	params.Set("serviceKey", a.cfg.APIKey)
	params.Set("type", "json")
	params.Set("numOfRows", strconv.Itoa(a.pageSize(g2bMaxPageSize)))
	params.Set("pageNo", strconv.Itoa(page))
	params.Set("inqryDiv", "2")
	params.Set("inqryBgnDt", from.In(g2bKST).Format(g2bWindowLayout))
	params.Set("inqryEndDt", to.In(g2bKST).Format(g2bWindowLayout))
	return strings.TrimRight(a.cfg.BaseURL, "/") + "/" + op + "?" + params.Encode()
}

// g2bResultFault maps portal result codes carried in a 200 response.
// 30 and 31 reject the service key, 22 is the daily quota.
func g2bResultFault(site domain.SourceSite, op, code, msg string) error {
	err := fmt.Errorf("result code %s: %s", code, msg)
	switch code {
	case "30", "31", "32":
		return faults.Auth(site, op, err)
	case "22":
		return faults.New(faults.KindRateLimit, site, op, err)
	default:
		return faults.New(faults.KindSchema, site, op, err)
	}
}

// g2bItems accepts "items": [..], "items": {"item": [..]}, "items": {"item": {..}}
// and the empty string the portal sends for an empty page.
func g2bItems(data json.RawMessage) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		return nil, nil
	}

	var list []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapper struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	item := bytes.TrimSpace(wrapper.Item)
	switch {
	case len(item) == 0:
		return nil, nil
	case item[0] == '[':
		if err := json.Unmarshal(item, &list); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return []json.RawMessage{item}, nil
	}
}

func (a *G2B) toRecord(op string, data json.RawMessage) (domain.RawRecord, error) {
	var item g2bItem
	if err := json.Unmarshal(data, &item); err != nil {
		return domain.RawRecord{}, faults.Parse(a.site, op, err)
	}

	no := strings.TrimSpace(item.BidNtceNo.String())
	if no == "" {
		return domain.RawRecord{}, faults.Parse(a.site, op, errors.New("bid notice without bidNtceNo"))
	}
	ord := firstNonEmpty(item.BidNtceOrd.String(), "000")

	link := item.BidNtceDtlURL
	if link == "" {
		link = g2bDetailURL + "?" + url.Values{"bidNo": {no}, "bidRound": {ord}}.Encode()
	}

	rec := domain.RawRecord{
		Site:         a.site,
		ExternalID:   no + "-" + ord,
		Title:        firstNonEmpty(item.BidNtceNm, item.NtceNm, item.BidNm),
		Organization: firstNonEmpty(item.NtceInsttNm, item.DminsttNm),
		Description:  firstNonEmpty(item.PrdctClsfcNm, item.NtceKindNm),
		PublishedRaw: item.BidNtceDt,
		DeadlineRaw:  item.BidClseDt,
		ValueRaw:     firstNonEmpty(item.PresmptPrce.String(), item.AsignBdgtAmt.String()),
		CurrencyRaw:  "KRW",
		Language:     "ko",
		URL:          link,
		Provenance:   domain.ProvenanceAPI,
		Extra:        map[string]string{"operation": op},
	}
	if code := item.PrdctClsfcNo.String(); code != "" {
		rec.Extra["product_class"] = code
	}
	return rec, nil
}
