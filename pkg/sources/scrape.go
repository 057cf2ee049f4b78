package sources

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/content"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/httpclient"
	"tender-ingest/pkg/logger"
)

// maxDescription caps descriptions assembled from detail pages and documents.
const maxDescription = 8 << 10

// Scrape reads notice listings from HTML pages with configured goquery
// selectors. Records are marked scraped. With FetchDetails set, each notice
// page is loaded for its main text and the tender document it links.
type Scrape struct {
	base
	urls      []string
	selectors config.ScrapeSelectors
	extractor content.Extractor
}

// NewScrape creates a scrape adapter for site reading cfg.ListingURLs.
func NewScrape(site domain.SourceSite, cfg config.PlatformConfig, opts ...Option) *Scrape {
	return &Scrape{
		base:      newBase(site, cfg, httpclient.BrowserClient, opts),
		urls:      cfg.ListingURLs,
		selectors: cfg.Selectors,
		extractor: content.NewDefaultExtractor(),
	}
}

func (a *Scrape) Fetch(ctx context.Context, _ Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		if len(a.urls) == 0 || a.selectors.Item == "" {
			yield(domain.RawRecord{}, faults.New(faults.KindSchema, a.site, "scrape", errors.New("no listing URLs or item selector configured")))
			return
		}

		filters := []LinkFilter{NewBaseURLFilter(), NewSeenFilter()}
		for _, listingURL := range a.urls {
			records, err := a.scrapeListing(ctx, listingURL, filters)
			if err != nil {
				yield(domain.RawRecord{}, err)
				return
			}

			for _, r := range records {
				if r.err == nil && a.cfg.UsesFetchDetails() && r.rec.URL != "" {
					a.enrich(ctx, &r.rec)
				}
				if !yield(r.rec, r.err) {
					return
				}
			}
		}
	}
}

type scraped struct {
	rec domain.RawRecord
	err error
}

func (a *Scrape) scrapeListing(ctx context.Context, listingURL string, filters []LinkFilter) ([]scraped, error) {
	body, err := a.client.GetBody(ctx, listingURL)
	if err != nil {
		return nil, faults.Schema(a.site, "listing", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		f := faults.New(faults.KindSchema, a.site, "parse listing", err)
		f.URL = listingURL
		return nil, f
	}

	var out []scraped
	items := doc.Find(a.selectors.Item)
	items.Each(func(_ int, item *goquery.Selection) {
		rec, err := a.toRecord(item, listingURL)
		if err != nil {
			out = append(out, scraped{err: err})
			return
		}
		if rec.URL != "" {
			keep, err := keepLink(ctx, rec.URL, filters...)
			if err != nil || !keep {
				return
			}
		}
		out = append(out, scraped{rec: rec})
	})

	a.log.Debug("Scraped listing",
		logger.String("url", listingURL),
		logger.Int("items", items.Length()),
		logger.Int("kept", len(out)))
	return out, nil
}

func (a *Scrape) toRecord(item *goquery.Selection, listingURL string) (domain.RawRecord, error) {
	sel := a.selectors

	link := ""
	if sel.Link != "" {
		link = strings.TrimSpace(item.Find(sel.Link).First().AttrOr("href", ""))
	}
	if link == "" {
		link = strings.TrimSpace(item.AttrOr("href", ""))
	}
	if link != "" {
		link = resolveLink(listingURL, link)
	}

	title := selectText(item, sel.Title)
	if title == "" {
		return domain.RawRecord{}, faults.Parse(a.site, "listing item", errors.New("item without title"))
	}

	id := ""
	if sel.ID != "" {
		idSel := item.Find(sel.ID).First()
		id = firstNonEmpty(idSel.AttrOr("data-id", ""), idSel.Text())
	}
	id = firstNonEmpty(id, item.AttrOr("data-id", ""), link)
	if id == "" {
		return domain.RawRecord{}, faults.Parse(a.site, "listing item", errors.New("item without id or link"))
	}

	return domain.RawRecord{
		Site:         a.site,
		ExternalID:   id,
		Title:        title,
		Organization: selectText(item, sel.Organization),
		Description:  selectText(item, sel.Description),
		PublishedRaw: selectDate(item, sel.Published),
		DeadlineRaw:  selectDate(item, sel.Deadline),
		URL:          link,
		Provenance:   domain.ProvenanceScraped,
	}, nil
}

// enrich loads the notice page and its tender document. Failures leave the
// listing fields in place.
func (a *Scrape) enrich(ctx context.Context, rec *domain.RawRecord) {
	log := a.log.With(logger.String("url", rec.URL))

	page, err := a.client.GetBody(ctx, rec.URL)
	if err != nil {
		log.Debug("Detail page unavailable", logger.Error(err))
		return
	}
	html := string(page)

	if text, err := a.extractor.ExtractText(html, rec.URL); err == nil && len(text) > len(rec.Description) {
		rec.Description = truncate(text, maxDescription)
	}
	// Listings shorten long titles.
	if strings.HasSuffix(rec.Title, "...") || strings.HasSuffix(rec.Title, "…") {
		if title, err := a.extractor.ExtractTitle(html); err == nil {
			rec.Title = title
		}
	}

	docURL, err := content.FindDocumentURL(html, rec.URL)
	if err != nil {
		return
	}
	doc, err := a.client.GetBody(ctx, docURL)
	if err != nil {
		log.Debug("Tender document unavailable", logger.String("document", docURL), logger.Error(err))
		return
	}

	text := string(doc)
	if content.IsPDF(docURL, "") || bytes.HasPrefix(doc, []byte("%PDF")) {
		text, err = content.ExtractTextFromPDF(doc)
		if err != nil {
			log.Debug("Tender document not readable", logger.String("document", docURL), logger.Error(err))
			return
		}
	}
	rec.Description = truncate(strings.TrimSpace(rec.Description+"\n\n"+text), maxDescription)
	if rec.Extra == nil {
		rec.Extra = map[string]string{}
	}
	rec.Extra["document_url"] = docURL
}

func selectText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(item.Find(selector).First().Text()), " ")
}

// selectDate prefers the machine readable datetime attribute of <time> elements.
func selectDate(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	s := item.Find(selector).First()
	if dt, ok := s.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	if dt := s.Find("time[datetime]").First().AttrOr("datetime", ""); dt != "" {
		return dt
	}
	return strings.Join(strings.Fields(s.Text()), " ")
}

func resolveLink(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
