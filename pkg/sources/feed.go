package sources

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/httpclient"
	"tender-ingest/pkg/logger"
)

var cpvCategory = regexp.MustCompile(`^\d{8}(-\d)?$`)

// Feed reads RSS or Atom notice feeds. Feeds carry no query window, so every
// fetch returns the feed's current items.
type Feed struct {
	base
	urls   []string
	parser *gofeed.Parser
}

// NewFeed creates a feed adapter for site reading cfg.FeedURLs.
func NewFeed(site domain.SourceSite, cfg config.PlatformConfig, opts ...Option) *Feed {
	return &Feed{
		base:   newBase(site, cfg, httpclient.CloudflareClient, opts),
		urls:   cfg.FeedURLs,
		parser: gofeed.NewParser(),
	}
}

func (a *Feed) Fetch(ctx context.Context, _ Query) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		if len(a.urls) == 0 {
			yield(domain.RawRecord{}, faults.New(faults.KindSchema, a.site, "feed", errors.New("no feed URLs configured")))
			return
		}

		seen := map[string]bool{}
		for _, feedURL := range a.urls {
			feed, err := a.parse(ctx, feedURL)
			if err != nil {
				yield(domain.RawRecord{}, err)
				return
			}
			a.log.Debug("Parsed feed", logger.String("url", feedURL), logger.Int("items", len(feed.Items)))

			for _, item := range feed.Items {
				rec, err := a.toRecord(item, feed)
				if err == nil {
					if seen[rec.ExternalID] {
						continue
					}
					seen[rec.ExternalID] = true
				}
				if !yield(rec, err) {
					return
				}
			}
		}
	}
}

func (a *Feed) parse(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := a.client.GetBody(ctx, feedURL)
	if err != nil {
		return nil, faults.Schema(a.site, "feed", err)
	}
	feed, err := a.parser.Parse(bytes.NewReader(body))
	if err != nil {
		f := faults.New(faults.KindSchema, a.site, "parse feed", err)
		f.URL = feedURL
		return nil, f
	}
	return feed, nil
}

func (a *Feed) toRecord(item *gofeed.Item, feed *gofeed.Feed) (domain.RawRecord, error) {
	if item == nil {
		return domain.RawRecord{}, faults.Parse(a.site, "feed item", errors.New("nil item"))
	}

	id := firstNonEmpty(item.GUID, item.Link)
	if id == "" {
		return domain.RawRecord{}, faults.Parse(a.site, "feed item", errors.New("item without guid or link"))
	}

	rec := domain.RawRecord{
		Site:         a.site,
		ExternalID:   id,
		Title:        item.Title,
		Description:  firstNonEmpty(item.Description, item.Content),
		PublishedRaw: firstNonEmpty(item.Published, item.Updated),
		Language:     feed.Language,
		URL:          item.Link,
		Provenance:   domain.ProvenanceAPI,
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		rec.Organization = item.Authors[0].Name
	}
	for _, c := range item.Categories {
		c = strings.TrimSpace(c)
		if cpvCategory.MatchString(c) {
			rec.CPV = append(rec.CPV, c)
		}
	}
	return rec, nil
}
