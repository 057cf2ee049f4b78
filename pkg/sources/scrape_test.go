package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
	"tender-ingest/pkg/httpclient"
)

const listingPage = `<html><body>
<header><a href="/">Startseite</a></header>
<ul>
 <li class="result" data-id="V-2025-001">
  <h3><a href="/notice/1">Lieferung von Laborreagenzien für das Universitätsklinikum...</a></h3>
  <span class="buyer">Universitätsklinikum Bonn</span>
  <span class="date"><time datetime="2025-01-14">14.01.2025</time></span>
  <span class="deadline">20.02.2025 12:00</span>
 </li>
 <li class="result"><h3></h3></li>
 <li class="result"><h3><a href="/">Startseite</a></h3></li>
 <li class="result" data-id="V-2025-001-dup"><h3><a href="/notice/1">Wiederholt</a></h3></li>
</ul></body></html>`

const detailPage = `<html><head><title>Vergabeportal</title></head><body>
<article>
<h1>Lieferung von Laborreagenzien für das Universitätsklinikum Bonn</h1>
<p>Gegenstand der Ausschreibung ist die Lieferung von Laborreagenzien und PCR-Testkits für das
Zentrallabor des Universitätsklinikums. Die Laufzeit beträgt 24 Monate mit Verlängerungsoption.</p>
<p>Angebote sind ausschließlich elektronisch über die Vergabeplattform einzureichen. Die
Zuschlagskriterien sind Preis und Qualität.</p>
<p><a href="/docs/leistungsbeschreibung.txt">Leistungsbeschreibung</a></p>
</article></body></html>`

func scrapeConfig(listingURL string) config.PlatformConfig {
	return config.PlatformConfig{
		ListingURLs: []string{listingURL},
		Selectors: config.ScrapeSelectors{
			Item:         "li.result",
			Title:        "h3",
			Link:         "h3 a",
			Organization: ".buyer",
			Published:    ".date",
			Deadline:     ".deadline",
		},
	}
}

func TestScrape_Listing(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	})

	a := NewScrape(domain.SiteDEVergabe, scrapeConfig(server.URL+"/search"), testOptions(httpclient.BrowserClient)...)
	recs, errs := collect(a.Fetch(context.Background(), Query{}))

	require.Len(t, recs, 1, "root and repeated links are filtered")
	rec := recs[0]
	assert.Equal(t, "V-2025-001", rec.ExternalID)
	assert.Equal(t, server.URL+"/notice/1", rec.URL)
	assert.Equal(t, "Universitätsklinikum Bonn", rec.Organization)
	assert.Equal(t, "2025-01-14", rec.PublishedRaw)
	assert.Equal(t, "20.02.2025 12:00", rec.DeadlineRaw)
	assert.Equal(t, domain.ProvenanceScraped, rec.Provenance)

	require.Len(t, errs, 1)
	assert.Equal(t, faults.KindParse, faults.KindOf(errs[0]))
}

func TestScrape_FetchDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, listingPage) })
	mux.HandleFunc("/notice/1", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, detailPage) })
	mux.HandleFunc("/docs/leistungsbeschreibung.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Los 1: PCR-Reagenzien, CPV 33696500-0")
	})
	server := serve(t, mux.ServeHTTP)

	cfg := scrapeConfig(server.URL + "/search")
	cfg.FetchDetails = config.Bool(true)
	recs, _ := collect(NewScrape(domain.SiteDEVergabe, cfg, testOptions(httpclient.BrowserClient)...).Fetch(context.Background(), Query{}))

	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "Lieferung von Laborreagenzien für das Universitätsklinikum Bonn", rec.Title, "shortened title is replaced")
	assert.Contains(t, rec.Description, "PCR-Testkits")
	assert.Contains(t, rec.Description, "CPV 33696500-0")
	assert.Equal(t, server.URL+"/docs/leistungsbeschreibung.txt", rec.Extra["document_url"])
}

func TestScrape_LongDetailPageIsCapped(t *testing.T) {
	paragraph := "<p>Gegenstand der Ausschreibung ist die Lieferung von Laborreagenzien, PCR-Testkits und Verbrauchsmaterial für das Zentrallabor.</p>\n"
	longPage := "<html><body><article><h1>Laborreagenzien</h1>\n" + strings.Repeat(paragraph, 200) + "</article></body></html>"

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, listingPage) })
	mux.HandleFunc("/notice/1", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, longPage) })
	server := serve(t, mux.ServeHTTP)

	cfg := scrapeConfig(server.URL + "/search")
	cfg.FetchDetails = config.Bool(true)
	recs, _ := collect(NewScrape(domain.SiteDEVergabe, cfg, testOptions(httpclient.BrowserClient)...).Fetch(context.Background(), Query{}))

	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Description, "PCR-Testkits")
	assert.LessOrEqual(t, len(recs[0].Description), maxDescription)
	assert.NotContains(t, recs[0].Extra, "document_url")
}

func TestScrape_DetailFailureKeepsRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, listingPage) })
	mux.HandleFunc("/notice/1", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	server := serve(t, mux.ServeHTTP)

	cfg := scrapeConfig(server.URL + "/search")
	cfg.FetchDetails = config.Bool(true)
	recs, errs := collect(NewScrape(domain.SiteDEVergabe, cfg, testOptions(httpclient.BrowserClient)...).Fetch(context.Background(), Query{}))

	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Description)
	assert.Len(t, errs, 1)
}

func TestScrape_NotConfigured(t *testing.T) {
	_, errs := collect(NewScrape(domain.SiteITMEPA, config.PlatformConfig{}, testOptions(httpclient.BrowserClient)...).Fetch(context.Background(), Query{}))

	require.Len(t, errs, 1)
	assert.False(t, faults.IsRecordLevel(errs[0]))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "가", truncate("가나", 4), "never splits a rune")
}
