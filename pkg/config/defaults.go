package config

import (
	"time"

	"tender-ingest/pkg/domain"
)

const week = 7 * 24 * time.Hour

// defaultHealthcareCPV covers medical equipment (331x), laboratory and precision
// equipment (38x), pharmaceuticals and diagnostic reagents (3365x, 3369x), health
// services (851x), IT services used by health providers (72x) and R&D (73x).
var defaultHealthcareCPV = []string{
	"33100000", "33110000", "33111000", "33112000", "33113000", "33114000",
	"33120000", "33130000", "33140000", "33141000", "33150000", "33160000",
	"33170000", "33180000", "33190000",
	"38000000", "38100000", "38200000", "38300000", "38400000", "38500000",
	"38600000", "38700000", "38800000", "38900000",
	"33651000", "33652000", "33690000", "33691000", "33692000", "33693000",
	"33694000", "33695000", "33696000", "33697000", "33698000", "33699000",
	"85100000", "85110000", "85111000", "85112000", "85120000", "85121000",
	"85130000", "85140000", "85150000", "85160000",
	"72000000", "72200000", "72500000", "72600000",
	"73000000", "73100000", "73110000", "73120000", "73130000", "73140000",
	"73200000", "73300000",
}

// defaultKeywordSets lists Korean first so that shared acronyms keep their
// upper-case spelling in matched keyword lists.
func defaultKeywordSets() []KeywordSet {
	return []KeywordSet{
		{Language: "ko", Keywords: []string{
			"진단키트", "PCR", "분자진단", "RT-PCR", "코로나", "COVID", "인플루엔자", "독감",
			"호흡기감염", "병원체검사", "체외진단", "검사키트", "시약", "면역분석", "현장진료",
		}},
		{Language: "en", Keywords: []string{
			"diagnostic kit", "PCR test", "molecular diagnostic", "COVID test", "coronavirus",
			"influenza test", "respiratory pathogen", "in vitro diagnostic", "IVD", "point of care",
			"diagnostic", "test kit", "assay", "reagent", "elisa", "immunoassay", "lateral flow",
			"influenza", "pathogen detection", "biomarker",
		}},
		{Language: "fr", Keywords: []string{
			"diagnostic", "trousse de test", "réactif", "immunoessai", "point de soins", "grippe",
			"dispositif médical de diagnostic in vitro",
		}},
		{Language: "de", Keywords: []string{
			"diagnostik", "testkit", "reagenz", "point-of-care", "in-vitro-diagnostik",
		}},
		{Language: "es", Keywords: []string{
			"diagnóstico", "kit de prueba", "reactivo", "inmunoensayo", "punto de atención", "gripe",
		}},
		{Language: "nl", Keywords: []string{
			"diagnostiek", "testkit", "reagentia", "sneltest",
		}},
		{Language: "it", Keywords: []string{
			"diagnostica", "kit diagnostico", "reagenti", "dispositivi medico-diagnostici in vitro",
		}},
	}
}

var genericListing = ScrapeSelectors{
	Item:         "article, li.result, tr.result, div.search-result",
	Title:        "h2, h3, a",
	Link:         "a",
	Organization: ".organization, .buyer, .authority",
	Published:    ".published, .date",
	Deadline:     ".deadline, .closing-date",
	Description:  ".summary, .description, p",
}

var defaultPlatforms = map[domain.SourceSite]PlatformConfig{
	domain.SiteG2B: {
		BaseURL:        "https://apis.data.go.kr/1230000/ad/BidPublicInfoService",
		APIKeyEnv:      "G2B_API_KEY",
		RateLimit:      RateLimit{RPS: 2, Burst: 2},
		PageSize:       100,
		MaxPages:       20,
		LookbackWindow: week,
		Schedules:      []string{"0 9 * * *", "0 18 * * *"},
		Operations: []string{
			"getBidPblancListInfoThng",
			"getBidPblancListInfoServc",
			"getBidPblancListInfoCnstwk",
			"getBidPblancListInfoEtc",
		},
	},
	domain.SiteTED: {
		BaseURL:        "https://api.ted.europa.eu/v3/notices/search",
		APIKeyEnv:      "TED_API_KEY",
		RateLimit:      RateLimit{RPS: 1, Burst: 1},
		PageSize:       100,
		MaxPages:       10,
		LookbackWindow: week,
		Schedules:      []string{"0 8 * * *", "0 20 * * *"},
	},
	domain.SiteUKFTS: {
		BaseURL:        "https://www.find-tender.service.gov.uk/api/1.0/ocdsReleasePackages",
		RateLimit:      RateLimit{RPS: 1, Burst: 1},
		PageSize:       100,
		MaxPages:       20,
		LookbackWindow: week,
		Schedules:      []string{"30 8 * * *", "30 20 * * *"},
	},
	domain.SiteBOAMP: {
		BaseURL:        "https://boamp-datadila.opendatasoft.com/api/explore/v2.1/catalog/datasets/boamp/records",
		RateLimit:      RateLimit{RPS: 2, Burst: 2},
		PageSize:       100,
		MaxPages:       20,
		LookbackWindow: week,
		Schedules:      []string{"0 7 * * *", "0 19 * * *"},
		FeedURLs:       []string{"https://www.boamp.fr/avis/rss"},
		ScrapeFallback: Bool(true),
	},
	domain.SiteSAMGov: {
		BaseURL:        "https://api.sam.gov/opportunities/v2/search",
		APIKeyEnv:      "SAMGOV_API_KEY",
		RateLimit:      RateLimit{RPS: 1, Burst: 1},
		PageSize:       100,
		MaxPages:       10,
		LookbackWindow: week,
		Schedules:      []string{"0 10 * * *", "0 19 * * *"},
	},
	domain.SiteTenderNed: {
		BaseURL:        "https://www.tenderned.nl",
		RateLimit:      RateLimit{RPS: 1, Burst: 1},
		Schedules:      []string{"15 8 * * *", "15 20 * * *"},
		FeedURLs:       []string{"https://www.tenderned.nl/rss/aanbestedingen.xml"},
		ListingURLs:    []string{"https://www.tenderned.nl/aankondigingen/overzicht"},
		Selectors:      genericListing,
		ScrapeFallback: Bool(true),
	},
	domain.SitePCSP: {
		BaseURL:   "https://contrataciondelsectorpublico.gob.es",
		RateLimit: RateLimit{RPS: 1, Burst: 1},
		Schedules: []string{"45 8 * * *", "45 20 * * *"},
		FeedURLs: []string{
			"https://contrataciondelsectorpublico.gob.es/sindicacion/sindicacion_643/licitacionesPerfilesContratanteCompleto3.atom",
		},
	},
	domain.SiteDEVergabe: {
		BaseURL:        "https://www.evergabe-online.de",
		RateLimit:      RateLimit{RPS: 0.5, Burst: 1},
		Schedules:      []string{"0 9 * * 1-5"},
		FeedURLs:       []string{"https://www.deutsches-vergabeportal.de/rss"},
		ListingURLs:    []string{"https://www.evergabe-online.de/search.html"},
		Selectors:      genericListing,
		ScrapeFallback: Bool(true),
		FetchDetails:   Bool(true),
	},
	domain.SiteITMEPA: {
		BaseURL:      "https://www.acquistinretepa.it",
		RateLimit:    RateLimit{RPS: 0.5, Burst: 1},
		Schedules:    []string{"30 9 * * 1-5"},
		ListingURLs:  []string{"https://www.acquistinretepa.it/opencms/opencms/vetrina_bandi.html"},
		Selectors:    genericListing,
		FetchDetails: Bool(true),
	},
}
