package domain

import (
	"fmt"
	"strings"
)

// SourceSite identifies the platform a notice was ingested from. There is one adapter per site.
type SourceSite string

const (
	SiteG2B       SourceSite = "G2B"
	SiteTED       SourceSite = "TED"
	SiteUKFTS     SourceSite = "UK_FTS"
	SiteBOAMP     SourceSite = "BOAMP"
	SiteSAMGov    SourceSite = "SAM_GOV"
	SiteTenderNed SourceSite = "TENDERNED"
	SitePCSP      SourceSite = "PCSP"
	SiteDEVergabe SourceSite = "DE_VERGABE"
	SiteITMEPA    SourceSite = "IT_MEPA"
)

type siteProfile struct {
	country  string
	currency string
	language string
}

// TED publishes notices for every EU member state, so its country is the
// buyer's country when the record carries one.
var siteProfiles = map[SourceSite]siteProfile{
	SiteG2B:       {country: "KR", currency: "KRW", language: "ko"},
	SiteTED:       {country: "EU", currency: "EUR", language: "en"},
	SiteUKFTS:     {country: "GB", currency: "GBP", language: "en"},
	SiteBOAMP:     {country: "FR", currency: "EUR", language: "fr"},
	SiteSAMGov:    {country: "US", currency: "USD", language: "en"},
	SiteTenderNed: {country: "NL", currency: "EUR", language: "nl"},
	SitePCSP:      {country: "ES", currency: "EUR", language: "es"},
	SiteDEVergabe: {country: "DE", currency: "EUR", language: "de"},
	SiteITMEPA:    {country: "IT", currency: "EUR", language: "it"},
}

// AllSites returns every known site in a stable order.
func AllSites() []SourceSite {
	return []SourceSite{
		SiteG2B, SiteTED, SiteUKFTS, SiteBOAMP, SiteSAMGov,
		SiteTenderNed, SitePCSP, SiteDEVergabe, SiteITMEPA,
	}
}

// Valid reports whether s is a known site.
func (s SourceSite) Valid() bool {
	_, ok := siteProfiles[s]
	return ok
}

// Country returns the ISO 3166-1 alpha-2 country for the site.
func (s SourceSite) Country() string {
	return siteProfiles[s].country
}

// DefaultCurrency returns the ISO 4217 currency notices from s are usually priced in.
func (s SourceSite) DefaultCurrency() string {
	return siteProfiles[s].currency
}

// DefaultLanguage returns the ISO 639-1 language most notices from s are written in.
func (s SourceSite) DefaultLanguage() string {
	return siteProfiles[s].language
}

// MultiCountry reports whether notices on s can belong to different countries.
func (s SourceSite) MultiCountry() bool {
	return s == SiteTED
}

// ParseSourceSite accepts the canonical identifier in any case, with '.', '-' or
// spaces in place of underscores ("sam.gov", "uk-fts").
func ParseSourceSite(v string) (SourceSite, error) {
	norm := strings.ToUpper(strings.TrimSpace(v))
	norm = strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(norm)
	site := SourceSite(norm)
	if !site.Valid() {
		return "", fmt.Errorf("unknown source site %q", v)
	}
	return site, nil
}

// ParseSourceSites parses a list of site identifiers, failing on the first unknown one.
func ParseSourceSites(values []string) ([]SourceSite, error) {
	sites := make([]SourceSite, 0, len(values))
	for _, v := range values {
		site, err := ParseSourceSite(v)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}
