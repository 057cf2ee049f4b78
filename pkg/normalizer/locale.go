package normalizer

import (
	"time"

	"tender-ingest/pkg/domain"
)

// locale captures how a platform writes dates and numbers.
type locale struct {
	// monthFirst selects 01/02/2006 over 02/01/2006 for slash dates.
	monthFirst bool
	// decimalComma means "1.234" is one thousand two hundred thirty-four.
	decimalComma bool
	// loc is applied to timestamps that carry no zone.
	loc *time.Location
}

var (
	kst = time.FixedZone("KST", 9*60*60)
	cet = time.FixedZone("CET", 1*60*60)
)

func localeFor(site domain.SourceSite) locale {
	switch site {
	case domain.SiteG2B:
		return locale{loc: kst}
	case domain.SiteSAMGov:
		return locale{monthFirst: true, loc: time.UTC}
	case domain.SiteUKFTS:
		return locale{loc: time.UTC}
	case domain.SiteTED:
		return locale{loc: cet}
	case domain.SiteBOAMP, domain.SitePCSP, domain.SiteDEVergabe, domain.SiteITMEPA, domain.SiteTenderNed:
		return locale{decimalComma: true, loc: cet}
	default:
		return locale{loc: time.UTC}
	}
}
