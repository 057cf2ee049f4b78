package normalizer

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"tender-ingest/pkg/domain"
)

func isISOCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}

// resolveCurrency picks the explicit ISO code if valid, then a currency detected in
// the amount text, then the platform default.
func resolveCurrency(explicit, detected string, site domain.SourceSite) string {
	code := strings.ToUpper(strings.TrimSpace(explicit))
	if code != "" {
		if unit, err := currency.ParseISO(code); err == nil {
			return unit.String()
		}
		if d := detectCurrency(explicit); d != "" {
			return d
		}
	}
	if detected != "" {
		return detected
	}
	return site.DefaultCurrency()
}

// resolveCountry returns the platform country, or for multi-country platforms the
// record's own country given as an ISO alpha-2 or alpha-3 region code.
func resolveCountry(raw string, site domain.SourceSite) string {
	if site.MultiCountry() && strings.TrimSpace(raw) != "" {
		if region, err := language.ParseRegion(strings.TrimSpace(raw)); err == nil && region.IsCountry() {
			return region.String()
		}
	}
	return site.Country()
}

// resolveLanguage canonicalizes a BCP 47 tag to its base language, falling back to
// the platform default.
func resolveLanguage(raw string, site domain.SourceSite) string {
	if tag, err := language.Parse(strings.TrimSpace(raw)); err == nil && raw != "" {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	return site.DefaultLanguage()
}
