// Package normalizer maps platform-native raw records onto the canonical TenderNotice.
package normalizer

import (
	"fmt"
	"net/url"
	"strings"

	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/faults"
)

// Normalize maps raw into a TenderNotice. It fails with a validation fault when the
// site, external ID or title is missing. Recoverable problems (an unparseable date,
// a deadline before the publication date) are recorded in ValidationIssues instead.
// The relevance score and timestamps are left for later stages.
func Normalize(raw domain.RawRecord) (*domain.TenderNotice, error) {
	site := raw.Site
	if !site.Valid() {
		return nil, faults.Validation(site, "unknown source site %q", site)
	}

	externalID := cleanText(raw.ExternalID)
	if externalID == "" {
		return nil, faults.Validation(site, "missing external id (title %q)", truncate(raw.Title, 80))
	}
	title := cleanText(raw.Title)
	if title == "" {
		return nil, faults.Validation(site, "missing title for %s", externalID)
	}

	lc := localeFor(site)
	n := &domain.TenderNotice{
		SourceSite:   site,
		ExternalID:   externalID,
		Title:        title,
		Organization: cleanText(raw.Organization),
		Description:  cleanText(raw.Description),
		Country:      resolveCountry(raw.CountryRaw, site),
		Language:     resolveLanguage(raw.Language, site),
		Provenance:   raw.Provenance,
	}
	if n.Provenance == "" {
		n.Provenance = domain.ProvenanceAPI
	}

	n.CPVCodes = mergeCPV(raw.CPV, raw.Title, raw.Description)
	n.TenderType = domain.TenderTypeFromCPV(n.CPVCodes)

	var err error
	if n.PublicationDate, err = parseDate(raw.PublishedRaw, lc); err != nil {
		n.ValidationIssues = append(n.ValidationIssues, "publication date: "+err.Error())
	}
	if n.DeadlineDate, err = parseDate(raw.DeadlineRaw, lc); err != nil {
		n.ValidationIssues = append(n.ValidationIssues, "deadline: "+err.Error())
	}
	if n.PublicationDate != nil && n.DeadlineDate != nil && n.DeadlineDate.Before(*n.PublicationDate) {
		n.Invalid = true
		n.ValidationIssues = append(n.ValidationIssues, fmt.Sprintf("deadline %s before publication %s",
			n.DeadlineDate.Format("2006-01-02"), n.PublicationDate.Format("2006-01-02")))
	}

	amount, detected, err := parseAmount(raw.ValueRaw, lc)
	if err != nil {
		n.ValidationIssues = append(n.ValidationIssues, "estimated value: "+err.Error())
	}
	n.EstimatedValue = amount
	if amount != nil || strings.TrimSpace(raw.CurrencyRaw) != "" {
		n.Currency = resolveCurrency(raw.CurrencyRaw, detected, site)
	}

	n.URL = strings.TrimSpace(raw.URL)
	if n.URL != "" {
		if u, err := url.Parse(n.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			n.ValidationIssues = append(n.ValidationIssues, fmt.Sprintf("url %q is not absolute http(s)", n.URL))
		}
	}

	return n, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
