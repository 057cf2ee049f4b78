package domain

// RawRecord is a platform-native record as yielded by a source adapter, before normalization.
// Dates, amounts and currencies are kept as the strings the platform sent.
type RawRecord struct {
	Site         SourceSite
	ExternalID   string
	Title        string
	Organization string
	Description  string

	// CPV holds structured classification codes; free-text codes are extracted by the normalizer.
	CPV []string

	PublishedRaw string
	DeadlineRaw  string
	ValueRaw     string
	CurrencyRaw  string

	// CountryRaw is only honored for multi-country platforms.
	CountryRaw string
	Language   string
	URL        string

	Provenance Provenance

	// Extra carries platform fields kept for debugging (operation name, notice stage, ...).
	Extra map[string]string
}
