package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Provenance records how confident we are that a notice reflects a real upstream record.
type Provenance string

const (
	// ProvenanceAPI marks notices read from a structured API or feed.
	ProvenanceAPI Provenance = "api"
	// ProvenanceScraped marks notices recovered by scraping HTML. Field quality is degraded.
	ProvenanceScraped Provenance = "scraped"
	// ProvenancePlaceholder marks sample or fabricated records. They are never produced by
	// the adapters in this module but may be imported by operators and must stay distinguishable.
	ProvenancePlaceholder Provenance = "placeholder"
)

// TenderType is the broad procurement category derived from the CPV division.
type TenderType string

const (
	TenderTypeGoods    TenderType = "goods"
	TenderTypeServices TenderType = "services"
	TenderTypeWorks    TenderType = "works"
)

// Urgency buckets the time left until the submission deadline.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Status is whether a notice still accepts submissions.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// TenderNotice is the canonical procurement notice stored by the gateway.
type TenderNotice struct {
	SourceSite   SourceSite `bson:"source_site" json:"source_site"`
	ExternalID   string     `bson:"external_id" json:"external_id"`
	Title        string     `bson:"title" json:"title"`
	Organization string     `bson:"organization" json:"organization"`
	Description  string     `bson:"description" json:"description"`
	CPVCodes     []string   `bson:"cpv_codes" json:"cpv_codes"`

	PublicationDate *time.Time `bson:"publication_date,omitempty" json:"publication_date,omitempty"`
	DeadlineDate    *time.Time `bson:"deadline_date,omitempty" json:"deadline_date,omitempty"`

	EstimatedValue *float64 `bson:"estimated_value,omitempty" json:"estimated_value,omitempty"`
	Currency       string   `bson:"currency" json:"currency"`
	Country        string   `bson:"country" json:"country"`
	Language       string   `bson:"language" json:"language"`
	URL            string   `bson:"url" json:"url"`

	TenderType TenderType `bson:"tender_type" json:"tender_type"`
	Provenance Provenance `bson:"provenance" json:"provenance"`

	// Invalid is set when the record is kept despite inconsistent fields
	// (for example a deadline before the publication date).
	Invalid          bool     `bson:"invalid" json:"invalid"`
	ValidationIssues []string `bson:"validation_issues,omitempty" json:"validation_issues,omitempty"`

	HealthcareRelevanceScore float64  `bson:"healthcare_relevance_score" json:"healthcare_relevance_score"`
	MatchedKeywords          []string `bson:"matched_keywords" json:"matched_keywords"`

	CollectedAt time.Time `bson:"collected_at" json:"collected_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// Key returns the natural key in "SITE:externalID" form.
func (n *TenderNotice) Key() string {
	return string(n.SourceSite) + ":" + n.ExternalID
}

// ContentHash fingerprints every field except CollectedAt and UpdatedAt.
// Two notices with the same hash are treated as unchanged by the upsert resolver.
func (n *TenderNotice) ContentHash() string {
	var b strings.Builder
	field := func(s string) {
		b.WriteString(s)
		b.WriteByte(0x1f)
	}

	field(string(n.SourceSite))
	field(n.ExternalID)
	field(n.Title)
	field(n.Organization)
	field(n.Description)
	field(strings.Join(n.CPVCodes, ","))
	field(formatTime(n.PublicationDate))
	field(formatTime(n.DeadlineDate))
	if n.EstimatedValue != nil {
		field(strconv.FormatFloat(*n.EstimatedValue, 'f', -1, 64))
	} else {
		field("")
	}
	field(n.Currency)
	field(n.Country)
	field(n.Language)
	field(n.URL)
	field(string(n.TenderType))
	field(string(n.Provenance))
	field(strconv.FormatBool(n.Invalid))
	field(strings.Join(n.ValidationIssues, ","))
	field(strconv.FormatFloat(n.HealthcareRelevanceScore, 'f', -1, 64))
	field(strings.Join(n.MatchedKeywords, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// formatTime renders t at second precision. Stores keep milliseconds (BSON) or
// microseconds (TIMESTAMPTZ), so finer digits would not survive a reload.
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// StatusAt reports whether the notice is still open at now.
// Notices without a deadline are considered active.
func (n *TenderNotice) StatusAt(now time.Time) Status {
	if n.DeadlineDate != nil && n.DeadlineDate.Before(now) {
		return StatusClosed
	}
	return StatusActive
}

// Urgency buckets the remaining time to the deadline: three days or less is high,
// seven days or less is medium. Closed notices and notices without a deadline are low.
func (n *TenderNotice) Urgency(now time.Time) Urgency {
	if n.DeadlineDate == nil || n.DeadlineDate.Before(now) {
		return UrgencyLow
	}
	left := n.DeadlineDate.Sub(now)
	switch {
	case left <= 3*24*time.Hour:
		return UrgencyHigh
	case left <= 7*24*time.Hour:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// goodsDivisions lists CPV divisions that describe supplies rather than services.
var goodsDivisions = map[string]bool{
	"03": true, "09": true, "14": true, "15": true, "16": true, "18": true, "19": true,
	"22": true, "24": true, "30": true, "31": true, "32": true, "33": true, "34": true,
	"35": true, "37": true, "38": true, "39": true, "41": true, "42": true, "43": true, "44": true, "48": true,
}

// TenderTypeFromCPV derives the procurement category from the first CPV code.
// It returns an empty TenderType when no code is available.
func TenderTypeFromCPV(codes []string) TenderType {
	if len(codes) == 0 || len(codes[0]) < 2 {
		return ""
	}
	division := codes[0][:2]
	switch {
	case division == "45":
		return TenderTypeWorks
	case goodsDivisions[division]:
		return TenderTypeGoods
	default:
		return TenderTypeServices
	}
}
