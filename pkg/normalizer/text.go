package normalizer

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var stripPolicy = bluemonday.StrictPolicy()

// cleanText strips markup, decodes entities, applies NFC and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	if strings.ContainsRune(s, '<') {
		// Pad tags so adjacent block elements do not glue words together.
		s = html.UnescapeString(stripPolicy.Sanitize(strings.ReplaceAll(s, "<", " <")))
	}
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200b' || r == '\ufeff' || r == '\u00ad':
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var (
	// A code with its check digit ("33696000-5") is taken anywhere in text, but
	// only as a whole dashed number: "0228-12345678-9" is a phone number.
	dashedNumber      = regexp.MustCompile(`\d+(?:-\d+)*`)
	cpvWithCheckDigit = regexp.MustCompile(`^(\d{8})-\d$`)
	// Bare eight-digit codes are only taken after a CPV label.
	cpvLabelled = regexp.MustCompile(`(?i)\bCPV\b[^0-9]{0,20}((?:\d{8}(?:-\d)?[\s,;/]*)+)`)
	eightDigits = regexp.MustCompile(`\d{8}`)
)

// normalizeCPV strips separators and the check digit. It reports false for values
// that are not eight-digit codes.
func normalizeCPV(code string) (string, bool) {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r != '-' && r != ' ' && r != '.' {
			break
		}
	}
	digits := b.String()
	if len(digits) < 8 {
		return "", false
	}
	return digits[:8], true
}

// cpvDivisions are the two-digit divisions of the CPV 2008 main vocabulary.
var cpvDivisions = map[string]bool{
	"03": true, "09": true, "14": true, "15": true, "16": true, "18": true, "19": true,
	"22": true, "24": true, "30": true, "31": true, "32": true, "33": true, "34": true,
	"35": true, "37": true, "38": true, "39": true, "41": true, "42": true, "43": true,
	"44": true, "45": true, "48": true, "50": true, "51": true, "55": true, "60": true,
	"63": true, "64": true, "65": true, "66": true, "70": true, "71": true, "72": true,
	"73": true, "75": true, "76": true, "77": true, "79": true, "80": true, "85": true,
	"90": true, "92": true, "98": true,
}

// extractCPV finds CPV codes in free text, in order of appearance. Digit runs
// outside a known division are ignored.
func extractCPV(text string) []string {
	var out []string
	add := func(code string) {
		if cpvDivisions[code[:2]] {
			out = append(out, code)
		}
	}
	for _, num := range dashedNumber.FindAllString(text, -1) {
		if m := cpvWithCheckDigit.FindStringSubmatch(num); m != nil {
			add(m[1])
		}
	}
	for _, m := range cpvLabelled.FindAllStringSubmatch(text, -1) {
		for _, code := range eightDigits.FindAllString(m[1], -1) {
			add(code)
		}
	}
	return out
}

// mergeCPV normalizes structured codes, appends codes found in the text fields and
// removes duplicates, keeping first-seen order.
func mergeCPV(structured []string, texts ...string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(code string) {
		if c, ok := normalizeCPV(code); ok && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, code := range structured {
		add(code)
	}
	for _, text := range texts {
		for _, code := range extractCPV(text) {
			add(code)
		}
	}
	return out
}
