package content

import (
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	errEmptyHTML         = errors.New("empty HTML content")
	errNoDocumentLink    = errors.New("no tender document link found in HTML")
	errFailedToParseHTML = errors.New("failed to parse HTML for document link")
)

// documentWords are anchor-text markers of tender documents, lower case.
var documentWords = []string{
	"tender document", "specification", "contract notice", "terms of reference",
	"cahier des charges", "dce", "règlement de consultation",
	"vergabeunterlagen", "leistungsbeschreibung", "bekanntmachung",
	"capitolato", "disciplinare", "bando",
	"pliego", "anuncio",
	"bestek", "aanbestedingsdocument",
	"공고문", "규격서", "제안요청서",
}

// FindDocumentURL locates the most likely tender document (PDF or TXT) linked from
// a notice page. Links are ranked:
//  1. anchor text names a tender document and the href is a document
//  2. the href is a document
//  3. anchor text names a tender document
//
// The href is resolved against pageURL when pageURL is set.
func FindDocumentURL(html, pageURL string) (string, error) {
	html = strings.TrimSpace(html)
	if html == "" {
		return "", errEmptyHTML
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Join(errFailedToParseHTML, err)
	}

	var high, medium, low []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			return
		}

		docLike := isDocumentHref(href)
		named := mentionsTenderDocument(sel.Text() + " " + sel.AttrOr("title", ""))
		switch {
		case docLike && named:
			high = append(high, href)
		case docLike:
			medium = append(medium, href)
		case named:
			low = append(low, href)
		}
	})

	for _, group := range [][]string{high, medium, low} {
		if len(group) > 0 {
			return resolve(pageURL, group[0]), nil
		}
	}
	return "", errNoDocumentLink
}

// IsPDF reports whether href or the response content type denotes a PDF.
func IsPDF(href, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return documentExt(href) == ".pdf"
}

func isDocumentHref(href string) bool {
	switch documentExt(href) {
	case ".pdf", ".txt":
		return true
	default:
		return false
	}
}

func documentExt(href string) string {
	p := href
	if parsed, err := url.Parse(href); err == nil {
		p = parsed.Path
	}
	return strings.ToLower(path.Ext(p))
}

func mentionsTenderDocument(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, w := range documentWords {
		if containsWord(lower, w) {
			return true
		}
	}
	return false
}

// containsWord matches w in s without matching inside a longer Latin word, so
// "dce" does not fire on "produced".
func containsWord(s, w string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(w)
		if boundary(s, start-1) && boundary(s, end) {
			return true
		}
		i = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}

// resolve makes href absolute against base when possible.
func resolve(base, href string) string {
	if base == "" {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
