// Package content extracts readable text from scraped notice pages and their
// attached tender documents.
package content

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

var errTitleNotFound = errors.New("title not found in HTML")

// Extractor defines an interface for extracting title and text from HTML content
type Extractor interface {
	ExtractTitle(htmlContent string) (string, error)
	ExtractText(htmlContent, pageURL string) (string, error)
}

// DefaultExtractor implements Extractor with readability and goquery fallbacks.
type DefaultExtractor struct{}

func NewDefaultExtractor() *DefaultExtractor {
	return &DefaultExtractor{}
}

func (e *DefaultExtractor) ExtractTitle(htmlContent string) (string, error) {
	return ExtractTitle(htmlContent)
}

func (e *DefaultExtractor) ExtractText(htmlContent, pageURL string) (string, error) {
	return ExtractText(htmlContent, pageURL)
}

// ExtractText returns the main text of a notice page. pageURL may be empty; when
// set it lets readability resolve relative links.
func ExtractText(htmlContent, pageURL string) (string, error) {
	var base *url.URL
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			base = u
		}
	}

	article, err := readability.FromReader(strings.NewReader(htmlContent), base)
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}

// ExtractTitle extracts the notice title from HTML content with fallback mechanisms
func ExtractTitle(htmlContent string) (string, error) {
	article, err := readability.FromReader(strings.NewReader(htmlContent), nil)
	if err == nil {
		if title := strings.TrimSpace(article.Title); title != "" {
			return title, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Portals put the notice subject in <h1> more reliably than in <title>,
	// which usually carries the portal name.
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title, nil
	}
	if title, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title), nil
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title, nil
	}

	return "", errTitleNotFound
}
