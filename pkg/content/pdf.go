package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

var (
	errEmptyPDFContent = errors.New("pdf content is empty")
	errNilPDFDocument  = errors.New("pdf document is nil")
)

// maxPDFText caps the text kept from a tender document. Descriptions only need
// the opening sections, where subject and CPV codes are stated.
const maxPDFText = 64 << 10

// ExtractTextFromPDF extracts plain text from an in-memory PDF such as a
// downloaded tender specification.
func ExtractTextFromPDF(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", errEmptyPDFContent
	}

	// The PDF reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	return extractTextFromPDFDocument(doc)
}

func extractTextFromPDFDocument(doc *pdf.Reader) (string, error) {
	if doc == nil {
		return "", errNilPDFDocument
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(textReader, maxPDFText)); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
