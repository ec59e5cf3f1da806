package extractor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ragbot/internal/domain"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// KindFromName maps a file name onto a supported document kind by extension.
func KindFromName(name string) domain.DocumentKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.KindPDF
	case ".docx":
		return domain.KindDOCX
	case ".txt":
		return domain.KindPlainText
	default:
		return domain.KindUnknown
	}
}

// Extractor reads stored documents into plain text, one handler per kind.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract checks that path exists, then dispatches on kind. Unknown kinds are
// rejected before the file is opened.
func (e *Extractor) Extract(path string, kind domain.DocumentKind) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	switch kind {
	case domain.KindPDF:
		return extractPDF(path)
	case domain.KindDOCX:
		return extractDOCX(path)
	case domain.KindPlainText:
		return extractPlainText(path)
	default:
		return "", fmt.Errorf("%w: %q (supported: .pdf, .docx, .txt)", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// extractPlainText rejects invalid UTF-8 instead of decoding lossily.
func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", domain.ErrEncoding, filepath.Base(path))
	}
	return string(data), nil
}
