package extractor

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"ragbot/internal/domain"
)

// extractPDF flattens the text of every page in document order. The parser
// panics on some malformed inputs, so panics are reported as corrupt files.
func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf parser: %v", domain.ErrCorruptFile, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", domain.ErrCorruptFile, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: pdf plaintext: %v", domain.ErrCorruptFile, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: pdf read: %v", domain.ErrCorruptFile, err)
	}
	return string(b), nil
}
