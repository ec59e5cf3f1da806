package extractor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"ragbot/internal/domain"
)

const wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// extractDOCX returns body paragraphs joined by newlines. Table cells, text
// boxes, headers and footers are skipped.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: docx is not a zip container: %v", domain.ErrCorruptFile, err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", domain.ErrCorruptFile)
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open word/document.xml: %v", domain.ErrCorruptFile, err)
	}
	defer rc.Close()

	paras, err := docxParagraphs(rc)
	if err != nil {
		return "", fmt.Errorf("%w: parse word/document.xml: %v", domain.ErrCorruptFile, err)
	}
	return strings.Join(paras, "\n"), nil
}

func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paras  []string
		cur    strings.Builder
		depth  int // w:p nesting; text boxes nest paragraphs inside runs
		tables int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paras, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tables++
			case "p":
				depth++
				if depth == 1 {
					cur.Reset()
				}
			case "t":
				if depth != 1 || tables > 0 {
					continue
				}
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, err
				}
				cur.WriteString(s)
			case "tab":
				if depth == 1 && tables == 0 {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if depth == 1 && tables == 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tables--
			case "p":
				if depth == 1 && tables == 0 {
					paras = append(paras, cur.String())
				}
				depth--
			}
		}
	}
}
