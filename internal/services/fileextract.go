package services

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrNoExtractableText   = errors.New("no extractable text")
)

// Page is a run of text from one source page. Number is zero when the format
// has no pages.
type Page struct {
	Number int
	Text   string
}

type ExtractedDocument struct {
	Pages []Page
}

func (d *ExtractedDocument) CharCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Text)
	}
	return n
}

type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx", ".txt":
		return true
	}
	return false
}

// Extract dispatches on the file extension.
func (s *FileExtractService) Extract(filename string, data []byte) (*ExtractedDocument, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		doc *ExtractedDocument
		err error
	)
	switch ext {
	case ".txt":
		doc = &ExtractedDocument{Pages: []Page{{Text: normalizeExtractedText(string(data))}}}
	case ".pdf":
		doc, err = s.extractPDF(data)
	case ".docx":
		doc, err = s.extractDOCX(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
	if err != nil {
		return nil, err
	}

	pages := doc.Pages[:0]
	for _, p := range doc.Pages {
		if p.Text != "" {
			pages = append(pages, p)
		}
	}
	doc.Pages = pages
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoExtractableText, ext)
	}
	return doc, nil
}

func (s *FileExtractService) extractPDF(data []byte) (*ExtractedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	doc := &ExtractedDocument{}
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: pageIndex, Text: normalizeExtractedText(content)})
	}
	return doc, nil
}

func (s *FileExtractService) extractDOCX(data []byte) (*ExtractedDocument, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}

	var documentXML []byte
	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		documentXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		break
	}

	if len(documentXML) == 0 {
		return nil, fmt.Errorf("docx document.xml not found")
	}

	text := normalizeExtractedText(stripDOCXML(documentXML))
	return &ExtractedDocument{Pages: []Page{{Text: text}}}, nil
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func stripDOCXML(src []byte) string {
	s := string(src)

	// DOCX paragraphs and line breaks
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	s = strings.ReplaceAll(s, "<w:br/>", "\n")
	s = strings.ReplaceAll(s, "<w:br />", "\n")
	s = strings.ReplaceAll(s, "<w:tab/>", "\t")

	s = xmlTagPattern.ReplaceAllString(s, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
	return replacer.Replace(s)
}

func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var buf strings.Builder
	emptyCount := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			buf.WriteString("\n")
			continue
		}
		emptyCount = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}
