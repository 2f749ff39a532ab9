package services

import (
	"encoding/json"
	"strings"
	"unicode"

	"founder-llm-backend/internal/models"
)

// Chunker splits extracted text into ordered segments of at most Size runes.
// Consecutive segments of the same page share Overlap runes. Segments never
// span two pages.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 2000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{Size: size, Overlap: overlap}
}

func (c *Chunker) Split(doc *ExtractedDocument) []*models.FileChunk {
	var chunks []*models.FileChunk
	for _, page := range doc.Pages {
		for _, seg := range c.splitText(page.Text) {
			chunk := &models.FileChunk{
				ChunkIndex: len(chunks),
				Content:    seg,
			}
			meta := map[string]any{"length": len([]rune(seg))}
			if page.Number > 0 {
				n := page.Number
				chunk.PageNumber = &n
				meta["page"] = n
			}
			chunk.Metadata, _ = json.Marshal(meta)
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func (c *Chunker) splitText(text string) []string {
	runes := []rune(text)
	var out []string

	start := 0
	for start < len(runes) {
		end := start + c.Size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		if seg := strings.TrimSpace(string(runes[start:end])); seg != "" {
			out = append(out, seg)
		}
		if end == len(runes) {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// breakPoint looks back from end for a paragraph break, then a line break,
// then any whitespace, without going below the middle of the window.
func breakPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2

	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}
