package chunk

import (
	"fmt"

	"github.com/a-h/ragchat/models"
)

// Chunk is a bounded substring of a source document, the atomic unit
// that gets embedded, indexed and retrieved. Offsets are rune offsets
// into the document text.
type Chunk struct {
	ID            string `json:"id"`
	DocumentTitle string `json:"document_title"`
	SourceURL     string `json:"source_url"`
	Text          string `json:"text"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
}

// Source returns the citation string for the chunk's originating document.
func (c Chunk) Source() string {
	return fmt.Sprintf("%s (%s)", c.DocumentTitle, c.SourceURL)
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk: overlap must be in [0, size), got %d", overlap)
	}
	return &Splitter{
		Size:    size,
		Overlap: overlap,
	}, nil
}

// Splitter slides a fixed-size window over document text, advancing by
// Size-Overlap runes per chunk, so consecutive chunks of the same
// document share Overlap runes and together cover the whole text.
type Splitter struct {
	Size    int
	Overlap int
}

func (s *Splitter) Split(doc models.Document) (chunks []Chunk) {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}
	step := s.Size - s.Overlap
	for i, start := 0, 0; start < len(runes); i, start = i+1, start+step {
		end := start + s.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			ID:            fmt.Sprintf("%s#%d", doc.URL, i),
			DocumentTitle: doc.Title,
			SourceURL:     doc.URL,
			Text:          string(runes[start:end]),
			StartOffset:   start,
			EndOffset:     end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
